package scan

import (
	"strings"
	"unicode"
)

// labelOverrides maps known field names to display labels that a plain
// humanization of the key would get wrong.
var labelOverrides = map[string]string{
	"cagr":               "Growth Rate",
	"revenue_cagr":       "Revenue Growth Rate",
	"ebitda":             "EBITDA",
	"ebitda_margin":      "EBITDA Margin",
	"deal_size_estimate": "Deal Size",
	"arr":                "Annual Recurring Revenue",
	"ltm_revenue":        "LTM Revenue",
	"key_risks":          "Key Risks",
	"swot":               "SWOT Analysis",
	"roi":                "Return on Investment",
	"irr":                "Internal Rate of Return",
}

// Label derives a human-readable display label for a key. Known names use
// the override table; everything else is humanized. It never panics.
func Label(key string, category Category) (label string) {
	defer func() {
		if r := recover(); r != nil {
			label = key
		}
	}()
	_ = category

	if override, ok := labelOverrides[strings.ToLower(strings.TrimSpace(key))]; ok {
		return override
	}
	return humanize(key)
}

// humanize turns snake_case or camelCase keys into Title Case words.
func humanize(key string) string {
	replaced := strings.ReplaceAll(key, "_", " ")

	var b strings.Builder
	for i, r := range replaced {
		if i > 0 && unicode.IsUpper(r) {
			prev := rune(replaced[i-1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
