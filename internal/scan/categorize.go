package scan

import (
	"regexp"
	"strconv"
	"strings"
)

// Category buckets a field for display grouping.
type Category string

const (
	CategoryFinancial      Category = "financial"
	CategoryBusiness       Category = "business"
	CategoryCompetitive    Category = "competitive"
	CategoryRecommendation Category = "recommendation"
	CategoryList           Category = "list"
	CategoryComplex        Category = "complex"
	CategoryGeneral        Category = "general"
)

// keyRule maps a key pattern to a category. Rules are evaluated in order and
// the first match wins, so precedence lives in the slice, not the patterns.
type keyRule struct {
	pattern  *regexp.Regexp
	category Category
}

var keyRules = []keyRule{
	{regexp.MustCompile(`(?i)(cagr|ebitda|revenue|margin|profit|income|cash|debt|valuation|deal_size|price|cost|growth|financial)`), CategoryFinancial},
	{regexp.MustCompile(`(?i)(business_model|service|revenue_stream|client|customer|product|offering|feature|segment)`), CategoryBusiness},
	{regexp.MustCompile(`(?i)(market_position|competitive|competitor|strength|weakness|moat|market_share|positioning)`), CategoryCompetitive},
	{regexp.MustCompile(`(?i)(recommendation|decision|action|thesis|verdict|rationale|next_step|return)`), CategoryRecommendation},
}

// confidencePattern marks keys whose names alone signal a known financial,
// recommendation, or competitive-position field.
var confidencePattern = regexp.MustCompile(`(?i)(cagr|ebitda|revenue|margin|growth|recommendation|market_position|return)`)

var percentPattern = regexp.MustCompile(`^-?\d+(\.\d+)?\s*%$`)

// Categorize assigns a category to a key/value pair. The key patterns take
// precedence; the value shape is the fallback. It never panics.
func Categorize(key string, value any) (category Category) {
	defer func() {
		if r := recover(); r != nil {
			category = fallbackCategory(value)
		}
	}()

	for _, rule := range keyRules {
		if rule.pattern.MatchString(key) {
			return rule.category
		}
	}
	return fallbackCategory(value)
}

func fallbackCategory(value any) Category {
	switch {
	case isNumeric(value) || isPercentString(value):
		return CategoryFinancial
	case isArray(value):
		return CategoryList
	case isObject(value):
		return CategoryComplex
	default:
		return CategoryGeneral
	}
}

// Confidence scores how certain the categorization and labeling of a field
// is. Base 0.5, +0.3 for a recognized key name, +0.2 for a numeric or
// percent-formatted value, capped at 1.0.
func Confidence(key string, value any) float64 {
	score := 0.5
	if confidencePattern.MatchString(key) {
		score += 0.3
	}
	if isNumeric(value) || isPercentString(value) {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	}
	if s, ok := value.(string); ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return true
		}
	}
	return false
}

func isPercentString(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return percentPattern.MatchString(strings.TrimSpace(s))
}
