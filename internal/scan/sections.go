package scan

import "sort"

// Section is a named, prioritized bucket of fields sharing a category.
type Section struct {
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Priority int      `json:"priority"`
	Fields   []Field  `json:"fields"`
}

var sectionTitles = map[Category]string{
	CategoryFinancial:      "Financial Metrics",
	CategoryBusiness:       "Business Model",
	CategoryCompetitive:    "Competitive Position",
	CategoryRecommendation: "Investment Recommendation",
	CategoryList:           "Key Information",
	CategoryComplex:        "Detailed Analysis",
	CategoryGeneral:        "Additional Information",
}

var sectionPriorities = map[Category]int{
	CategoryFinancial:      0,
	CategoryBusiness:       1,
	CategoryCompetitive:    2,
	CategoryRecommendation: 3,
	CategoryList:           4,
	CategoryComplex:        5,
	CategoryGeneral:        6,
}

// unknownPriority sorts categories outside the known set after all others.
const unknownPriority = 7

// GroupSections buckets fields by category into display sections. Sections
// come back in fixed priority order; fields within a section are sorted by
// descending confidence with discovery order breaking ties. It never panics;
// internal failure yields an empty slice.
func GroupSections(fields []Field) (sections []Section) {
	defer func() {
		if r := recover(); r != nil {
			sections = []Section{}
		}
	}()

	buckets := make(map[Category][]Field)
	var order []Category
	for _, f := range fields {
		if _, seen := buckets[f.Category]; !seen {
			order = append(order, f.Category)
		}
		buckets[f.Category] = append(buckets[f.Category], f)
	}

	sections = make([]Section, 0, len(order))
	for _, cat := range order {
		bucket := buckets[cat]
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Confidence > bucket[j].Confidence
		})
		sections = append(sections, Section{
			Title:    sectionTitle(cat),
			Category: cat,
			Priority: sectionPriority(cat),
			Fields:   bucket,
		})
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Priority < sections[j].Priority
	})
	return sections
}

func sectionTitle(cat Category) string {
	if title, ok := sectionTitles[cat]; ok {
		return title
	}
	return capitalize(string(cat))
}

func sectionPriority(cat Category) int {
	if p, ok := sectionPriorities[cat]; ok {
		return p
	}
	return unknownPriority
}
