package prompt

import "strings"

// Spec is an interpreted prompt.
type Spec struct {
	RawText    string      `json:"raw_text"`
	Categories CategorySet `json:"categories"`
}

// Key identifies the filter the spec applies. A nil spec or one without
// categories has the empty key, same as no filter at all.
func (s *Spec) Key() string {
	if s == nil {
		return ""
	}
	return s.Categories.Key()
}

// Empty reports whether the spec filters nothing.
func (s *Spec) Empty() bool {
	return s == nil || len(s.Categories) == 0
}

// Interpret maps free text to the union of all categories whose prompt
// keywords it mentions. Blank text yields nil.
func Interpret(text string) *Spec {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	normalized := Normalize(text)

	var matched []Category
	for _, c := range AllCategories {
		for _, kw := range table[c].Prompt {
			if hasWordPrefix(normalized, kw) {
				matched = append(matched, c)
				break
			}
		}
	}
	return &Spec{RawText: text, Categories: NewCategorySet(matched...)}
}
