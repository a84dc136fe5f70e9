package notebook

import (
	"strings"

	"golang.org/x/text/cases"
)

const QuestionTypeOther = "other"

var questionTypes = map[string]string{
	"multiple-choice": "multiple-choice",
	"multiple choice": "multiple-choice",
	"single-choice":   "single-choice",
	"single choice":   "single-choice",
	"map":             "map",
	"map-labeling":    "map",
	"map labeling":    "map",
	"matching":        "matching",
	"other":           QuestionTypeOther,
}

// CanonicalQuestionType maps known spellings of a question type to their
// canonical name. Unknown values are returned unchanged.
func CanonicalQuestionType(v string) string {
	key := cases.Fold().String(strings.TrimSpace(v))
	if canonical, ok := questionTypes[key]; ok {
		return canonical
	}
	return v
}

// QuestionTypes returns the canonical question types.
func QuestionTypes() []string {
	return []string{"multiple-choice", "single-choice", "map", "matching", QuestionTypeOther}
}
