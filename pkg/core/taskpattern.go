package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// stopWords are filtered out when deriving a task-pattern signature.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "is": {}, "are": {},
	"be": {}, "by": {}, "at": {}, "it": {}, "this": {}, "that": {},
	"from": {}, "as": {}, "into": {}, "using": {}, "via": {},
}

// taskPatternWords bounds the signature length.
const taskPatternWords = 5

var foldCaser = cases.Fold()

// TaskPattern derives a coarse normalized signature from a task description:
// case-folded, punctuation-stripped, stop-word-filtered, truncated to the
// first few meaningful words. Used to index and match working-memory entries.
func TaskPattern(task string) string {
	folded := foldCaser.String(task)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, folded)

	meaningful := make([]string, 0, taskPatternWords)
	for _, w := range strings.Fields(cleaned) {
		if _, skip := stopWords[w]; skip {
			continue
		}
		meaningful = append(meaningful, w)
		if len(meaningful) == taskPatternWords {
			break
		}
	}
	return strings.Join(meaningful, " ")
}
