package practice

import (
	"slices"
	"strings"

	"github.com/orsinium-labs/stopwords"
)

// TokenKind classifies a word of a compared dictation.
type TokenKind int

const (
	// Matched is a word heard correctly.
	Matched TokenKind = iota
	// Wrong is a typed word that does not belong there.
	Wrong
	// Missed is a word of the sentence that was not typed.
	Missed
)

func (k TokenKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Wrong:
		return "wrong"
	default:
		return "missed"
	}
}

type Token struct {
	Text string
	Kind TokenKind
}

// Comparison is the result of checking a typed answer against a sentence.
type Comparison struct {
	Tokens []Token
	// Matched and Total count the words of the sentence.
	Matched int
	Total   int
	// ContentMatched and ContentTotal ignore stopwords.
	ContentMatched int
	ContentTotal   int
}

// Accuracy is the share of sentence words heard correctly, in percent.
func (c Comparison) Accuracy() float64 {
	if c.Total == 0 {
		return 100
	}
	return float64(c.Matched) / float64(c.Total) * 100
}

type wordMatch struct {
	answer, correct int
}

// Compare aligns the typed answer with the correct sentence word by word.
// Each sentence word is matched with the first unused typed word that equals
// it, ignoring case and punctuation.
func Compare(answer, correct string) Comparison {
	answerWords := strings.Fields(answer)
	correctWords := strings.Fields(correct)
	matches := alignWords(answerWords, correctWords)

	result := Comparison{Total: len(correctWords)}
	answerIndex, correctIndex := 0, 0
	for correctIndex < len(correctWords) || answerIndex < len(answerWords) {
		m, found := findMatch(matches, correctIndex)
		switch {
		case found && m.answer == answerIndex:
			result.Tokens = append(result.Tokens, Token{Text: correctWords[correctIndex], Kind: Matched})
			answerIndex++
			correctIndex++
		case found && m.answer > answerIndex:
			for ; answerIndex < m.answer; answerIndex++ {
				result.Tokens = append(result.Tokens, Token{Text: answerWords[answerIndex], Kind: Wrong})
			}
			result.Tokens = append(result.Tokens, Token{Text: correctWords[correctIndex], Kind: Matched})
			answerIndex++
			correctIndex++
		case correctIndex < len(correctWords):
			result.Tokens = append(result.Tokens, Token{Text: correctWords[correctIndex], Kind: Missed})
			correctIndex++
		default:
			result.Tokens = append(result.Tokens, Token{Text: answerWords[answerIndex], Kind: Wrong})
			answerIndex++
		}
	}

	stop := stopwords.MustGet("en")
	for _, t := range result.Tokens {
		if t.Kind == Wrong {
			continue
		}
		content := !stop.Contains(cleanWord(t.Text))
		if content {
			result.ContentTotal++
		}
		if t.Kind == Matched {
			result.Matched++
			if content {
				result.ContentMatched++
			}
		}
	}
	return result
}

func alignWords(answerWords, correctWords []string) []wordMatch {
	var matches []wordMatch
	usedAnswer := make([]bool, len(answerWords))

	for i, cw := range correctWords {
		target := cleanWord(cw)
		for j, aw := range answerWords {
			if usedAnswer[j] || cleanWord(aw) != target {
				continue
			}
			matches = append(matches, wordMatch{answer: j, correct: i})
			usedAnswer[j] = true
			break
		}
	}

	slices.SortFunc(matches, func(a, b wordMatch) int {
		return a.correct - b.correct
	})
	return matches
}

func findMatch(matches []wordMatch, correct int) (wordMatch, bool) {
	for _, m := range matches {
		if m.correct == correct {
			return m, true
		}
	}
	return wordMatch{}, false
}

func cleanWord(w string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!?;:'\"()[]{}", r) {
			return -1
		}
		return r
	}, strings.ToLower(w)))
}
