package practice

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

const (
	DefaultSentenceCount = 15
	DefaultMinLength     = 5
)

// Sentence is one line of a drill.
type Sentence struct {
	Text   string
	NoteID string
	// KeyPointHits is the number of the note's key points the sentence contains.
	KeyPointHits int
}

// DrillOptions configures Build.
type DrillOptions struct {
	Count int
	// MinLength is the number of characters a sentence must exceed.
	MinLength int
	// Exclude lists note ids to leave out, typically the recently practiced ones.
	Exclude []string
}

// Builder picks drill sentences from notes.
type Builder struct {
	rand      *rand.Rand
	stopwords *stopwords.Stopwords
}

type BuilderOption func(*Builder)

// WithRand makes the sentence choice reproducible.
func WithRand(r *rand.Rand) BuilderOption {
	return func(b *Builder) {
		b.rand = r
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		rand:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		stopwords: stopwords.MustGet("en"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Eligible reports whether a note takes part in intensive listening.
func Eligible(n notebook.Note) bool {
	return n.EnableIntensiveListening &&
		strings.TrimSpace(n.Content) != "" &&
		n.AudioData != nil && *n.AudioData != ""
}

// Build extracts the sentences of every eligible note and picks up to
// opts.Count of them at random. Sentences containing one of their note's key
// points are picked before the others.
func (b *Builder) Build(notes []notebook.Note, opts DrillOptions) ([]Sentence, error) {
	if opts.Count <= 0 {
		opts.Count = DefaultSentenceCount
	}
	if opts.MinLength < 0 {
		opts.MinLength = DefaultMinLength
	}

	var candidates []Sentence
	for _, n := range notes {
		if !Eligible(n) || slices.Contains(opts.Exclude, n.ID) {
			continue
		}
		matcher, err := newKeyPointMatcher(n.KeyPoints)
		if err != nil {
			return nil, fmt.Errorf("build key point matcher for note %s: %w", n.ID, err)
		}
		for _, text := range SplitSentences(ExtractText(n.Content)) {
			if utf8.RuneCountInString(text) <= opts.MinLength || b.onlyStopwords(text) {
				continue
			}
			candidates = append(candidates, Sentence{
				Text:         text,
				NoteID:       n.ID,
				KeyPointHits: matcher.hits(text),
			})
		}
	}

	b.rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	slices.SortStableFunc(candidates, func(a, b Sentence) int {
		return min(b.KeyPointHits, 1) - min(a.KeyPointHits, 1)
	})
	if len(candidates) > opts.Count {
		candidates = candidates[:opts.Count]
	}
	return candidates, nil
}

// NoteIDs returns the distinct note ids of sentences in order of appearance.
func NoteIDs(sentences []Sentence) []string {
	ids := []string{}
	for _, s := range sentences {
		if !slices.Contains(ids, s.NoteID) {
			ids = append(ids, s.NoteID)
		}
	}
	return ids
}

func (b *Builder) onlyStopwords(text string) bool {
	for _, w := range words(text) {
		if !b.stopwords.Contains(w) {
			return false
		}
	}
	return true
}

// words returns the lower-cased words of text. Text without spaces, such as
// Chinese, is a single word.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// SplitSentences splits text on line breaks, full-width terminators and
// ASCII terminators followed by a space. ASCII terminators stay with their sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '\n', '\r':
			flush()
		case '.', '!', '?':
			current.WriteRune(r)
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				flush()
			}
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return sentences
}

type keyPointMatcher struct {
	automaton *ahocorasick.Automaton
}

func newKeyPointMatcher(keyPoints []string) (*keyPointMatcher, error) {
	var patterns []string
	for _, p := range keyPoints {
		text := strings.ToLower(strings.TrimSpace(ExtractText(p)))
		if text != "" && !slices.Contains(patterns, text) {
			patterns = append(patterns, text)
		}
	}
	if len(patterns) == 0 {
		return &keyPointMatcher{}, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	return &keyPointMatcher{automaton: automaton}, nil
}

// hits counts the distinct key points found in text.
func (m *keyPointMatcher) hits(text string) int {
	if m.automaton == nil {
		return 0
	}
	found := map[int]struct{}{}
	for _, match := range m.automaton.FindAllOverlapping([]byte(strings.ToLower(text))) {
		found[match.PatternID] = struct{}{}
	}
	return len(found)
}
