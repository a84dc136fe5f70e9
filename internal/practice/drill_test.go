package practice

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

func strPtr(s string) *string {
	return &s
}

func drillNote(id, content string, keyPoints ...string) notebook.Note {
	return notebook.Note{
		ID:                       id,
		Content:                  content,
		KeyPoints:                keyPoints,
		AudioData:                strPtr(notebook.AudioSentinel),
		EnableIntensiveListening: true,
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "english terminators followed by a space",
			input: "Hello world. How are you?\nFine",
			want:  []string{"Hello world.", "How are you?", "Fine"},
		},
		{
			name:  "full width terminators are dropped",
			input: "我喜欢音乐。你呢？太好了！",
			want:  []string{"我喜欢音乐", "你呢", "太好了"},
		},
		{
			name:  "decimal points do not split",
			input: "It costs 3.50 pounds.",
			want:  []string{"It costs 3.50 pounds."},
		},
		{
			name:  "blank lines",
			input: "\r\n  \n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.input))
		})
	}
}

func TestExtractText(t *testing.T) {
	got := ExtractText("<p>First line</p><p>Second &amp; <b>third</b></p>")
	assert.Equal(t, []string{"First line", "Second & third"}, SplitSentences(got))
	assert.Equal(t, "plain", ExtractText("plain"))
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		note notebook.Note
		want bool
	}{
		{name: "eligible", note: drillNote("n", "content"), want: true},
		{name: "inline audio", note: notebook.Note{Content: "c", AudioData: strPtr("data:audio/mp3;base64,AA"), EnableIntensiveListening: true}, want: true},
		{name: "not enabled", note: notebook.Note{Content: "c", AudioData: strPtr(notebook.AudioSentinel)}},
		{name: "no audio", note: notebook.Note{Content: "c", EnableIntensiveListening: true}},
		{name: "blank content", note: notebook.Note{Content: "  ", AudioData: strPtr(notebook.AudioSentinel), EnableIntensiveListening: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.note))
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	notes := []notebook.Note{
		drillNote("note_1", "<p>The lecture hall is on the left.</p><p>Hi.</p><p>It is what it is.</p>"),
		drillNote("note_2", "Students must register before Friday. The library closes at noon.", "<b>library</b>"),
		{ID: "note_3", Content: "This note is not enabled for drills.", AudioData: strPtr(notebook.AudioSentinel)},
		drillNote("note_4", "The museum reopens next spring."),
	}

	tests := []struct {
		name string
		opts DrillOptions
		want []string
	}{
		{
			name: "every usable sentence",
			opts: DrillOptions{Count: 10, MinLength: 5},
			want: []string{
				"The lecture hall is on the left.",
				"Students must register before Friday.",
				"The library closes at noon.",
				"The museum reopens next spring.",
			},
		},
		{
			name: "recently practiced notes are excluded",
			opts: DrillOptions{Count: 10, MinLength: 5, Exclude: []string{"note_1", "note_4"}},
			want: []string{"Students must register before Friday.", "The library closes at noon."},
		},
		{
			name: "longer minimum length",
			opts: DrillOptions{Count: 10, MinLength: 31, Exclude: []string{"note_2"}},
			want: []string{"The lecture hall is on the left."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewBuilder(WithRand(rand.New(rand.NewPCG(1, 2))))
			got, err := builder.Build(notes, tt.opts)
			require.NoError(t, err)

			var texts []string
			for _, s := range got {
				texts = append(texts, s.Text)
			}
			assert.ElementsMatch(t, tt.want, texts)
		})
	}
}

func TestBuilder_Build_KeyPointsFirst(t *testing.T) {
	var content []string
	for _, place := range []string{"bakery", "station", "garden", "harbour", "castle", "stadium"} {
		content = append(content, "Meet me near the "+place+" tomorrow.")
	}
	content = append(content, "The Lecture Hall opens at nine tomorrow.")
	notes := []notebook.Note{drillNote("note_1", strings.Join(content, " "), "lecture hall", "")}

	for seed := uint64(0); seed < 20; seed++ {
		builder := NewBuilder(WithRand(rand.New(rand.NewPCG(seed, seed))))
		got, err := builder.Build(notes, DrillOptions{Count: 2, MinLength: 5})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "The Lecture Hall opens at nine tomorrow.", got[0].Text)
		assert.Equal(t, 1, got[0].KeyPointHits)
		assert.Equal(t, 0, got[1].KeyPointHits)
	}
}

func TestBuilder_Build_Defaults(t *testing.T) {
	var content []string
	for i := 0; i < DefaultSentenceCount+5; i++ {
		content = append(content, strings.Repeat("lecture ", i+2)+"museum.")
	}
	builder := NewBuilder()
	got, err := builder.Build([]notebook.Note{drillNote("note_1", strings.Join(content, "\n"))}, DrillOptions{MinLength: -1})
	require.NoError(t, err)
	assert.Len(t, got, DefaultSentenceCount)
	assert.Equal(t, []string{"note_1"}, NoteIDs(got))
}

func TestNoteIDs(t *testing.T) {
	got := NoteIDs([]Sentence{{NoteID: "b"}, {NoteID: "a"}, {NoteID: "b"}})
	assert.Equal(t, []string{"b", "a"}, got)
	assert.Equal(t, []string{}, NoteIDs(nil))
}
