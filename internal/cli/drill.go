package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
)

//go:generate mockgen -source=drill.go -destination=../mocks/cli/mock_drill.go -package=mock_cli PracticeRecorder

// PracticeRecorder stores a finished intensive listening session.
type PracticeRecorder interface {
	SavePracticeRecord(ctx context.Context, noteIDs []string) (practice.Record, error)
}

// DrillCLI runs an intensive listening session: each sentence is typed from
// memory of the recording and compared word by word.
type DrillCLI struct {
	*InteractiveCLI
	sentences []practice.Sentence
	notes     map[string]notebook.Note
	recorder  PracticeRecorder

	total    int
	answered []practice.Sentence
	accuracy []float64
}

func NewDrillCLI(cli *InteractiveCLI, sentences []practice.Sentence, notes []notebook.Note, recorder PracticeRecorder) *DrillCLI {
	byID := make(map[string]notebook.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	return &DrillCLI{
		InteractiveCLI: cli,
		sentences:      sentences,
		notes:          byID,
		recorder:       recorder,
		total:          len(sentences),
	}
}

func (d *DrillCLI) Session(ctx context.Context) error {
	if len(d.sentences) == 0 {
		return d.finish(ctx)
	}
	sentence := d.sentences[0]
	w := d.stdoutWriter

	_, _ = d.italic.Fprintf(w, "[%d/%d] %s\n", d.total-len(d.sentences)+1, d.total, d.describe(sentence.NoteID))
	_, _ = d.bold.Fprint(w, "> ")
	answer, err := d.readLine()
	if errors.Is(err, io.EOF) {
		_, _ = fmt.Fprintln(w)
		return d.finish(ctx)
	}
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	d.sentences = d.sentences[1:]

	result := practice.Compare(answer, sentence.Text)
	d.printComparison(result)
	d.answered = append(d.answered, sentence)
	d.accuracy = append(d.accuracy, result.Accuracy())
	return nil
}

func (d *DrillCLI) describe(noteID string) string {
	n, ok := d.notes[noteID]
	if !ok {
		return noteID
	}
	parts := []string{}
	for _, s := range []string{n.Chapter, n.Test, n.Part} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if n.UsesBlobStore() || n.HasInlineAudio() {
		parts = append(parts, fmt.Sprintf("(audio: ieltsnotes audio get %s)", n.ID))
	}
	return strings.Join(parts, " ")
}

func (d *DrillCLI) printComparison(result practice.Comparison) {
	w := d.stdoutWriter
	for i, token := range result.Tokens {
		if i > 0 {
			_, _ = fmt.Fprint(w, " ")
		}
		switch token.Kind {
		case practice.Matched:
			_, _ = d.green.Fprint(w, token.Text)
		case practice.Wrong:
			_, _ = d.red.Fprintf(w, "~%s~", token.Text)
		default:
			_, _ = d.yellow.Fprintf(w, "[%s]", token.Text)
		}
	}
	_, _ = fmt.Fprintln(w)

	mark := "✅"
	if result.Matched < result.Total {
		mark = "❌"
	}
	_, _ = fmt.Fprintf(w, "%s %.1f%% (%d/%d words, %d/%d key words)\n\n",
		mark, result.Accuracy(), result.Matched, result.Total, result.ContentMatched, result.ContentTotal)
}

// finish records the sentences answered so far and ends the session.
func (d *DrillCLI) finish(ctx context.Context) error {
	w := d.stdoutWriter
	if len(d.answered) == 0 {
		_, _ = fmt.Fprintln(w, "No sentences were practiced.")
		return errEnd
	}

	sum := 0.0
	for _, a := range d.accuracy {
		sum += a
	}
	_, _ = fmt.Fprintf(w, "Practiced %d sentences, average accuracy %.1f%%\n", len(d.answered), sum/float64(len(d.accuracy)))

	if _, err := d.recorder.SavePracticeRecord(ctx, practice.NoteIDs(d.answered)); err != nil {
		return fmt.Errorf("recorder.SavePracticeRecord() > %w", err)
	}
	d.answered = nil
	d.accuracy = nil
	return errEnd
}
