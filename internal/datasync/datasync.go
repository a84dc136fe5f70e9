// Package datasync moves notes between the flat store, the notes database,
// the audio database and export files.
package datasync

import (
	"context"
	"fmt"
	"io"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

//go:generate mockgen -source=datasync.go -destination=../mocks/datasync/mock_datasync.go -package=mock_datasync

// AudioStore stores the audio payloads of notes.
type AudioStore interface {
	Put(ctx context.Context, noteID, payload string) (string, error)
	Get(ctx context.Context, noteID string) (string, bool, error)
	Has(ctx context.Context, noteID string) (bool, error)
	Delete(ctx context.Context, noteID string) error
}

// Notifier tells the user about a failure they need to act on.
type Notifier interface {
	NotifyError(ctx context.Context, err error)
}

// storeAudio moves the inline audio of n into the audio store, replacing the
// payload already stored for the note, and points n at it.
func storeAudio(ctx context.Context, audio AudioStore, n *notebook.Note, dryRun bool) error {
	if !dryRun {
		if _, err := audio.Put(ctx, n.ID, *n.AudioData); err != nil {
			return fmt.Errorf("audio.Put(%s) > %w", n.ID, err)
		}
	}
	n.SetAudioSentinel()
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, format, args...)
}
