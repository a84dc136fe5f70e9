// Package recovery handles flat store writes that run out of space by asking
// the user how to make room and retrying once.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

//go:generate mockgen -source=recovery.go -destination=../mocks/recovery/mock_recovery.go -package=mock_recovery

// DefaultPruneAge is how old a note has to be before PruneOld removes it.
const DefaultPruneAge = 30 * 24 * time.Hour

// ErrRecoveryCancelled is returned when the user declines every remedy.
var ErrRecoveryCancelled = errors.New("storage recovery cancelled")

// Action is a remedy for a full flat store.
type Action int

const (
	Cancel Action = iota
	// StripAudio moves inline audio to the audio database, or drops it when that fails.
	StripAudio
	// PruneOld removes notes older than the prune age.
	PruneOld
)

func (a Action) String() string {
	switch a {
	case StripAudio:
		return "strip audio"
	case PruneOld:
		return "prune old notes"
	default:
		return "cancel"
	}
}

// Info describes a failed write to the user.
type Info struct {
	Key   string
	Err   error
	Usage collection.Usage
	// InlineAudio is the number of notes carrying their audio inline.
	InlineAudio int
	// Prunable is the number of notes PruneOld would remove.
	Prunable int
	PruneAge time.Duration
}

// Prompter asks the user how to recover from a full flat store.
type Prompter interface {
	ChooseRecovery(ctx context.Context, info Info) (Action, error)
}

// AudioStore receives audio moved out of notes. Put overwrites the payload
// already stored for a note.
type AudioStore interface {
	Put(ctx context.Context, noteID, payload string) (string, error)
}

// StorageFullError is returned when a write does not fit even after recovery.
// Pending holds the edit that could not be saved, if there was one.
type StorageFullError struct {
	Key     string
	Pending *notebook.Note
	Err     error
}

func (e *StorageFullError) Error() string {
	return fmt.Sprintf("storage is full while saving %s: export your notes and delete old ones manually: %v", e.Key, e.Err)
}

func (e *StorageFullError) Unwrap() error {
	return e.Err
}

// Result reports what a remedy changed.
type Result struct {
	Action       Action
	AudioMoved   int
	AudioDropped int
	Pruned       int
}

// Flow saves note collections, recovering from quota errors.
type Flow struct {
	store    flatstore.Store
	audio    AudioStore
	prompter Prompter
	now      func() time.Time
	pruneAge time.Duration
}

type FlowOption func(*Flow)

// WithClock sets the clock PruneOld measures note age against.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a new Flow. audio may be nil when the audio database is unavailable.
func NewFlow(store flatstore.Store, audio AudioStore, prompter Prompter, pruneAge time.Duration, opts ...FlowOption) *Flow {
	if pruneAge <= 0 {
		pruneAge = DefaultPruneAge
	}
	f := &Flow{
		store:    store,
		audio:    audio,
		prompter: prompter,
		now:      time.Now,
		pruneAge: pruneAge,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Save writes notes under key. When the write does not fit, the user picks a
// remedy, which is applied in memory and followed by a single retry.
// pendingID names the note being edited; it is never pruned and its audio is
// never dropped.
func (f *Flow) Save(ctx context.Context, key string, notes []notebook.Note, pendingID string) error {
	c := collection.New[notebook.Note](f.store, key)
	err := c.Save(notes)
	switch collection.Classify(err) {
	case collection.Ok:
		return nil
	case collection.Failed:
		return err
	}

	slog.Default().Warn("flat store is full", slog.String("key", key), slog.Any("error", err))
	action, perr := f.prompter.ChooseRecovery(ctx, f.info(key, notes, pendingID, err))
	if perr != nil {
		return fmt.Errorf("prompter.ChooseRecovery() > %w", perr)
	}
	if action == Cancel {
		return ErrRecoveryCancelled
	}

	remedied, _, err := f.apply(ctx, action, notes, pendingID)
	if err != nil {
		return err
	}
	err = c.Save(remedied)
	switch collection.Classify(err) {
	case collection.Ok:
		return nil
	case collection.QuotaExceeded:
		return &StorageFullError{Key: key, Pending: findNote(remedied, pendingID), Err: err}
	default:
		return err
	}
}

// Cleanup applies action to the stored collection without a pending edit.
func (f *Flow) Cleanup(ctx context.Context, key string, action Action) (Result, error) {
	if action == Cancel {
		return Result{Action: Cancel}, nil
	}
	c := collection.New[notebook.Note](f.store, key)
	notes, err := c.Load()
	if err != nil {
		return Result{}, err
	}
	remedied, result, err := f.apply(ctx, action, notes, "")
	if err != nil {
		return Result{}, err
	}
	if result.AudioMoved+result.AudioDropped+result.Pruned == 0 {
		return result, nil
	}
	if err := c.Save(remedied); err != nil {
		if collection.Classify(err) == collection.QuotaExceeded {
			return Result{}, &StorageFullError{Key: key, Err: err}
		}
		return Result{}, err
	}
	return result, nil
}

func (f *Flow) apply(ctx context.Context, action Action, notes []notebook.Note, pendingID string) ([]notebook.Note, Result, error) {
	switch action {
	case StripAudio:
		return f.stripAudio(ctx, notes, pendingID)
	case PruneOld:
		return f.pruneOld(notes, pendingID)
	default:
		return nil, Result{}, fmt.Errorf("unknown recovery action %d", action)
	}
}

// stripAudio moves inline audio to the audio store. Audio that cannot be moved
// is dropped, except for the pending note, which keeps it inline.
func (f *Flow) stripAudio(ctx context.Context, notes []notebook.Note, pendingID string) ([]notebook.Note, Result, error) {
	result := Result{Action: StripAudio}
	out := slices.Clone(notes)
	for i := range out {
		n := &out[i]
		if !n.HasInlineAudio() {
			continue
		}
		err := f.moveAudio(ctx, n)
		if err == nil {
			result.AudioMoved++
			continue
		}
		if n.ID == pendingID {
			slog.Default().Warn("keeping inline audio of the note being saved",
				slog.String("noteID", n.ID), slog.Any("error", err))
			continue
		}
		slog.Default().Warn("dropping audio that could not be moved",
			slog.String("noteID", n.ID), slog.Any("error", err))
		n.AudioData = nil
		result.AudioDropped++
	}
	return out, result, nil
}

func (f *Flow) moveAudio(ctx context.Context, n *notebook.Note) error {
	if f.audio == nil {
		return errors.New("audio database is unavailable")
	}
	if _, err := f.audio.Put(ctx, n.ID, *n.AudioData); err != nil {
		return fmt.Errorf("audio.Put(%s) > %w", n.ID, err)
	}
	n.SetAudioSentinel()
	return nil
}

func (f *Flow) pruneOld(notes []notebook.Note, pendingID string) ([]notebook.Note, Result, error) {
	result := Result{Action: PruneOld}
	out := make([]notebook.Note, 0, len(notes))
	for _, n := range notes {
		if f.prunable(n, pendingID) {
			result.Pruned++
			continue
		}
		out = append(out, n)
	}
	return out, result, nil
}

// prunable reports whether n is older than the prune age. Notes without a
// usable date are kept.
func (f *Flow) prunable(n notebook.Note, pendingID string) bool {
	if pendingID != "" && n.ID == pendingID {
		return false
	}
	t, ok := n.Time()
	return ok && t.Before(f.now().Add(-f.pruneAge))
}

func (f *Flow) info(key string, notes []notebook.Note, pendingID string, err error) Info {
	info := Info{Key: key, Err: err, PruneAge: f.pruneAge}
	usage, uerr := collection.EstimateUsage(f.store)
	if uerr != nil {
		slog.Default().Warn("failed to estimate flat store usage", slog.Any("error", uerr))
	}
	info.Usage = usage
	for _, n := range notes {
		if n.HasInlineAudio() {
			info.InlineAudio++
		}
		if f.prunable(n, pendingID) {
			info.Prunable++
		}
	}
	return info
}

func findNote(notes []notebook.Note, id string) *notebook.Note {
	if id == "" {
		return nil
	}
	for i := range notes {
		if notes[i].ID == id {
			n := notes[i]
			return &n
		}
	}
	return nil
}
