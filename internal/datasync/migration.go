package datasync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
)

// MigrationOptions controls Migrate and Repair.
type MigrationOptions struct {
	DryRun bool
}

// MigrationResult tracks counts for each migration step.
type MigrationResult struct {
	LegacyCopied    bool
	NotesNew        int
	NotesSkipped    int
	AudioMoved      int
	PracticeNew     int
	PracticeSkipped int
	Warnings        int
	// Repaired counts notes of the notes database that were rewritten.
	Repaired int
	// FlatRepaired counts notes of the flat store collections that were rewritten.
	FlatRepaired int
	// Unwritable lists flat store collections that could not be repaired.
	Unwritable []string
}

// Coordinator copies notes written by older releases into the notes database
// and brings every stored note up to the current schema.
type Coordinator struct {
	flat       flatstore.Store
	notes      notebook.NoteRepository
	practice   practice.Repository
	audio      AudioStore
	normalizer *notebook.Normalizer
	notifier   Notifier
	writer     io.Writer
}

// NewCoordinator creates a new Coordinator. notifier and writer may be nil.
func NewCoordinator(
	flat flatstore.Store,
	notes notebook.NoteRepository,
	practiceRepo practice.Repository,
	audio AudioStore,
	normalizer *notebook.Normalizer,
	notifier Notifier,
	writer io.Writer,
) *Coordinator {
	return &Coordinator{
		flat:       flat,
		notes:      notes,
		practice:   practiceRepo,
		audio:      audio,
		normalizer: normalizer,
		notifier:   notifier,
		writer:     writer,
	}
}

// Migrate copies the legacy flat store collections into the databases unless
// that already happened, then runs the repair pass. The migrated flag is set
// only after every legacy record was copied, so a failed run resumes.
func (c *Coordinator) Migrate(ctx context.Context, opts MigrationOptions) (*MigrationResult, error) {
	var result MigrationResult

	migrated, err := collection.Flag(c.flat, collection.KeyMigrated)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("collection.Flag() > %w", err))
	}
	if !migrated {
		if err := c.copyLegacy(ctx, opts, &result); err != nil {
			return nil, c.fail(ctx, fmt.Errorf("copyLegacy() > %w", err))
		}
	}

	if err := c.repair(ctx, opts, &result); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("repair() > %w", err))
	}
	return &result, nil
}

// Repair normalizes every stored note and rewrites the ones that changed.
func (c *Coordinator) Repair(ctx context.Context, opts MigrationOptions) (*MigrationResult, error) {
	var result MigrationResult
	if err := c.repair(ctx, opts, &result); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("repair() > %w", err))
	}
	return &result, nil
}

// resumeAudio stores the inline audio of a legacy note unless an interrupted
// run already stored it. It reports whether the audio was newly stored.
func (c *Coordinator) resumeAudio(ctx context.Context, n *notebook.Note, dryRun bool) (bool, error) {
	has, err := c.audio.Has(ctx, n.ID)
	if err != nil {
		return false, fmt.Errorf("audio.Has(%s) > %w", n.ID, err)
	}
	if has {
		n.SetAudioSentinel()
		return false, nil
	}
	return true, storeAudio(ctx, c.audio, n, dryRun)
}

func (c *Coordinator) copyLegacy(ctx context.Context, opts MigrationOptions, result *MigrationResult) error {
	raws, err := collection.New[notebook.RawNote](c.flat, collection.KeyListeningNotes).Load()
	if err != nil {
		return fmt.Errorf("load %s > %w", collection.KeyListeningNotes, err)
	}

	existing, err := c.notes.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("notes.FindAll() > %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		known[n.ID] = struct{}{}
	}

	flatNotes := make([]notebook.Note, 0, len(raws))
	var newNotes []notebook.Note
	for _, raw := range raws {
		n, warnings := c.normalizer.Normalize(raw)
		result.Warnings += len(warnings)

		if n.HasInlineAudio() {
			moved, err := c.resumeAudio(ctx, &n, opts.DryRun)
			if err != nil {
				return err
			}
			if moved {
				printf(c.writer, "  [AUDIO]  %s\n", n.ID)
				result.AudioMoved++
			}
		}
		flatNotes = append(flatNotes, n)

		if _, ok := known[n.ID]; ok {
			printf(c.writer, "  [SKIP]  %s (already in the notes database)\n", n.ID)
			result.NotesSkipped++
			continue
		}
		known[n.ID] = struct{}{}
		printf(c.writer, "  [NEW]  %s %s\n", n.ID, n.Chapter)
		result.NotesNew++
		newNotes = append(newNotes, n)
	}

	if !opts.DryRun {
		if len(newNotes) > 0 {
			if err := c.notes.BatchUpsert(ctx, newNotes); err != nil {
				return fmt.Errorf("notes.BatchUpsert() > %w", err)
			}
		}
		if len(raws) > 0 {
			if err := collection.New[notebook.Note](c.flat, collection.KeyListeningNotes).Save(flatNotes); err != nil {
				return fmt.Errorf("save %s > %w", collection.KeyListeningNotes, err)
			}
		}
	}

	if err := c.copyLegacyPractice(ctx, opts, result); err != nil {
		return err
	}

	if !opts.DryRun {
		if err := collection.SetFlag(c.flat, collection.KeyMigrated); err != nil {
			return err
		}
	}
	result.LegacyCopied = true
	return nil
}

func (c *Coordinator) copyLegacyPractice(ctx context.Context, opts MigrationOptions, result *MigrationResult) error {
	legacy, err := collection.New[map[string]any](c.flat, collection.KeyRecentPractice).Load()
	if err != nil {
		return fmt.Errorf("load %s > %w", collection.KeyRecentPractice, err)
	}
	if len(legacy) == 0 {
		return nil
	}

	existing, err := c.practice.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("practice.FindAll() > %w", err)
	}
	for _, raw := range legacy {
		record, ok := practice.FromLegacy(raw)
		if !ok {
			printf(c.writer, "  [WARN]  practice record without a date: %v\n", raw["date"])
			result.PracticeSkipped++
			continue
		}
		if slices.ContainsFunc(existing, record.Same) {
			result.PracticeSkipped++
			continue
		}
		if !opts.DryRun {
			if _, err := c.practice.Save(ctx, record); err != nil {
				return fmt.Errorf("practice.Save() > %w", err)
			}
		}
		existing = append(existing, record)
		result.PracticeNew++
	}
	return nil
}

func (c *Coordinator) repair(ctx context.Context, opts MigrationOptions, result *MigrationResult) error {
	raws, err := c.notes.FindAllRaw(ctx)
	if err != nil {
		return fmt.Errorf("notes.FindAllRaw() > %w", err)
	}
	_, fixed := c.normalizeAll(raws, "notes", result)
	result.Repaired = len(fixed)
	if !opts.DryRun && len(fixed) > 0 {
		if err := c.notes.BatchUpsert(ctx, fixed); err != nil {
			return fmt.Errorf("notes.BatchUpsert() > %w", err)
		}
	}

	for _, key := range collection.NoteKeys {
		if err := c.repairCollection(ctx, key, opts, result); err != nil {
			return err
		}
	}
	return nil
}

// repairCollection rewrites one flat store collection. Running out of space
// is reported and leaves the collection as it was.
func (c *Coordinator) repairCollection(ctx context.Context, key string, opts MigrationOptions, result *MigrationResult) error {
	raws, err := collection.New[notebook.RawNote](c.flat, key).Load()
	var corrupt *collection.CorruptError
	if errors.As(err, &corrupt) {
		printf(c.writer, "  [WARN]  %s is corrupt and was left untouched\n", key)
		c.notify(ctx, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s > %w", key, err)
	}

	notes, changed := c.normalizeAll(raws, key, result)
	if len(changed) == 0 {
		return nil
	}
	result.FlatRepaired += len(changed)
	if opts.DryRun {
		return nil
	}

	err = collection.New[notebook.Note](c.flat, key).Save(notes)
	switch collection.Classify(err) {
	case collection.Ok:
		return nil
	case collection.QuotaExceeded:
		printf(c.writer, "  [WARN]  %s could not be repaired: %v\n", key, err)
		result.Unwritable = append(result.Unwritable, key)
		c.notify(ctx, err)
		return nil
	default:
		return err
	}
}

// normalizeAll normalizes every raw note and also returns the ones whose stored form changes.
func (c *Coordinator) normalizeAll(raws []notebook.RawNote, source string, result *MigrationResult) (all, changed []notebook.Note) {
	all = make([]notebook.Note, 0, len(raws))
	for _, raw := range raws {
		n, warnings := c.normalizer.Normalize(raw)
		result.Warnings += len(warnings)
		all = append(all, n)
		if notebook.Equal(raw, n) {
			continue
		}
		printf(c.writer, "  [FIX]  %s %s\n", source, n.ID)
		changed = append(changed, n)
	}
	return all, changed
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	c.notify(ctx, err)
	return err
}

func (c *Coordinator) notify(ctx context.Context, err error) {
	slog.Default().Warn("storage migration problem", slog.Any("error", err))
	if c.notifier != nil {
		c.notifier.NotifyError(ctx, err)
	}
}
