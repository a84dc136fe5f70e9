package datasync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

// BackupReasonImport is the reason of the backup taken before a replacing import.
const BackupReasonImport = "import-replace"

// ImportOptions controls Import.
type ImportOptions struct {
	// Replace deletes every stored note before inserting the imported ones.
	// Without it, imported notes are merged by id.
	Replace bool
	DryRun  bool
}

// ImportResult tracks counts of an import.
type ImportResult struct {
	NotesNew     int
	NotesUpdated int
	AudioMoved   int
	Warnings     int
	// BackupID is the backup taken before a replacing import, or 0.
	BackupID int64
}

// Importer reads export documents into the notes database.
type Importer struct {
	notes      notebook.NoteRepository
	backups    notebook.BackupRepository
	audio      AudioStore
	normalizer *notebook.Normalizer
	writer     io.Writer
}

// NewImporter creates a new Importer. writer may be nil.
func NewImporter(
	notes notebook.NoteRepository,
	backups notebook.BackupRepository,
	audio AudioStore,
	normalizer *notebook.Normalizer,
	writer io.Writer,
) *Importer {
	return &Importer{
		notes:      notes,
		backups:    backups,
		audio:      audio,
		normalizer: normalizer,
		writer:     writer,
	}
}

// Import reads notes from r. Both the export document and a bare array of
// notes are accepted, in JSON or YAML.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll() > %w", err)
	}
	raws, err := DecodeNotes(data)
	if err != nil {
		return nil, err
	}

	existing, err := i.notes.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("notes.FindAll() > %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		known[n.ID] = struct{}{}
	}

	var result ImportResult
	notes := make([]notebook.Note, 0, len(raws))
	for _, raw := range raws {
		n, warnings := i.normalizer.Normalize(raw)
		result.Warnings += len(warnings)

		if n.HasInlineAudio() {
			if err := storeAudio(ctx, i.audio, &n, opts.DryRun); err != nil {
				return nil, err
			}
			printf(i.writer, "  [AUDIO]  %s\n", n.ID)
			result.AudioMoved++
		}

		if _, ok := known[n.ID]; ok && !opts.Replace {
			printf(i.writer, "  [UPDATE]  %s %s\n", n.ID, n.Chapter)
			result.NotesUpdated++
		} else {
			printf(i.writer, "  [NEW]  %s %s\n", n.ID, n.Chapter)
			result.NotesNew++
		}
		notes = append(notes, n)
	}

	if opts.DryRun {
		return &result, nil
	}
	if opts.Replace {
		result.BackupID, err = i.backups.Create(ctx, BackupReasonImport, existing)
		if err != nil {
			return nil, fmt.Errorf("backups.Create() > %w", err)
		}
		if err := i.notes.Replace(ctx, notes); err != nil {
			return nil, fmt.Errorf("notes.Replace() > %w", err)
		}
		return &result, nil
	}
	if err := i.notes.BatchUpsert(ctx, notes); err != nil {
		return nil, fmt.Errorf("notes.BatchUpsert() > %w", err)
	}
	return &result, nil
}

// DecodeNotes returns the notes of an export document or a bare array of notes.
// Input that does not start with a JSON delimiter is read as YAML.
func DecodeNotes(data []byte) ([]notebook.RawNote, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("import file is empty")
	}
	if trimmed[0] != '[' && trimmed[0] != '{' {
		var doc any
		if err := yaml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("yaml.Unmarshal() > %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal() > %w", err)
		}
		trimmed = converted
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoder.Decode() > %w", err)
	}

	var list []any
	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		notes, ok := v["notes"].([]any)
		if !ok {
			return nil, fmt.Errorf("import file has no notes array")
		}
		list = notes
	default:
		return nil, fmt.Errorf("import file must be an object or an array, got %T", doc)
	}

	raws := make([]notebook.RawNote, 0, len(list))
	for idx, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("note %d is not an object", idx)
		}
		raws = append(raws, notebook.RawNote(m))
	}
	return raws, nil
}
