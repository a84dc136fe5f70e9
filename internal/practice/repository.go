// Package practice records intensive listening sessions and builds drills from notes.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

//go:generate mockgen -source=repository.go -destination=../mocks/practice/mock_repository.go -package=mock_practice

// DefaultRecentSessions is how many sessions count as recent practice.
const DefaultRecentSessions = 3

// Record is one practice session and the notes it drew sentences from.
type Record struct {
	ID      int64    `json:"id,omitempty" yaml:"id,omitempty"`
	Date    string   `json:"date" yaml:"date"`
	NoteIDs []string `json:"noteIds" yaml:"noteIds"`
}

// Same reports whether r and other describe the same session, ignoring ids.
func (r Record) Same(other Record) bool {
	return r.Date == other.Date && slices.Equal(r.NoteIDs, other.NoteIDs)
}

// FromLegacy converts a session stored by older releases in the flat store.
// It returns false when the session has no usable date.
func FromLegacy(raw map[string]any) (Record, bool) {
	date, ok := notebook.DateValue(raw["date"])
	if !ok {
		return Record{}, false
	}
	r := Record{Date: date, NoteIDs: []string{}}
	if ids, ok := raw["noteIds"].([]any); ok {
		for _, id := range ids {
			switch v := id.(type) {
			case string:
				r.NoteIDs = append(r.NoteIDs, v)
			case json.Number:
				r.NoteIDs = append(r.NoteIDs, v.String())
			}
		}
	}
	return r, true
}

type recordRow struct {
	ID      int64  `db:"id"`
	Date    string `db:"date"`
	NoteIDs string `db:"note_ids"`
}

func (row recordRow) record() (Record, error) {
	r := Record{ID: row.ID, Date: row.Date, NoteIDs: []string{}}
	if row.NoteIDs == "" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(row.NoteIDs), &r.NoteIDs); err != nil {
		return Record{}, fmt.Errorf("decode note ids of practice record %d: %w", row.ID, err)
	}
	if r.NoteIDs == nil {
		r.NoteIDs = []string{}
	}
	return r, nil
}

// Repository stores practice records.
type Repository interface {
	Save(ctx context.Context, record Record) (int64, error)
	// Recent returns the latest limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// RecentNoteIDs returns the distinct note ids of the latest limit records.
	RecentNoteIDs(ctx context.Context, limit int) ([]string, error)
	FindAll(ctx context.Context) ([]Record, error)
	DeleteAll(ctx context.Context) error
}

// DBRepository implements Repository using SQLite.
type DBRepository struct {
	db *sqlx.DB
}

func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

func (r *DBRepository) Save(ctx context.Context, record Record) (int64, error) {
	noteIDs := record.NoteIDs
	if noteIDs == nil {
		noteIDs = []string{}
	}
	encoded, err := json.Marshal(noteIDs)
	if err != nil {
		return 0, fmt.Errorf("encode note ids: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO practice_records (date, note_ids) VALUES (?, ?)",
		record.Date, string(encoded))
	if err != nil {
		return 0, fmt.Errorf("insert practice record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get practice record insert ID: %w", err)
	}
	return id, nil
}

func (r *DBRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows,
		"SELECT id, date, note_ids FROM practice_records ORDER BY date DESC, id DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("load recent practice records: %w", err)
	}
	return toRecords(rows)
}

func (r *DBRepository) RecentNoteIDs(ctx context.Context, limit int) ([]string, error) {
	records, err := r.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	ids := []string{}
	for _, rec := range records {
		for _, id := range rec.NoteIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *DBRepository) FindAll(ctx context.Context) ([]Record, error) {
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, "SELECT id, date, note_ids FROM practice_records ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load practice records: %w", err)
	}
	return toRecords(rows)
}

func (r *DBRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM practice_records"); err != nil {
		return fmt.Errorf("delete practice records: %w", err)
	}
	return nil
}

func toRecords(rows []recordRow) ([]Record, error) {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
