package notebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/ieltsnotes/internal/database"
)

//go:generate mockgen -source=note_repository.go -destination=../mocks/notebook/mock_note_repository.go -package=mock_notebook

// ErrNoteNotFound is returned when no note has the requested id.
var ErrNoteNotFound = errors.New("note not found")

// upsertBatchSize keeps a multi-row statement well below SQLite's bound parameter limit.
const upsertBatchSize = 500

var noteColumns = []string{"id", "chapter", "category", "date", "data"}

const noteUpsertClause = "ON CONFLICT(id) DO UPDATE SET chapter = excluded.chapter, category = excluded.category, date = excluded.date, data = excluded.data"

// NoteRepository defines operations for managing notes.
type NoteRepository interface {
	FindAll(ctx context.Context) ([]Note, error)
	// FindAllRaw returns the stored documents as written, for repair.
	// A document without an id gets the id of its row.
	FindAllRaw(ctx context.Context) ([]RawNote, error)
	FindByID(ctx context.Context, id string) (Note, error)
	FindByChapter(ctx context.Context, chapter string) ([]Note, error)
	FindByCategory(ctx context.Context, category string) ([]Note, error)
	Count(ctx context.Context) (int, error)
	BatchUpsert(ctx context.Context, notes []Note) error
	Delete(ctx context.Context, id string) error
	// Replace deletes every note and inserts notes in a single transaction.
	Replace(ctx context.Context, notes []Note) error
	DeleteAll(ctx context.Context) error
}

// BackupRepository stores snapshots of the notes table.
type BackupRepository interface {
	Create(ctx context.Context, reason string, notes []Note) (int64, error)
	FindAll(ctx context.Context) ([]BackupRecord, error)
	FindByID(ctx context.Context, id int64) (BackupRecord, error)
}

// DBNoteRepository implements NoteRepository using SQLite.
type DBNoteRepository struct {
	db *sqlx.DB
}

// NewDBNoteRepository creates a new DBNoteRepository.
func NewDBNoteRepository(db *sqlx.DB) *DBNoteRepository {
	return &DBNoteRepository{db: db}
}

// FindAll returns every note, newest first.
func (r *DBNoteRepository) FindAll(ctx context.Context) ([]Note, error) {
	var records []NoteRecord
	if err := r.db.SelectContext(ctx, &records, "SELECT * FROM notes ORDER BY date DESC, id"); err != nil {
		return nil, fmt.Errorf("load all notes: %w", err)
	}
	return recordsToNotes(records)
}

func (r *DBNoteRepository) FindAllRaw(ctx context.Context) ([]RawNote, error) {
	var records []NoteRecord
	if err := r.db.SelectContext(ctx, &records, "SELECT * FROM notes ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load all notes: %w", err)
	}
	raws := make([]RawNote, 0, len(records))
	for _, rec := range records {
		raw, err := rec.Raw()
		if err != nil {
			return nil, err
		}
		if asString(raw["id"]) == "" {
			raw["id"] = rec.ID
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (r *DBNoteRepository) FindByID(ctx context.Context, id string) (Note, error) {
	var record NoteRecord
	err := r.db.GetContext(ctx, &record, "SELECT * FROM notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	if err != nil {
		return Note{}, fmt.Errorf("load note %s: %w", id, err)
	}
	return record.Note()
}

func (r *DBNoteRepository) FindByChapter(ctx context.Context, chapter string) ([]Note, error) {
	var records []NoteRecord
	if err := r.db.SelectContext(ctx, &records, "SELECT * FROM notes WHERE chapter = ? ORDER BY date DESC, id", chapter); err != nil {
		return nil, fmt.Errorf("load notes of chapter %q: %w", chapter, err)
	}
	return recordsToNotes(records)
}

func (r *DBNoteRepository) FindByCategory(ctx context.Context, category string) ([]Note, error) {
	var records []NoteRecord
	if err := r.db.SelectContext(ctx, &records, "SELECT * FROM notes WHERE category = ? ORDER BY date DESC, id", category); err != nil {
		return nil, fmt.Errorf("load notes of category %q: %w", category, err)
	}
	return recordsToNotes(records)
}

func (r *DBNoteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notes"); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return count, nil
}

// BatchUpsert inserts or replaces notes in a single transaction.
func (r *DBNoteRepository) BatchUpsert(ctx context.Context, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}
	return database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return upsertNotes(ctx, tx, notes)
	})
}

func (r *DBNoteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

func (r *DBNoteRepository) Replace(ctx context.Context, notes []Note) error {
	return database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
			return fmt.Errorf("delete notes: %w", err)
		}
		return upsertNotes(ctx, tx, notes)
	})
}

func (r *DBNoteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM notes"); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}
	return nil
}

func upsertNotes(ctx context.Context, tx *sqlx.Tx, notes []Note) error {
	return database.Chunks(len(notes), upsertBatchSize, func(start, end int) error {
		batch := notes[start:end]
		args := make([]interface{}, 0, len(batch)*len(noteColumns))
		for _, n := range batch {
			rec, err := NewNoteRecord(n)
			if err != nil {
				return err
			}
			args = append(args, rec.ID, rec.Chapter, rec.Category, rec.Date, rec.Data)
		}
		query := database.BuildMultiRowInsert("notes", noteColumns, len(batch), noteUpsertClause)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert notes: %w", err)
		}
		return nil
	})
}

func recordsToNotes(records []NoteRecord) ([]Note, error) {
	notes := make([]Note, 0, len(records))
	for _, rec := range records {
		n, err := rec.Note()
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// DBBackupRepository implements BackupRepository using SQLite.
type DBBackupRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewDBBackupRepository(db *sqlx.DB) *DBBackupRepository {
	return &DBBackupRepository{db: db, now: time.Now}
}

// Create stores a snapshot of notes and returns its id.
func (r *DBBackupRepository) Create(ctx context.Context, reason string, notes []Note) (int64, error) {
	if notes == nil {
		notes = []Note{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO backups (date, reason, note_count, data) VALUES (?, ?, ?, ?)",
		formatDate(r.now()), reason, len(notes), string(data))
	if err != nil {
		return 0, fmt.Errorf("insert backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get backup insert ID: %w", err)
	}
	return id, nil
}

// FindAll returns backups newest first, without their data.
func (r *DBBackupRepository) FindAll(ctx context.Context) ([]BackupRecord, error) {
	var backups []BackupRecord
	if err := r.db.SelectContext(ctx, &backups, "SELECT id, date, reason, note_count, '' AS data FROM backups ORDER BY id DESC"); err != nil {
		return nil, fmt.Errorf("load backups: %w", err)
	}
	return backups, nil
}

func (r *DBBackupRepository) FindByID(ctx context.Context, id int64) (BackupRecord, error) {
	var backup BackupRecord
	if err := r.db.GetContext(ctx, &backup, "SELECT * FROM backups WHERE id = ?", id); err != nil {
		return BackupRecord{}, fmt.Errorf("load backup %d: %w", id, err)
	}
	return backup, nil
}
