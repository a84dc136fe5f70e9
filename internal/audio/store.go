// Package audio stores audio payloads of notes in their own SQLite database,
// keyed by the owning note id.
package audio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/ieltsnotes/internal/database"
	"github.com/at-ishikawa/ieltsnotes/schemas"
)

// ErrClosed is returned by operations on a store that is not open.
var ErrClosed = errors.New("audio store is not open")

// Record is one stored audio payload.
type Record struct {
	ID        string `db:"id"`
	NoteID    string `db:"note_id"`
	AudioData string `db:"audio_data"`
	Timestamp int64  `db:"timestamp"`
}

// RecordID returns the record id for the audio of noteID.
func RecordID(noteID string) string {
	return noteID + "_audio"
}

// Opener opens the underlying database. It is replaced in tests.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// Store is the blob store. Open may be called any number of times from any
// goroutine; the database is opened once and every caller shares the result.
type Store struct {
	opener Opener
	now    func() time.Time

	mu      sync.Mutex
	db      *sqlx.DB
	openErr error
	opening chan struct{}
}

// NewStore returns a store that opens the audio database at path on first use.
func NewStore(path string, opts database.Options) *Store {
	return NewStoreWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
		schema, err := database.LoadSchema("audio", schemas.Migrations, schemas.AudioDir)
		if err != nil {
			return nil, err
		}
		return database.Open(ctx, path, schema, opts)
	})
}

func NewStoreWithOpener(opener Opener) *Store {
	return &Store{opener: opener, now: time.Now}
}

// Open opens the database. Concurrent callers wait for the same attempt; a
// failed attempt is remembered until Close.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.db != nil || s.openErr != nil {
		err := s.openErr
		s.mu.Unlock()
		return err
	}
	if s.opening != nil {
		wait := s.opening
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.openErr
	}
	done := make(chan struct{})
	s.opening = done
	s.mu.Unlock()

	db, err := s.opener(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.openErr = fmt.Errorf("open audio database: %w", err)
	} else {
		s.db = db
	}
	s.opening = nil
	close(done)
	return s.openErr
}

// Close releases the database. The store can be opened again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = nil
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// Put stores payload as the audio of noteID, replacing any previous payload,
// and returns the record id.
func (s *Store) Put(ctx context.Context, noteID, payload string) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	id := RecordID(noteID)
	query := database.BuildMultiRowInsert("audio", []string{"id", "note_id", "audio_data", "timestamp"}, 1,
		"ON CONFLICT(id) DO UPDATE SET note_id = excluded.note_id, audio_data = excluded.audio_data, timestamp = excluded.timestamp")
	if _, err := db.ExecContext(ctx, query, id, noteID, payload, s.now().UnixMilli()); err != nil {
		return "", fmt.Errorf("save audio of %s: %w", noteID, err)
	}
	return id, nil
}

// Get returns the audio of noteID. A missing record is not an error.
func (s *Store) Get(ctx context.Context, noteID string) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}
	var payload string
	err = db.GetContext(ctx, &payload, "SELECT audio_data FROM audio WHERE id = ?", RecordID(noteID))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load audio of %s: %w", noteID, err)
	}
	return payload, true, nil
}

// Delete removes the audio of noteID. Deleting missing audio succeeds.
func (s *Store) Delete(ctx context.Context, noteID string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM audio WHERE id = ?", RecordID(noteID)); err != nil {
		return fmt.Errorf("delete audio of %s: %w", noteID, err)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, noteID string) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM audio WHERE id = ?)", RecordID(noteID)); err != nil {
		return false, fmt.Errorf("check audio of %s: %w", noteID, err)
	}
	return exists, nil
}

// ListNoteIDs returns the ids of every note that has stored audio.
func (s *Store) ListNoteIDs(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := db.SelectContext(ctx, &ids, "SELECT DISTINCT note_id FROM audio ORDER BY note_id"); err != nil {
		return nil, fmt.Errorf("list audio note ids: %w", err)
	}
	return ids, nil
}

// Usage returns the number of records and the total payload size in bytes.
func (s *Store) Usage(ctx context.Context) (int, int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, 0, err
	}
	var row struct {
		Count int   `db:"count"`
		Bytes int64 `db:"bytes"`
	}
	if err := db.GetContext(ctx, &row, "SELECT COUNT(*) AS count, COALESCE(SUM(LENGTH(audio_data)), 0) AS bytes FROM audio"); err != nil {
		return 0, 0, fmt.Errorf("measure audio usage: %w", err)
	}
	return row.Count, row.Bytes, nil
}

// Clear removes every stored payload.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM audio"); err != nil {
		return fmt.Errorf("clear audio: %w", err)
	}
	return nil
}
