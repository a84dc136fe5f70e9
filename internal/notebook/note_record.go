package notebook

import (
	"encoding/json"
	"fmt"
)

// NoteRecord is a row of the notes table. The note itself is stored as a JSON
// document; chapter, category and date are copied out for indexed lookups.
type NoteRecord struct {
	ID       string `db:"id"`
	Chapter  string `db:"chapter"`
	Category string `db:"category"`
	Date     string `db:"date"`
	Data     string `db:"data"`
}

// NewNoteRecord builds the row for n.
func NewNoteRecord(n Note) (NoteRecord, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return NoteRecord{}, fmt.Errorf("encode note %s: %w", n.ID, err)
	}
	return NoteRecord{
		ID:       n.ID,
		Chapter:  n.Chapter,
		Category: n.Category(),
		Date:     n.Date,
		Data:     string(data),
	}, nil
}

// Raw decodes the stored document without normalizing it.
func (r NoteRecord) Raw() (RawNote, error) {
	raw, err := DecodeRaw([]byte(r.Data))
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", r.ID, err)
	}
	return raw, nil
}

func (r NoteRecord) Note() (Note, error) {
	raw, err := r.Raw()
	if err != nil {
		return Note{}, err
	}
	n := raw.toNote()
	if n.ID == "" {
		n.ID = r.ID
	}
	return n, nil
}

// BackupRecord is a snapshot of every note taken before a destructive operation.
type BackupRecord struct {
	ID        int64  `db:"id"`
	Date      string `db:"date"`
	Reason    string `db:"reason"`
	NoteCount int    `db:"note_count"`
	Data      string `db:"data"`
}

// Notes decodes the snapshot.
func (b BackupRecord) Notes() ([]Note, error) {
	var notes []Note
	if err := json.Unmarshal([]byte(b.Data), &notes); err != nil {
		return nil, fmt.Errorf("decode backup %d: %w", b.ID, err)
	}
	return notes, nil
}
