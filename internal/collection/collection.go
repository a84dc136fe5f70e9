// Package collection stores JSON arrays under named keys of a flat store.
package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
)

// Well-known keys of the flat store.
const (
	KeyListeningNotes         = "listeningNotes"
	KeyReadingNotes           = "readingNotes"
	KeySpeakingNotes          = "speakingNotes"
	KeyWritingNotes           = "writingNotes"
	KeySpeakingQuestions      = "speakingQuestions"
	KeyWritingQuestions       = "writingQuestions"
	KeyMigrated               = "migratedToIndexedDB"
	KeyVocabularyReadingWords = "vocabularyReadingWords"
	KeySpeakingCategoryColors = "speakingCategoryColors"
	KeyWritingCategoryColors  = "writingCategoryColors"
	// KeyRecentPractice holds practice sessions written before they moved to the notes database.
	KeyRecentPractice = "recentPractice"
)

// NoteKeys lists the collections holding note records, in the order they are repaired.
var NoteKeys = []string{KeyListeningNotes, KeyReadingNotes, KeySpeakingNotes, KeyWritingNotes}

// CorruptError is returned when a stored collection cannot be decoded.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("collection %q is corrupt: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Collection is a JSON array of T stored as a single flat store value.
type Collection[T any] struct {
	store flatstore.Store
	key   string
}

func New[T any](store flatstore.Store, key string) *Collection[T] {
	return &Collection[T]{store: store, key: key}
}

func (c *Collection[T]) Key() string {
	return c.key
}

// Load returns the stored records. An absent key is an empty collection;
// an undecodable value is a *CorruptError.
func (c *Collection[T]) Load() ([]T, error) {
	raw, ok, err := c.store.GetItem(c.key)
	if err != nil {
		return nil, fmt.Errorf("read collection %q: %w", c.key, err)
	}
	if !ok || raw == "" {
		return []T{}, nil
	}

	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var records []T
	if err := decoder.Decode(&records); err != nil {
		return nil, &CorruptError{Key: c.key, Err: err}
	}
	if decoder.More() {
		return nil, &CorruptError{Key: c.key, Err: errors.New("trailing data after array")}
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Save replaces the stored array with records in a single write.
func (c *Collection[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}
	content, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %q: %w", c.key, err)
	}
	if err := c.store.SetItem(c.key, string(content)); err != nil {
		return fmt.Errorf("write collection %q: %w", c.key, err)
	}
	return nil
}

// Marshal encodes v the way collections are stored, without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Flag reads a boolean flag written by SetFlag.
func Flag(store flatstore.Store, key string) (bool, error) {
	v, ok, err := store.GetItem(key)
	if err != nil {
		return false, fmt.Errorf("read flag %q: %w", key, err)
	}
	return ok && v == "true", nil
}

func SetFlag(store flatstore.Store, key string) error {
	if err := store.SetItem(key, "true"); err != nil {
		return fmt.Errorf("set flag %q: %w", key, err)
	}
	return nil
}

// WriteResult classifies the outcome of a collection write.
type WriteResult int

const (
	Ok WriteResult = iota
	QuotaExceeded
	Failed
)

func (r WriteResult) String() string {
	switch r {
	case Ok:
		return "ok"
	case QuotaExceeded:
		return "quota exceeded"
	default:
		return "failed"
	}
}

// Classify maps a write error to a WriteResult.
func Classify(err error) WriteResult {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, flatstore.ErrQuotaExceeded):
		return QuotaExceeded
	default:
		return Failed
	}
}
