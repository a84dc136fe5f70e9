// Package notebook defines study note records, their normalization into the
// current schema, and their SQLite repositories.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AudioSentinel marks a note whose audio lives in the blob store under the note's id.
const AudioSentinel = "INDEXEDDB"

// PlaceholderCategory is the secondary category of folder placeholder notes.
const PlaceholderCategory = "__PLACEHOLDER__"

// DateLayout is the canonical date format of a note.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Note is a study note in its canonical shape. Fields this package does not
// model are kept in Extra and written back untouched.
type Note struct {
	ID                       string
	Chapter                  string
	Test                     string
	Part                     string
	Question                 string
	ErrorReason              string
	Tags                     string
	QuestionType             string
	Content                  string
	KeyPoints                []string
	AudioData                *string
	ImageData                *string
	Date                     string
	EnableIntensiveListening bool
	SchemaVersion            int
	Extra                    map[string]any
}

var knownFields = map[string]struct{}{
	"id": {}, "chapter": {}, "test": {}, "part": {}, "question": {}, "errorReason": {},
	"tags": {}, "questionType": {}, "content": {}, "keyPoints": {}, "audioData": {},
	"imageData": {}, "date": {}, "enableIntensiveListening": {}, "schemaVersion": {},
}

// ToRaw returns the note as a generic JSON object.
func (n Note) ToRaw() RawNote {
	m := make(RawNote, len(n.Extra)+len(knownFields))
	for k, v := range n.Extra {
		m[k] = v
	}
	keyPoints := n.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	m["id"] = n.ID
	m["chapter"] = n.Chapter
	m["test"] = n.Test
	m["part"] = n.Part
	m["question"] = n.Question
	m["errorReason"] = n.ErrorReason
	m["tags"] = n.Tags
	m["questionType"] = n.QuestionType
	m["content"] = n.Content
	m["keyPoints"] = keyPoints
	m["audioData"] = n.AudioData
	m["imageData"] = n.ImageData
	m["date"] = n.Date
	m["enableIntensiveListening"] = n.EnableIntensiveListening
	m["schemaVersion"] = n.SchemaVersion
	return m
}

func (n Note) MarshalJSON() ([]byte, error) {
	return encodeJSON(n.ToRaw())
}

func (n *Note) UnmarshalJSON(data []byte) error {
	raw, err := DecodeRaw(data)
	if err != nil {
		return err
	}
	*n = raw.toNote()
	return nil
}

// HasInlineAudio reports whether the audio payload is stored in the note itself.
func (n Note) HasInlineAudio() bool {
	return n.AudioData != nil && *n.AudioData != "" && *n.AudioData != AudioSentinel
}

// UsesBlobStore reports whether the audio has to be resolved from the blob store.
func (n Note) UsesBlobStore() bool {
	return n.AudioData != nil && *n.AudioData == AudioSentinel
}

// SetAudioSentinel points the note's audio at the blob store.
func (n *Note) SetAudioSentinel() {
	s := AudioSentinel
	n.AudioData = &s
}

// Category is the folder a speaking or writing note belongs to.
func (n Note) Category() string {
	s, _ := n.Extra["category"].(string)
	return s
}

func (n Note) IsPlaceholder() bool {
	b, _ := n.Extra["isPlaceholder"].(bool)
	return b
}

// Time returns when the note was written, using date and falling back to createdAt.
func (n Note) Time() (time.Time, bool) {
	if t, ok := parseDate(n.Date); ok {
		return t, true
	}
	switch v := n.Extra["createdAt"].(type) {
	case string:
		return parseDate(v)
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}

// RawNote is a note in whatever historical shape it was stored in.
// Numbers are kept as json.Number so they survive a round trip unchanged.
type RawNote map[string]any

// DecodeRaw decodes a single JSON object.
func DecodeRaw(data []byte) (RawNote, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw RawNote
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode note: %w", err)
	}
	if raw == nil {
		raw = RawNote{}
	}
	return raw, nil
}

// DecodeRawList decodes a JSON array of objects.
func DecodeRawList(data []byte) ([]RawNote, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raws []RawNote
	if err := decoder.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	for i := range raws {
		if raws[i] == nil {
			raws[i] = RawNote{}
		}
	}
	return raws, nil
}

func (r RawNote) clone() RawNote {
	m := make(RawNote, len(r))
	for k, v := range r {
		m[k] = v
	}
	return m
}

// str returns the value of key when it is a non-empty string.
func (r RawNote) str(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r RawNote) toNote() Note {
	n := Note{
		ID:           asString(r["id"]),
		Chapter:      asString(r["chapter"]),
		Test:         asString(r["test"]),
		Part:         asString(r["part"]),
		Question:     asString(r["question"]),
		ErrorReason:  asString(r["errorReason"]),
		Tags:         asString(r["tags"]),
		QuestionType: asString(r["questionType"]),
		Content:      asString(r["content"]),
		KeyPoints:    asStrings(r["keyPoints"]),
		AudioData:    asNullableString(r["audioData"]),
		ImageData:    asNullableString(r["imageData"]),
		Date:         asString(r["date"]),
	}
	switch v := r["enableIntensiveListening"].(type) {
	case bool:
		n.EnableIntensiveListening = v
	case string:
		n.EnableIntensiveListening = v == "true"
	}
	switch v := r["schemaVersion"].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n.SchemaVersion = int(i)
		}
	case float64:
		n.SchemaVersion = int(v)
	case int:
		n.SchemaVersion = v
	}
	for k, v := range r {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]any)
		}
		n.Extra[k] = v
	}
	return n
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func asNullableString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case *string:
		if t != nil {
			s = *t
		}
	}
	if s == "" {
		return nil
	}
	return &s
}

func asStrings(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if item == nil {
				continue
			}
			out = append(out, asString(item))
		}
	case string:
		if strings.TrimSpace(list) != "" {
			out = append(out, list)
		}
	}
	return out
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CanonicalJSON encodes a raw note with sorted keys, for structural comparison.
func CanonicalJSON(r RawNote) ([]byte, error) {
	return encodeJSON(map[string]any(r))
}

// Equal reports whether the stored form and the note encode to the same JSON.
func Equal(stored RawNote, n Note) bool {
	a, err := CanonicalJSON(stored)
	if err != nil {
		return false
	}
	b, err := CanonicalJSON(n.ToRaw())
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
