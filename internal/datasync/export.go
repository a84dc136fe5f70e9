package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

// ExportVersion is the version written to export documents.
const ExportVersion = "1.0"

// Format is the encoding of an export document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name given on the command line.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use json or yaml", s)
	}
}

// ExportDocument is the file written by Export and read by Import.
type ExportDocument struct {
	Notes      []notebook.RawNote `json:"notes" yaml:"notes"`
	ExportDate string             `json:"exportDate" yaml:"exportDate"`
	Version    string             `json:"version" yaml:"version"`
}

// ExportOptions controls Export.
type ExportOptions struct {
	Format Format
	// IncludeAudio replaces audio stored in the audio database with the payload itself.
	IncludeAudio bool
}

// Exporter reads notes from the notes database into an export document.
type Exporter struct {
	notes notebook.NoteRepository
	audio AudioStore
	now   func() time.Time
}

// NewExporter creates a new Exporter.
func NewExporter(notes notebook.NoteRepository, audio AudioStore) *Exporter {
	return &Exporter{
		notes: notes,
		audio: audio,
		now:   time.Now,
	}
}

// Document reads every note into an export document.
func (e *Exporter) Document(ctx context.Context, includeAudio bool) (*ExportDocument, error) {
	notes, err := e.notes.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("notes.FindAll() > %w", err)
	}

	doc := &ExportDocument{
		Notes:      make([]notebook.RawNote, 0, len(notes)),
		ExportDate: notebook.FormatDate(e.now()),
		Version:    ExportVersion,
	}
	for _, n := range notes {
		if includeAudio && n.UsesBlobStore() {
			payload, found, err := e.audio.Get(ctx, n.ID)
			if err != nil {
				return nil, fmt.Errorf("audio.Get(%s) > %w", n.ID, err)
			}
			if found {
				n.AudioData = &payload
			} else {
				slog.Default().Warn("audio of a note is missing from the audio database",
					slog.String("noteID", n.ID))
				n.AudioData = nil
			}
		}
		doc.Notes = append(doc.Notes, n.ToRaw())
	}
	return doc, nil
}

// Export writes every note to w and returns the number of notes written.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	doc, err := e.Document(ctx, opts.IncludeAudio)
	if err != nil {
		return 0, err
	}
	if err := Encode(w, doc, opts.Format); err != nil {
		return 0, err
	}
	return len(doc.Notes), nil
}

// Encode writes doc in format.
func Encode(w io.Writer, doc *ExportDocument, format Format) error {
	switch format {
	case FormatYAML:
		notes := make([]notebook.RawNote, 0, len(doc.Notes))
		for _, raw := range doc.Notes {
			notes = append(notes, yamlValue(raw).(notebook.RawNote))
		}
		yamlDoc := *doc
		yamlDoc.Notes = notes

		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(&yamlDoc); err != nil {
			return fmt.Errorf("yaml.Encode() > %w", err)
		}
		return encoder.Close()
	case FormatJSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("json.Encode() > %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// yamlValue replaces json.Number, which yaml.v3 writes as a quoted string,
// with the integer or float it holds.
func yamlValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case notebook.RawNote:
		out := make(notebook.RawNote, len(v))
		for k, e := range v {
			out[k] = yamlValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = yamlValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = yamlValue(e)
		}
		return out
	default:
		return v
	}
}

// schemaNote documents the fields of an exported note. Notes may carry
// additional fields, which are kept as they are.
type schemaNote struct {
	ID                       string   `json:"id" jsonschema:"description=Note id such as note_1700000000000_k3j9x0a1b"`
	Chapter                  string   `json:"chapter" jsonschema:"description=Book or chapter the question comes from"`
	Test                     string   `json:"test" jsonschema:"description=Test within the chapter"`
	Part                     string   `json:"part" jsonschema:"description=Part or section of the test"`
	Question                 string   `json:"question" jsonschema:"description=Question number or text"`
	ErrorReason              string   `json:"errorReason" jsonschema:"description=Why the question was answered wrongly"`
	Tags                     string   `json:"tags" jsonschema:"description=Free form tags"`
	QuestionType             string   `json:"questionType" jsonschema:"description=Question type,enum=multiple-choice,enum=single-choice,enum=map,enum=matching,enum=other"`
	Content                  string   `json:"content" jsonschema:"description=Transcript or passage as HTML"`
	KeyPoints                []string `json:"keyPoints" jsonschema:"description=Key points as HTML fragments"`
	AudioData                *string  `json:"audioData" jsonschema:"description=Inline data URI or INDEXEDDB when the audio is stored in the audio database"`
	ImageData                *string  `json:"imageData" jsonschema:"description=Inline data URI of an attached image"`
	Date                     string   `json:"date" jsonschema:"description=Creation time (2006-01-02T15:04:05.000Z)"`
	EnableIntensiveListening bool     `json:"enableIntensiveListening" jsonschema:"description=Whether the note takes part in intensive listening drills"`
	SchemaVersion            int      `json:"schemaVersion" jsonschema:"description=Schema version the note was last normalized to"`
}

type schemaDocument struct {
	Notes      []schemaNote `json:"notes" jsonschema:"description=Exported notes"`
	ExportDate string       `json:"exportDate" jsonschema:"description=Time of the export (2006-01-02T15:04:05.000Z)"`
	Version    string       `json:"version" jsonschema:"description=Export format version,enum=1.0"`
}

// ExportSchema writes the JSON Schema of the export document.
func ExportSchema(w io.Writer) error {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, AllowAdditionalProperties: true}
	schema := r.Reflect(&schemaDocument{})
	schema.Title = "IELTS notes export"

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("json.Encode() > %w", err)
	}
	return nil
}
