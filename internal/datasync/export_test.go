package datasync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "json", want: FormatJSON},
		{input: "yaml", want: FormatYAML},
		{input: "yml", want: FormatYAML},
		{input: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExporter_Export(t *testing.T) {
	withSentinel := normalized(t, `{"id":"note_1","chapter":"C1","date":"2024-01-01T00:00:00.000Z","audioData":"INDEXEDDB"}`)
	plain := normalized(t, `{"id":"note_2","chapter":"C2","date":"2024-01-02T00:00:00.000Z","passage":"kept"}`)

	tests := []struct {
		name       string
		opts       ExportOptions
		setupMocks func(m mocks)
		check      func(t *testing.T, out []byte)
		wantCount  int
		wantErr    bool
	}{
		{
			name: "json keeps the sentinel",
			opts: ExportOptions{Format: FormatJSON},
			setupMocks: func(m mocks) {
				m.notes.EXPECT().FindAll(gomock.Any()).Return([]notebook.Note{withSentinel, plain}, nil)
			},
			wantCount: 2,
			check: func(t *testing.T, out []byte) {
				var doc map[string]any
				require.NoError(t, json.Unmarshal(out, &doc))
				assert.Equal(t, "1.0", doc["version"])
				assert.Equal(t, "2024-05-06T07:08:09.123Z", doc["exportDate"])
				notes := doc["notes"].([]any)
				require.Len(t, notes, 2)
				assert.Equal(t, "INDEXEDDB", notes[0].(map[string]any)["audioData"])
				assert.Equal(t, "kept", notes[1].(map[string]any)["passage"])
				assert.Contains(t, string(out), "\n  \"exportDate\"")
			},
		},
		{
			name: "audio is resolved when included",
			opts: ExportOptions{Format: FormatJSON, IncludeAudio: true},
			setupMocks: func(m mocks) {
				m.notes.EXPECT().FindAll(gomock.Any()).Return([]notebook.Note{withSentinel, plain}, nil)
				m.audio.EXPECT().Get(gomock.Any(), "note_1").Return("data:audio/mp3;base64,AAA", true, nil)
			},
			wantCount: 2,
			check: func(t *testing.T, out []byte) {
				assert.Contains(t, string(out), `"audioData": "data:audio/mp3;base64,AAA"`)
			},
		},
		{
			name: "missing audio is exported as null",
			opts: ExportOptions{Format: FormatJSON, IncludeAudio: true},
			setupMocks: func(m mocks) {
				m.notes.EXPECT().FindAll(gomock.Any()).Return([]notebook.Note{withSentinel}, nil)
				m.audio.EXPECT().Get(gomock.Any(), "note_1").Return("", false, nil)
			},
			wantCount: 1,
			check: func(t *testing.T, out []byte) {
				assert.Contains(t, string(out), `"audioData": null`)
			},
		},
		{
			name: "yaml",
			opts: ExportOptions{Format: FormatYAML},
			setupMocks: func(m mocks) {
				m.notes.EXPECT().FindAll(gomock.Any()).Return([]notebook.Note{plain}, nil)
			},
			wantCount: 1,
			check: func(t *testing.T, out []byte) {
				var doc struct {
					Notes []map[string]any `yaml:"notes"`
					Date  string           `yaml:"exportDate"`
				}
				require.NoError(t, yaml.Unmarshal(out, &doc))
				require.Len(t, doc.Notes, 1)
				assert.Equal(t, "note_2", doc.Notes[0]["id"])
				assert.Equal(t, 3, doc.Notes[0]["schemaVersion"])
				assert.Equal(t, "2024-05-06T07:08:09.123Z", doc.Date)
			},
		},
		{
			name: "audio lookup error",
			opts: ExportOptions{IncludeAudio: true},
			setupMocks: func(m mocks) {
				m.notes.EXPECT().FindAll(gomock.Any()).Return([]notebook.Note{withSentinel}, nil)
				m.audio.EXPECT().Get(gomock.Any(), "note_1").Return("", false, errors.New("audio store is not open"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks(t)
			tt.setupMocks(m)
			exporter := NewExporter(m.notes, m.audio)
			exporter.now = func() time.Time { return fixedNow }

			var out bytes.Buffer
			count, err := exporter.Export(context.Background(), &out, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)
			tt.check(t, out.Bytes())
		})
	}
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			n := normalized(t, `{"id":"note_1","chapter":"C1","date":"2024-01-01T00:00:00.000Z","keyPoints":["<b>a</b>"],"createdAt":1704067200000}`)
			doc := &ExportDocument{Notes: []notebook.RawNote{n.ToRaw()}, ExportDate: "2024-05-06T07:08:09.123Z", Version: ExportVersion}

			var out bytes.Buffer
			require.NoError(t, Encode(&out, doc, format))
			if format == FormatYAML {
				assert.Contains(t, out.String(), "createdAt: 1704067200000\n")
			}
			raws, err := DecodeNotes(out.Bytes())
			require.NoError(t, err)
			require.Len(t, raws, 1)
			assert.True(t, notebook.Equal(raws[0], n))
		})
	}
}

func TestYAMLValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{name: "integer", input: json.Number("1704067200000"), want: int64(1704067200000)},
		{name: "float", input: json.Number("1.5"), want: 1.5},
		{name: "string", input: "1704067200000", want: "1704067200000"},
		{
			name:  "nested",
			input: notebook.RawNote{"meta": map[string]any{"scores": []any{json.Number("7"), json.Number("6.5")}}},
			want:  notebook.RawNote{"meta": map[string]any{"scores": []any{int64(7), 6.5}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, yamlValue(tt.input))
		})
	}
}

func TestExportSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ExportSchema(&out))

	var schema map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
	assert.Equal(t, "IELTS notes export", schema["title"])
	properties := schema["properties"].(map[string]any)
	assert.Contains(t, properties, "notes")
	assert.Contains(t, properties, "exportDate")
	assert.Contains(t, out.String(), "INDEXEDDB when the audio is stored in the audio database")
}
