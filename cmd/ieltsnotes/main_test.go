package main

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/testutil"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		debugMode bool
		wantLevel slog.Level
	}{
		{
			name:      "debug mode enabled",
			debugMode: true,
			wantLevel: slog.LevelDebug,
		},
		{
			name:      "debug mode disabled",
			debugMode: false,
			wantLevel: slog.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogger(tt.debugMode)
			logger := slog.Default()
			assert.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel <= slog.LevelDebug, logger.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "ieltsnotes", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"migrate", "repair", "notes", "folders", "audio", "export", "import", "storage", "practice"} {
		assert.Contains(t, names, want)
	}
}

func TestBrokenConfig(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"--config", setupBrokenConfigFile(t), "notes", "list"})
	root.SetOut(io.Discard)
	assert.ErrorContains(t, root.Execute(), "loadConfig()")
}

func TestMigrateCommand(t *testing.T) {
	p := newTestProfile(t)
	testutil.WriteFlatStore(t, p.dir, map[string]string{
		collection.KeyListeningNotes: testutil.LegacyNotesJSON(t,
			testutil.LegacyNote("note_1", "C1", testutil.WithInlineAudio("data:audio/mp3;base64,AAAA")),
			testutil.LegacyNote("note_2", "C2"),
		),
	})

	out := p.mustRun(t, "migrate", "--dry-run")
	assert.Contains(t, out, "  [NEW]  note_1 C1\n")
	assert.Contains(t, out, "Copied legacy notes: 2 new, 0 skipped, 1 audio moved")
	assert.NotContains(t, testutil.ReadFlatStore(t, p.dir), collection.KeyMigrated)

	out = p.mustRun(t, "migrate")
	assert.Contains(t, out, "Copied legacy notes: 2 new, 0 skipped, 1 audio moved")
	assert.Equal(t, "true", testutil.ReadFlatStore(t, p.dir)[collection.KeyMigrated])

	out = p.mustRun(t, "migrate")
	assert.NotContains(t, out, "Copied legacy notes")
	assert.Contains(t, out, "Repaired notes: 0 in the notes database, 0 in the flat store")

	out = p.mustRun(t, "repair", "--dry-run")
	assert.Contains(t, out, "Repaired notes: 0 in the notes database, 0 in the flat store")

	out = p.mustRun(t, "notes", "list")
	assert.Contains(t, out, "note_1")
	assert.Contains(t, out, "note_2")
}

func TestNotesCommands(t *testing.T) {
	p := newTestProfile(t)
	file := p.writeFile(t, "notes.json", notesFixture)

	out := p.mustRun(t, "notes", "add", "--file", file)
	assert.Contains(t, out, "  [SAVE]  note_a C18\n")
	assert.Contains(t, out, "  [SAVE]  note_b C19\n")

	out = p.mustRun(t, "notes", "list", "--type", "multiple choice")
	assert.Contains(t, out, "note_a")
	assert.NotContains(t, out, "note_b")

	out = p.mustRun(t, "notes", "list", "--chapter", "C19")
	assert.NotContains(t, out, "note_a")
	assert.Contains(t, out, "note_b")

	out = p.mustRun(t, "notes", "show", "note_a")
	assert.Contains(t, out, `"questionType": "multiple-choice"`)
	assert.Contains(t, out, `"audioData": "INDEXEDDB"`)

	out = p.mustRun(t, "notes", "delete", "note_a")
	assert.Contains(t, out, "Deleted note_a")

	_, err := p.run(t, "", "notes", "show", "note_a")
	assert.ErrorIs(t, err, notebook.ErrNoteNotFound)

	_, err = p.run(t, "", "notes", "add")
	assert.Error(t, err)
}

func TestFoldersCommands(t *testing.T) {
	p := newTestProfile(t)

	out := p.mustRun(t, "folders", "create", "Cue Card 1", "--skill", "speaking")
	assert.Contains(t, out, "Created folder Cue Card 1")

	out = p.mustRun(t, "folders", "create", "Cue Card 1", "--skill", "speaking")
	assert.Contains(t, out, "Folder Cue Card 1 already exists")

	out = p.mustRun(t, "folders", "list", "--skill", "speaking")
	assert.Contains(t, out, "Cue Card 1")
	assert.Contains(t, out, "0 notes")

	out = p.mustRun(t, "folders", "list", "--skill", "writing")
	assert.Contains(t, out, "No folders found.")

	out = p.mustRun(t, "folders", "delete", "Cue Card 1", "--skill", "speaking")
	assert.Contains(t, out, "Deleted folder Cue Card 1")

	_, err := p.run(t, "", "folders", "delete", "Cue Card 1", "--skill", "speaking")
	assert.ErrorContains(t, err, "not found")

	_, err = p.run(t, "", "folders", "list", "--skill", "listening")
	assert.ErrorContains(t, err, "has no folders")
}

func TestAudioCommands(t *testing.T) {
	p := newTestProfile(t)
	p.mustRun(t, "notes", "add", "--file", p.writeFile(t, "notes.json", notesFixture))

	recording := []byte("ID3 recording")
	out := p.mustRun(t, "audio", "put", "note_b", p.writeFile(t, "clip.bin", string(recording)))
	assert.Contains(t, out, "  [AUDIO]  note_b\n")

	out = p.mustRun(t, "notes", "show", "note_b")
	assert.Contains(t, out, `"audioData": "INDEXEDDB"`)

	out = p.mustRun(t, "audio", "get", "note_b")
	assert.Contains(t, out, ";base64,"+base64.StdEncoding.EncodeToString(recording))

	output := filepath.Join(p.dir, "out.bin")
	p.mustRun(t, "audio", "get", "note_b", "--output", output)
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, recording, got)

	p.mustRun(t, "audio", "rm", "note_b")
	_, err = p.run(t, "", "audio", "get", "note_b")
	assert.ErrorContains(t, err, "no audio for note note_b")
	out = p.mustRun(t, "notes", "show", "note_b")
	assert.Contains(t, out, `"audioData": null`)

	_, err = p.run(t, "", "audio", "put", "note_missing", p.writeFile(t, "other.bin", "x"))
	assert.ErrorIs(t, err, notebook.ErrNoteNotFound)
}

func TestExportImportCommands(t *testing.T) {
	p := newTestProfile(t)
	p.mustRun(t, "notes", "add", "--file", p.writeFile(t, "notes.json", notesFixture))

	exported := filepath.Join(p.dir, "export", "notes.yml")
	out := p.mustRun(t, "export", "--format", "yaml", "--include-audio", "--output", exported)
	assert.Contains(t, out, "Exported 2 notes to "+exported)
	content, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(content), "data:audio/mp3;base64,SUQz")

	out = p.mustRun(t, "export")
	assert.Contains(t, out, `"version": "1.0"`)
	assert.Contains(t, out, `"audioData": "INDEXEDDB"`)

	out = p.mustRun(t, "import", exported, "--dry-run")
	assert.Contains(t, out, "Would import 0 new notes, 2 updated")

	p.mustRun(t, "notes", "delete", "note_b")
	out = p.mustRun(t, "import", exported, "--replace")
	assert.Contains(t, out, "Imported 2 new notes")
	assert.Contains(t, out, "Previous notes were saved as backup #1")

	out = p.mustRun(t, "notes", "list")
	assert.Contains(t, out, "note_b")

	_, err = p.run(t, "", "export", "--format", "xml")
	assert.Error(t, err)

	out = p.mustRun(t, "export", "schema")
	assert.Contains(t, out, "IELTS notes export")
}

func TestStorageCommands(t *testing.T) {
	p := newTestProfile(t)
	p.mustRun(t, "notes", "add", "--file", p.writeFile(t, "notes.json", notesFixture))

	out := p.mustRun(t, "storage", "info")
	assert.Contains(t, out, "Storage Report")
	assert.Contains(t, out, "Notes:              2\n")
	assert.Contains(t, out, "Audio records:      1")

	out = p.mustRun(t, "storage", "cleanup", "--prune-old", "--key", collection.KeyWritingNotes)
	assert.Contains(t, out, "writingNotes: pruned 0 notes\n")

	_, err := p.run(t, "", "storage", "cleanup")
	assert.Error(t, err)
	_, err = p.run(t, "", "storage", "cleanup", "--strip-audio", "--key", "vocabulary")
	assert.ErrorContains(t, err, "unknown collection vocabulary")
}

func TestPracticeCommands(t *testing.T) {
	p := newTestProfile(t)
	p.mustRun(t, "notes", "add", "--file", p.writeFile(t, "notes.json", notesFixture))

	out := p.mustRun(t, "practice", "history")
	assert.Contains(t, out, "No practice records found.")

	out, err := p.run(t, "the museum opens at nine\ntickets cost five pounds\n", "practice", "start")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[1/2] C18 Test 1 Section 2")
	assert.Contains(t, out, "Practiced 2 sentences")

	out = p.mustRun(t, "practice", "history")
	assert.Contains(t, out, "note_a")

	out = p.mustRun(t, "practice", "history", "--monthly")
	assert.Contains(t, out, "Practice Statistics Report")
	assert.Contains(t, out, "Totals:     1         1 ")

	_, err = p.run(t, "", "practice", "history", "--monthly", "--month", "2")
	assert.ErrorContains(t, err, "--month requires --year")

	out = p.mustRun(t, "practice", "start")
	assert.Contains(t, out, "No sentences to practice.")
}

func TestFormatFlag(t *testing.T) {
	f := formatFlag{format: datasync.FormatJSON}
	assert.Equal(t, "json", f.String())
	require.NoError(t, f.Set("yml"))
	assert.Equal(t, datasync.FormatYAML, f.format)
	assert.Error(t, f.Set("xml"))
	assert.Equal(t, "format", f.Type())
}
