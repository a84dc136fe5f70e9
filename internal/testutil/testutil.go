// Package testutil provides shared test helpers for creating config files and profile fixtures.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/collection"
)

// SetupTestConfig creates a minimal config file whose profile lives under tmpDir.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	profileDir := ProfileDir(tmpDir)
	require.NoError(t, os.MkdirAll(profileDir, 0755))

	configContent := fmt.Sprintf(`profile:
  directory: %s
flat_store:
  file_name: flatstore.json
  quota_bytes: 5242880
database:
  notes_file: notes.db
  audio_file: audio.db
  busy_timeout_ms: 1000
  recreate_attempts: 2
  recreate_retry_delay: 10ms
practice:
  sentences_per_session: 15
  min_sentence_length: 5
  recent_sessions: 3
`, profileDir)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// SetupTestConfigWithQuota creates a config file like SetupTestConfig and overrides
// the flat store quota through the environment.
func SetupTestConfigWithQuota(t *testing.T, tmpDir string, quota int64) string {
	t.Helper()
	cfgPath := SetupTestConfig(t, tmpDir)
	t.Setenv("IELTSNOTES_QUOTA_BYTES", fmt.Sprint(quota))
	return cfgPath
}

// ProfileDir is the profile directory used by SetupTestConfig.
func ProfileDir(tmpDir string) string {
	return filepath.Join(tmpDir, "profile")
}

// FlatStorePath is the flat store file used by SetupTestConfig.
func FlatStorePath(tmpDir string) string {
	return filepath.Join(ProfileDir(tmpDir), "flatstore.json")
}

// WriteFlatStore writes items as the flat store file of the profile under tmpDir.
func WriteFlatStore(t *testing.T, tmpDir string, items map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(ProfileDir(tmpDir), 0755))
	content, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(FlatStorePath(tmpDir), content, 0644))
}

// ReadFlatStore reads back the flat store file of the profile under tmpDir.
func ReadFlatStore(t *testing.T, tmpDir string) map[string]string {
	t.Helper()
	content, err := os.ReadFile(FlatStorePath(tmpDir))
	require.NoError(t, err)
	items := map[string]string{}
	require.NoError(t, json.Unmarshal(content, &items))
	return items
}

// LegacyNoteOption configures optional fields of a legacy note fixture.
type LegacyNoteOption func(map[string]any)

// WithInlineAudio gives the legacy note an inline audio payload.
func WithInlineAudio(payload string) LegacyNoteOption {
	return func(m map[string]any) {
		m["audioData"] = payload
	}
}

// WithField sets any other field of the legacy note.
func WithField(key string, value any) LegacyNoteOption {
	return func(m map[string]any) {
		m[key] = value
	}
}

// LegacyNote builds a note the way old releases stored it in the flat store.
func LegacyNote(id, chapter string, opts ...LegacyNoteOption) map[string]any {
	m := map[string]any{
		"id":         id,
		"chapter":    chapter,
		"test":       "Test 1",
		"section":    "Section 1",
		"content":    "<p>The museum opens at nine. Tickets cost five pounds.</p>",
		"keyPhrases": []string{"museum"},
		"date":       "2024-01-01T00:00:00.000Z",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LegacyNotesJSON encodes notes as a flat store collection value.
func LegacyNotesJSON(t *testing.T, notes ...map[string]any) string {
	t.Helper()
	if notes == nil {
		notes = []map[string]any{}
	}
	content, err := collection.Marshal(notes)
	require.NoError(t, err)
	return string(content)
}
