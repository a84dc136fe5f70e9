package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/config"
)

func TestSetupTestConfig(t *testing.T) {
	tmpDir := t.TempDir()
	got := SetupTestConfig(t, tmpDir)

	want := filepath.Join(tmpDir, "config.yml")
	assert.Equal(t, want, got)

	cfg, err := config.Load(got)
	require.NoError(t, err)
	assert.Equal(t, ProfileDir(tmpDir), cfg.Profile.Directory)
	assert.Equal(t, FlatStorePath(tmpDir), cfg.FlatStorePath())

	info, err := os.Stat(ProfileDir(tmpDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSetupTestConfigWithQuota(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := config.Load(SetupTestConfigWithQuota(t, tmpDir, 2048))
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.FlatStore.QuotaBytes)
}

func TestFlatStore(t *testing.T) {
	tmpDir := t.TempDir()
	items := map[string]string{
		"listeningNotes": LegacyNotesJSON(t, LegacyNote("note_1", "C1", WithInlineAudio("data:audio/mp3;base64,AAA"))),
	}
	WriteFlatStore(t, tmpDir, items)
	assert.Equal(t, items, ReadFlatStore(t, tmpDir))
	assert.Contains(t, items["listeningNotes"], `"audioData":"data:audio/mp3;base64,AAA"`)
}

func TestLegacyNotesJSON(t *testing.T) {
	assert.Equal(t, "[]", LegacyNotesJSON(t))
	assert.Contains(t, LegacyNotesJSON(t, LegacyNote("note_1", "C1", WithField("passage", "p"))), `"passage":"p"`)
}
