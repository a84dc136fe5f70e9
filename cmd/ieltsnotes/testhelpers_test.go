package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/testutil"
)

// testProfile is a temporary profile with its own config file.
type testProfile struct {
	dir     string
	cfgPath string
}

func newTestProfile(t *testing.T) *testProfile {
	t.Helper()
	tmpDir := t.TempDir()
	return &testProfile{dir: tmpDir, cfgPath: testutil.SetupTestConfig(t, tmpDir)}
}

// run executes the root command with input as stdin and returns everything it printed.
func (p *testProfile) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(append([]string{"--config", p.cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (p *testProfile) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := p.run(t, "", args...)
	require.NoError(t, err, out)
	return out
}

func (p *testProfile) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// setupBrokenConfigFile creates a config file with invalid YAML that causes Load() to fail.
func setupBrokenConfigFile(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml content"), 0644))
	return cfgPath
}

const notesFixture = `[
  {
    "id": "note_a",
    "chapter": "C18",
    "test": "Test 1",
    "part": "Section 2",
    "questionType": "Multiple Choice",
    "content": "<p>The museum opens at nine. Tickets cost five pounds.</p>",
    "keyPoints": ["museum"],
    "audioData": "data:audio/mp3;base64,SUQz",
    "enableIntensiveListening": true,
    "date": "2024-05-01T00:00:00.000Z"
  },
  {
    "id": "note_b",
    "chapter": "C19",
    "questionType": "map",
    "content": "<p>Turn left at the bridge.</p>",
    "date": "2024-05-02T00:00:00.000Z"
  }
]`
