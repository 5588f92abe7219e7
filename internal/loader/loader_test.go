package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReadsMarkdownSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_rates.md"), []byte("# Rates\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_highlights.md"), []byte("# Highlights\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	docs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].SourcePath, "a_highlights.md")
	assert.Contains(t, docs[1].SourcePath, "b_rates.md")
	assert.Equal(t, "# Highlights\n", docs[0].Text)
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
