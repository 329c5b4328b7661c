package bundle_test

import (
	"archive/zip"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/Othernet-Project/fsal/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, contents := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestIsBundle(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "incoming"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "incoming", "a.zip"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "incoming", "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "outside.zip"), []byte("x"), 0o644))

	ex := bundle.New(base, "incoming", []string{"zip"}, log.New(os.Stderr, "", 0))

	assert.True(t, ex.IsBundle("incoming/a.zip"))
	assert.False(t, ex.IsBundle("incoming/b.txt"), "extension not allow-listed")
	assert.False(t, ex.IsBundle("outside.zip"), "not under bundles_dir")
	assert.False(t, ex.IsBundle("incoming/missing.zip"), "does not exist")
}

func TestExtractMovesFilesAndDeletesSource(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "incoming"), 0o755))
	bundlePath := filepath.Join(base, "incoming", "data.zip")
	writeZip(t, bundlePath, map[string]string{
		"readme.txt":      "hello",
		"nested/note.txt": "world",
	})

	ex := bundle.New(base, "incoming", []string{"zip"}, log.New(os.Stderr, "", 0))
	ok, extracted := ex.Extract("incoming/data.zip")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"readme.txt", "nested/note.txt"}, extracted)

	contents, err := os.ReadFile(filepath.Join(base, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))

	_, err = os.Stat(bundlePath)
	assert.True(t, os.IsNotExist(err), "source archive should be deleted")
}

func TestExtractRejectsNonBundle(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "plain.txt"), []byte("x"), 0o644))
	ex := bundle.New(base, "incoming", []string{"zip"}, log.New(os.Stderr, "", 0))
	ok, extracted := ex.Extract("plain.txt")
	assert.False(t, ok)
	assert.Nil(t, extracted)
}
