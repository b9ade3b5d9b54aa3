package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/fsutil"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

func TestFindFilesByExtension(t *testing.T) {
	root := writeFiles(t, "ci.hcl", "release.yml", "notes.txt", "nested/deep.yaml")

	found, err := fsutil.FindFilesByExtension(root, ".hcl", ".yml", ".yaml")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "ci.hcl"),
		filepath.Join(root, "release.yml"),
		filepath.Join(root, "nested", "deep.yaml"),
	}, found)
}

func TestFindFilesByExtensionNoMatches(t *testing.T) {
	root := writeFiles(t, "readme.md")

	found, err := fsutil.FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindFilesByExtensionMissingRoot(t *testing.T) {
	_, err := fsutil.FindFilesByExtension(filepath.Join(t.TempDir(), "absent"), ".hcl")
	assert.Error(t, err)
}

func TestFindFilesByExtensionPanicsWithoutExtensions(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = fsutil.FindFilesByExtension(t.TempDir())
	})
}
