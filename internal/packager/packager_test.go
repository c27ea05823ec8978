package packager

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json"), []byte(`{"session":"s"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifact-1.md"), []byte("one"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "artifact-2.md"), []byte("two"), 0o644))
	return dir
}

func tarEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}

func TestArchive(t *testing.T) {
	dir := seedArtifacts(t)

	result, err := Archive(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "artifacts.tar.gz"), result.PackagePath)

	names := tarEntries(t, result.PackagePath)
	assert.Equal(t, []string{"artifact-1.md", "nested/artifact-2.md", "run.json"}, names)
}

func TestArchive_Deterministic(t *testing.T) {
	dir := seedArtifacts(t)

	first, err := Archive(dir, filepath.Join(t.TempDir(), "a.tar.gz"))
	require.NoError(t, err)
	second, err := Archive(dir, filepath.Join(t.TempDir(), "b.tar.gz"))
	require.NoError(t, err)

	firstBytes, err := os.ReadFile(first.PackagePath)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second.PackagePath)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestArchive_ExcludesItself(t *testing.T) {
	dir := seedArtifacts(t)

	out := filepath.Join(dir, "artifacts.tar.gz")
	_, err := Archive(dir, out)
	require.NoError(t, err)
	// Repacking over an existing tarball must not swallow it.
	_, err = Archive(dir, out)
	require.NoError(t, err)

	names := tarEntries(t, out)
	assert.NotContains(t, names, "artifacts.tar.gz")
	assert.Len(t, names, 3)
}
