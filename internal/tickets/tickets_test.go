package tickets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTicket = `{
  "ticket": {"key": "HPC-1", "summary": "GPU fault", "project": {"key": "HPC"}},
  "description": "node down",
  "labels": ["gpu", "hw"],
  "comments": [{"author": "a", "created": "2026-01-01T00:00:00Z", "body": "reseated"}],
  "status": {"current": "Open", "created": "2026-01-01T00:00:00Z"}
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadParsesNormalizedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HPC-1.json")
	writeFile(t, path, sampleTicket)

	tk, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "HPC-1", tk.Key())
	require.Equal(t, "HPC", tk.ProjectKey())
	require.Equal(t, "GPU fault", tk.Summary())
	require.Equal(t, []string{"gpu", "hw"}, tk.Labels)
	require.Equal(t, "reseated", tk.Comments[0].Body)
	require.Equal(t, "Open", tk.Status.Current)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, "{")
	_, err := Load(path)
	require.Error(t, err)
}

func TestListSortsAndSkipsNonJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "HPC-2.json"), "{}")
	writeFile(t, filepath.Join(dir, "DO-9.json"), "{}")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	files, err := List(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "DO-9", files[0].Key)
	require.Equal(t, "HPC-2", files[1].Key)
}

func TestLoadKeysReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "HPC-1.json"), sampleTicket)
	writeFile(t, filepath.Join(dir, "HPC-2.json"), "{")
	writeFile(t, filepath.Join(dir, "HPC-3.json"), sampleTicket)

	got, failed := LoadKeys(dir, map[string]bool{"HPC-1": true, "HPC-2": true})
	require.Len(t, got, 1)
	require.Contains(t, failed, "HPC-2")
}

func TestLatestDirAndFind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-02-01", "HPC-1.json"), "{}")
	writeFile(t, filepath.Join(root, "2026-02-08", "HPC-1.json"), "{}")

	latest, err := LatestDir(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "2026-02-08"), latest)

	found, err := Find(root, "HPC-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "2026-02-08", "HPC-1.json"), found)

	_, err = Find(root, "HPC-404")
	require.Error(t, err)

	_, err = LatestDir(t.TempDir())
	require.Error(t, err)
}
