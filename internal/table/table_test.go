package table

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadStripsBOMAndMapsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("\uFEFFA, B\n1,2\n3\n"), 0o644))

	tbl, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	require.Equal(t, "2", tbl.Rows[0].Get("B"))
	require.Equal(t, "", tbl.Rows[1].Get("B"))
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tbl, err := Read(path)
	require.NoError(t, err)
	require.Empty(t, tbl.Header)
	require.Empty(t, tbl.Rows)
}

func TestRequireListsMissingColumns(t *testing.T) {
	tbl := &Table{Header: []string{"A"}}
	err := tbl.Require([]string{"A", "C", "B"})
	require.True(t, errors.Is(err, ErrMissingColumns))
	require.Contains(t, err.Error(), "B, C")
	require.NoError(t, tbl.Require([]string{"A"}))
}

func TestAppendRepairsMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,B\n1,2"), 0o644))

	require.NoError(t, Append(path, [][]string{{"3", "4"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "A,B\n1,2\n3,4\n", string(data))
}

func TestWriteThenAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "t.csv")
	require.NoError(t, Write(path, []string{"A"}, [][]string{{"x, y"}}))
	require.NoError(t, Append(path, nil))
	require.NoError(t, Append(path, [][]string{{"z"}}))

	tbl, err := Read(path)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	require.Equal(t, "x, y", tbl.Rows[0]["A"])
	require.True(t, HasRows(path))
	require.False(t, HasRows(filepath.Join(t.TempDir(), "missing.csv")))
}
