package fileutil_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvm-metadata/harvester/pkg/fileutil"
)

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vendor", "x", "item.json")

	require.NoError(t, fileutil.WriteJSON(path, map[string]int{"a": 1}))
	assert.True(t, fileutil.Exists(path))
	assert.False(t, fileutil.Exists(filepath.Dir(path)))

	var got map[string]int
	require.NoError(t, fileutil.ReadJSON(path, &got))
	assert.Equal(t, map[string]int{"a": 1}, got)

	// Overwrite leaves no temp files behind.
	require.NoError(t, fileutil.WriteJSON(path, map[string]int{"a": 2}))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWalkAndCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, fileutil.WriteJSON(filepath.Join(dir, "a", "all.json"), []int{1}))
	require.NoError(t, fileutil.WriteJSON(filepath.Join(dir, "b", "all.json"), []int{2}))
	require.NoError(t, fileutil.WriteJSON(filepath.Join(dir, "b", "item.json"), []int{3}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), nil, 0o644))

	count, err := fileutil.Count(dir, func(name string) bool { return name == "all.json" })
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var contents []string
	err = fileutil.Walk(dir, nil, func(r io.Reader, _ string) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		contents = append(contents, strings.Join(strings.Fields(string(b)), ""))
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"[1]", "[2]", "[3]"}, contents)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jdk.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	// A failed write keeps the previous content and leaves no temp file.
	err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("connection reset")
	})
	require.ErrorContains(t, err, "connection reset")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))

	require.NoError(t, fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader("new"))
		return err
	}))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
