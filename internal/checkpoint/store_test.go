package checkpoint

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreAddGetDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store := NewFileStore(dir)

	_, ok, err := store.Get("snap1")
	require.NoError(t, err)
	require.False(t, ok)

	encoded := Encode(sampleState())
	require.NoError(t, store.Add("snap1", bytes.NewReader(encoded)))

	content, ok, err := store.Get("snap1")
	require.NoError(t, err)
	require.True(t, ok)
	defer content.Close()

	got, err := io.ReadAll(content)
	require.NoError(t, err)
	require.Equal(t, encoded, got)

	require.NoError(t, store.Delete("snap1"))
	_, ok, err = store.Get("snap1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreDeleteMissingIsNoop(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, store.Delete("never-existed"))
}

func TestFileStoreKeyIsBasenamed(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Add(Key("../../etc/passwd"), bytes.NewReader([]byte("x"))))
	require.Equal(t, filepath.Join(dir, "passwd"), store.path(Key("../../etc/passwd")))
}
