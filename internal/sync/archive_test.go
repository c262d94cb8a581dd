package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coldsync/coldsync/internal/pdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveWriterCreatesLazilyAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MemoDB.pdb")
	db := &pdb.Database{Name: "MemoDB", Type: [4]byte{'D', 'A', 'T', 'A'}, Creator: [4]byte{'m', 'e', 'm', 'o'}}

	w := NewArchiveWriter(path, db)
	_, statErr := os.Stat(path)
	assert.Error(t, statErr, "file must not exist before the first Append")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.Append([]byte("first"), now))
	require.NoError(t, w.Append([]byte("second, a bit longer"), now.Add(time.Hour)))
	require.NoError(t, w.Close())

	name, typ, creator, entries, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "MemoDB", name)
	assert.Equal(t, db.Type, typ)
	assert.Equal(t, db.Creator, creator)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("first"), entries[0].Data)
	assert.Equal(t, []byte("second, a bit longer"), entries[1].Data)
	assert.Equal(t, now.Unix(), entries[0].Timestamp.Unix())
}

func TestArchiveWriterAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MemoDB.pdb")
	db := &pdb.Database{Name: "MemoDB"}

	w1 := NewArchiveWriter(path, db)
	require.NoError(t, w1.Append([]byte("a"), time.Now()))
	require.NoError(t, w1.Close())

	w2 := NewArchiveWriter(path, db)
	require.NoError(t, w2.Append([]byte("b"), time.Now()))
	require.NoError(t, w2.Close())

	_, _, _, entries, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a fresh ArchiveWriter over an existing file must not rewrite the header")
}
