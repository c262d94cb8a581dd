package pdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecordDB() *Database {
	return &Database{
		Name:       "MemoDB",
		Attributes: 0,
		Version:    1,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ModifiedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Type:       [4]byte{'D', 'A', 'T', 'A'},
		Creator:    [4]byte{'m', 'e', 'm', 'o'},
		AppInfo:    []byte("app-info-block"),
		SortInfo:   []byte("sort"),
		Records: []Record{
			{ID: 1, Attrs: 0x01, Payload: []byte("first record")},
			{ID: 2, Attrs: RecordDirty | 0x02, Payload: []byte("second record, longer payload")},
			{ID: 3, Attrs: 0, Payload: nil},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := sampleRecordDB()
	buf := Write(d)

	got, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
	assert.Equal(t, d.Type, got.Type)
	assert.Equal(t, d.Creator, got.Creator)
	assert.Equal(t, d.AppInfo, got.AppInfo)
	assert.Equal(t, d.SortInfo, got.SortInfo)
	require.Len(t, got.Records, 3)
	for i, r := range d.Records {
		assert.Equal(t, r.ID, got.Records[i].ID)
		assert.Equal(t, r.Attrs, got.Records[i].Attrs)
		assert.Equal(t, r.Payload, got.Records[i].Payload)
	}
}

func TestWriteClearsOpenAttribute(t *testing.T) {
	d := sampleRecordDB()
	d.Attributes = AttrOpen | AttrBackup

	buf := Write(d)
	got, err := Read(buf)
	require.NoError(t, err)
	assert.Zero(t, got.Attributes&AttrOpen)
	assert.NotZero(t, got.Attributes&AttrBackup)
}

func TestResourceDBRoundTrip(t *testing.T) {
	d := &Database{
		Name:       "Launcher",
		Attributes: AttrResDB,
		Type:       [4]byte{'a', 'p', 'p', 'l'},
		Creator:    [4]byte{'l', 'n', 'c', 'h'},
		Resources: []Resource{
			{Type: [4]byte{'c', 'o', 'd', 'e'}, ID: 1, Data: []byte{0x01, 0x02, 0x03}},
			{Type: [4]byte{'d', 'a', 't', 'a'}, ID: 1, Data: []byte{}},
		},
	}
	buf := Write(d)
	got, err := Read(buf)
	require.NoError(t, err)
	assert.True(t, got.IsResourceDB())
	require.Len(t, got.Resources, 2)
	assert.Equal(t, d.Resources[0].Data, got.Resources[0].Data)
}

func TestWriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MemoDB.pdb")

	d := sampleRecordDB()
	require.NoError(t, WriteFile(path, d))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)

	entries, err := filepath.Glob(filepath.Join(dir, ".pdb-*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no staging file should remain after a successful write")
}

func TestRecordHelpers(t *testing.T) {
	r := Record{Attrs: RecordDeleted | RecordArchive | 0x03}
	assert.True(t, r.Deleted())
	assert.True(t, r.Archive())
	assert.False(t, r.Dirty())
	assert.Equal(t, byte(0x03), r.Category())

	clean := r.Clean()
	assert.False(t, clean.Deleted())
	assert.Equal(t, byte(0x03), clean.Category())
}
