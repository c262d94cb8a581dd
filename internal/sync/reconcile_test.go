package sync

import (
	"testing"

	"github.com/coldsync/coldsync/internal/pdb"
	"github.com/stretchr/testify/assert"
)

func TestReconcileArchivedBothIdenticalPayload(t *testing.T) {
	remote := pdb.Record{ID: 7, Attrs: pdb.RecordDeleted | pdb.RecordArchive, Payload: []byte("same")}
	local := pdb.Record{ID: 7, Attrs: pdb.RecordDeleted | pdb.RecordArchive, Payload: []byte("same")}

	a := reconcile(remote, local, true)
	assert.Len(t, a.ArchivePayloads, 1, "identical payloads archive once")
	assert.True(t, a.DeleteLocal)
	assert.NotNil(t, a.DeleteRemoteID)
}

func TestReconcileArchivedBothDivergentPayload(t *testing.T) {
	remote := pdb.Record{ID: 7, Attrs: pdb.RecordDeleted | pdb.RecordArchive, Payload: []byte("remote")}
	local := pdb.Record{ID: 7, Attrs: pdb.RecordDeleted | pdb.RecordArchive, Payload: []byte("local")}

	a := reconcile(remote, local, true)
	assert.Len(t, a.ArchivePayloads, 2, "divergent payloads archive both copies")
}

func TestReconcileDirtyDirtyIdenticalClearsFlags(t *testing.T) {
	remote := pdb.Record{ID: 3, Attrs: pdb.RecordDirty, Payload: []byte("x")}
	local := pdb.Record{ID: 3, Attrs: pdb.RecordDirty, Payload: []byte("x")}

	a := reconcile(remote, local, true)
	assert.NotNil(t, a.NewLocal)
	assert.False(t, a.NewLocal.Dirty())
	assert.Nil(t, a.InsertExtra)
	assert.Nil(t, a.UploadLocal)
}

func TestReconcileDirtyDirtyDivergentKeepsBoth(t *testing.T) {
	remote := pdb.Record{ID: 3, Attrs: pdb.RecordDirty, Payload: []byte("remote edit")}
	local := pdb.Record{ID: 3, Attrs: pdb.RecordDirty, Payload: []byte("local edit")}

	a := reconcile(remote, local, true)
	assert.NotNil(t, a.UploadLocal, "local copy is uploaded to get a new id")
	assert.NotNil(t, a.InsertExtra, "remote copy is kept as a separate record")
	assert.Equal(t, []byte("remote edit"), a.InsertExtra.Payload)
}

func TestReconcileExpungeExpungeDeletesLocalWithNoDeviceCall(t *testing.T) {
	remote := pdb.Record{ID: 9, Attrs: pdb.RecordDeleted}
	local := pdb.Record{ID: 9, Attrs: pdb.RecordDeleted}

	a := reconcile(remote, local, true)
	assert.True(t, a.DeleteLocal)
	assert.Nil(t, a.DeleteRemoteID, "record is already gone on the device")
	assert.NotNil(t, a.LocalID, "LocalID must carry the id for applyAction to remove the right record")
}

func TestReconcileCleanCleanIsNoop(t *testing.T) {
	remote := pdb.Record{ID: 1, Attrs: 2, Payload: []byte("v")}
	local := pdb.Record{ID: 1, Attrs: 2, Payload: []byte("v")}

	a := reconcile(remote, local, true)
	assert.NotNil(t, a.NewLocal)
	assert.Equal(t, remote.Payload, a.NewLocal.Payload)
}

func TestReconcileNoLocalNewRecordAdopted(t *testing.T) {
	remote := pdb.Record{ID: 42, Attrs: 5, Payload: []byte("new")}
	a := reconcile(remote, pdb.Record{}, false)
	assert.NotNil(t, a.NewLocal)
	assert.Equal(t, uint32(42), a.NewLocal.ID)
}

func TestReconcileNoLocalArchivedRecordArchivesAndDeletes(t *testing.T) {
	remote := pdb.Record{ID: 42, Attrs: pdb.RecordDeleted | pdb.RecordArchive, Payload: []byte("gone")}
	a := reconcile(remote, pdb.Record{}, false)
	assert.Len(t, a.ArchivePayloads, 1)
	assert.NotNil(t, a.DeleteRemoteID)
	assert.Nil(t, a.NewLocal)
}
