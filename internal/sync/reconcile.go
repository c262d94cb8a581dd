package sync

import (
	"bytes"

	"github.com/coldsync/coldsync/internal/pdb"
)

// recordState classifies one record's attribute byte for reconciliation
// purposes, per spec.md §4.7. EXPUNGE is DELETED without ARCHIVE; archived
// is DELETED with ARCHIVE. A record carrying neither DELETED nor DIRTY is
// clean.
type recordState int

const (
	stateClean recordState = iota
	stateDirty
	stateExpunge
	stateArchived
)

func classify(attrs byte) recordState {
	deleted := attrs&pdb.RecordDeleted != 0
	archive := attrs&pdb.RecordArchive != 0
	dirty := attrs&pdb.RecordDirty != 0
	switch {
	case deleted && archive:
		return stateArchived
	case deleted:
		return stateExpunge
	case dirty:
		return stateDirty
	default:
		return stateClean
	}
}

// Action is the outcome of reconciling one remote/local record pair,
// interpreted by the engine into DLP calls, archive writes, and local
// image mutations. NewLocal and DeleteLocal are never both set; InsertExtra
// is set only alongside NewLocal, on the divergent DIRTY|DIRTY row of the
// table in spec.md §4.7; ArchivePayloads and
// DeleteRemoteID/UploadLocal are independent side effects that may
// accompany it.
type Action struct {
	ArchivePayloads [][]byte

	DeleteRemoteID *uint32
	UploadLocal    *pdb.Record

	// LocalID is the id of the local record being reconciled, set whenever
	// hasLocal was true, so DeleteLocal knows what to remove even on rows
	// that issue no device-side delete (e.g. EXPUNGE|EXPUNGE).
	LocalID     *uint32
	NewLocal    *pdb.Record
	DeleteLocal bool
	InsertExtra *pdb.Record
}

// reconcile applies the per-record table from spec.md §4.7. remote is
// always present (the caller is iterating a known remote record); local
// and hasLocal describe the corresponding local record, if any.
func reconcile(remote pdb.Record, local pdb.Record, hasLocal bool) Action {
	if !hasLocal {
		return reconcileNoLocal(remote)
	}

	rs, ls := classify(remote.Attrs), classify(local.Attrs)
	remoteID := remote.ID
	localID := local.ID

	a := reconcileBoth(remote, local, rs, ls, remoteID)
	a.LocalID = &localID
	return a
}

func reconcileBoth(remote, local pdb.Record, rs, ls recordState, remoteID uint32) Action {
	switch {
	case rs == stateArchived && ls == stateArchived:
		var payloads [][]byte
		if bytes.Equal(remote.Payload, local.Payload) {
			payloads = [][]byte{remote.Payload}
		} else {
			payloads = [][]byte{remote.Payload, local.Payload}
		}
		return Action{ArchivePayloads: payloads, DeleteRemoteID: &remoteID, DeleteLocal: true}

	case rs == stateArchived && ls == stateExpunge:
		return Action{ArchivePayloads: [][]byte{remote.Payload}, DeleteRemoteID: &remoteID, DeleteLocal: true}

	case rs == stateArchived && ls == stateDirty:
		uploaded := local
		return Action{ArchivePayloads: [][]byte{remote.Payload}, UploadLocal: &uploaded, NewLocal: &uploaded}

	case rs == stateArchived && ls == stateClean:
		return Action{ArchivePayloads: [][]byte{local.Payload}, DeleteRemoteID: &remoteID, DeleteLocal: true}

	case rs == stateExpunge && ls == stateArchived:
		return Action{ArchivePayloads: [][]byte{local.Payload}, DeleteLocal: true}

	case rs == stateExpunge && ls == stateExpunge:
		return Action{DeleteLocal: true}

	case rs == stateExpunge && ls == stateDirty:
		uploaded := local
		return Action{DeleteRemoteID: &remoteID, UploadLocal: &uploaded, NewLocal: &uploaded}

	case rs == stateExpunge && ls == stateClean:
		return Action{DeleteLocal: true}

	case rs == stateDirty && ls == stateArchived:
		clean := remote.Clean()
		return Action{ArchivePayloads: [][]byte{local.Payload}, NewLocal: &clean}

	case rs == stateDirty && ls == stateExpunge:
		clean := remote.Clean()
		return Action{NewLocal: &clean}

	case rs == stateDirty && ls == stateDirty:
		if bytes.Equal(remote.Payload, local.Payload) {
			cleanedRemote := remote.Clean()
			return Action{NewLocal: &cleanedRemote}
		}
		uploaded := local
		insert := remote.Clean()
		return Action{UploadLocal: &uploaded, NewLocal: &uploaded, InsertExtra: &insert}

	case rs == stateDirty && ls == stateClean:
		clean := remote.Clean()
		return Action{NewLocal: &clean}

	case rs == stateClean && ls == stateArchived:
		return Action{ArchivePayloads: [][]byte{local.Payload}, DeleteLocal: true}

	case rs == stateClean && ls == stateExpunge:
		return Action{DeleteLocal: true}

	case rs == stateClean && ls == stateDirty:
		uploaded := local
		return Action{UploadLocal: &uploaded, NewLocal: &uploaded}

	default: // clean | clean
		clean := remote.Clean()
		return Action{NewLocal: &clean}
	}
}

// reconcileNoLocal handles a remote record with no corresponding local
// record at all -- not itself a row of spec.md §4.7's table, but the
// natural extension: a brand-new remote record is simply adopted, and a
// remote record already marked for deletion is resolved on the device
// without any local-side effect.
func reconcileNoLocal(remote pdb.Record) Action {
	remoteID := remote.ID
	switch classify(remote.Attrs) {
	case stateArchived:
		return Action{ArchivePayloads: [][]byte{remote.Payload}, DeleteRemoteID: &remoteID}
	case stateExpunge:
		return Action{DeleteRemoteID: &remoteID}
	default:
		clean := remote.Clean()
		return Action{NewLocal: &clean}
	}
}
