// Package sync implements the record-level reconciliation engine: backup,
// slow-sync and fast-sync, driven by a dlp.Client and operating on
// in-memory pdb.Database images.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldsync/coldsync/internal/dlp"
	"github.com/coldsync/coldsync/internal/pdb"
)

// Mode selects which of the three sync strategies SyncDatabase runs. The
// caller picks it once per session (by comparing the device's last-sync-PC
// against this host's id via dlp.Client.ReadUserInfo), except that a
// database with no local image always runs as a backup regardless of mode
// (spec.md §4.7).
type Mode int

const (
	ModeSlow Mode = iota
	ModeFast
	ModeBackup
)

// Engine drives one dlp.Client through the sync of one or more databases.
type Engine struct {
	client *dlp.Client
	logger *slog.Logger
}

// New creates an Engine over client.
func New(client *dlp.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger}
}

// SyncDatabase runs one database through the reconciliation appropriate to
// mode (forced to ModeBackup when local is nil) and returns the new local
// image to persist. archiveWriter receives every record this sync decides
// to archive; the caller is responsible for closing it once every database
// in the session has been processed through it, or sooner if each database
// gets its own archive file (spec.md gives it per-database scope).
func (e *Engine) SyncDatabase(ctx context.Context, card byte, info dlp.DBInfo, local *pdb.Database, mode Mode, archiveWriter *ArchiveWriter) (*pdb.Database, error) {
	log := e.logger.With("db", info.Name)

	if err := e.client.OpenConduit(ctx); err != nil {
		return nil, fmt.Errorf("sync: %s: open conduit: %w", info.Name, err)
	}

	effectiveMode := mode
	if local == nil {
		effectiveMode = ModeBackup
	}

	openMode := dlp.ModeRead
	if effectiveMode != ModeBackup {
		openMode = dlp.ModeRead | dlp.ModeWrite
	}
	handle, err := e.client.OpenDB(ctx, card, info.Name, openMode)
	if err != nil {
		return nil, fmt.Errorf("sync: %s: open: %w", info.Name, err)
	}
	defer func() {
		if cerr := e.client.CloseDB(ctx, handle); cerr != nil {
			log.Warn("close database failed", "error", cerr)
		}
	}()

	var result *pdb.Database
	switch effectiveMode {
	case ModeBackup:
		result, err = e.backup(ctx, handle, info, archiveWriter, log)
	case ModeSlow:
		result, err = e.slowSync(ctx, handle, info, local, archiveWriter, log)
	case ModeFast:
		result, err = e.fastSync(ctx, handle, info, local, archiveWriter, log)
	}
	if err != nil {
		return nil, err
	}

	isResourceDB := result.IsResourceDB()
	if !isResourceDB {
		if err := e.client.CleanUpDatabase(ctx, handle); err != nil {
			return nil, fmt.Errorf("sync: %s: cleanup: %w", info.Name, err)
		}
		if err := e.client.ResetSyncFlags(ctx, handle); err != nil {
			return nil, fmt.Errorf("sync: %s: reset sync flags: %w", info.Name, err)
		}
	}
	return result, nil
}

// backup downloads the entire remote database, archiving/deleting records
// as their flags direct, and returns the cleaned image to write out.
func (e *Engine) backup(ctx context.Context, handle byte, info dlp.DBInfo, aw *ArchiveWriter, log *slog.Logger) (*pdb.Database, error) {
	remote, err := pdb.Download(ctx, e.client, handle, info)
	if err != nil {
		return nil, fmt.Errorf("sync: %s: download: %w", info.Name, err)
	}
	if remote.IsResourceDB() {
		return remote, nil
	}

	kept := remote.Records[:0]
	for _, rec := range remote.Records {
		switch classify(rec.Attrs) {
		case stateArchived:
			if err := aw.Append(rec.Payload, time.Now()); err != nil {
				return nil, err
			}
			if err := e.client.DeleteRecord(ctx, handle, rec.ID, false); err != nil {
				return nil, fmt.Errorf("sync: %s: delete archived record: %w", info.Name, err)
			}
		case stateExpunge:
			if err := e.client.DeleteRecord(ctx, handle, rec.ID, false); err != nil {
				return nil, fmt.Errorf("sync: %s: delete expunged record: %w", info.Name, err)
			}
		default:
			kept = append(kept, rec.Clean())
		}
	}
	remote.Records = kept
	log.Info("backup complete", "records", len(remote.Records))
	return remote, nil
}

// slowSync implements spec.md §4.7's slow-sync: a full download, a first
// pass that synthesizes DIRTY on remote records whose content actually
// diverges from the local snapshot (the device's own DIRTY flags are
// meaningless across a host change), local-only deletions of records the
// device no longer has, then the shared per-record reconciliation.
func (e *Engine) slowSync(ctx context.Context, handle byte, info dlp.DBInfo, local *pdb.Database, aw *ArchiveWriter, log *slog.Logger) (*pdb.Database, error) {
	remote, err := pdb.Download(ctx, e.client, handle, info)
	if err != nil {
		return nil, fmt.Errorf("sync: %s: download: %w", info.Name, err)
	}
	if remote.IsResourceDB() {
		return remote, nil
	}

	for i, rec := range remote.Records {
		localRec, ok := local.FindRecord(rec.ID)
		if !ok || len(localRec.Payload) != len(rec.Payload) || string(localRec.Payload) != string(rec.Payload) {
			remote.Records[i].Attrs |= pdb.RecordDirty
		}
	}

	remoteIDs := make(map[uint32]bool, len(remote.Records))
	for _, rec := range remote.Records {
		remoteIDs[rec.ID] = true
	}
	for _, localRec := range append([]pdb.Record(nil), local.Records...) {
		if remoteIDs[localRec.ID] {
			continue
		}
		if classify(localRec.Attrs) == stateClean {
			local.RemoveRecord(localRec.ID)
		}
	}

	return e.reconcilePhase2(ctx, handle, info, remote, local, aw, log)
}

// fastSync implements spec.md §4.7's fast-sync: iterate only the records
// the device flags DIRTY, reconcile each, then propagate local-only
// changes (new, dirty or archived-for-deletion local records) up to the
// device.
func (e *Engine) fastSync(ctx context.Context, handle byte, info dlp.DBInfo, local *pdb.Database, aw *ArchiveWriter, log *slog.Logger) (*pdb.Database, error) {
	working := local

	for {
		rec, ok, err := e.client.ReadNextModifiedRec(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("sync: %s: read next modified record: %w", info.Name, err)
		}
		if !ok {
			break
		}
		remoteRec := pdb.Record{ID: rec.ID, Attrs: rec.Attrs, Payload: rec.Data}
		localRec, hasLocal := working.FindRecord(remoteRec.ID)
		action := reconcile(remoteRec, localRec, hasLocal)
		if err := e.applyAction(ctx, handle, working, action, aw); err != nil {
			return nil, fmt.Errorf("sync: %s: reconcile record %d: %w", info.Name, remoteRec.ID, err)
		}
	}

	for _, localRec := range append([]pdb.Record(nil), working.Records...) {
		switch classify(localRec.Attrs) {
		case stateDirty:
			oldID := localRec.ID
			newID, err := e.client.WriteRecord(ctx, handle, localRec.ID, localRec.Clean().Attrs, localRec.Payload)
			if err != nil {
				return nil, fmt.Errorf("sync: %s: upload dirty local record: %w", info.Name, err)
			}
			if newID != oldID {
				working.RemoveRecord(oldID)
			}
			localRec.ID = newID
			localRec.Attrs = localRec.Clean().Attrs
			working.ReplaceRecord(localRec)
		case stateArchived:
			if err := aw.Append(localRec.Payload, time.Now()); err != nil {
				return nil, err
			}
			if err := e.client.DeleteRecord(ctx, handle, localRec.ID, false); err != nil && !dlp.IsNotFound(err) {
				return nil, fmt.Errorf("sync: %s: delete archived record: %w", info.Name, err)
			}
			working.RemoveRecord(localRec.ID)
		case stateExpunge:
			working.RemoveRecord(localRec.ID)
		}
	}

	log.Info("fast sync complete", "records", len(working.Records))
	return working, nil
}

// reconcilePhase2 runs the shared per-record table over every remote
// record (used by both slow-sync and, conceptually, fast-sync's download
// side) against working, mutating working in place and returning it.
func (e *Engine) reconcilePhase2(ctx context.Context, handle byte, info dlp.DBInfo, remote *pdb.Database, working *pdb.Database, aw *ArchiveWriter, log *slog.Logger) (*pdb.Database, error) {
	for _, rec := range remote.Records {
		localRec, hasLocal := working.FindRecord(rec.ID)
		action := reconcile(rec, localRec, hasLocal)
		if err := e.applyAction(ctx, handle, working, action, aw); err != nil {
			return nil, fmt.Errorf("sync: %s: reconcile record %d: %w", info.Name, rec.ID, err)
		}
	}
	log.Info("slow sync complete", "records", len(working.Records))
	return working, nil
}

// applyAction performs the device-side and archive-side effects of one
// Action, then mutates working's in-memory record list to match.
func (e *Engine) applyAction(ctx context.Context, handle byte, working *pdb.Database, a Action, aw *ArchiveWriter) error {
	for _, payload := range a.ArchivePayloads {
		if err := aw.Append(payload, time.Now()); err != nil {
			return err
		}
	}
	if a.DeleteRemoteID != nil {
		if err := e.client.DeleteRecord(ctx, handle, *a.DeleteRemoteID, false); err != nil {
			return fmt.Errorf("delete remote record: %w", err)
		}
	}
	if a.UploadLocal != nil {
		newID, err := e.client.WriteRecord(ctx, handle, a.UploadLocal.ID, a.UploadLocal.Clean().Attrs, a.UploadLocal.Payload)
		if err != nil {
			return fmt.Errorf("upload local record: %w", err)
		}
		a.UploadLocal.ID = newID
	}

	if a.NewLocal != nil {
		if a.LocalID != nil && *a.LocalID != a.NewLocal.ID {
			working.RemoveRecord(*a.LocalID)
		}
		working.ReplaceRecord(*a.NewLocal)
	} else if a.DeleteLocal {
		id := a.LocalID
		if id == nil {
			id = a.DeleteRemoteID
		}
		if id != nil {
			working.RemoveRecord(*id)
		}
	}
	if a.InsertExtra != nil {
		working.Records = append(working.Records, *a.InsertExtra)
	}
	return nil
}
