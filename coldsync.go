package coldsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldsync/coldsync/internal/cmp"
	"github.com/coldsync/coldsync/internal/config"
	"github.com/coldsync/coldsync/internal/dlp"
	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/padp"
	"github.com/coldsync/coldsync/internal/pdb"
	"github.com/coldsync/coldsync/internal/slp"
	syncengine "github.com/coldsync/coldsync/internal/sync"
)

// dlpPort and dlpSocket are the SLP port/address pair every ColdSync
// session addresses DLP traffic through; real devices always speak DLP
// over PADP on this fixed port (spec.md §4.2/§4.5 give the wire layout,
// not the port number, which is a fixed convention of the stack).
const dlpPort byte = 3

// PConnection owns one sync session's full layer stack -- the serial
// port, SLP, PADP, the DLP client, and the sync engine built on top --
// from the moment a file descriptor is handed to ConnectAndHandshake
// until EndSession tears it down in reverse order (spec.md §3).
type PConnection struct {
	port   octet.Port
	slp    *slp.Layer
	padp   *padp.Layer
	dlp    *dlp.Client
	engine *syncengine.Engine
	logger *slog.Logger
	speed  int
}

// NewPConnection builds the layer stack over an already-open port. Exposed
// directly (rather than only via ConnectAndHandshake) so tests can drive
// the stack over an in-memory octet.NewMemPortPair.
func NewPConnection(port octet.Port, logger *slog.Logger) *PConnection {
	if logger == nil {
		logger = slog.Default()
	}
	local := slp.Address{Protocol: slp.ProtoPADP, Port: dlpPort}
	remote := slp.Address{Protocol: slp.ProtoPADP, Port: dlpPort}

	slpLayer := slp.New(port, local, logger)
	padpLayer := padp.New(slpLayer, remote, logger)
	dlpClient := dlp.New(padpLayer, logger)

	return &PConnection{
		port:   port,
		slp:    slpLayer,
		padp:   padpLayer,
		dlp:    dlpClient,
		engine: syncengine.New(dlpClient, logger),
		logger: logger,
	}
}

// ConnectAndHandshake opens the serial device named by cfg and runs the
// CMP handshake, returning a ready-to-use PConnection at the negotiated
// speed. This is the first of the core's four external entry points
// (spec.md §6).
func ConnectAndHandshake(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*PConnection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port, err := octet.OpenSerial(cfg.Device, cfg.Speed)
	if err != nil {
		return nil, fmt.Errorf("coldsync: open %s: %w", cfg.Device, err)
	}

	pconn := NewPConnection(port, logger)
	negotiated, err := cmp.Handshake(ctx, pconn.padp, port, cfg.Speed, cfg.Speed, logger)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("coldsync: handshake: %w", err)
	}
	pconn.speed = negotiated
	return pconn, nil
}

// Client exposes the underlying DLP client for collaborators that need to
// issue commands the core's higher-level helpers don't wrap directly.
func (pc *PConnection) Client() *dlp.Client { return pc.dlp }

// Speed returns the bps negotiated during the handshake.
func (pc *PConnection) Speed() int { return pc.speed }

// DetermineMode reads the device's HotSync user info and compares its
// last-sync-PC against hostID to decide whether every database in this
// session should run fast-sync or slow-sync; a database with no local
// image still always runs as a backup regardless of this result
// (spec.md §4.7, enforced by Engine.SyncDatabase).
func (pc *PConnection) DetermineMode(ctx context.Context, hostID uint32) (syncengine.Mode, error) {
	info, err := pc.dlp.ReadUserInfo(ctx)
	if err != nil {
		return syncengine.ModeSlow, fmt.Errorf("coldsync: read user info: %w", err)
	}
	if info.LastSyncPC == hostID {
		return syncengine.ModeFast, nil
	}
	return syncengine.ModeSlow, nil
}

// ListDatabases enumerates every database on card matching flags
// (dlp.DBListRAM / dlp.DBListROM), paging through ReadDBList until the
// device reports NotFound.
func (pc *PConnection) ListDatabases(ctx context.Context, card byte, flags byte) ([]dlp.DBInfo, error) {
	var all []dlp.DBInfo
	start := uint16(0)
	for {
		infos, err := pc.dlp.ReadDBList(ctx, card, flags, start)
		if dlp.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("coldsync: list databases: %w", err)
		}
		if len(infos) == 0 {
			break
		}
		all = append(all, infos...)
		start = infos[len(infos)-1].Index + 1
	}
	return all, nil
}

// SyncDatabase is the core's second external entry point (spec.md §6):
// drive one database through backup/slow-sync/fast-sync and return the
// new local image to persist.
func (pc *PConnection) SyncDatabase(ctx context.Context, card byte, info dlp.DBInfo, localImage *pdb.Database, mode syncengine.Mode, archiveWriter *syncengine.ArchiveWriter) (*pdb.Database, error) {
	return pc.engine.SyncDatabase(ctx, card, info, localImage, mode, archiveWriter)
}

// UploadFile is the core's third external entry point (spec.md §6):
// create db on the device from a local PDB image (used for first-time
// installs out of the install/ directory, not for databases already
// known to the device).
func (pc *PConnection) UploadFile(ctx context.Context, card byte, db *pdb.Database) (byte, error) {
	handle, err := pdb.Upload(ctx, pc.dlp, card, db)
	if err != nil {
		return 0, fmt.Errorf("coldsync: upload %s: %w", db.Name, err)
	}
	return handle, nil
}

// EndSession is the core's fourth external entry point (spec.md §6):
// tell the device the session is over and tear the layer stack down in
// reverse order (DLP has no teardown state of its own; PADP and SLP are
// stateless once the underlying port closes).
func (pc *PConnection) EndSession(ctx context.Context, reason byte) error {
	endErr := pc.dlp.EndOfSync(ctx, reason)
	closeErr := pc.port.Close()
	if endErr != nil {
		return fmt.Errorf("coldsync: end of sync: %w", endErr)
	}
	if closeErr != nil {
		return fmt.Errorf("coldsync: close port: %w", closeErr)
	}
	return nil
}
