// Command coldsync runs one PDA synchronization session against a serial
// device: handshake, enumerate the device's databases, back each one up
// (or sync it against an existing local image), then sweep the backup
// directory for anything the device no longer has and end the session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/coldsync/coldsync"
	"github.com/coldsync/coldsync/internal/config"
	"github.com/coldsync/coldsync/internal/dlp"
	"github.com/coldsync/coldsync/internal/pdb"
	syncengine "github.com/coldsync/coldsync/internal/sync"
)

func main() {
	var (
		device     = flag.String("device", "", "serial device path (overrides coldsyncrc)")
		speed      = flag.Int("speed", 0, "requested line speed in bps (overrides coldsyncrc)")
		configPath = flag.String("config", "", "path to coldsyncrc (default ~/.palm/coldsyncrc)")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*device, *speed, *configPath, logger); err != nil {
		logger.Error("sync session failed", "error", err)
		os.Exit(1)
	}
}

func run(device string, speed int, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	home, _ := os.UserHomeDir()
	if configPath == "" {
		configPath = filepath.Join(home, ".palm", "coldsyncrc")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if device != "" {
		cfg.Device = device
	}
	if speed != 0 {
		cfg.Speed = speed
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare palm directory: %w", err)
	}

	pconn, err := coldsync.ConnectAndHandshake(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("handshake complete", "bps", pconn.Speed())

	reason := dlp.TermNormal
	defer func() {
		endCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pconn.EndSession(endCtx, reason); err != nil {
			logger.Warn("end session failed", "error", err)
		}
	}()

	mode, err := pconn.DetermineMode(ctx, cfg.HostID)
	if err != nil {
		return fmt.Errorf("determine sync mode: %w", err)
	}

	infos, err := pconn.ListDatabases(ctx, 0, dlp.DBListRAM)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}

	onDevice := make(map[string]bool, len(infos))
	for _, info := range infos {
		onDevice[info.Name] = true

		if err := syncOneDatabase(ctx, pconn, cfg, mode, info, logger); err != nil {
			if dlp.IsDatabaseScoped(err) {
				logger.Warn("skipping database", "db", info.Name, "error", err)
				continue
			}
			reason = dlp.TermOther
			return fmt.Errorf("sync %s: %w", info.Name, err)
		}
	}

	if err := syncengine.Housekeeping(cfg.BackupDir(), cfg.AtticDir(), onDevice); err != nil {
		logger.Warn("housekeeping failed", "error", err)
	}
	return nil
}

func syncOneDatabase(ctx context.Context, pconn *coldsync.PConnection, cfg *config.Config, mode syncengine.Mode, info dlp.DBInfo, logger *slog.Logger) error {
	ext := ".pdb"
	if info.Attributes&pdb.AttrResDB != 0 {
		ext = ".prc"
	}
	localPath := filepath.Join(cfg.BackupDir(), info.Name+ext)

	local, err := pdb.ReadFile(localPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read local image: %w", err)
		}
		local = nil
	}

	archivePath := filepath.Join(cfg.ArchiveDir(), info.Name+ext)
	aw := syncengine.NewArchiveWriter(archivePath, pdb.DatabaseFromInfo(info))
	defer aw.Close()

	newImage, err := pconn.SyncDatabase(ctx, 0, info, local, mode, aw)
	if err != nil {
		return err
	}

	if err := pdb.WriteFile(localPath, newImage); err != nil {
		return fmt.Errorf("write local image: %w", err)
	}
	logger.Info("database synced", "db", info.Name, "records", len(newImage.Records)+len(newImage.Resources))
	return nil
}
