// Package config loads ColdSync's desktop-side session parameters from an
// ini file, the way the teacher's pkg/od parses .eds device profiles with
// gopkg.in/ini.v1.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Config holds the parameters a sync session needs that are not part of
// the wire protocol or database format themselves: where the serial line
// is, what speed to request, and where the per-user directory tree lives.
type Config struct {
	Device       string
	Speed        int
	PalmDir      string
	HostID       uint32
	AutoBackup   bool
}

// Default returns the configuration ColdSync falls back to when no ini
// file is present: the conventional ~/.palm tree and a conservative
// speed. CMP requests this same rate; it does not search the speed table
// for a faster one.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Device:     "/dev/ttyUSB0",
		Speed:      57600,
		PalmDir:    filepath.Join(home, ".palm"),
		HostID:     0,
		AutoBackup: true,
	}
}

// Load reads path (typically ~/.palm/coldsyncrc) over Default()'s values;
// a missing file is not an error, matching how the core treats absent
// AppInfo/sort blocks as normal rather than fatal.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	sec := f.Section("coldsync")

	if v := sec.Key("device").String(); v != "" {
		cfg.Device = v
	}
	if v := sec.Key("speed").MustInt(0); v != 0 {
		cfg.Speed = v
	}
	if v := sec.Key("palmdir").String(); v != "" {
		cfg.PalmDir = v
	}
	cfg.HostID = uint32(sec.Key("hostid").MustUint64(uint64(cfg.HostID)))
	cfg.AutoBackup = sec.Key("autobackup").MustBool(cfg.AutoBackup)

	return cfg, nil
}

// BackupDir, ArchiveDir, AtticDir and InstallDir are the fixed per-user
// subdirectories the core's collaborators are expected to maintain
// (spec.md §6).
func (c *Config) BackupDir() string  { return filepath.Join(c.PalmDir, "backup") }
func (c *Config) ArchiveDir() string { return filepath.Join(c.PalmDir, "archive") }
func (c *Config) AtticDir() string   { return filepath.Join(c.PalmDir, "attic") }
func (c *Config) InstallDir() string { return filepath.Join(c.PalmDir, "install") }

// EnsureDirs creates the per-user directory tree if it does not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.BackupDir(), c.ArchiveDir(), c.AtticDir(), c.InstallDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
