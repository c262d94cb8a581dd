package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	require.NoError(t, err)
	assert.Equal(t, Default().Device, cfg.Device)
	assert.Equal(t, Default().Speed, cfg.Speed)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coldsyncrc")
	contents := "[coldsync]\ndevice = /dev/ttyS1\nspeed = 115200\nhostid = 42\nautobackup = false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.Device)
	assert.Equal(t, 115200, cfg.Speed)
	assert.Equal(t, uint32(42), cfg.HostID)
	assert.False(t, cfg.AutoBackup)
}

func TestDirHelpers(t *testing.T) {
	cfg := &Config{PalmDir: "/home/user/.palm"}
	assert.Equal(t, "/home/user/.palm/backup", cfg.BackupDir())
	assert.Equal(t, "/home/user/.palm/archive", cfg.ArchiveDir())
	assert.Equal(t, "/home/user/.palm/attic", cfg.AtticDir())
	assert.Equal(t, "/home/user/.palm/install", cfg.InstallDir())
}
