package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingMovesMissingDatabasesToAttic(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	attic := filepath.Join(dir, "attic")
	require.NoError(t, os.MkdirAll(backup, 0o700))

	require.NoError(t, os.WriteFile(filepath.Join(backup, "MemoDB.pdb"), []byte("keep"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(backup, "Old.pdb"), []byte("stale"), 0o600))

	onDevice := map[string]bool{"MemoDB": true}
	require.NoError(t, Housekeeping(backup, attic, onDevice))

	_, err := os.Stat(filepath.Join(backup, "MemoDB.pdb"))
	assert.NoError(t, err, "database still on the device stays in backup")

	_, err = os.Stat(filepath.Join(backup, "Old.pdb"))
	assert.True(t, os.IsNotExist(err), "database no longer on the device is moved out of backup")

	_, err = os.Stat(filepath.Join(attic, "Old.pdb"))
	assert.NoError(t, err, "moved file lands in attic")
}

func TestHousekeepingAvoidsAtticCollisions(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	attic := filepath.Join(dir, "attic")
	require.NoError(t, os.MkdirAll(backup, 0o700))
	require.NoError(t, os.MkdirAll(attic, 0o700))

	require.NoError(t, os.WriteFile(filepath.Join(attic, "Old.pdb"), []byte("previous"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(backup, "Old.pdb"), []byte("stale"), 0o600))

	require.NoError(t, Housekeeping(backup, attic, map[string]bool{}))

	_, err := os.Stat(filepath.Join(attic, "Old~0.pdb"))
	assert.NoError(t, err, "collision is resolved with an ~N suffix, starting at ~0")
}

func TestHousekeepingFailsAfterSuffixesExhausted(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	attic := filepath.Join(dir, "attic")
	require.NoError(t, os.MkdirAll(backup, 0o700))
	require.NoError(t, os.MkdirAll(attic, 0o700))

	require.NoError(t, os.WriteFile(filepath.Join(attic, "Old.pdb"), []byte("previous"), 0o600))
	for n := 0; n <= maxAtticSuffix; n++ {
		name := filepath.Join(attic, fmt.Sprintf("Old~%d.pdb", n))
		require.NoError(t, os.WriteFile(name, []byte("previous"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(backup, "Old.pdb"), []byte("stale"), 0o600))

	err := Housekeeping(backup, attic, map[string]bool{})
	require.Error(t, err, "every attic suffix ~0..~99 is already taken, so the move must fail rather than loop forever")

	_, statErr := os.Stat(filepath.Join(backup, "Old.pdb"))
	assert.NoError(t, statErr, "file stays in place when it could not be moved")
}
