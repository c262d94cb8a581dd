package sync

import (
	"fmt"
	"os"
	"path/filepath"
)

// Housekeeping moves every file in backupDir whose database name (the file
// stem) is not in onDevice to atticDir, renaming with an ~N suffix to
// avoid collisions (spec.md §4.8). Files are moved, never deleted, so a
// wiped or replaced device never destroys a user's only backup.
func Housekeeping(backupDir, atticDir string, onDevice map[string]bool) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sync: housekeeping: read %s: %w", backupDir, err)
	}
	if err := os.MkdirAll(atticDir, 0o700); err != nil {
		return fmt.Errorf("sync: housekeeping: create %s: %w", atticDir, err)
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		ext := filepath.Ext(name)
		stem := name[:len(name)-len(ext)]
		if onDevice[stem] {
			continue
		}
		if err := moveToAttic(filepath.Join(backupDir, name), atticDir, name); err != nil {
			return err
		}
	}
	return nil
}

// maxAtticSuffix is the last suffix moveToAttic will try (spec.md §8
// scenario 6: "~0, ~1, ... up to ~99 before failing with a log line").
const maxAtticSuffix = 99

func moveToAttic(srcPath, atticDir, name string) error {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]

	dest := filepath.Join(atticDir, name)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return rename(srcPath, dest)
	}

	for n := 0; n <= maxAtticSuffix; n++ {
		dest = filepath.Join(atticDir, fmt.Sprintf("%s~%d%s", stem, n, ext))
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return rename(srcPath, dest)
		}
	}
	return fmt.Errorf("sync: housekeeping: %s: all attic suffixes ~0..~%d exhausted", name, maxAtticSuffix)
}

func rename(srcPath, dest string) error {
	if err := os.Rename(srcPath, dest); err != nil {
		return fmt.Errorf("sync: housekeeping: move %s to attic: %w", srcPath, err)
	}
	return nil
}
