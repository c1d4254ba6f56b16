// Package backup implements the Watchdog's on-disk order journal: a
// gob-encoded snapshot rewritten atomically on every mutation so a crashed
// node can recover its in-flight orders on restart (spec §5).
package backup

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slavakukuyev/elevator-fleet/internal/domain"
)

// Record is one watched order as persisted to disk.
type Record struct {
	Order    domain.Order
	Deadline int64 // unix nanos; -1 marks a standby entry
}

// Snapshot is the full on-disk watchdog state.
type Snapshot struct {
	Records []Record
}

// Write atomically replaces the file at path with snapshot, using the
// write-new-file-then-rename idiom so a crash mid-write never corrupts the
// previous, still-valid snapshot.
func Write(path string, snapshot Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp backup file: %w", err)
	}
	tmpName := tmp.Name()

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encoding watchdog snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing watchdog snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing watchdog snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming watchdog snapshot into place: %w", err)
	}
	return nil
}

// Read loads the snapshot at path. A missing file is not an error: it means
// this node has never backed up anything yet.
func Read(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("opening watchdog backup: %w", err)
	}
	defer f.Close()

	var snapshot Snapshot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&snapshot); err != nil {
		return Snapshot{}, domain.NewInternalError("watchdog backup file is corrupt", err).WithContext("path", path)
	}
	return snapshot, nil
}
