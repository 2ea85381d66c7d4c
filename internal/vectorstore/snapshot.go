package vectorstore

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"time"
)

// snapshot is the persisted layout of the local store: the three parallel
// arrays plus header fields, all index-aligned by position, gob-encoded
// inside a gzip stream.
type snapshot struct {
	Vectors        [][]float32
	Documents      []string
	Metadata       []map[string]string
	EmbeddingModel string
	Dimension      int
	LastUpdated    time.Time
}

// writeSnapshot serializes snap to path atomically (tmp file + rename), so
// a crash mid-write never leaves a truncated snapshot behind.
func writeSnapshot(path string, snap snapshot) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(snap); err != nil {
		_ = gz.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// readSnapshot deserializes the snapshot at path. Returns the underlying
// os.IsNotExist error when the file is absent, and an ErrSnapshotCorrupt
// wrapper for anything unreadable.
func readSnapshot(path string) (snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return snapshot{}, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	defer gz.Close()

	var snap snapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	if len(snap.Vectors) != len(snap.Documents) || len(snap.Documents) != len(snap.Metadata) {
		return snapshot{}, fmt.Errorf("%w: parallel arrays misaligned (%d/%d/%d)",
			ErrSnapshotCorrupt, len(snap.Vectors), len(snap.Documents), len(snap.Metadata))
	}

	// Older snapshots may carry nil metadata maps.
	for i, m := range snap.Metadata {
		if m == nil {
			snap.Metadata[i] = make(map[string]string)
		}
	}
	return snap, nil
}
