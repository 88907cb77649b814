package registry

import (
	"context"
	"errors"

	"msgboard/storage"
)

// Snapshot is the message count recorded at a block height.
type Snapshot struct {
	Height uint64
	Count  uint64
}

func (r *Registry) recordSnapshot(tx *storage.Tx, height, count uint64) error {
	return tx.PutSnapshot(height, count)
}

// CountAt returns how many messages had been created as of height: the
// snapshot with the greatest height <= height, or zero before the first one.
// Heights beyond the chain tip return the latest snapshot.
func (r *Registry) CountAt(ctx context.Context, height uint64) (uint64, error) {
	var count uint64
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		snapshot, err := tx.SnapshotAtOrBefore(height)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		count = snapshot.Count
		return nil
	})
	return count, err
}

// Snapshots returns the full history in ascending height order.
func (r *Registry) Snapshots(ctx context.Context) ([]Snapshot, error) {
	var rows []storage.Snapshot
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		rows, err = tx.ListSnapshots()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, Snapshot{Height: row.Height, Count: row.Count})
	}
	return out, nil
}
