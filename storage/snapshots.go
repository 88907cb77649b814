package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// PutSnapshot records the message count observed at a height, replacing any
// earlier value for the same height.
func (t *Tx) PutSnapshot(height, count uint64) error {
	h, err := toInt64(height)
	if err != nil {
		return err
	}
	c, err := toInt64(count)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO count_snapshots (height, message_count)
		VALUES (?, ?)
		ON CONFLICT(height) DO UPDATE SET message_count = excluded.message_count`,
		h,
		c,
	)
	if err != nil {
		return fmt.Errorf("put snapshot at height %d: %w", height, err)
	}
	return nil
}

// SnapshotAtOrBefore returns the snapshot with the greatest height <= height.
// The lookup walks the primary-key B-tree, so it is logarithmic in the number
// of snapshots. ErrNotFound means no snapshot exists at or before height.
func (t *Tx) SnapshotAtOrBefore(height uint64) (Snapshot, error) {
	h := int64(MaxValue)
	if height < MaxValue {
		h = int64(height)
	}

	var (
		gotHeight int64
		gotCount  int64
	)
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT height, message_count
		FROM count_snapshots
		WHERE height <= ?
		ORDER BY height DESC
		LIMIT 1`,
		h,
	).Scan(&gotHeight, &gotCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot at or before %d: %w", height, err)
	}

	return Snapshot{Height: toUint64(gotHeight), Count: toUint64(gotCount)}, nil
}

// ListSnapshots returns every snapshot in ascending height order.
func (t *Tx) ListSnapshots() ([]Snapshot, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT height, message_count
		FROM count_snapshots
		ORDER BY height ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var height, count int64
		if err := rows.Scan(&height, &count); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, Snapshot{Height: toUint64(height), Count: toUint64(count)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}
