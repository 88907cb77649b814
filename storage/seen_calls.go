package storage

import (
	"errors"
	"fmt"
	"strings"
)

// InsertSeenCall records a call id used for replay protection.
func (t *Tx) InsertSeenCall(callID string, height uint64) error {
	if strings.TrimSpace(callID) == "" {
		return errors.New("call_id is required")
	}
	h, err := toInt64(height)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO seen_calls (call_id, height, received_at)
		VALUES (?, ?, ?)`,
		callID,
		h,
		nowUnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert seen call %q: %w", callID, err)
	}

	return nil
}

// HasSeenCall returns true if a call id has already been executed.
func (t *Tx) HasSeenCall(callID string) (bool, error) {
	if strings.TrimSpace(callID) == "" {
		return false, errors.New("call_id is required")
	}

	var exists int
	if err := t.tx.QueryRowContext(t.ctx,
		`SELECT EXISTS(SELECT 1 FROM seen_calls WHERE call_id = ?)`,
		callID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check seen call %q: %w", callID, err)
	}

	return exists == 1, nil
}

// PruneSeenCalls removes seen_calls rows received before cutoff (unix millis).
func (t *Tx) PruneSeenCalls(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM seen_calls WHERE received_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune seen calls: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for seen call prune: %w", err)
	}

	return rowsAffected, nil
}
