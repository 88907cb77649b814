package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Var returns a named unsigned scalar, or zero if it was never set.
func (t *Tx) Var(name string) (uint64, error) {
	if name == "" {
		return 0, errors.New("var name is required")
	}

	var value int64
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM data_vars WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read var %q: %w", name, err)
	}
	return toUint64(value), nil
}

// SetVar upserts a named unsigned scalar.
func (t *Tx) SetVar(name string, value uint64) error {
	if name == "" {
		return errors.New("var name is required")
	}
	stored, err := toInt64(value)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO data_vars (name, value)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name,
		stored,
	)
	if err != nil {
		return fmt.Errorf("set var %q: %w", name, err)
	}
	return nil
}
