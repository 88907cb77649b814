package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// AssetBalance returns an account's token balance, zero for unknown accounts.
func (t *Tx) AssetBalance(account string) (uint64, error) {
	if account == "" {
		return 0, errors.New("account is required")
	}

	var amount int64
	err := t.tx.QueryRowContext(t.ctx, `SELECT amount FROM asset_balances WHERE account = ?`, account).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read asset balance for %q: %w", account, err)
	}
	return toUint64(amount), nil
}

// SetAssetBalance upserts an account's token balance.
func (t *Tx) SetAssetBalance(account string, amount uint64) error {
	if account == "" {
		return errors.New("account is required")
	}
	stored, err := toInt64(amount)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO asset_balances (account, amount)
		VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET amount = excluded.amount`,
		account,
		stored,
	)
	if err != nil {
		return fmt.Errorf("set asset balance for %q: %w", account, err)
	}
	return nil
}

// InsertTransfer appends one transfer event.
func (t *Tx) InsertTransfer(event TransferEvent) error {
	if event.EventID == "" {
		return errors.New("event_id is required")
	}
	if event.Asset == "" {
		return errors.New("asset is required")
	}
	if event.Sender == "" || event.Recipient == "" {
		return errors.New("sender and recipient are required")
	}
	amount, err := toInt64(event.Amount)
	if err != nil {
		return err
	}
	height, err := toInt64(event.Height)
	if err != nil {
		return err
	}
	if event.Timestamp == 0 {
		event.Timestamp = nowUnixMilli()
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO asset_transfers (
			event_id,
			call_id,
			asset,
			amount,
			sender,
			recipient,
			height,
			timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.CallID,
		event.Asset,
		amount,
		event.Sender,
		event.Recipient,
		height,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %q: %w", event.EventID, err)
	}
	return nil
}

// ListTransfers returns transfer events ordered by height then insertion time.
func (t *Tx) ListTransfers(filter TransferFilter) ([]TransferEvent, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT
			event_id,
			call_id,
			asset,
			amount,
			sender,
			recipient,
			height,
			timestamp
		FROM asset_transfers
		WHERE 1 = 1`)

	args := make([]any, 0, 5)
	if filter.CallID != "" {
		query.WriteString(` AND call_id = ?`)
		args = append(args, filter.CallID)
	}
	if filter.Account != "" {
		query.WriteString(` AND (sender = ? OR recipient = ?)`)
		args = append(args, filter.Account, filter.Account)
	}
	if filter.Height != nil {
		height, err := toInt64(*filter.Height)
		if err != nil {
			return nil, err
		}
		query.WriteString(` AND height = ?`)
		args = append(args, height)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query.WriteString(` ORDER BY height ASC, timestamp ASC, event_id ASC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := t.tx.QueryContext(t.ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	events := make([]TransferEvent, 0)
	for rows.Next() {
		var (
			event  TransferEvent
			amount int64
			height int64
		)
		if err := rows.Scan(
			&event.EventID,
			&event.CallID,
			&event.Asset,
			&amount,
			&event.Sender,
			&event.Recipient,
			&height,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		event.Amount = toUint64(amount)
		event.Height = toUint64(height)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}

	return events, nil
}
