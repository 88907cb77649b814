package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// InsertMessage inserts a new record row under its pre-allocated id.
func (t *Tx) InsertMessage(message Message) error {
	if message.ID == 0 {
		return errors.New("message id is required")
	}
	if message.Author == "" {
		return errors.New("author is required")
	}

	id, err := toInt64(message.ID)
	if err != nil {
		return err
	}
	createdAt, err := toInt64(message.CreatedAt)
	if err != nil {
		return err
	}

	isRead := 0
	if message.IsRead {
		isRead = 1
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO messages (
			id,
			author,
			recipient,
			content,
			created_at,
			is_read
		) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		message.Author,
		nullString(message.Recipient),
		message.Content,
		createdAt,
		isRead,
	)
	if err != nil {
		return fmt.Errorf("insert message %d: %w", message.ID, err)
	}

	return nil
}

// GetMessage fetches one record by id.
func (t *Tx) GetMessage(id uint64) (*Message, error) {
	key, err := toInt64(id)
	if err != nil {
		return nil, ErrNotFound
	}

	row := t.tx.QueryRowContext(t.ctx,
		`SELECT
			id,
			author,
			recipient,
			content,
			created_at,
			is_read
		FROM messages
		WHERE id = ?`,
		key,
	)

	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return message, nil
}

// UpdateMessageContent replaces the content of one record.
func (t *Tx) UpdateMessageContent(id uint64, content string) error {
	return t.execOneMessage(
		id,
		"update content",
		`UPDATE messages SET content = ? WHERE id = ?`,
		content,
	)
}

// MarkMessageRead sets is_read for one record.
func (t *Tx) MarkMessageRead(id uint64) error {
	return t.execOneMessage(
		id,
		"mark read",
		`UPDATE messages SET is_read = 1 WHERE id = ?`,
	)
}

// DeleteMessage removes one record.
func (t *Tx) DeleteMessage(id uint64) error {
	return t.execOneMessage(
		id,
		"delete",
		`DELETE FROM messages WHERE id = ?`,
	)
}

// CountLiveMessages returns the number of records currently stored.
func (t *Tx) CountLiveMessages() (uint64, error) {
	var count int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(1) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return toUint64(count), nil
}

func (t *Tx) execOneMessage(id uint64, op, query string, args ...any) error {
	key, err := toInt64(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := t.tx.ExecContext(t.ctx, query, append(args, key)...)
	if err != nil {
		return fmt.Errorf("%s for message %d: %w", op, id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for %s %d: %w", op, id, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		message   Message
		id        int64
		createdAt int64
		recipient sql.NullString
		isRead    int
	)

	if err := row.Scan(
		&id,
		&message.Author,
		&recipient,
		&message.Content,
		&createdAt,
		&isRead,
	); err != nil {
		return nil, err
	}

	message.ID = toUint64(id)
	message.CreatedAt = toUint64(createdAt)
	message.IsRead = isRead == 1
	if recipient.Valid {
		message.Recipient = recipient.String
	}

	return &message, nil
}
