package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"msgboard/storage"
)

// Field selects one projection of a message.
type Field string

const (
	FieldAuthor    Field = "author"
	FieldSender    Field = "sender"
	FieldRecipient Field = "recipient"
	FieldContent   Field = "content"
	FieldTime      Field = "time"
	FieldRead      Field = "read"
)

// AddMessage posts content to the board as actor and returns the new id.
func (r *Registry) AddMessage(ctx context.Context, actor, content string) (uint64, error) {
	if r.cfg.Variant != VariantBoard {
		return 0, ErrUnsupported
	}
	return r.create(ctx, actor, "", content)
}

// SendMessage sends content from actor to recipient and returns the new id.
func (r *Registry) SendMessage(ctx context.Context, actor, recipient, content string) (uint64, error) {
	if r.cfg.Variant != VariantDirect {
		return 0, ErrUnsupported
	}
	if recipient == "" {
		return 0, errorf(CodeInvalidRecipient, "recipient is required")
	}
	if recipient == actor {
		return 0, errorf(CodeInvalidRecipient, "cannot send a message to yourself")
	}
	return r.create(ctx, actor, recipient, content)
}

// create allocates the next id, stores the record, bumps the counter,
// collects the fee and records the snapshot, all in one transaction.
func (r *Registry) create(ctx context.Context, actor, recipient, content string) (uint64, error) {
	if actor == "" {
		return 0, errors.New("registry: actor is required")
	}
	if err := r.validateContent(content); err != nil {
		return 0, err
	}

	var (
		id     uint64
		height uint64
	)
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		height, err = r.heights.BlockHeight(ctx, tx)
		if err != nil {
			return fmt.Errorf("read block height: %w", err)
		}

		count, err := tx.Var(varMessageCount)
		if err != nil {
			return err
		}
		next, ok := checkedAdd(count, 1)
		if !ok {
			return ErrOverflow
		}

		if err := tx.InsertMessage(storage.Message{
			ID:        next,
			Author:    actor,
			Recipient: recipient,
			Content:   content,
			CreatedAt: height,
		}); err != nil {
			return err
		}
		if err := tx.SetVar(varMessageCount, next); err != nil {
			return err
		}
		if err := r.collectFee(ctx, tx, actor); err != nil {
			return err
		}
		if err := r.recordSnapshot(tx, height, next); err != nil {
			return err
		}

		id = next
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.WithFields(logrus.Fields{
		"message_id": id,
		"author":     actor,
		"height":     height,
	}).Debug("message created")
	return id, nil
}

// GetMessage returns the record with id; ok is false when it is absent or deleted.
func (r *Registry) GetMessage(ctx context.Context, id uint64) (Message, bool, error) {
	message, err := r.lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return message, true, nil
}

// MessageField returns a single projection of message id.
func (r *Registry) MessageField(ctx context.Context, id uint64, field Field) (any, error) {
	switch field {
	case FieldAuthor, FieldSender, FieldContent, FieldTime:
	case FieldRecipient, FieldRead:
		if r.cfg.Variant != VariantDirect {
			return nil, ErrUnsupported
		}
	default:
		return nil, fmt.Errorf("registry: unknown message field %q", field)
	}

	message, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	switch field {
	case FieldAuthor, FieldSender:
		return message.Author, nil
	case FieldRecipient:
		return message.Recipient, nil
	case FieldContent:
		return message.Content, nil
	case FieldTime:
		return message.CreatedAt, nil
	default:
		return message.Read, nil
	}
}

// MessageAuthor returns the author of message id.
func (r *Registry) MessageAuthor(ctx context.Context, id uint64) (string, error) {
	message, err := r.lookup(ctx, id)
	return message.Author, err
}

// MessageSender is MessageAuthor under its direct-messaging name.
func (r *Registry) MessageSender(ctx context.Context, id uint64) (string, error) {
	return r.MessageAuthor(ctx, id)
}

// MessageRecipient returns the addressee of direct message id.
func (r *Registry) MessageRecipient(ctx context.Context, id uint64) (string, error) {
	if r.cfg.Variant != VariantDirect {
		return "", ErrUnsupported
	}
	message, err := r.lookup(ctx, id)
	return message.Recipient, err
}

// MessageContent returns the current content of message id.
func (r *Registry) MessageContent(ctx context.Context, id uint64) (string, error) {
	message, err := r.lookup(ctx, id)
	return message.Content, err
}

// MessageTime returns the block height message id was created at.
func (r *Registry) MessageTime(ctx context.Context, id uint64) (uint64, error) {
	message, err := r.lookup(ctx, id)
	return message.CreatedAt, err
}

// IsMessageAuthor reports whether principal wrote message id. Absent ids yield false.
func (r *Registry) IsMessageAuthor(ctx context.Context, id uint64, principal string) (bool, error) {
	message, ok, err := r.GetMessage(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return IsAuthor(message, principal), nil
}

// MessageCount returns the number of messages ever created.
func (r *Registry) MessageCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		count, err = tx.Var(varMessageCount)
		return err
	})
	return count, err
}

// EditMessage replaces the content of message id. Only the author may edit.
func (r *Registry) EditMessage(ctx context.Context, actor string, id uint64, content string) error {
	if err := r.validateContent(content); err != nil {
		return err
	}

	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		message, err := loadMessage(tx, id)
		if err != nil {
			return err
		}
		if !r.canEdit(message, actor) {
			return ErrNotAuthor
		}
		return tx.UpdateMessageContent(id, content)
	})
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"message_id": id, "actor": actor}).Debug("message edited")
	return nil
}

// DeleteMessage removes message id. The fee already paid is not refunded
// and the counter is not decremented.
func (r *Registry) DeleteMessage(ctx context.Context, actor string, id uint64) error {
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		message, err := loadMessage(tx, id)
		if err != nil {
			return err
		}
		if !r.canDelete(message, actor) {
			return ErrNotAuthorized
		}
		return tx.DeleteMessage(id)
	})
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"message_id": id, "actor": actor}).Debug("message deleted")
	return nil
}

// MarkRead flags direct message id as read. Only the recipient may do so;
// repeating the call succeeds without further effect.
func (r *Registry) MarkRead(ctx context.Context, actor string, id uint64) error {
	if r.cfg.Variant != VariantDirect {
		return ErrUnsupported
	}

	return r.store.Update(ctx, func(tx *storage.Tx) error {
		message, err := loadMessage(tx, id)
		if err != nil {
			return err
		}
		if !r.canMarkRead(message, actor) {
			return ErrNotRecipient
		}
		if message.Read {
			return nil
		}
		return tx.MarkMessageRead(id)
	})
}

func (r *Registry) lookup(ctx context.Context, id uint64) (Message, error) {
	var message Message
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		message, err = loadMessage(tx, id)
		return err
	})
	return message, err
}

func loadMessage(tx *storage.Tx, id uint64) (Message, error) {
	row, err := tx.GetMessage(id)
	if errors.Is(err, storage.ErrNotFound) {
		return Message{}, notFound(id)
	}
	if err != nil {
		return Message{}, err
	}
	return fromRow(row), nil
}
