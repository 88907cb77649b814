package storage

import (
	"errors"
	"testing"
)

func TestMessageCRUD(t *testing.T) {
	store := newTestStore(t)

	mustUpdate(t, store, func(tx *Tx) error {
		if err := tx.InsertMessage(Message{
			ID:        1,
			Author:    "alice",
			Content:   "board post",
			CreatedAt: 7,
		}); err != nil {
			return err
		}
		return tx.InsertMessage(Message{
			ID:        2,
			Author:    "alice",
			Recipient: "bob",
			Content:   "direct note",
			CreatedAt: 8,
		})
	})

	mustView(t, store, func(tx *Tx) error {
		first, err := tx.GetMessage(1)
		if err != nil {
			t.Fatalf("GetMessage(1) failed: %v", err)
		}
		if first.Author != "alice" || first.Recipient != "" || first.Content != "board post" || first.CreatedAt != 7 || first.IsRead {
			t.Fatalf("unexpected first message: %+v", first)
		}

		second, err := tx.GetMessage(2)
		if err != nil {
			t.Fatalf("GetMessage(2) failed: %v", err)
		}
		if second.Recipient != "bob" {
			t.Fatalf("expected recipient bob, got %q", second.Recipient)
		}
		return nil
	})

	mustUpdate(t, store, func(tx *Tx) error {
		if err := tx.UpdateMessageContent(1, "edited"); err != nil {
			return err
		}
		if err := tx.MarkMessageRead(2); err != nil {
			return err
		}
		return tx.DeleteMessage(1)
	})

	mustView(t, store, func(tx *Tx) error {
		if _, err := tx.GetMessage(1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected deleted message to be missing, got %v", err)
		}
		second, err := tx.GetMessage(2)
		if err != nil {
			t.Fatalf("GetMessage(2) failed: %v", err)
		}
		if !second.IsRead {
			t.Fatalf("expected message 2 to be read")
		}
		live, err := tx.CountLiveMessages()
		if err != nil {
			t.Fatalf("CountLiveMessages failed: %v", err)
		}
		if live != 1 {
			t.Fatalf("expected 1 live message, got %d", live)
		}
		return nil
	})
}

func TestMessageMutationsReportNotFound(t *testing.T) {
	store := newTestStore(t)

	mustUpdate(t, store, func(tx *Tx) error {
		if err := tx.UpdateMessageContent(99, "x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound from update, got %v", err)
		}
		if err := tx.MarkMessageRead(99); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound from mark read, got %v", err)
		}
		if err := tx.DeleteMessage(99); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound from delete, got %v", err)
		}
		if _, err := tx.GetMessage(1 << 63); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected out-of-range id to be not found, got %v", err)
		}
		return nil
	})
}

func TestInsertMessageRejectsDuplicateID(t *testing.T) {
	store := newTestStore(t)

	mustUpdate(t, store, func(tx *Tx) error {
		return tx.InsertMessage(Message{ID: 1, Author: "alice", Content: "a", CreatedAt: 1})
	})

	mustUpdate(t, store, func(tx *Tx) error {
		if err := tx.InsertMessage(Message{ID: 1, Author: "bob", Content: "b", CreatedAt: 2}); err == nil {
			t.Fatalf("expected duplicate id insert to fail")
		}
		return nil
	})
}
