package registry

import (
	"context"
	"errors"
	"testing"
)

func TestDirectMessaging(t *testing.T) {
	env := newTestEnv(t, Config{Variant: VariantDirect, Fee: 1, ChargeAuthor: true})
	ctx := context.Background()
	env.fund(t, "alice", 5)

	if _, err := env.registry.SendMessage(ctx, "alice", "alice", "hi me"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected InvalidRecipient for self-send, got %v", err)
	}
	if _, err := env.registry.SendMessage(ctx, "alice", "", "hi"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected InvalidRecipient for empty recipient, got %v", err)
	}

	id, err := env.registry.SendMessage(ctx, "alice", "bob", "hi bob")
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}

	sender, err := env.registry.MessageSender(ctx, id)
	if err != nil || sender != "alice" {
		t.Fatalf("MessageSender() = %q, %v", sender, err)
	}
	recipient, err := env.registry.MessageRecipient(ctx, id)
	if err != nil || recipient != "bob" {
		t.Fatalf("MessageRecipient() = %q, %v", recipient, err)
	}
	read, err := env.registry.MessageField(ctx, id, FieldRead)
	if err != nil || read != false {
		t.Fatalf("MessageField(read) = %v, %v", read, err)
	}

	if err := env.registry.MarkRead(ctx, "alice", id); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("expected NotRecipient for sender, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.registry.MarkRead(ctx, "bob", id); err != nil {
			t.Fatalf("MarkRead() attempt %d failed: %v", i+1, err)
		}
	}
	message, _, _ := env.registry.GetMessage(ctx, id)
	if !message.Read {
		t.Fatalf("expected message to be read")
	}
	if err := env.registry.MarkRead(ctx, "bob", 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if got := env.balance(t); got != 1 {
		t.Fatalf("expected balance 1, got %d", got)
	}
}

func TestDirectDeletePolicy(t *testing.T) {
	env := newTestEnv(t, Config{Variant: VariantDirect})
	ctx := context.Background()

	first, _ := env.registry.SendMessage(ctx, "alice", "bob", "one")
	second, _ := env.registry.SendMessage(ctx, "alice", "bob", "two")
	third, _ := env.registry.SendMessage(ctx, "alice", "bob", "three")

	if err := env.registry.DeleteMessage(ctx, testOwner, first); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("owner must not delete direct messages, got %v", err)
	}
	if err := env.registry.DeleteMessage(ctx, "carol", first); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized for stranger, got %v", err)
	}
	if err := env.registry.DeleteMessage(ctx, "alice", first); err != nil {
		t.Fatalf("sender delete failed: %v", err)
	}
	if err := env.registry.DeleteMessage(ctx, "bob", second); err != nil {
		t.Fatalf("recipient delete failed: %v", err)
	}
	if _, ok, _ := env.registry.GetMessage(ctx, third); !ok {
		t.Fatalf("expected third message to survive")
	}
}

func TestAccessPredicates(t *testing.T) {
	message := Message{Author: "alice", Recipient: "bob"}

	if !IsOwner("owner", "owner") || IsOwner("", "") || IsOwner("owner", "alice") {
		t.Fatalf("IsOwner mismatch")
	}
	if !IsAuthor(message, "alice") || IsAuthor(message, "bob") || IsAuthor(message, "") {
		t.Fatalf("IsAuthor mismatch")
	}
	if !IsRecipient(message, "bob") || IsRecipient(message, "alice") || IsRecipient(Message{Author: "alice"}, "") {
		t.Fatalf("IsRecipient mismatch")
	}
}
