package registry

import (
	"context"
	"testing"
)

func TestCountAtHistory(t *testing.T) {
	env := newTestEnv(t, Config{Fee: 1})
	ctx := context.Background()

	h1 := env.mine(t, 2)
	if _, err := env.registry.AddMessage(ctx, "alice", "first"); err != nil {
		t.Fatalf("AddMessage() failed: %v", err)
	}
	h2 := env.mine(t, 5)
	if _, err := env.registry.AddMessage(ctx, "bob", "second"); err != nil {
		t.Fatalf("AddMessage() failed: %v", err)
	}

	tests := []struct {
		height uint64
		want   uint64
	}{
		{height: 0, want: 0},
		{height: h1 - 1, want: 0},
		{height: h1, want: 1},
		{height: h1 + 1, want: 1},
		{height: h2 - 1, want: 1},
		{height: h2, want: 2},
		{height: h2 + 10, want: 2},
		{height: ^uint64(0), want: 2},
	}
	for _, tc := range tests {
		got, err := env.registry.CountAt(ctx, tc.height)
		if err != nil {
			t.Fatalf("CountAt(%d) failed: %v", tc.height, err)
		}
		if got != tc.want {
			t.Fatalf("CountAt(%d) = %d, want %d", tc.height, got, tc.want)
		}
	}
}

func TestCountAtSameBlockKeepsLatest(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	height := env.height(t)

	for i := 0; i < 3; i++ {
		if _, err := env.registry.AddMessage(ctx, "alice", "burst"); err != nil {
			t.Fatalf("AddMessage() failed: %v", err)
		}
	}

	got, err := env.registry.CountAt(ctx, height)
	if err != nil || got != 3 {
		t.Fatalf("CountAt(%d) = %d, %v", height, got, err)
	}
	snapshots, _ := env.registry.Snapshots(ctx)
	if len(snapshots) != 1 || snapshots[0].Height != height || snapshots[0].Count != 3 {
		t.Fatalf("unexpected snapshots: %+v", snapshots)
	}
}

func TestCountAtIsMonotonicAndIgnoresDeletes(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		id, err := env.registry.AddMessage(ctx, "alice", "post")
		if err != nil {
			t.Fatalf("AddMessage() failed: %v", err)
		}
		if i%2 == 0 {
			if err := env.registry.DeleteMessage(ctx, "alice", id); err != nil {
				t.Fatalf("DeleteMessage() failed: %v", err)
			}
		}
		env.mine(t, 1)
	}

	tip := env.height(t)
	var previous uint64
	for h := uint64(0); h <= tip+1; h++ {
		got, err := env.registry.CountAt(ctx, h)
		if err != nil {
			t.Fatalf("CountAt(%d) failed: %v", h, err)
		}
		if got < previous {
			t.Fatalf("CountAt decreased at %d: %d < %d", h, got, previous)
		}
		previous = got
	}
	if previous != 4 {
		t.Fatalf("expected final count 4, got %d", previous)
	}
}
