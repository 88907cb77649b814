package storage

import (
	"testing"
)

func TestSeenCallsInsertLookupAndPrune(t *testing.T) {
	store := newTestStore(t)

	mustUpdate(t, store, func(tx *Tx) error {
		seen, err := tx.HasSeenCall("call-a")
		if err != nil {
			return err
		}
		if seen {
			t.Fatalf("expected unseen call")
		}
		return tx.InsertSeenCall("call-a", 3)
	})

	mustUpdate(t, store, func(tx *Tx) error {
		seen, err := tx.HasSeenCall("call-a")
		if err != nil {
			return err
		}
		if !seen {
			t.Fatalf("expected call-a to be seen")
		}
		if err := tx.InsertSeenCall("call-a", 4); err == nil {
			t.Fatalf("expected duplicate call id to be rejected")
		}
		return nil
	})

	mustUpdate(t, store, func(tx *Tx) error {
		pruned, err := tx.PruneSeenCalls(nowUnixMilli() + 1_000)
		if err != nil {
			return err
		}
		if pruned != 1 {
			t.Fatalf("expected 1 pruned row, got %d", pruned)
		}
		return nil
	})
}
