package storage

import (
	"testing"
)

func TestAssetBalancesAndTransfers(t *testing.T) {
	store := newTestStore(t)

	mustUpdate(t, store, func(tx *Tx) error {
		if err := tx.SetAssetBalance("alice", 5); err != nil {
			return err
		}
		if err := tx.InsertTransfer(TransferEvent{
			EventID:   "evt-1",
			CallID:    "call-1",
			Asset:     "token",
			Amount:    1,
			Sender:    "alice",
			Recipient: "contract",
			Height:    4,
		}); err != nil {
			return err
		}
		return tx.InsertTransfer(TransferEvent{
			EventID:   "evt-2",
			CallID:    "call-2",
			Asset:     "token",
			Amount:    1,
			Sender:    "contract",
			Recipient: "owner",
			Height:    6,
		})
	})

	mustView(t, store, func(tx *Tx) error {
		balance, err := tx.AssetBalance("alice")
		if err != nil {
			t.Fatalf("AssetBalance failed: %v", err)
		}
		if balance != 5 {
			t.Fatalf("expected balance 5, got %d", balance)
		}
		unknown, err := tx.AssetBalance("nobody")
		if err != nil {
			t.Fatalf("AssetBalance unknown failed: %v", err)
		}
		if unknown != 0 {
			t.Fatalf("expected zero balance for unknown account, got %d", unknown)
		}

		all, err := tx.ListTransfers(TransferFilter{})
		if err != nil {
			t.Fatalf("ListTransfers failed: %v", err)
		}
		if len(all) != 2 || all[0].EventID != "evt-1" {
			t.Fatalf("unexpected transfer list: %+v", all)
		}

		byCall, err := tx.ListTransfers(TransferFilter{CallID: "call-2"})
		if err != nil {
			t.Fatalf("ListTransfers by call failed: %v", err)
		}
		if len(byCall) != 1 || byCall[0].Recipient != "owner" {
			t.Fatalf("unexpected call-filtered transfers: %+v", byCall)
		}

		height := uint64(4)
		byHeight, err := tx.ListTransfers(TransferFilter{Height: &height})
		if err != nil {
			t.Fatalf("ListTransfers by height failed: %v", err)
		}
		if len(byHeight) != 1 || byHeight[0].EventID != "evt-1" {
			t.Fatalf("unexpected height-filtered transfers: %+v", byHeight)
		}

		byAccount, err := tx.ListTransfers(TransferFilter{Account: "owner"})
		if err != nil {
			t.Fatalf("ListTransfers by account failed: %v", err)
		}
		if len(byAccount) != 1 {
			t.Fatalf("expected 1 transfer for owner, got %d", len(byAccount))
		}
		return nil
	})
}
