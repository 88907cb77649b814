// Package chain simulates the host ledger the registry runs on: a block
// height counter, a fungible token and signed call envelopes.
package chain

import (
	"context"
	"errors"

	"msgboard/storage"
)

const (
	// GenesisHeight is the height of a freshly initialised chain.
	GenesisHeight uint64 = 1

	varBlockHeight = "block-height"
)

// Chain is the block height counter persisted alongside the registry state.
type Chain struct {
	store *storage.Store
}

// New returns a chain backed by store.
func New(store *storage.Store) (*Chain, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Chain{store: store}, nil
}

// BlockHeight returns the current height as seen by tx.
func (c *Chain) BlockHeight(_ context.Context, tx *storage.Tx) (uint64, error) {
	height, err := tx.Var(varBlockHeight)
	if err != nil {
		return 0, err
	}
	if height < GenesisHeight {
		return GenesisHeight, nil
	}
	return height, nil
}

// Height returns the current height.
func (c *Chain) Height(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		height, err = c.BlockHeight(ctx, tx)
		return err
	})
	return height, err
}

// Mine advances the chain by n blocks and returns the new height.
func (c *Chain) Mine(ctx context.Context, n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("chain: must mine at least one block")
	}

	var height uint64
	err := c.store.Update(ctx, func(tx *storage.Tx) error {
		current, err := c.BlockHeight(ctx, tx)
		if err != nil {
			return err
		}
		if n > storage.MaxValue-current {
			return errors.New("chain: block height overflow")
		}
		height = current + n
		return tx.SetVar(varBlockHeight, height)
	})
	return height, err
}
