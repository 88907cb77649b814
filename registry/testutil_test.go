package registry

import (
	"context"
	"testing"

	"msgboard/chain"
	"msgboard/storage"
)

const (
	testOwner    = "owner"
	testContract = "owner.message-board"
)

type testEnv struct {
	store    *storage.Store
	chain    *chain.Chain
	token    *chain.Token
	registry *Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	return newTestEnvWith(t, cfg, nil)
}

// newTestEnvWith lets wrap replace the asset collaborator handed to the
// registry. The env keeps the real token for balances and events.
func newTestEnvWith(t *testing.T, cfg Config, wrap func(*chain.Token) AssetTransferer) *testEnv {
	t.Helper()

	store, _, err := storage.Open(t.TempDir(), storage.DefaultDriver)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	c, err := chain.New(store)
	if err != nil {
		t.Fatalf("chain.New() failed: %v", err)
	}
	token, err := chain.NewToken(store, c, "")
	if err != nil {
		t.Fatalf("chain.NewToken() failed: %v", err)
	}

	if cfg.Owner == "" {
		cfg.Owner = testOwner
	}
	if cfg.ContractAccount == "" {
		cfg.ContractAccount = testContract
	}
	var assets AssetTransferer = token
	if wrap != nil {
		assets = wrap(token)
	}
	reg, err := New(store, c, assets, cfg, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &testEnv{store: store, chain: c, token: token, registry: reg}
}

func (e *testEnv) fund(t *testing.T, account string, amount uint64) {
	t.Helper()
	if _, err := e.token.Mint(context.Background(), account, amount); err != nil {
		t.Fatalf("mint %d to %s: %v", amount, account, err)
	}
}

func (e *testEnv) mine(t *testing.T, n uint64) uint64 {
	t.Helper()
	height, err := e.chain.Mine(context.Background(), n)
	if err != nil {
		t.Fatalf("mine %d: %v", n, err)
	}
	return height
}

func (e *testEnv) height(t *testing.T) uint64 {
	t.Helper()
	height, err := e.chain.Height(context.Background())
	if err != nil {
		t.Fatalf("height: %v", err)
	}
	return height
}

func (e *testEnv) balance(t *testing.T) uint64 {
	t.Helper()
	balance, err := e.registry.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (e *testEnv) transfers(t *testing.T) []storage.TransferEvent {
	t.Helper()
	events, err := e.token.Transfers(context.Background(), storage.TransferFilter{})
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	return events
}
