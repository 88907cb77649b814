package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"msgboard/chain"
	"msgboard/config"
	"msgboard/crypto"
	"msgboard/logging"
	"msgboard/models"
	"msgboard/node"
	"msgboard/registry"
	"msgboard/storage"
)

// runtime is a node opened over the local data dir.
type runtime struct {
	cfg     *config.NodeConfig
	cfgPath string
	dbPath  string
	log     *logrus.Logger

	owner    string
	contract string

	store    *storage.Store
	chain    *chain.Chain
	token    *chain.Token
	registry *registry.Registry
	node     *node.Node
}

func loadConfig(opts *rootOptions) (*config.NodeConfig, string, error) {
	return config.LoadOrCreate(opts.dataDir)
}

func openRuntime(opts *rootOptions) (*runtime, error) {
	cfg, cfgPath, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogOptions())
	if err != nil {
		return nil, err
	}

	owner, err := resolveOwner(cfg)
	if err != nil {
		return nil, err
	}
	contract := crypto.ContractPrincipal(owner, cfg.ContractName)

	store, dbPath, err := storage.Open(filepath.Dir(cfgPath), cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		cfgPath:  cfgPath,
		dbPath:   dbPath,
		log:      logger,
		owner:    owner,
		contract: contract,
		store:    store,
	}
	if err := rt.wire(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) wire() error {
	var err error
	if rt.chain, err = chain.New(rt.store); err != nil {
		return err
	}
	if rt.token, err = chain.NewToken(rt.store, rt.chain, ""); err != nil {
		return err
	}
	rt.registry, err = registry.New(rt.store, rt.chain, rt.token, rt.cfg.RegistryConfig(rt.owner, rt.contract), rt.log)
	if err != nil {
		return err
	}
	rt.node, err = node.New(rt.store, rt.chain, rt.token, rt.registry, node.Options{AutoMine: rt.cfg.AutoMineEnabled()}, rt.log)
	return err
}

func resolveOwner(cfg *config.NodeConfig) (string, error) {
	if cfg.Owner != "" {
		return cfg.Owner, nil
	}
	key, _, err := crypto.EnsureAccountKey(cfg.KeysDir, cfg.OwnerKeyName)
	if err != nil {
		return "", fmt.Errorf("prepare owner key: %w", err)
	}
	return crypto.PrincipalOf(key), nil
}

// Submit runs call on the local node.
func (rt *runtime) Submit(ctx context.Context, call chain.Call) (models.Receipt, error) {
	return rt.node.Submit(ctx, call)
}

// Query runs a read-only function on the local node.
func (rt *runtime) Query(ctx context.Context, function string, args any) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal query args: %w", err)
		}
		raw = encoded
	}
	return rt.node.Query(ctx, function, raw)
}

// Close closes the database.
func (rt *runtime) Close() error {
	return rt.store.Close()
}

func signingKey(opts *rootOptions) (ed25519.PrivateKey, error) {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	key, err := crypto.LoadAccountKey(cfg.KeysDir, opts.key)
	if err != nil {
		return nil, fmt.Errorf("load key %q (create it with `msgboard keys new %s`): %w", opts.key, opts.key, err)
	}
	return key, nil
}
