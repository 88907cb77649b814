// Package config loads and persists node settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"msgboard/logging"
	"msgboard/registry"
	"msgboard/storage"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "msgboard"
	// DefaultListenAddress is the TCP address served by `msgboard serve`.
	DefaultListenAddress = ":7447"
	// DefaultOwnerKeyName names the deployer key that owns the registry.
	DefaultOwnerKeyName = "owner"
	// DefaultContractName is appended to the owner principal to form the
	// contract account.
	DefaultContractName = "message-board"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
	keysDirName    = "keys"
)

// NodeConfig contains persistent node settings.
type NodeConfig struct {
	NodeID        string `json:"node_id"`
	NodeName      string `json:"node_name"`
	ListenAddress string `json:"listen_address"`
	Driver        string `json:"driver"`
	KeysDir       string `json:"keys_dir"`

	// Owner is the registry owner principal. Empty means the principal of
	// OwnerKeyName.
	Owner            string  `json:"owner,omitempty"`
	OwnerKeyName     string  `json:"owner_key_name"`
	ContractName     string  `json:"contract_name"`
	Variant          string  `json:"variant"`
	Fee              *uint64 `json:"fee"`
	ChargeAuthor     *bool   `json:"charge_author"`
	MaxContentLength int     `json:"max_content_length"`
	AutoMine         *bool   `json:"auto_mine"`
	Discovery        bool    `json:"discovery"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file,omitempty"`
}

// envOverrides are applied on top of config.json and never persisted.
type envOverrides struct {
	NodeName      string  `env:"MSGBOARD_NODE_NAME"`
	ListenAddress string  `env:"MSGBOARD_LISTEN"`
	Driver        string  `env:"MSGBOARD_DRIVER"`
	Owner         string  `env:"MSGBOARD_OWNER"`
	Variant       string  `env:"MSGBOARD_VARIANT"`
	Fee           *uint64 `env:"MSGBOARD_FEE"`
	ChargeAuthor  *bool   `env:"MSGBOARD_CHARGE_AUTHOR"`
	AutoMine      *bool   `env:"MSGBOARD_AUTO_MINE"`
	Discovery     *bool   `env:"MSGBOARD_DISCOVERY"`
	LogLevel      string  `env:"MSGBOARD_LOG_LEVEL"`
	LogFormat     string  `env:"MSGBOARD_LOG_FORMAT"`
	LogFile       string  `env:"MSGBOARD_LOG_FILE"`
}

type dataDirEnv struct {
	DataDir string `env:"MSGBOARD_DATA_DIR"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If MSGBOARD_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	var override dataDirEnv
	if err := env.Parse(&override); err != nil {
		return "", fmt.Errorf("parse env: %w", err)
	}
	if override.DataDir != "" {
		return override.DataDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			base = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, keysDirName),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*NodeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NodeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *NodeConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist under dataDir, then
// returns the config with environment overrides applied. An empty dataDir
// resolves through ResolveDataDir.
func LoadOrCreate(dataDir string) (*NodeConfig, string, error) {
	if dataDir == "" {
		resolved, err := ResolveDataDir()
		if err != nil {
			return nil, "", err
		}
		dataDir = resolved
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = &NodeConfig{}
		normalizeDefaults(cfg, dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	} else if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, cfgPath, nil
}

func applyEnv(cfg *NodeConfig) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.NodeName, overrides.NodeName)
	setString(&cfg.ListenAddress, overrides.ListenAddress)
	setString(&cfg.Driver, overrides.Driver)
	setString(&cfg.Owner, overrides.Owner)
	setString(&cfg.Variant, overrides.Variant)
	setString(&cfg.LogLevel, overrides.LogLevel)
	setString(&cfg.LogFormat, overrides.LogFormat)
	setString(&cfg.LogFile, overrides.LogFile)

	if overrides.Fee != nil {
		cfg.Fee = overrides.Fee
	}
	if overrides.ChargeAuthor != nil {
		cfg.ChargeAuthor = overrides.ChargeAuthor
	}
	if overrides.AutoMine != nil {
		cfg.AutoMine = overrides.AutoMine
	}
	if overrides.Discovery != nil {
		cfg.Discovery = *overrides.Discovery
	}
	return nil
}

func normalizeDefaults(cfg *NodeConfig, dataDir string) bool {
	updated := false

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
		updated = true
	}

	if cfg.NodeName == "" {
		nodeName := "msgboard node"
		if host, err := os.Hostname(); err == nil && host != "" {
			nodeName = host
		}
		cfg.NodeName = nodeName
		updated = true
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
		updated = true
	}
	if cfg.Driver == "" {
		cfg.Driver = storage.DefaultDriver
		updated = true
	}
	if cfg.KeysDir == "" {
		cfg.KeysDir = filepath.Join(dataDir, keysDirName)
		updated = true
	}
	if cfg.OwnerKeyName == "" {
		cfg.OwnerKeyName = DefaultOwnerKeyName
		updated = true
	}
	if cfg.ContractName == "" {
		cfg.ContractName = DefaultContractName
		updated = true
	}
	if cfg.Variant == "" {
		cfg.Variant = string(registry.VariantBoard)
		updated = true
	}
	if cfg.Fee == nil {
		fee := registry.DefaultFee
		cfg.Fee = &fee
		updated = true
	}
	if cfg.ChargeAuthor == nil {
		enabled := true
		cfg.ChargeAuthor = &enabled
		updated = true
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = registry.DefaultMaxContentLength
		updated = true
	}
	if cfg.AutoMine == nil {
		enabled := true
		cfg.AutoMine = &enabled
		updated = true
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		updated = true
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = logging.FormatText
		updated = true
	}

	return updated
}

// Validate rejects settings the node cannot start with.
func (c *NodeConfig) Validate() error {
	switch registry.Variant(c.Variant) {
	case registry.VariantBoard, registry.VariantDirect:
	default:
		return fmt.Errorf("invalid variant %q", c.Variant)
	}
	switch c.Driver {
	case storage.DriverCGO, storage.DriverPure:
	default:
		return fmt.Errorf("invalid storage driver %q", c.Driver)
	}
	if strings.TrimSpace(c.ContractName) == "" {
		return errors.New("contract name is required")
	}
	return nil
}

// RegistryConfig builds the registry settings for the given owner principal.
func (c *NodeConfig) RegistryConfig(owner string, contractAccount string) registry.Config {
	cfg := registry.Config{
		Owner:            owner,
		ContractAccount:  contractAccount,
		Variant:          registry.Variant(c.Variant),
		MaxContentLength: c.MaxContentLength,
		ChargeAuthor:     c.ChargeAuthor == nil || *c.ChargeAuthor,
	}
	if c.Fee != nil {
		cfg.Fee = *c.Fee
	} else {
		cfg.Fee = registry.DefaultFee
	}
	return cfg
}

// AutoMineEnabled reports whether the node mines a block per call.
func (c *NodeConfig) AutoMineEnabled() bool {
	return c.AutoMine == nil || *c.AutoMine
}

// LogOptions returns the logger settings.
func (c *NodeConfig) LogOptions() logging.Options {
	return logging.Options{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
	}
}
