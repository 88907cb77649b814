package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	accountKeyPEMType = "ED25519 PRIVATE KEY"
	accountKeySuffix  = ".pem"
)

// KeyPath returns the PEM path for a named account key under dir.
func KeyPath(dir, name string) string {
	return filepath.Join(dir, name+accountKeySuffix)
}

// EnsureAccountKey loads the named account key, generating it on first use.
// created reports whether a new key was written.
func EnsureAccountKey(dir, name string) (key ed25519.PrivateKey, created bool, err error) {
	key, err = LoadAccountKey(dir, name)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	_, key, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("generate Ed25519 account key: %w", err)
	}
	if err := SaveAccountKey(dir, name, key); err != nil {
		return nil, false, err
	}

	return key, true, nil
}

// LoadAccountKey loads a named account key from a PEM file.
func LoadAccountKey(dir, name string) (ed25519.PrivateKey, error) {
	if err := validateKeyName(name); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(KeyPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read account key %q: %w", name, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode account key %q: no PEM block", name)
	}
	if block.Type != accountKeyPEMType {
		return nil, fmt.Errorf("decode account key %q: unexpected type %q", name, block.Type)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode account key %q: invalid key size %d", name, len(block.Bytes))
	}

	return ed25519.PrivateKey(block.Bytes), nil
}

// SaveAccountKey writes a named account key PEM file with 0600 permissions.
func SaveAccountKey(dir, name string, key ed25519.PrivateKey) error {
	if err := validateKeyName(name); err != nil {
		return err
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("save account key %q: invalid key size %d", name, len(key))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	block := &pem.Block{
		Type:  accountKeyPEMType,
		Bytes: key,
	}
	if err := os.WriteFile(KeyPath(dir, name), pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write account key %q: %w", name, err)
	}

	return nil
}

// ListAccountKeys returns the names of all account keys under dir, sorted.
func ListAccountKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list account keys: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), accountKeySuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), accountKeySuffix))
	}
	sort.Strings(names)
	return names, nil
}

func validateKeyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("account key name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid account key name %q", name)
	}
	return nil
}
