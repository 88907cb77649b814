package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// PrincipalPrefix starts every account principal.
	PrincipalPrefix = "mb1"
	principalHexLen = 40
)

// Principal derives the account identifier for an Ed25519 public key.
func Principal(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return PrincipalPrefix + hex.EncodeToString(sum[:principalHexLen/2])
}

// PrincipalOf derives the principal of a private key's public half.
func PrincipalOf(privateKey ed25519.PrivateKey) string {
	return Principal(privateKey.Public().(ed25519.PublicKey))
}

// ValidPrincipal reports whether s is a well-formed account principal.
func ValidPrincipal(s string) bool {
	body, ok := strings.CutPrefix(s, PrincipalPrefix)
	if !ok || len(body) != principalHexLen {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil && strings.ToLower(body) == body
}

// ContractPrincipal names a contract deployed by deployer.
func ContractPrincipal(deployer, contractName string) string {
	return deployer + "." + contractName
}
