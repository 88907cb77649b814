package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"msgboard/crypto"
)

// Call is a signed request to run one public registry function.
type Call struct {
	Function  string          `json:"function"`
	Args      json.RawMessage `json:"args,omitempty"`
	PublicKey string          `json:"public_key"`
	Nonce     string          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// NewCall builds and signs a call to function with args marshalled as JSON.
func NewCall(privateKey ed25519.PrivateKey, function string, args any) (Call, error) {
	if function == "" {
		return Call{}, errors.New("function is required")
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return Call{}, fmt.Errorf("invalid Ed25519 private key length: got %d want %d", len(privateKey), ed25519.PrivateKeySize)
	}

	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return Call{}, fmt.Errorf("marshal call args: %w", err)
		}
		raw = encoded
	}

	call := Call{
		Function:  function,
		Args:      raw,
		PublicKey: base64.StdEncoding.EncodeToString(privateKey.Public().(ed25519.PublicKey)),
		Nonce:     uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := call.Sign(privateKey); err != nil {
		return Call{}, err
	}
	return call, nil
}

func (c Call) signingBytes() ([]byte, error) {
	unsigned := c
	unsigned.Signature = ""
	data, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("marshal call for signing: %w", err)
	}
	return data, nil
}

// Sign sets the call's signature.
func (c *Call) Sign(privateKey ed25519.PrivateKey) error {
	data, err := c.signingBytes()
	if err != nil {
		return err
	}
	signature, err := crypto.Sign(privateKey, data)
	if err != nil {
		return err
	}
	c.Signature = base64.StdEncoding.EncodeToString(signature)
	return nil
}

// Verify checks the signature against the embedded public key.
func (c Call) Verify() error {
	publicKey, err := c.publicKey()
	if err != nil {
		return err
	}
	signature, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		return fmt.Errorf("decode call signature: %w", err)
	}
	data, err := c.signingBytes()
	if err != nil {
		return err
	}
	if !crypto.Verify(publicKey, data, signature) {
		return errors.New("invalid call signature")
	}
	return nil
}

// Sender returns the principal of the signing key.
func (c Call) Sender() (string, error) {
	publicKey, err := c.publicKey()
	if err != nil {
		return "", err
	}
	return crypto.Principal(publicKey), nil
}

// ID returns the digest identifying the signed call.
func (c Call) ID() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal call: %w", err)
	}
	return crypto.Digest(data), nil
}

// DecodeArgs unmarshals the call arguments into v.
func (c Call) DecodeArgs(v any) error {
	if len(c.Args) == 0 {
		return errors.New("call arguments are required")
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("decode %s arguments: %w", c.Function, err)
	}
	return nil
}

func (c Call) publicKey() (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode call public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid call public key length: got %d want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
