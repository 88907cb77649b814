// Package registry implements the message registry: the record store, the
// fee ledger and the historical count index, updated together in one
// storage transaction per operation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"msgboard/logging"
	"msgboard/storage"
)

// Variant selects the record schema and its delete/read policies.
type Variant string

const (
	// VariantBoard is the single-author message board: owner may delete any post.
	VariantBoard Variant = "board"
	// VariantDirect is sender-to-recipient messaging with a read flag.
	VariantDirect Variant = "direct"
)

const (
	// DefaultFee is charged per created message, in asset base units.
	DefaultFee uint64 = 1
	// DefaultMaxContentLength bounds message content, in runes.
	DefaultMaxContentLength = 280

	varMessageCount = "message-count"
	varBalance      = "contract-balance"
)

// HeightSource supplies the host's current block height.
type HeightSource interface {
	BlockHeight(ctx context.Context, tx *storage.Tx) (uint64, error)
}

// AssetTransferer moves fungible asset units between accounts as part of tx.
type AssetTransferer interface {
	Transfer(ctx context.Context, tx *storage.Tx, amount uint64, from, to string) error
}

// AssetIssuer credits new asset units to an account as part of tx. A
// registry that does not charge authors needs one to back its fees.
type AssetIssuer interface {
	Issue(ctx context.Context, tx *storage.Tx, amount uint64, to string) error
}

// Config fixes the registry's identity and policy at definition time.
type Config struct {
	// Owner may withdraw fees and, on a board, delete any message.
	Owner string
	// ContractAccount holds collected fees until withdrawn.
	ContractAccount string
	Variant         Variant
	Fee             uint64
	// ChargeAuthor makes each create pay Fee from the author to
	// ContractAccount. Otherwise the host issues the fee to ContractAccount.
	ChargeAuthor     bool
	MaxContentLength int
}

func (c Config) withDefaults() Config {
	out := c
	if out.Variant == "" {
		out.Variant = VariantBoard
	}
	if out.MaxContentLength <= 0 {
		out.MaxContentLength = DefaultMaxContentLength
	}
	return out
}

func (c Config) validate() error {
	if c.Owner == "" {
		return errors.New("owner is required")
	}
	if c.ContractAccount == "" {
		return errors.New("contract account is required")
	}
	if c.ContractAccount == c.Owner {
		return errors.New("contract account must differ from owner")
	}
	switch c.Variant {
	case VariantBoard, VariantDirect:
	default:
		return fmt.Errorf("invalid registry variant %q", c.Variant)
	}
	return nil
}

// Message is one stored record.
type Message struct {
	ID        uint64
	Author    string
	Recipient string
	Content   string
	CreatedAt uint64
	Read      bool
}

// Registry is the public operation surface.
type Registry struct {
	store   *storage.Store
	heights HeightSource
	assets  AssetTransferer
	issuer  AssetIssuer
	cfg     Config
	log     logrus.FieldLogger
}

// New wires a registry over store. logger may be nil.
func New(store *storage.Store, heights HeightSource, assets AssetTransferer, cfg Config, logger logrus.FieldLogger) (*Registry, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if heights == nil {
		return nil, errors.New("height source is required")
	}
	if assets == nil {
		return nil, errors.New("asset transferer is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	issuer, _ := assets.(AssetIssuer)
	if cfg.Fee > 0 && !cfg.ChargeAuthor && issuer == nil {
		return nil, errors.New("fees not charged to authors need an asset issuer")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Registry{
		store:   store,
		heights: heights,
		assets:  assets,
		issuer:  issuer,
		cfg:     cfg,
		log:     logger.WithField("component", "registry"),
	}, nil
}

// Config returns the effective configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) validateContent(content string) error {
	if !utf8.ValidString(content) {
		return errorf(CodeInvalidContent, "content is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(content); n > r.cfg.MaxContentLength {
		return errorf(CodeInvalidContent, "content length %d exceeds %d", n, r.cfg.MaxContentLength)
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, bool) {
	if a > storage.MaxValue || b > storage.MaxValue-a {
		return 0, false
	}
	return a + b, true
}

func fromRow(row *storage.Message) Message {
	return Message{
		ID:        row.ID,
		Author:    row.Author,
		Recipient: row.Recipient,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
		Read:      row.IsRead,
	}
}
