package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"msgboard/storage"
)

// DefaultAsset identifies the fee token in transfer events.
const DefaultAsset = "msgboard-token::fee-token"

// AssetError codes follow the usual fungible-token transfer failures.
const (
	AssetErrInsufficientBalance uint32 = 1
	AssetErrSameAccount         uint32 = 2
	AssetErrNonPositiveAmount   uint32 = 3
)

// AssetError is a failed token transfer.
type AssetError struct {
	Code    uint32
	Message string
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	return fmt.Sprintf("asset transfer failed (%d): %s", e.Code, e.Message)
}

// Is matches asset errors by code.
func (e *AssetError) Is(target error) bool {
	if t, ok := target.(*AssetError); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	// ErrInsufficientBalance matches transfers larger than the sender's balance.
	ErrInsufficientBalance = &AssetError{Code: AssetErrInsufficientBalance, Message: "insufficient balance"}
	// ErrSameAccount matches transfers whose sender and recipient coincide.
	ErrSameAccount = &AssetError{Code: AssetErrSameAccount, Message: "sender and recipient are the same"}
	// ErrNonPositiveAmount matches zero-amount transfers.
	ErrNonPositiveAmount = &AssetError{Code: AssetErrNonPositiveAmount, Message: "amount must be positive"}
)

// Token is the fungible asset ledger. Every successful transfer is recorded
// as an observable event tagged with the height and the submitting call.
type Token struct {
	store      *storage.Store
	chain      *Chain
	asset      string
	newEventID func() string
}

// NewToken returns a token named asset; an empty name uses DefaultAsset.
func NewToken(store *storage.Store, chain *Chain, asset string) (*Token, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if chain == nil {
		return nil, errors.New("chain is required")
	}
	if asset == "" {
		asset = DefaultAsset
	}
	return &Token{
		store:      store,
		chain:      chain,
		asset:      asset,
		newEventID: uuid.NewString,
	}, nil
}

// Asset returns the asset identifier.
func (t *Token) Asset() string {
	return t.asset
}

// Transfer moves amount from one account to another as part of tx.
func (t *Token) Transfer(ctx context.Context, tx *storage.Tx, amount uint64, from, to string) error {
	if amount == 0 {
		return ErrNonPositiveAmount
	}
	if from == to {
		return ErrSameAccount
	}
	if from == "" || to == "" {
		return errors.New("chain: transfer accounts are required")
	}

	fromBalance, err := tx.AssetBalance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return ErrInsufficientBalance
	}
	toBalance, err := tx.AssetBalance(to)
	if err != nil {
		return err
	}
	if amount > storage.MaxValue-toBalance {
		return errors.New("chain: recipient balance overflow")
	}

	height, err := t.chain.BlockHeight(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.SetAssetBalance(from, fromBalance-amount); err != nil {
		return err
	}
	if err := tx.SetAssetBalance(to, toBalance+amount); err != nil {
		return err
	}
	return tx.InsertTransfer(storage.TransferEvent{
		EventID:   t.newEventID(),
		CallID:    CallIDFromContext(ctx),
		Asset:     t.asset,
		Amount:    amount,
		Sender:    from,
		Recipient: to,
		Height:    height,
	})
}

// Mint credits amount to account out of thin air.
func (t *Token) Mint(ctx context.Context, account string, amount uint64) (uint64, error) {
	var balance uint64
	err := t.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		balance, err = credit(tx, account, amount)
		return err
	})
	return balance, err
}

// Issue credits amount to account as part of tx. It implements
// registry.AssetIssuer for fees the host pays on the author's behalf.
func (t *Token) Issue(_ context.Context, tx *storage.Tx, amount uint64, to string) error {
	_, err := credit(tx, to, amount)
	return err
}

func credit(tx *storage.Tx, account string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrNonPositiveAmount
	}
	if account == "" {
		return 0, errors.New("chain: account is required")
	}
	current, err := tx.AssetBalance(account)
	if err != nil {
		return 0, err
	}
	if amount > storage.MaxValue-current {
		return 0, errors.New("chain: balance overflow")
	}
	balance := current + amount
	if err := tx.SetAssetBalance(account, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// BalanceOf returns the token balance of account.
func (t *Token) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	err := t.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		balance, err = tx.AssetBalance(account)
		return err
	})
	return balance, err
}

// Transfers lists recorded transfer events.
func (t *Token) Transfers(ctx context.Context, filter storage.TransferFilter) ([]storage.TransferEvent, error) {
	var events []storage.TransferEvent
	err := t.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		events, err = tx.ListTransfers(filter)
		return err
	})
	return events, err
}

type callIDKey struct{}

// WithCallID tags ctx with the id of the call being executed.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// CallIDFromContext returns the call id set by WithCallID, or "".
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
