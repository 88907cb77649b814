// Package node executes signed calls and read-only queries against a
// registry hosted on the local chain.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"msgboard/chain"
	"msgboard/logging"
	"msgboard/models"
	"msgboard/registry"
	"msgboard/storage"
)

const (
	// DefaultMaxCallAge bounds how far a call timestamp may drift from the
	// node clock. Seen call ids older than this are pruned.
	DefaultMaxCallAge = 24 * time.Hour
)

var (
	// ErrInvalidCall indicates a malformed or badly signed envelope.
	ErrInvalidCall = errors.New("invalid call")
	// ErrReplayedCall indicates a call id that was already executed.
	ErrReplayedCall = errors.New("call already executed")
	// ErrStaleCall indicates a call timestamp outside the accepted window.
	ErrStaleCall = errors.New("call timestamp outside accepted window")
	// ErrUnknownFunction indicates a function the registry does not expose.
	ErrUnknownFunction = errors.New("unknown function")
)

// Options tune call execution.
type Options struct {
	// AutoMine mines one block after every submitted call.
	AutoMine   bool
	MaxCallAge time.Duration
	// SecurityEventRetention bounds how long call rejections are kept.
	SecurityEventRetention time.Duration
	Now                    func() time.Time
}

// Node is the single writer in front of a registry.
type Node struct {
	store    *storage.Store
	chain    *chain.Chain
	token    *chain.Token
	registry *registry.Registry
	opts     Options
	log      logrus.FieldLogger

	mu sync.Mutex
}

// New returns a node. logger may be nil.
func New(store *storage.Store, c *chain.Chain, token *chain.Token, reg *registry.Registry, opts Options, logger logrus.FieldLogger) (*Node, error) {
	if store == nil || c == nil || token == nil || reg == nil {
		return nil, errors.New("store, chain, token and registry are required")
	}
	if opts.MaxCallAge <= 0 {
		opts.MaxCallAge = DefaultMaxCallAge
	}
	if opts.SecurityEventRetention <= 0 {
		opts.SecurityEventRetention = storage.DefaultSecurityEventRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Node{
		store:    store,
		chain:    c,
		token:    token,
		registry: reg,
		opts:     opts,
		log:      logger.WithField("component", "node"),
	}, nil
}

// Registry returns the hosted registry.
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Submit verifies and executes call. Envelope problems (bad signature,
// stale timestamp, replay, unknown function, undecodable arguments) are
// returned as errors, recorded as security events and change no registry
// state. Once accepted, the call id is consumed and the outcome, success or
// registry failure, is reported in the receipt.
func (n *Node) Submit(ctx context.Context, call chain.Call) (models.Receipt, error) {
	receipt, err := n.submit(ctx, call)
	if err != nil {
		n.recordRejection(ctx, call, err)
	}
	return receipt, err
}

func (n *Node) submit(ctx context.Context, call chain.Call) (models.Receipt, error) {
	if err := call.Verify(); err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	sender, err := call.Sender()
	if err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	if err := n.checkFresh(call.Timestamp); err != nil {
		return models.Receipt{}, err
	}
	callID, err := call.ID()
	if err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}

	fn, ok := publicFunctions[call.Function]
	if !ok {
		return models.Receipt{}, fmt.Errorf("%w: %q", ErrUnknownFunction, call.Function)
	}
	exec, err := fn(call)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	height, err := n.consume(ctx, callID)
	if err != nil {
		return models.Receipt{}, err
	}

	log := n.log.WithFields(logrus.Fields{
		"call_id":  callID,
		"function": call.Function,
		"actor":    sender,
		"height":   height,
	})

	receipt := models.Receipt{
		CallID:   callID,
		Function: call.Function,
		Sender:   sender,
		Height:   height,
	}

	result, execErr := exec(chain.WithCallID(ctx, callID), n.registry, sender)
	if execErr != nil {
		callErr, ok := toCallError(execErr)
		if !ok {
			log.WithError(execErr).Error("call execution failed")
			return models.Receipt{}, execErr
		}
		log.WithField("code", callErr.Code).Info("call rejected")
		receipt.Error = callErr
	} else {
		encoded, err := json.Marshal(result)
		if err != nil {
			return models.Receipt{}, fmt.Errorf("marshal %s result: %w", call.Function, err)
		}
		receipt.OK = true
		receipt.Result = encoded
		log.Info("call executed")
	}

	events, err := n.token.Transfers(ctx, storage.TransferFilter{CallID: callID})
	if err != nil {
		return models.Receipt{}, err
	}
	receipt.Events = TransfersToModels(events)

	if n.opts.AutoMine {
		if _, err := n.chain.Mine(ctx, 1); err != nil {
			return models.Receipt{}, fmt.Errorf("mine block: %w", err)
		}
	}

	return receipt, nil
}

func (n *Node) checkFresh(timestamp int64) error {
	if timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrStaleCall)
	}
	now := n.opts.Now()
	sent := time.UnixMilli(timestamp)
	if sent.Before(now.Add(-n.opts.MaxCallAge)) || sent.After(now.Add(n.opts.MaxCallAge)) {
		return ErrStaleCall
	}
	return nil
}

// consume records the call id in its own transaction so that a failed
// execution still spends it.
func (n *Node) consume(ctx context.Context, callID string) (uint64, error) {
	var height uint64
	err := n.store.Update(ctx, func(tx *storage.Tx) error {
		seen, err := tx.HasSeenCall(callID)
		if err != nil {
			return err
		}
		if seen {
			return ErrReplayedCall
		}
		height, err = n.chain.BlockHeight(ctx, tx)
		if err != nil {
			return err
		}
		return tx.InsertSeenCall(callID, height)
	})
	return height, err
}

// PruneSeenCalls forgets call ids older than the accepted call window.
func (n *Node) PruneSeenCalls(ctx context.Context) (int64, error) {
	cutoff := n.opts.Now().Add(-2 * n.opts.MaxCallAge).UnixMilli()
	var pruned int64
	err := n.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		pruned, err = tx.PruneSeenCalls(cutoff)
		return err
	})
	if err == nil && pruned > 0 {
		n.log.WithField("pruned", pruned).Debug("pruned seen calls")
	}
	return pruned, err
}

// PruneSecurityEvents drops security events older than the retention window.
func (n *Node) PruneSecurityEvents(ctx context.Context) (int64, error) {
	cutoff := n.opts.Now().Add(-n.opts.SecurityEventRetention).UnixMilli()
	var pruned int64
	err := n.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		pruned, err = tx.PruneSecurityEvents(cutoff)
		return err
	})
	return pruned, err
}

// SecurityEvents lists recorded call rejections, newest first.
func (n *Node) SecurityEvents(ctx context.Context, filter storage.SecurityEventFilter) ([]storage.SecurityEvent, error) {
	var events []storage.SecurityEvent
	err := n.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		events, err = tx.ListSecurityEvents(filter)
		return err
	})
	return events, err
}

// Mine advances the chain by blocks.
func (n *Node) Mine(ctx context.Context, blocks uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chain.Mine(ctx, blocks)
}

// Mint credits test tokens to account.
func (n *Node) Mint(ctx context.Context, account string, amount uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token.Mint(ctx, account, amount)
}

func toCallError(err error) (*models.CallError, bool) {
	var regErr *registry.Error
	if errors.As(err, &regErr) {
		return &models.CallError{
			Code:    uint32(regErr.Code),
			Name:    regErr.Code.String(),
			Message: regErr.Error(),
		}, true
	}
	var assetErr *chain.AssetError
	if errors.As(err, &assetErr) {
		return &models.CallError{
			Code:    assetErr.Code,
			Name:    "ASSET_TRANSFER_FAILED",
			Message: assetErr.Error(),
		}, true
	}
	return nil, false
}

// TransfersToModels converts stored transfer events to their wire view.
func TransfersToModels(events []storage.TransferEvent) []models.Transfer {
	out := make([]models.Transfer, 0, len(events))
	for _, event := range events {
		out = append(out, models.Transfer{
			EventID:   event.EventID,
			CallID:    event.CallID,
			Asset:     event.Asset,
			Amount:    event.Amount,
			Sender:    event.Sender,
			Recipient: event.Recipient,
			Height:    event.Height,
			Timestamp: event.Timestamp,
		})
	}
	return out
}
