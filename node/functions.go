package node

import (
	"context"
	"errors"

	"msgboard/chain"
	"msgboard/registry"
)

// Public function names accepted by Submit.
const (
	FnAddMessage    = "add-message"
	FnSendMessage   = "send-message"
	FnEditMessage   = "edit-message"
	FnDeleteMessage = "delete-message"
	FnMarkRead      = "mark-read"
	FnWithdrawFunds = "withdraw-funds"
)

// ContentArgs are the arguments of add-message.
type ContentArgs struct {
	Content string `json:"content"`
}

// SendArgs are the arguments of send-message.
type SendArgs struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// EditArgs are the arguments of edit-message.
type EditArgs struct {
	ID      uint64 `json:"id"`
	Content string `json:"content"`
}

// IDArgs carry a single message id.
type IDArgs struct {
	ID uint64 `json:"id"`
}

type execFunc func(ctx context.Context, reg *registry.Registry, sender string) (any, error)

// Each entry decodes the call arguments up front so that a malformed call is
// rejected before its id is consumed.
var publicFunctions = map[string]func(call chain.Call) (execFunc, error){
	FnAddMessage: func(call chain.Call) (execFunc, error) {
		var args ContentArgs
		if err := call.DecodeArgs(&args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			return reg.AddMessage(ctx, sender, args.Content)
		}, nil
	},
	FnSendMessage: func(call chain.Call) (execFunc, error) {
		var args SendArgs
		if err := call.DecodeArgs(&args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			return reg.SendMessage(ctx, sender, args.Recipient, args.Content)
		}, nil
	},
	FnEditMessage: func(call chain.Call) (execFunc, error) {
		var args EditArgs
		if err := call.DecodeArgs(&args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			if err := reg.EditMessage(ctx, sender, args.ID, args.Content); err != nil {
				return nil, err
			}
			return true, nil
		}, nil
	},
	FnDeleteMessage: func(call chain.Call) (execFunc, error) {
		var args IDArgs
		if err := call.DecodeArgs(&args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			if err := reg.DeleteMessage(ctx, sender, args.ID); err != nil {
				return nil, err
			}
			return true, nil
		}, nil
	},
	FnMarkRead: func(call chain.Call) (execFunc, error) {
		var args IDArgs
		if err := call.DecodeArgs(&args); err != nil {
			return nil, err
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			if err := reg.MarkRead(ctx, sender, args.ID); err != nil {
				return nil, err
			}
			return true, nil
		}, nil
	},
	FnWithdrawFunds: func(call chain.Call) (execFunc, error) {
		if len(call.Args) > 0 && string(call.Args) != "null" && string(call.Args) != "{}" {
			return nil, errors.New("withdraw-funds takes no arguments")
		}
		return func(ctx context.Context, reg *registry.Registry, sender string) (any, error) {
			return reg.Withdraw(ctx, sender)
		}, nil
	},
}
