package node

import (
	"context"
	"encoding/json"
	"fmt"

	"msgboard/models"
	"msgboard/registry"
)

// Read-only function names accepted by Query.
const (
	QGetMessage          = "get-message"
	QGetMessageAuthor    = "get-message-author"
	QGetMessageContent   = "get-message-content"
	QGetMessageTime      = "get-message-time"
	QGetMessageSender    = "get-message-sender"
	QGetMessageRecipient = "get-message-recipient"
	QIsMessageAuthor     = "is-message-author"
	QGetMessageCount     = "get-message-count"
	QGetCountAtBlock     = "get-message-count-at-block"
	QGetContractBalance  = "get-contract-balance"
	QGetBlockHeight      = "get-block-height"
	QGetHistory          = "get-history"
)

// AuthorArgs are the arguments of is-message-author.
type AuthorArgs struct {
	ID        uint64 `json:"id"`
	Principal string `json:"principal"`
}

// HeightArgs are the arguments of get-message-count-at-block.
type HeightArgs struct {
	Height uint64 `json:"height"`
}

type queryFunc func(ctx context.Context, n *Node, args json.RawMessage) (any, error)

var queryFunctions = map[string]queryFunc{
	QGetMessage: func(ctx context.Context, n *Node, raw json.RawMessage) (any, error) {
		var args IDArgs
		if err := decodeQueryArgs(QGetMessage, raw, &args); err != nil {
			return nil, err
		}
		message, ok, err := n.registry.GetMessage(ctx, args.ID)
		if err != nil || !ok {
			return nil, err
		}
		view := MessageToModel(message)
		return &view, nil
	},
	QGetMessageAuthor:    fieldQuery(QGetMessageAuthor, registry.FieldAuthor),
	QGetMessageContent:   fieldQuery(QGetMessageContent, registry.FieldContent),
	QGetMessageTime:      fieldQuery(QGetMessageTime, registry.FieldTime),
	QGetMessageSender:    fieldQuery(QGetMessageSender, registry.FieldSender),
	QGetMessageRecipient: fieldQuery(QGetMessageRecipient, registry.FieldRecipient),
	QIsMessageAuthor: func(ctx context.Context, n *Node, raw json.RawMessage) (any, error) {
		var args AuthorArgs
		if err := decodeQueryArgs(QIsMessageAuthor, raw, &args); err != nil {
			return nil, err
		}
		return n.registry.IsMessageAuthor(ctx, args.ID, args.Principal)
	},
	QGetMessageCount: func(ctx context.Context, n *Node, _ json.RawMessage) (any, error) {
		return n.registry.MessageCount(ctx)
	},
	QGetCountAtBlock: func(ctx context.Context, n *Node, raw json.RawMessage) (any, error) {
		var args HeightArgs
		if err := decodeQueryArgs(QGetCountAtBlock, raw, &args); err != nil {
			return nil, err
		}
		return n.registry.CountAt(ctx, args.Height)
	},
	QGetContractBalance: func(ctx context.Context, n *Node, _ json.RawMessage) (any, error) {
		return n.registry.Balance(ctx)
	},
	QGetBlockHeight: func(ctx context.Context, n *Node, _ json.RawMessage) (any, error) {
		return n.chain.Height(ctx)
	},
	QGetHistory: func(ctx context.Context, n *Node, _ json.RawMessage) (any, error) {
		snapshots, err := n.registry.Snapshots(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]models.Snapshot, 0, len(snapshots))
		for _, s := range snapshots {
			out = append(out, models.Snapshot{Height: s.Height, Count: s.Count})
		}
		return out, nil
	},
}

func fieldQuery(function string, field registry.Field) queryFunc {
	return func(ctx context.Context, n *Node, raw json.RawMessage) (any, error) {
		var args IDArgs
		if err := decodeQueryArgs(function, raw, &args); err != nil {
			return nil, err
		}
		return n.registry.MessageField(ctx, args.ID, field)
	}
}

// Query runs a read-only function and returns its JSON-encoded result.
// Registry failures are returned as *registry.Error.
func (n *Node) Query(ctx context.Context, function string, args json.RawMessage) (json.RawMessage, error) {
	fn, ok := queryFunctions[function]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, function)
	}
	result, err := fn(ctx, n, args)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", function, err)
	}
	return encoded, nil
}

// MessageToModel converts a registry record to its wire view.
func MessageToModel(message registry.Message) models.Message {
	return models.Message{
		ID:        message.ID,
		Author:    message.Author,
		Recipient: message.Recipient,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
		IsRead:    message.Read,
	}
}

func decodeQueryArgs(function string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s requires arguments", ErrInvalidCall, function)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s arguments: %v", ErrInvalidCall, function, err)
	}
	return nil
}
