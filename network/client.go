package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgboard/chain"
	"msgboard/models"
	"msgboard/node"
	"msgboard/registry"
)

// RemoteError is an error frame returned by a node.
type RemoteError struct {
	Code         string
	RegistryCode uint32
	Message      string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error [%s]: %s", e.Code, e.Message)
}

// Unwrap maps the remote code back to the local sentinel so errors.Is works
// across the wire.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeRegistry:
		return &registry.Error{Code: registry.Code(e.RegistryCode), Message: e.Message}
	case CodeReplayedCall:
		return node.ErrReplayedCall
	case CodeStaleCall:
		return node.ErrStaleCall
	case CodeUnknownFunction:
		return node.ErrUnknownFunction
	case CodeInvalidCall:
		return node.ErrInvalidCall
	case "unsupported_version":
		return ErrUnsupportedVersion
	default:
		return nil
	}
}

// ClientOptions configures Dial.
type ClientOptions struct {
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	out := o
	if out.ConnectionTimeout <= 0 {
		out.ConnectionTimeout = DefaultConnectionTimeout
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	return out
}

// Client is a connection to a remote node. Requests are serialised.
type Client struct {
	conn    net.Conn
	options ClientOptions

	mu sync.Mutex
}

// Dial connects to a node.
func Dial(ctx context.Context, address string, options ClientOptions) (*Client, error) {
	opts := options.withDefaults()

	dialer := net.Dialer{Timeout: opts.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", address, err)
	}

	return &Client{conn: conn, options: opts}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Submit sends a signed call and waits for its receipt.
func (c *Client) Submit(ctx context.Context, call chain.Call) (models.Receipt, error) {
	requestID := uuid.NewString()
	payload, err := c.roundTrip(ctx, requestID, CallRequest{
		Type:            TypeCall,
		RequestID:       requestID,
		ProtocolVersion: ProtocolVersion,
		Call:            call,
	}, TypeReceipt)
	if err != nil {
		return models.Receipt{}, err
	}

	var response ReceiptMessage
	if err := json.Unmarshal(payload, &response); err != nil {
		return models.Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return response.Receipt, nil
}

// Query runs a read-only function on the node.
func (c *Client) Query(ctx context.Context, function string, args any) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal query args: %w", err)
		}
		raw = encoded
	}

	requestID := uuid.NewString()
	payload, err := c.roundTrip(ctx, requestID, QueryRequest{
		Type:            TypeQuery,
		RequestID:       requestID,
		ProtocolVersion: ProtocolVersion,
		Function:        function,
		Args:            raw,
	}, TypeQueryResult)
	if err != nil {
		return nil, err
	}

	var response QueryResultMessage
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return response.Result, nil
}

// Ping measures the round trip to the node.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	requestID := uuid.NewString()
	if _, err := c.roundTrip(ctx, requestID, PingMessage{
		Type:      TypePing,
		RequestID: requestID,
		Timestamp: started.UnixMilli(),
	}, TypePong); err != nil {
		return 0, err
	}
	return time.Since(started), nil
}

func (c *Client) roundTrip(ctx context.Context, requestID string, request any, wantType string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.options.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set request deadline: %w", err)
	}
	defer func() {
		_ = c.conn.SetDeadline(time.Time{})
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := writeJSONFrame(c.conn, request); err != nil {
		return nil, err
	}
	payload, err := ReadFrame(c.conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	msgType, err := DecodeMessageType(payload)
	if err != nil {
		return nil, err
	}
	if msgType == TypeError {
		var remote ErrorMessage
		if err := json.Unmarshal(payload, &remote); err != nil {
			return nil, fmt.Errorf("decode remote error response: %w", err)
		}
		return nil, &RemoteError{Code: remote.Code, RegistryCode: remote.RegistryCode, Message: remote.Message}
	}
	if msgType != wantType {
		return nil, fmt.Errorf("expected %q, got %q", wantType, msgType)
	}

	var envelope struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if envelope.RequestID != requestID {
		return nil, errors.New("response does not match request")
	}
	return payload, nil
}
