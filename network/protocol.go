package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"msgboard/chain"
	"msgboard/models"
)

const (
	// ProtocolVersion is the current wire protocol version.
	ProtocolVersion = 1
	// MaxFrameSize is the maximum accepted frame payload size (10 MB).
	MaxFrameSize = 10 * 1024 * 1024
	// DefaultConnectionTimeout bounds TCP dial duration.
	DefaultConnectionTimeout = 30 * time.Second
	// DefaultIdleTimeout closes connections that send nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultRequestTimeout bounds one request/response exchange.
	DefaultRequestTimeout = 30 * time.Second
)

const (
	TypeCall        = "call"
	TypeQuery       = "query"
	TypeReceipt     = "receipt"
	TypeQueryResult = "query_result"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// Error codes carried by ErrorMessage.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnknownType     = "unknown_type"
	CodeInvalidCall     = "invalid_call"
	CodeReplayedCall    = "replayed_call"
	CodeStaleCall       = "stale_call"
	CodeUnknownFunction = "unknown_function"
	CodeRegistry        = "registry_error"
	CodeInternal        = "internal_error"
)

var (
	// ErrFrameTooLarge indicates payload exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("network: frame exceeds max size")
	// ErrInvalidMessageType indicates the message type is missing or unknown.
	ErrInvalidMessageType = errors.New("network: invalid message type")
	// ErrUnsupportedVersion indicates protocol version mismatch.
	ErrUnsupportedVersion = errors.New("network: unsupported protocol version")
)

// Envelope identifies the protocol message type.
type Envelope struct {
	Type string `json:"type"`
}

// CallRequest submits a signed call for execution.
type CallRequest struct {
	Type            string     `json:"type"`
	RequestID       string     `json:"request_id"`
	ProtocolVersion int        `json:"protocol_version"`
	Call            chain.Call `json:"call"`
}

// QueryRequest runs a read-only registry function.
type QueryRequest struct {
	Type            string          `json:"type"`
	RequestID       string          `json:"request_id"`
	ProtocolVersion int             `json:"protocol_version"`
	Function        string          `json:"function"`
	Args            json.RawMessage `json:"args,omitempty"`
}

// ReceiptMessage answers a CallRequest.
type ReceiptMessage struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Receipt   models.Receipt `json:"receipt"`
}

// QueryResultMessage answers a QueryRequest.
type QueryResultMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result"`
}

// PingMessage is a liveness probe.
type PingMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

// PongMessage answers a ping.
type PongMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	Type              string `json:"type"`
	RequestID         string `json:"request_id,omitempty"`
	Code              string `json:"code"`
	RegistryCode      uint32 `json:"registry_code,omitempty"`
	Message           string `json:"message"`
	SupportedVersions []int  `json:"supported_versions,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// EncodeJSON marshals a protocol message to JSON.
func EncodeJSON(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal protocol message: %w", err)
	}
	return payload, nil
}

// DecodeMessageType extracts the "type" field from a payload.
func DecodeMessageType(payload []byte) (string, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Type == "" {
		return "", ErrInvalidMessageType
	}
	return envelope.Type, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

// ReadFrameWithTimeout reads a frame with an optional read deadline.
func ReadFrameWithTimeout(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
		}()
	}
	return ReadFrame(conn)
}

func writeJSONFrame(w io.Writer, message any) error {
	payload, err := EncodeJSON(message)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
