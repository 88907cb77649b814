package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrClosed is returned when a closed store is used.
	ErrClosed = errors.New("storage: store is closed")
	// ErrValueRange indicates an unsigned value that SQLite INTEGER cannot hold.
	ErrValueRange = errors.New("storage: value exceeds integer range")
)

// MaxValue is the largest unsigned quantity the schema can persist.
const MaxValue uint64 = math.MaxInt64

// Tx is one open transaction handed out by Store.Update or Store.View.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Message is the SQLite representation of a registry record.
type Message struct {
	ID        uint64
	Author    string
	Recipient string
	Content   string
	CreatedAt uint64
	IsRead    bool
}

// Snapshot is one recorded (height, count) pair.
type Snapshot struct {
	Height uint64
	Count  uint64
}

// TransferEvent is one persisted fungible-asset transfer.
type TransferEvent struct {
	EventID   string
	CallID    string
	Asset     string
	Amount    uint64
	Sender    string
	Recipient string
	Height    uint64
	Timestamp int64
}

// TransferFilter narrows ListTransfers results.
type TransferFilter struct {
	CallID  string
	Account string
	Height  *uint64
	Limit   int
	Offset  int
}

// Security event severities.
const (
	SecuritySeverityInfo     = "INFO"
	SecuritySeverityWarning  = "WARNING"
	SecuritySeverityCritical = "CRITICAL"
)

// DefaultSecurityEventRetention is how long rejected-call records are kept.
const DefaultSecurityEventRetention = 90 * 24 * time.Hour

// SecurityEvent records one call the node refused to execute.
type SecurityEvent struct {
	ID        int64
	EventType string
	Sender    string
	CallID    string
	Details   string
	Severity  string
	Timestamp int64
}

// SecurityEventFilter narrows ListSecurityEvents results.
type SecurityEventFilter struct {
	EventType     string
	Sender        string
	Severity      string
	FromTimestamp *int64
	ToTimestamp   *int64
	Limit         int
	Offset        int
}

// KnownNode is a registry node found on the local network.
type KnownNode struct {
	NodeID    string
	NodeName  string
	Registry  string
	Owner     string
	Variant   string
	Version   string
	Address   string
	Port      int
	FirstSeen int64
	LastSeen  int64
}

type scanner interface {
	Scan(dest ...any) error
}

func toInt64(v uint64) (int64, error) {
	if v > MaxValue {
		return 0, fmt.Errorf("%w: %d", ErrValueRange, v)
	}
	return int64(v), nil
}

func toUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func stringFromNull(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
