package node

import (
	"context"
	"encoding/json"
	"errors"

	"msgboard/chain"
	"msgboard/storage"
)

// Security event types recorded for rejected calls.
const (
	EventInvalidCall     = "invalid_call"
	EventStaleCall       = "stale_call"
	EventReplayedCall    = "replayed_call"
	EventUnknownFunction = "unknown_function"
)

// rejectionEvent classifies err. Storage or context failures are not
// security events.
func rejectionEvent(err error) (string, string, bool) {
	switch {
	case errors.Is(err, ErrInvalidCall):
		return EventInvalidCall, storage.SecuritySeverityCritical, true
	case errors.Is(err, ErrReplayedCall):
		return EventReplayedCall, storage.SecuritySeverityWarning, true
	case errors.Is(err, ErrStaleCall):
		return EventStaleCall, storage.SecuritySeverityWarning, true
	case errors.Is(err, ErrUnknownFunction):
		return EventUnknownFunction, storage.SecuritySeverityInfo, true
	default:
		return "", "", false
	}
}

func (n *Node) recordRejection(ctx context.Context, call chain.Call, cause error) {
	eventType, severity, ok := rejectionEvent(cause)
	if !ok {
		return
	}

	// Sender and call id are only trusted once the signature checks out.
	var sender, callID string
	if call.Verify() == nil {
		sender, _ = call.Sender()
		callID, _ = call.ID()
	}

	details, err := json.Marshal(map[string]any{
		"function":  call.Function,
		"timestamp": call.Timestamp,
		"error":     cause.Error(),
	})
	if err != nil {
		details = nil
	}

	err = n.store.Update(ctx, func(tx *storage.Tx) error {
		return tx.LogSecurityEvent(storage.SecurityEvent{
			EventType: eventType,
			Sender:    sender,
			CallID:    callID,
			Details:   string(details),
			Severity:  severity,
			Timestamp: n.opts.Now().UnixMilli(),
		})
	})
	log := n.log.WithField("event", eventType).WithField("function", call.Function)
	if err != nil {
		log.WithError(err).Warn("record security event failed")
		return
	}
	log.WithError(cause).Warn("call refused")
}
