package models

import "encoding/json"

// Receipt reports the outcome of one submitted call.
type Receipt struct {
	CallID   string          `json:"call_id"`
	Function string          `json:"function"`
	Sender   string          `json:"sender"`
	Height   uint64          `json:"height"`
	OK       bool            `json:"ok"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *CallError      `json:"error,omitempty"`
	Events   []Transfer      `json:"events,omitempty"`
}

// CallError is a failed call's code and description.
type CallError struct {
	Code    uint32 `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}
