package registry

import (
	"errors"
	"fmt"
)

// Code is the stable numeric error code reported to callers.
type Code uint32

const (
	CodeNotOwner         Code = 1005
	CodeNotFound         Code = 1006
	CodeNotAuthor        Code = 1007
	CodeNotAuthorized    Code = 1008
	CodeNotRecipient     Code = 1009
	CodeInvalidRecipient Code = 1010
	CodeInvalidContent   Code = 1011
	CodeUnsupported      Code = 1012
	CodeOverflow         Code = 1013
)

// Error is a registry failure with a machine-readable code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("registry: %s: %v", e.Message, e.Cause)
	}
	return "registry: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a registry error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	// ErrNotOwner indicates a privileged operation by someone other than the owner.
	ErrNotOwner = &Error{Code: CodeNotOwner, Message: "caller is not the contract owner"}
	// ErrNotFound indicates the referenced message is absent or deleted.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "message not found"}
	// ErrNotAuthor indicates an edit by someone other than the author.
	ErrNotAuthor = &Error{Code: CodeNotAuthor, Message: "caller is not the message author"}
	// ErrNotAuthorized indicates a delete by an ineligible caller.
	ErrNotAuthorized = &Error{Code: CodeNotAuthorized, Message: "caller may not delete this message"}
	// ErrNotRecipient indicates mark-read by someone other than the recipient.
	ErrNotRecipient = &Error{Code: CodeNotRecipient, Message: "caller is not the message recipient"}
	// ErrInvalidRecipient indicates a self-addressed direct message.
	ErrInvalidRecipient = &Error{Code: CodeInvalidRecipient, Message: "invalid recipient"}
	// ErrInvalidContent indicates oversized or non UTF-8 content.
	ErrInvalidContent = &Error{Code: CodeInvalidContent, Message: "invalid message content"}
	// ErrUnsupported indicates an operation the configured variant does not offer.
	ErrUnsupported = &Error{Code: CodeUnsupported, Message: "operation not supported by this registry variant"}
	// ErrOverflow indicates a counter or balance would exceed its range.
	ErrOverflow = &Error{Code: CodeOverflow, Message: "arithmetic overflow"}
)

func errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(id uint64) *Error {
	return errorf(CodeNotFound, "message %d not found", id)
}

// CodeOf extracts the registry code from err, if any.
func CodeOf(err error) (Code, bool) {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Code, true
	}
	return 0, false
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case CodeNotOwner:
		return "NOT_OWNER"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeNotAuthor:
		return "NOT_AUTHOR"
	case CodeNotAuthorized:
		return "NOT_AUTHORIZED"
	case CodeNotRecipient:
		return "NOT_RECIPIENT"
	case CodeInvalidRecipient:
		return "INVALID_RECIPIENT"
	case CodeInvalidContent:
		return "INVALID_CONTENT"
	case CodeUnsupported:
		return "UNSUPPORTED"
	case CodeOverflow:
		return "OVERFLOW"
	default:
		return fmt.Sprintf("CODE_%d", uint32(c))
	}
}
