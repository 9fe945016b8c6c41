package ordering

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes ordering errors.
type ErrorCode string

const (
	// ErrCodeCycle indicates groups reference each other in a loop.
	ErrCodeCycle ErrorCode = "CYCLE"

	// ErrCodeInvalidGroup indicates a group registration was rejected.
	ErrCodeInvalidGroup ErrorCode = "INVALID_GROUP"
)

// Error is a configuration error raised by the resolver.
//
// Unlike render-target failures, these never resolve on their own and are
// reported to the caller that triggered resolution.
type Error struct {
	Code    ErrorCode
	Message string

	// Group is the group being registered or resolved.
	Group string

	// Chain is the reference chain for cycle errors, first group repeated
	// at the end.
	Chain []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Chain, " -> "))
	}
	if e.Group != "" {
		return fmt.Sprintf("%s: %s (group=%s)", e.Code, e.Message, e.Group)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCycleError reports whether err is (or wraps) a cycle error.
func IsCycleError(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeCycle
	}
	return false
}

// IsInvalidGroupError reports whether err is (or wraps) a rejected group
// registration.
func IsInvalidGroupError(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == ErrCodeInvalidGroup
	}
	return false
}

// NewCycleError creates an Error for a circular group reference.
func NewCycleError(chain []string) *Error {
	group := ""
	if len(chain) > 0 {
		group = chain[0]
	}
	return &Error{
		Code:    ErrCodeCycle,
		Message: "circular layer group reference",
		Group:   group,
		Chain:   append([]string(nil), chain...),
	}
}

func newInvalidGroupError(name, msg string) *Error {
	return &Error{
		Code:    ErrCodeInvalidGroup,
		Message: msg,
		Group:   name,
	}
}
