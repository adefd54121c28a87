package apperr

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindInvalidGrant        Kind = "invalid_grant"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindTimeout             Kind = "timeout"
	KindCanceled            Kind = "canceled"
	KindRefreshFailed       Kind = "refresh_failed"
	KindUserNotConnected    Kind = "user_not_connected"
	KindStoreUnavailable    Kind = "store_unavailable"

	// KindDeliveryUnauthorized is returned by the delivery capability when the
	// provider rejected the access token.
	KindDeliveryUnauthorized Kind = "delivery_unauthorized"

	// KindDeliveryRejected is returned when the provider refused the message
	// itself (bad recipient, malformed payload).
	KindDeliveryRejected Kind = "delivery_rejected"
)

// Sentinels for use with errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidGrant         = &Error{Kind: KindInvalidGrant}
	ErrProviderUnavailable  = &Error{Kind: KindProviderUnavailable}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrCanceled             = &Error{Kind: KindCanceled}
	ErrRefreshFailed        = &Error{Kind: KindRefreshFailed}
	ErrUserNotConnected     = &Error{Kind: KindUserNotConnected}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrDeliveryUnauthorized = &Error{Kind: KindDeliveryUnauthorized}
	ErrDeliveryRejected     = &Error{Kind: KindDeliveryRejected}
)

// Error is a classified error. Op names the operation that failed
// (for example "credstore.gcp.get"), Message is a human readable summary
// and Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err == nil {
		parts = append(parts, string(e.Kind))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Unavailable classifies a failed outbound call. Deadline errors become
// KindTimeout, cancellation becomes KindCanceled and everything else becomes
// the given kind.
func Unavailable(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Interrupted classifies err by the state of ctx: KindTimeout once the
// deadline passed, KindCanceled once the caller gave up. It returns nil
// while ctx is still live.
func Interrupted(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Op: op, Err: err}
	}
	return nil
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
