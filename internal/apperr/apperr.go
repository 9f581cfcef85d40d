// Package apperr defines the error taxonomy shared by every boundary-facing
// component. Each failure carries a Kind and a message that can be shown to
// the user as is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is a missing or invalid required setting at startup.
	KindConfig
	// KindCodec is a failure to read or encode an image reference.
	KindCodec
	// KindNetwork is a remote call that did not complete.
	KindNetwork
	// KindRemote is a remote call that completed with an error payload.
	KindRemote
	// KindParse is a well-formed reply that is not in the expected shape.
	KindParse
	// KindValidation is user input rejected before any remote call.
	KindValidation
	// KindUnauthenticated is an operation that needs an active session.
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindCodec:
		return "CodecError"
	case KindNetwork:
		return "NetworkError"
	case KindRemote:
		return "RemoteRejection"
	case KindParse:
		return "ParseError"
	case KindValidation:
		return "ValidationError"
	case KindUnauthenticated:
		return "Unauthenticated"
	default:
		return "Unknown"
	}
}

// Error is the failure type returned by clients, stores and the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err.Error() == e.Message {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and message, so sentinel
// values declared with New can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// New creates an error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and a user-facing message to err.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Config(message string) *Error     { return New(KindConfig, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Parse(message string) *Error      { return New(KindParse, message) }
func Remote(message string) *Error     { return New(KindRemote, message) }

// Network wraps a transport failure. The message is the transport error text.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}

// Codec wraps an image read or encode failure.
func Codec(err error, message string) *Error {
	return Wrap(KindCodec, err, message)
}

// As returns the *Error in err's chain, if any.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message for err. For foreign errors it
// falls back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e := As(err); e != nil {
		return e.Message
	}
	return err.Error()
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
