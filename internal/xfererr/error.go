// Package xfererr defines the closed error taxonomy every Transport
// operation reports through, per spec §4.C/§7.
package xfererr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind is one member of the closed transport-error taxonomy.
type Kind int

const (
	AuthenticationFailed Kind = iota
	BadAddress
	ConnectionError
	SslError
	DirStatFailed
	DirectoryAlreadyExists
	FileCreateDenied
	NoSuchFileOrDirectory
	PexError
	ProtocolError
	UninitializedSession
	UnsupportedFeature
)

func (k Kind) String() string {
	switch k {
	case AuthenticationFailed:
		return "authentication failed"
	case BadAddress:
		return "bad address syntax"
	case ConnectionError:
		return "connection error"
	case SslError:
		return "ssl error"
	case DirStatFailed:
		return "could not stat directory"
	case DirectoryAlreadyExists:
		return "directory already exists"
	case FileCreateDenied:
		return "failed to create file"
	case NoSuchFileOrDirectory:
		return "no such file or directory"
	case PexError:
		return "not enough permissions"
	case ProtocolError:
		return "protocol error"
	case UninitializedSession:
		return "uninitialized session"
	case UnsupportedFeature:
		return "unsupported feature"
	default:
		return "unknown error"
	}
}

// Error is a taxonomy Kind with an optional human message and an optional
// wrapped cause. Every surfaced error carries a short human message;
// implementations should never format raw backend strings into protocol
// fields.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an underlying cause, preserving it via
// github.com/pkg/errors so Cause() keeps working up the chain.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: pkgerrors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
