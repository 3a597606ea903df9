// Package swaperr defines the error taxonomy shared by every layer of the
// swap core: chain dispatch, the UTXO selector, the chain-client back-ends,
// swap-script assembly, and transaction signing all report failures through
// a single Error type so callers can dispatch on Kind without caring which
// package raised it.
package swaperr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind tags the taxonomy of failure a swaperr.Error represents.
type Kind int

const (
	// Protocol marks a semantic violation of the swap protocol: a missing
	// hashlock or timelock, an address mismatch, an invalid peer partial
	// signature, the wrong swap type for the requested operation, an
	// absent preimage, or a missing UTXO.
	Protocol Kind = iota

	// Address marks an address parse or network-validation failure.
	Address

	// Hex marks bad hex or a missing expected hex field.
	Hex

	// Taproot marks a Taproot tree finalization failure.
	Taproot

	// Electrum marks a binary Electrum-client transport error.
	Electrum

	// Esplora marks an Esplora REST transport error, including retry
	// budget exhaustion.
	Esplora

	// Generic marks an arithmetic, fee-insufficiency, or other invariant
	// failure that does not fit the categories above.
	Generic
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Protocol:
		return "Protocol"
	case Address:
		return "Address"
	case Hex:
		return "Hex"
	case Taproot:
		return "Taproot"
	case Electrum:
		return "Electrum"
	case Esplora:
		return "Esplora"
	case Generic:
		return "Generic"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned across the swap core. It pairs a
// Kind with a message and, where the failure originated from an underlying
// cause, a stack-carrying wrap of that cause via go-errors/errors.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap allows errors.Is / errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a Error of the given kind carrying a plain message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a Error of the given kind around an underlying cause,
// recording a stack trace via go-errors/errors so the original call site
// survives propagation through the core.
func Wrap(kind Kind, msg string, cause error) *Error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, Msg: msg, Err: goerrors.Wrap(cause, 1)}
}

// Is reports whether err is a Error of the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if e, ok := err.(*Error); ok {
		se = e
	} else {
		return false
	}
	return se.Kind == kind
}
