// Package errors defines the error taxonomy for the Veil TLS library.
// Protocol errors carry enough context for debugging without leaking
// key material or plaintext in error messages.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for cryptographic operations
var (
	// ErrDecrypt indicates AEAD authentication failure or a Finished
	// verify_data mismatch. Deliberately carries no detail.
	ErrDecrypt = errors.New("tls: decrypt error")

	// ErrInvalidKeySize indicates a key of the wrong length
	ErrInvalidKeySize = errors.New("tls: invalid key size")

	// ErrKeyExchangeFailed indicates ECDHE completion failed
	ErrKeyExchangeFailed = errors.New("tls: key exchange failed")
)

// Sentinel errors for codec operations
var (
	// ErrDecodeMalformed indicates a message failed structural decoding
	ErrDecodeMalformed = errors.New("tls: malformed message")

	// ErrSessionIDTooLong indicates a session_id over 32 bytes
	ErrSessionIDTooLong = errors.New("tls: session id too long")

	// ErrInvalidTicket indicates a session ticket that does not decrypt
	ErrInvalidTicket = errors.New("tls: invalid session ticket")
)

// Sentinel errors for session state
var (
	// ErrSessionClosed indicates use of a closed session
	ErrSessionClosed = errors.New("tls: session closed")

	// ErrHandshakeNotComplete indicates traffic use before Finished
	ErrHandshakeNotComplete = errors.New("tls: handshake not complete")
)

// PeerMisbehavedError indicates the peer violated the protocol. Most
// paths queue a fatal alert before this error surfaces; some (a failed
// key exchange completion, a suite change on resumption, among others)
// return it with no alert queued.
type PeerMisbehavedError struct {
	Reason string
}

func (e *PeerMisbehavedError) Error() string {
	return fmt.Sprintf("tls: peer misbehaved: %s", e.Reason)
}

// PeerMisbehaved creates a new PeerMisbehavedError
func PeerMisbehaved(reason string) *PeerMisbehavedError {
	return &PeerMisbehavedError{Reason: reason}
}

// PeerIncompatibleError indicates no overlap in versions, suites,
// groups or point formats. A fatal alert has been queued before this
// error surfaces: HandshakeFailure, or ProtocolVersion for a client
// below TLS 1.2.
type PeerIncompatibleError struct {
	Reason string
}

func (e *PeerIncompatibleError) Error() string {
	return fmt.Sprintf("tls: peer incompatible: %s", e.Reason)
}

// PeerIncompatible creates a new PeerIncompatibleError
func PeerIncompatible(reason string) *PeerIncompatibleError {
	return &PeerIncompatibleError{Reason: reason}
}

// AlertReceivedError surfaces a fatal alert sent by the peer.
type AlertReceivedError struct {
	Description uint8
	Name        string
}

func (e *AlertReceivedError) Error() string {
	return fmt.Sprintf("tls: received fatal alert: %s", e.Name)
}

// AlertReceived creates a new AlertReceivedError
func AlertReceived(description uint8, name string) *AlertReceivedError {
	return &AlertReceivedError{Description: description, Name: name}
}

// InappropriateMessageError indicates a message the current handshake
// state does not accept.
type InappropriateMessageError struct {
	ExpectContentTypes   []uint8
	ExpectHandshakeTypes []uint8
	GotContentType       uint8
	GotHandshakeType     uint8
}

func (e *InappropriateMessageError) Error() string {
	return fmt.Sprintf("tls: inappropriate message: got content type %d (handshake type %d), expected content types %v",
		e.GotContentType, e.GotHandshakeType, e.ExpectContentTypes)
}

// GeneralError wraps internal failures (signing, certificate
// resolution) that are not the peer's fault.
type GeneralError struct {
	Reason string
	Err    error
}

func (e *GeneralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tls: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("tls: %s", e.Reason)
}

func (e *GeneralError) Unwrap() error {
	return e.Err
}

// General creates a new GeneralError
func General(reason string, err error) *GeneralError {
	return &GeneralError{Reason: reason, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
