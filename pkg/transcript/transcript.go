// Package transcript maintains the rolling hash of handshake messages.
//
// The hash algorithm is not known until the cipher suite is chosen, so
// messages written before Start are buffered and folded in when the
// hash begins. A raw copy of the handshake bytes is also retained for
// TLS 1.2 CertificateVerify signing, and dropped as soon as client
// auth is decided against.
package transcript

import (
	"crypto"
	"hash"
)

// Transcript accumulates handshake messages in their wire form (the
// handshake header and body, not the outer record).
type Transcript struct {
	buffer  []byte
	h       hash.Hash
	keepRaw bool
}

// New creates an empty transcript. Raw bytes are retained until
// AbandonClientAuth.
func New() *Transcript {
	return &Transcript{keepRaw: true}
}

// Start begins hashing with the suite's hash. Buffered pre-start
// writes are folded in, in order. Must be called exactly once.
func (t *Transcript) Start(alg crypto.Hash) {
	t.h = alg.New()
	t.h.Write(t.buffer)
	if !t.keepRaw {
		t.buffer = nil
	}
}

// Started reports whether the hash has begun.
func (t *Transcript) Started() bool {
	return t.h != nil
}

// Add mixes one handshake message's wire encoding into the transcript.
func (t *Transcript) Add(encoded []byte) {
	if t.h != nil {
		t.h.Write(encoded)
	}
	if t.h == nil || t.keepRaw {
		t.buffer = append(t.buffer, encoded...)
	}
}

// CurrentHash returns a snapshot of the rolling hash. Start must have
// been called. Sum does not disturb the rolling state.
func (t *Transcript) CurrentHash() []byte {
	return t.h.Sum(nil)
}

// TakeHandshakeBuf returns the raw handshake bytes and drains them.
// Used for TLS 1.2 CertificateVerify, which signs the accumulated
// messages rather than a hash.
func (t *Transcript) TakeHandshakeBuf() []byte {
	buf := t.buffer
	t.buffer = nil
	t.keepRaw = false
	return buf
}

// AbandonClientAuth discards the raw buffer while keeping the rolling
// hash, bounding memory once client auth is off the table.
func (t *Transcript) AbandonClientAuth() {
	t.keepRaw = false
	if t.h != nil {
		t.buffer = nil
	}
}
