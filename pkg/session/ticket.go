package session

import (
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
)

// Ticketer seals and opens RFC 5077 session tickets. Encryption
// failures are not reportable on the wire, so Encrypt returns ok=false
// and the server sends an empty ticket, which clients treat as "not
// issued".
type Ticketer interface {
	// Enabled reports whether tickets should be offered at all.
	Enabled() bool

	// Encrypt seals a session state blob into a ticket.
	Encrypt(plain []byte) (ticket []byte, ok bool)

	// Decrypt opens a ticket back into the session state blob.
	Decrypt(ticket []byte) (plain []byte, ok bool)

	// Lifetime is the lifetime hint advertised in NewSessionTicket,
	// in seconds.
	Lifetime() uint32
}

// DisabledTicketer issues no tickets; the zero server default.
type DisabledTicketer struct{}

// Enabled implements Ticketer.
func (DisabledTicketer) Enabled() bool { return false }

// Encrypt implements Ticketer.
func (DisabledTicketer) Encrypt(plain []byte) ([]byte, bool) { return nil, false }

// Decrypt implements Ticketer.
func (DisabledTicketer) Decrypt(ticket []byte) ([]byte, bool) { return nil, false }

// Lifetime implements Ticketer.
func (DisabledTicketer) Lifetime() uint32 { return 0 }

// AEADTicketer seals tickets with ChaCha20-Poly1305 under an internal
// key. It keeps the previous key across one rotation so tickets issued
// just before a rotation still decrypt.
type AEADTicketer struct {
	mu          sync.RWMutex
	currentKey  []byte
	previousKey []byte
	lifetime    uint32
}

// NewAEADTicketer creates a ticketer with a fresh random key.
// lifetimeSeconds of 0 selects the default.
func NewAEADTicketer(lifetimeSeconds uint32) *AEADTicketer {
	if lifetimeSeconds == 0 {
		lifetimeSeconds = constants.DefaultTicketLifetimeSeconds
	}
	key := make([]byte, constants.TicketKeySize)
	mustRandom(key)
	return &AEADTicketer{currentKey: key, lifetime: lifetimeSeconds}
}

// NewAEADTicketerWithKey creates a ticketer around a caller-supplied
// 32-byte key, for ticketers shared across processes.
func NewAEADTicketerWithKey(key []byte, lifetimeSeconds uint32) (*AEADTicketer, error) {
	if len(key) != constants.TicketKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	if lifetimeSeconds == 0 {
		lifetimeSeconds = constants.DefaultTicketLifetimeSeconds
	}
	return &AEADTicketer{
		currentKey: append([]byte(nil), key...),
		lifetime:   lifetimeSeconds,
	}, nil
}

// RotateKey installs a new key and demotes the current one.
func (t *AEADTicketer) RotateKey() {
	key := make([]byte, constants.TicketKeySize)
	mustRandom(key)
	t.mu.Lock()
	t.previousKey = t.currentKey
	t.currentKey = key
	t.mu.Unlock()
}

// Enabled implements Ticketer.
func (t *AEADTicketer) Enabled() bool { return true }

// Lifetime implements Ticketer.
func (t *AEADTicketer) Lifetime() uint32 { return t.lifetime }

// Encrypt implements Ticketer. The ticket is nonce || sealed.
func (t *AEADTicketer) Encrypt(plain []byte) ([]byte, bool) {
	t.mu.RLock()
	key := t.currentKey
	t.mu.RUnlock()

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, false
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	mustRandom(nonce)

	out := make([]byte, 0, len(nonce)+len(plain)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, nil)
	return out, true
}

// Decrypt implements Ticketer, trying the current then previous key.
func (t *AEADTicketer) Decrypt(ticket []byte) ([]byte, bool) {
	if len(ticket) < chacha20poly1305.NonceSize || len(ticket) > constants.MaxTicketSize {
		return nil, false
	}

	t.mu.RLock()
	current, previous := t.currentKey, t.previousKey
	t.mu.RUnlock()

	nonce := ticket[:chacha20poly1305.NonceSize]
	sealed := ticket[chacha20poly1305.NonceSize:]

	for _, key := range [][]byte{current, previous} {
		if key == nil {
			continue
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			continue
		}
		if plain, err := aead.Open(nil, nonce, sealed, nil); err == nil {
			return plain, true
		}
	}
	return nil, false
}
