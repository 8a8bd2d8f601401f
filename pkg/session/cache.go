package session

import (
	"sync"

	"golang.org/x/crypto/cryptobyte"

	"github.com/veiltls/veil/internal/constants"
	"github.com/veiltls/veil/pkg/wire"
)

// Storage is the session persistence backend shared by sessions of one
// configuration. Implementations are mutex-guarded; Put may refuse at
// capacity and that refusal is not an error.
type Storage interface {
	// Put stores a value. Returns false when refused.
	Put(key, value []byte) bool

	// Get returns the stored value for key.
	Get(key []byte) ([]byte, bool)

	// Generate returns a fresh random session id.
	Generate() []byte
}

// MemoryStorage is the built-in map-backed Storage.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string][]byte
	cap     int
}

// NewMemoryStorage creates a storage bounded to capacity entries;
// capacity <= 0 selects the default.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = constants.DefaultSessionCacheSize
	}
	return &MemoryStorage{
		entries: make(map[string][]byte),
		cap:     capacity,
	}
}

// Put implements Storage. Refuses new keys at capacity; overwrites of
// existing keys always succeed.
func (m *MemoryStorage) Put(key, value []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	if _, exists := m.entries[k]; !exists && len(m.entries) >= m.cap {
		return false
	}
	m.entries[k] = append([]byte(nil), value...)
	return true
}

// Get implements Storage.
func (m *MemoryStorage) Get(key []byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Generate implements Storage: a fresh random 32-byte session id.
func (m *MemoryStorage) Generate() []byte {
	id := make([]byte, constants.MaxSessionIDSize)
	mustRandom(id)
	return id
}

// clientSessionKeyPrefix namespaces client cache keys by protocol era,
// so a future TLS 1.3 resumption store cannot collide.
const clientSessionKeyPrefix = "tls12client"

// clientSessionKey builds the cache key for a DNS name.
func clientSessionKey(dnsName string) []byte {
	key := make([]byte, 0, len(clientSessionKeyPrefix)+len(dnsName))
	key = append(key, clientSessionKeyPrefix...)
	return append(key, dnsName...)
}

// clientSessionValue is the client-side persisted session: enough to
// offer both session-id and ticket resumption.
type clientSessionValue struct {
	suiteID      wire.CipherSuiteID
	sessionID    []byte
	ticket       []byte
	masterSecret []byte
}

func (v *clientSessionValue) encode() []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(v.suiteID))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(v.sessionID)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(v.ticket)
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(v.masterSecret)
	})
	out, _ := b.Bytes()
	return out
}

func decodeClientSessionValue(data []byte) (*clientSessionValue, bool) {
	s := cryptobyte.String(data)
	var suiteID uint16
	var sessionID, ticket, master cryptobyte.String
	if !s.ReadUint16(&suiteID) ||
		!s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16LengthPrefixed(&ticket) ||
		!s.ReadUint8LengthPrefixed(&master) ||
		!s.Empty() {
		return nil, false
	}
	v := &clientSessionValue{
		suiteID:      wire.CipherSuiteID(suiteID),
		masterSecret: append([]byte(nil), master...),
	}
	if len(sessionID) > 0 {
		v.sessionID = append([]byte(nil), sessionID...)
	}
	if len(ticket) > 0 {
		v.ticket = append([]byte(nil), ticket...)
	}
	return v, true
}

// takeTicket moves the ticket out of the value.
func (v *clientSessionValue) takeTicket() []byte {
	t := v.ticket
	v.ticket = nil
	return t
}

// serverSessionValue is the server-side persisted session, stored in
// the session-id cache and sealed into tickets.
type serverSessionValue struct {
	suiteID         wire.CipherSuiteID
	masterSecret    []byte
	clientCertChain [][]byte
}

func (v *serverSessionValue) encode() []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(v.suiteID))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(v.masterSecret)
	})
	if v.clientCertChain != nil {
		b.AddUint8(1)
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, cert := range v.clientCertChain {
				b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes(cert)
				})
			}
		})
	} else {
		b.AddUint8(0)
	}
	out, _ := b.Bytes()
	return out
}

func decodeServerSessionValue(data []byte) (*serverSessionValue, bool) {
	s := cryptobyte.String(data)
	var suiteID uint16
	var master cryptobyte.String
	var hasCerts uint8
	if !s.ReadUint16(&suiteID) ||
		!s.ReadUint8LengthPrefixed(&master) ||
		!s.ReadUint8(&hasCerts) {
		return nil, false
	}
	v := &serverSessionValue{
		suiteID:      wire.CipherSuiteID(suiteID),
		masterSecret: append([]byte(nil), master...),
	}
	if hasCerts == 1 {
		var list cryptobyte.String
		if !s.ReadUint24LengthPrefixed(&list) {
			return nil, false
		}
		v.clientCertChain = [][]byte{}
		for !list.Empty() {
			var cert cryptobyte.String
			if !list.ReadUint24LengthPrefixed(&cert) {
				return nil, false
			}
			v.clientCertChain = append(v.clientCertChain, append([]byte(nil), cert...))
		}
	}
	if !s.Empty() {
		return nil, false
	}
	return v, true
}
