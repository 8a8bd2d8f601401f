package record

import (
	"github.com/veiltls/veil/pkg/wire"
)

// ChangeKind describes how SetMessageCipher applies a new cipher.
type ChangeKind int

// Change kinds. BothNew rotates both directions at once, which is the
// TLS 1.3 behavior at ServerHello and again after Finished.
const (
	ChangeBothNew ChangeKind = iota
)

// Guard owns the current send and receive cipher state of a session.
//
// On TLS 1.2 a cipher is prepared when the secrets exist and each
// direction activates at its ChangeCipherSpec boundary. On TLS 1.3
// SetMessageCipher rotates both directions immediately; there is no
// CCS.
type Guard struct {
	cipher MessageCipher

	sendActive bool
	recvActive bool

	sendSeq uint64
	recvSeq uint64
}

// NewGuard starts in cleartext in both directions.
func NewGuard() *Guard {
	return &Guard{}
}

// SetMessageCipher installs a cipher and activates both directions,
// resetting both sequence numbers. TLS 1.3 only.
func (g *Guard) SetMessageCipher(c MessageCipher, kind ChangeKind) {
	g.cipher = c
	g.sendActive = true
	g.recvActive = true
	g.sendSeq = 0
	g.recvSeq = 0
}

// PrepareTLS12 installs a cipher without activating either direction;
// the CCS boundaries activate them.
func (g *Guard) PrepareTLS12(c MessageCipher) {
	g.cipher = c
}

// WeNowEncrypting activates the send direction (our CCS just went
// out).
func (g *Guard) WeNowEncrypting() {
	g.sendActive = true
	g.sendSeq = 0
}

// PeerNowEncrypting activates the receive direction (the peer's CCS
// just arrived).
func (g *Guard) PeerNowEncrypting() {
	g.recvActive = true
	g.recvSeq = 0
}

// Encrypting reports whether the send direction is protected.
func (g *Guard) Encrypting() bool {
	return g.sendActive && g.cipher != nil
}

// PeerEncrypting reports whether the receive direction is protected.
func (g *Guard) PeerEncrypting() bool {
	return g.recvActive && g.cipher != nil
}

// EncryptOutgoing protects an outgoing message if the send direction
// is active, passing it through untouched otherwise.
func (g *Guard) EncryptOutgoing(m wire.Message) (wire.Message, error) {
	if !g.Encrypting() {
		return m, nil
	}
	out, err := g.cipher.Encrypt(m, g.sendSeq)
	if err != nil {
		return wire.Message{}, err
	}
	g.sendSeq++
	return out, nil
}

// DecryptIncoming opens an incoming message if the receive direction
// is active, passing it through untouched otherwise.
func (g *Guard) DecryptIncoming(m wire.Message) (wire.Message, error) {
	if !g.PeerEncrypting() {
		return m, nil
	}
	out, err := g.cipher.Decrypt(m, g.recvSeq)
	if err != nil {
		return wire.Message{}, err
	}
	g.recvSeq++
	return out, nil
}
