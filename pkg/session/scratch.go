package session

import (
	"github.com/veiltls/veil/internal/constants"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/kx"
	"github.com/veiltls/veil/pkg/wire"
)

// handshakeScratch is the per-handshake working state. It lives only
// until the session reaches traffic; the secrets it produced survive
// in the Session.
type handshakeScratch struct {
	randoms   keysched.Randoms
	sessionID []byte

	// Client: every key share offered in the ClientHello, retained
	// until the ServerHello chooses one. Server: the in-flight
	// ServerKeyExchange key.
	offeredKeyShares []*kx.KeyExchange
	kxData           *kx.KeyExchange

	serverCertChain [][]byte

	// TLS 1.2: ServerKeyExchange params and signature, verified once
	// ServerHelloDone arrives.
	serverKxParams *wire.ServerECDHParams
	serverKxSig    *wire.DigitallySigned

	// Extensions we sent in our ClientHello, for unsolicited-extension
	// detection.
	sentExtensions []wire.ExtensionType

	resumingSession *clientSessionValue

	newTicket         []byte
	newTicketLifetime uint32

	mustIssueNewTicket bool
	doingClientAuth    bool
	doingResume        bool
	sendTicket         bool

	clientAuthCert      [][]byte
	clientAuthSigner    Signer
	clientAuthSigScheme wire.SignatureScheme

	validClientCertChain [][]byte
}

func newHandshakeScratch() *handshakeScratch {
	return &handshakeScratch{}
}

// sentExtension reports whether we offered an extension type.
func (h *handshakeScratch) sentExtension(typ wire.ExtensionType) bool {
	for _, t := range h.sentExtensions {
		if t == typ {
			return true
		}
	}
	return false
}

// takeKeyShare finds the offered share for the chosen group and
// discards all the others.
func (h *handshakeScratch) takeKeyShare(group wire.NamedGroup) *kx.KeyExchange {
	var found *kx.KeyExchange
	for _, share := range h.offeredKeyShares {
		if share.Group == group && found == nil {
			found = share
		}
	}
	h.offeredKeyShares = nil
	return found
}

// freshRandom fills a hello random.
func freshRandom(out *[constants.RandomSize]byte) {
	mustRandom(out[:])
}
