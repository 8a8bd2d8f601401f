// Package session implements buffered, transport-agnostic TLS
// sessions: the handshake state machines, key schedule transitions and
// record protection switches for TLS 1.2 and TLS 1.3 draft-18, in
// client and server roles.
//
// A Session owns no socket. The caller feeds record-layer messages in
// with HandleMessage and drains queued records out with
// OutgoingMessages; plaintext flows through SendApplicationData and
// ReadApplicationData once the handshake completes.
package session

import (
	"crypto/rand"
	"crypto/x509"
	"io"

	"github.com/veiltls/veil/pkg/metrics"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

// Certificate is a certificate chain (leaf first, DER) and the signer
// for its leaf private key.
type Certificate struct {
	Chain  [][]byte
	Signer Signer
}

// ServerCertResolver chooses a server certificate given the offered
// SNI and signature schemes.
type ServerCertResolver interface {
	Resolve(sniName string, schemes []wire.SignatureScheme) (*Certificate, error)
}

// ClientCertResolver chooses a client certificate given the server's
// acceptable CA names and signature schemes. ok is false when no
// certificate fits.
type ClientCertResolver interface {
	Resolve(caNames [][]byte, schemes []wire.SignatureScheme) (cert *Certificate, ok bool)
}

// SingleCertResolver resolves the same certificate regardless of SNI
// or CA names. The zero value resolves nothing.
type SingleCertResolver struct {
	Cert *Certificate
}

// Resolve implements ServerCertResolver.
func (r *SingleCertResolver) Resolve(sniName string, schemes []wire.SignatureScheme) (*Certificate, error) {
	if r.Cert == nil {
		return nil, errNoCertificate
	}
	return r.Cert, nil
}

// ResolveClient implements ClientCertResolver semantics for the same
// certificate.
func (r *SingleCertResolver) ResolveClient(caNames [][]byte, schemes []wire.SignatureScheme) (*Certificate, bool) {
	return r.Cert, r.Cert != nil
}

type clientResolverAdapter struct{ r *SingleCertResolver }

func (a clientResolverAdapter) Resolve(caNames [][]byte, schemes []wire.SignatureScheme) (*Certificate, bool) {
	return a.r.ResolveClient(caNames, schemes)
}

// NewClientCertResolver wraps a SingleCertResolver for client auth.
func NewClientCertResolver(cert *Certificate) ClientCertResolver {
	return clientResolverAdapter{r: &SingleCertResolver{Cert: cert}}
}

// ClientConfig is the shared, read-only configuration for client
// sessions.
type ClientConfig struct {
	// RootStore anchors server chain verification.
	RootStore *x509.CertPool

	// Verifier validates certificate chains. Defaults to the standard
	// x509 verifier; tests may substitute their own.
	Verifier CertVerifier

	// CipherSuites is the offered suite list in preference order.
	// Defaults to suite.All.
	CipherSuites []*suite.CipherSuite

	// KeyShareGroups restricts which groups get a key share generated
	// in the ClientHello. nil offers a share for every supported
	// group. The supported-groups extension always advertises the full
	// list, so a server may answer with HelloRetryRequest.
	KeyShareGroups []wire.NamedGroup

	// ALPNProtocols is offered when non-empty.
	ALPNProtocols []string

	// EnableTickets controls RFC 5077 ticket request/offer.
	EnableTickets bool

	// ClientAuthResolver supplies a certificate when the server asks
	// for client auth. nil disables client auth.
	ClientAuthResolver ClientCertResolver

	// SessionStorage persists sessions for resumption, keyed by DNS
	// name. Defaults to an in-memory cache.
	SessionStorage Storage

	Logger   *metrics.Logger
	Tracer   metrics.Tracer
	Observer Observer
}

// NewClientConfig returns a config with the defaults filled in:
// standard verification, tickets on, in-memory session cache.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		CipherSuites:   suite.All,
		Verifier:       &StdVerifier{},
		EnableTickets:  true,
		SessionStorage: NewMemoryStorage(0),
		Tracer:         metrics.NoOpTracer{},
	}
}

// ServerConfig is the shared, read-only configuration for server
// sessions.
type ServerConfig struct {
	// CertResolver supplies the server certificate for each handshake.
	CertResolver ServerCertResolver

	// CipherSuites is the permitted suite list in server preference
	// order. Defaults to suite.All.
	CipherSuites []*suite.CipherSuite

	// IgnoreClientOrder selects server-preference suite choice.
	IgnoreClientOrder bool

	// SupportedGroups restricts the ECDHE groups the server accepts.
	// nil means every supported group.
	SupportedGroups []wire.NamedGroup

	// ALPNProtocols is the server's protocol list in preference order.
	ALPNProtocols []string

	// ClientAuthOffer requests a client certificate;
	// ClientAuthMandatory additionally refuses clients without one.
	ClientAuthOffer     bool
	ClientAuthMandatory bool

	// ClientAuthRoots anchors client chain verification.
	ClientAuthRoots *x509.CertPool

	// Verifier validates client certificate chains.
	Verifier CertVerifier

	// SessionStorage is the stateful (session-id) resumption cache.
	SessionStorage Storage

	// Ticketer seals stateless resumption tickets. A disabled ticketer
	// turns ticket support off.
	Ticketer Ticketer

	Logger   *metrics.Logger
	Tracer   metrics.Tracer
	Observer Observer
}

// NewServerConfig returns a config with the defaults filled in: all
// suites, in-memory session cache, disabled ticketer.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		CipherSuites:   suite.All,
		Verifier:       &StdVerifier{},
		SessionStorage: NewMemoryStorage(0),
		Ticketer:       DisabledTicketer{},
		Tracer:         metrics.NoOpTracer{},
	}
}

// mustRandom fills b from the system CSPRNG, panicking on failure: a
// dead CSPRNG is not a recoverable condition for a TLS stack.
func mustRandom(b []byte) {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic("session: failed to read from CSPRNG: " + err.Error())
	}
}
