package session

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/metrics"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

const testServerName = "testserver.local"

// captureObserver records the events the tests assert on.
type captureObserver struct {
	NoOpObserver
	completedVersion wire.ProtocolVersion
	completedSuite   wire.CipherSuiteID
	completedALPN    string
	resumptions      []bool
	ticketIssued     bool
	alertsSent       []wire.AlertDescription
}

func (o *captureObserver) OnHandshakeComplete(v wire.ProtocolVersion, s wire.CipherSuiteID, alpn string) {
	o.completedVersion = v
	o.completedSuite = s
	o.completedALPN = alpn
}

func (o *captureObserver) OnResumption(accepted bool) {
	o.resumptions = append(o.resumptions, accepted)
}

func (o *captureObserver) OnTicketIssued() { o.ticketIssued = true }

func (o *captureObserver) OnAlertSent(d wire.AlertDescription) {
	o.alertsSent = append(o.alertsSent, d)
}

// newTestCertificate builds a self-signed certificate and its pool.
func newTestCertificate(t *testing.T, rsaKey bool, usages []x509.ExtKeyUsage, dns []string) (*Certificate, *x509.CertPool) {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "veil test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           usages,
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              dns,
	}

	var (
		der []byte
		err error
	)
	var certificate *Certificate
	if rsaKey {
		key, keyErr := rsa.GenerateKey(rand.Reader, 2048)
		if keyErr != nil {
			t.Fatalf("Failed to generate RSA key: %v", keyErr)
		}
		der, err = x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
		if err != nil {
			t.Fatalf("Failed to create certificate: %v", err)
		}
		signer, signerErr := NewSigner(key)
		if signerErr != nil {
			t.Fatalf("Failed to build signer: %v", signerErr)
		}
		certificate = &Certificate{Chain: [][]byte{der}, Signer: signer}
	} else {
		key, keyErr := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if keyErr != nil {
			t.Fatalf("Failed to generate ECDSA key: %v", keyErr)
		}
		der, err = x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
		if err != nil {
			t.Fatalf("Failed to create certificate: %v", err)
		}
		signer, signerErr := NewSigner(key)
		if signerErr != nil {
			t.Fatalf("Failed to build signer: %v", signerErr)
		}
		certificate = &Certificate{Chain: [][]byte{der}, Signer: signer}
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to reparse certificate: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(parsed)
	return certificate, pool
}

func serverCertificate(t *testing.T, rsaKey bool) (*Certificate, *x509.CertPool) {
	return newTestCertificate(t, rsaKey,
		[]x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, []string{testServerName})
}

func clientCertificate(t *testing.T) (*Certificate, *x509.CertPool) {
	return newTestCertificate(t, false,
		[]x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, nil)
}

// pump exchanges queued records between the two sessions until both
// handshakes complete or one side errors.
func pump(c *ClientSession, s *ServerSession) error {
	for i := 0; i < 20; i++ {
		progress := false
		for _, m := range c.OutgoingMessages() {
			progress = true
			if err := s.HandleMessage(m); err != nil {
				return err
			}
		}
		for _, m := range s.OutgoingMessages() {
			progress = true
			if err := c.HandleMessage(m); err != nil {
				return err
			}
		}
		if !progress {
			if c.HandshakeComplete() && s.HandshakeComplete() {
				return nil
			}
			return fmt.Errorf("handshake stalled: client done=%v server done=%v",
				c.HandshakeComplete(), s.HandshakeComplete())
		}
	}
	return fmt.Errorf("handshake did not converge")
}

// exchangeAppData pushes plaintext both ways and checks arrival.
func exchangeAppData(t *testing.T, c *ClientSession, s *ServerSession) {
	t.Helper()

	if err := c.SendApplicationData([]byte("ping from client")); err != nil {
		t.Fatalf("Failed to queue client data: %v", err)
	}
	for _, m := range c.OutgoingMessages() {
		if err := s.HandleMessage(m); err != nil {
			t.Fatalf("Failed to deliver client data: %v", err)
		}
	}
	if got := s.ReadApplicationData(); !bytes.Equal(got, []byte("ping from client")) {
		t.Fatalf("server plaintext mismatch: %q", got)
	}

	if err := s.SendApplicationData([]byte("pong from server")); err != nil {
		t.Fatalf("Failed to queue server data: %v", err)
	}
	for _, m := range s.OutgoingMessages() {
		if err := c.HandleMessage(m); err != nil {
			t.Fatalf("Failed to deliver server data: %v", err)
		}
	}
	if got := c.ReadApplicationData(); !bytes.Equal(got, []byte("pong from server")) {
		t.Fatalf("client plaintext mismatch: %q", got)
	}
}

func tls12OnlySuites(ids ...wire.CipherSuiteID) []*suite.CipherSuite {
	var out []*suite.CipherSuite
	for _, id := range ids {
		out = append(out, suite.ByID(id))
	}
	return out
}

// S1: fresh TLS 1.2 ECDHE-RSA handshake with bidirectional traffic.
func TestHandshakeTLS12FreshECDHERSA(t *testing.T) {
	cert, roots := serverCertificate(t, true)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.ALPNProtocols = []string{"h2"}

	clientObs := &captureObserver{}
	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES128GCMSHA256)
	clientConfig.ALPNProtocols = []string{"h2", "http/1.1"}
	clientConfig.EnableTickets = false
	clientConfig.Observer = clientObs

	server, err := NewServerSession(serverConfig)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := pump(client, server); err != nil {
		t.Fatalf("Failed handshake: %v", err)
	}

	if clientObs.completedVersion != wire.VersionTLS12 {
		t.Errorf("negotiated version: got %v", clientObs.completedVersion)
	}
	if clientObs.completedSuite != wire.TLSECDHERSAWithAES128GCMSHA256 {
		t.Errorf("negotiated suite: got %04x", uint16(clientObs.completedSuite))
	}
	if client.ALPNProtocol() != "h2" || server.ALPNProtocol() != "h2" {
		t.Errorf("ALPN: client %q server %q", client.ALPNProtocol(), server.ALPNProtocol())
	}
	if len(client.PeerCertificates()) != 1 {
		t.Errorf("client did not retain server chain")
	}

	exchangeAppData(t, client, server)
}

func TestHandshakeTLS12AllSuites(t *testing.T) {
	for _, id := range []wire.CipherSuiteID{
		wire.TLSECDHERSAWithAES256GCMSHA384,
		wire.TLSECDHERSAWithChaCha20Poly1305SHA256,
	} {
		cert, roots := serverCertificate(t, true)
		serverConfig := NewServerConfig()
		serverConfig.CertResolver = &SingleCertResolver{Cert: cert}

		clientConfig := NewClientConfig()
		clientConfig.RootStore = roots
		clientConfig.CipherSuites = tls12OnlySuites(id)
		clientConfig.EnableTickets = false

		server, _ := NewServerSession(serverConfig)
		client, err := NewClientSession(clientConfig, testServerName)
		if err != nil {
			t.Fatalf("%04x: Failed to create client: %v", uint16(id), err)
		}
		if err := pump(client, server); err != nil {
			t.Fatalf("%04x: Failed handshake: %v", uint16(id), err)
		}
		exchangeAppData(t, client, server)
	}
}

func TestHandshakeTLS12ECDSA(t *testing.T) {
	cert, roots := serverCertificate(t, false)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHEECDSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false

	server, _ := NewServerSession(serverConfig)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client, server); err != nil {
		t.Fatalf("Failed handshake: %v", err)
	}
	exchangeAppData(t, client, server)
}

// S2: a second session against the same server resumes by session id
// with an abbreviated flight.
func TestHandshakeTLS12SessionIDResumption(t *testing.T) {
	cert, roots := serverCertificate(t, true)

	serverObs := &captureObserver{}
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.Observer = serverObs

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false

	// First, a full handshake to populate both caches.
	server1, _ := NewServerSession(serverConfig)
	client1, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client1, server1); err != nil {
		t.Fatalf("Failed first handshake: %v", err)
	}

	// Second session: abbreviated.
	clientObs := &captureObserver{}
	clientConfig.Observer = clientObs
	server2, _ := NewServerSession(serverConfig)
	client2, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client2, server2); err != nil {
		t.Fatalf("Failed resumed handshake: %v", err)
	}

	if len(serverObs.resumptions) == 0 || !serverObs.resumptions[len(serverObs.resumptions)-1] {
		t.Errorf("server did not accept resumption: %v", serverObs.resumptions)
	}
	if len(clientObs.resumptions) != 1 || !clientObs.resumptions[0] {
		t.Errorf("client did not resume: %v", clientObs.resumptions)
	}
	if len(client2.PeerCertificates()) != 0 {
		t.Errorf("abbreviated handshake carried a certificate flight")
	}

	exchangeAppData(t, client2, server2)
}

// S3: ticket resumption through the server's Ticketer, with the
// client's random 16-byte session id echoed back.
func TestHandshakeTLS12TicketResumption(t *testing.T) {
	cert, roots := serverCertificate(t, true)

	serverObs := &captureObserver{}
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.Ticketer = NewAEADTicketer(3600)
	serverConfig.Observer = serverObs
	// No stateful cache sharing between the two server sessions: the
	// ticket alone must carry the resumption.
	serverConfig.SessionStorage = NewMemoryStorage(0)

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = true

	server1, _ := NewServerSession(serverConfig)
	client1, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client1, server1); err != nil {
		t.Fatalf("Failed first handshake: %v", err)
	}
	if !serverObs.ticketIssued {
		t.Fatalf("server issued no ticket")
	}

	// A different stateful cache proves the ticket is doing the work.
	serverConfig.SessionStorage = NewMemoryStorage(0)

	clientObs := &captureObserver{}
	clientConfig.Observer = clientObs
	server2, _ := NewServerSession(serverConfig)
	client2, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client2, server2); err != nil {
		t.Fatalf("Failed ticket-resumed handshake: %v", err)
	}

	if len(clientObs.resumptions) != 1 || !clientObs.resumptions[0] {
		t.Errorf("client did not resume via ticket: %v", clientObs.resumptions)
	}

	exchangeAppData(t, client2, server2)
}

// S4: fresh TLS 1.3 handshake over X25519.
func TestHandshakeTLS13Fresh(t *testing.T) {
	cert, roots := serverCertificate(t, false)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.ALPNProtocols = []string{"h2"}

	clientObs := &captureObserver{}
	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.ALPNProtocols = []string{"h2"}
	clientConfig.Observer = clientObs
	clientConfig.Tracer = metrics.NewSimpleTracer()

	server, err := NewServerSession(serverConfig)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := pump(client, server); err != nil {
		t.Fatalf("Failed handshake: %v", err)
	}

	if clientObs.completedVersion != wire.VersionTLS13Draft18 {
		t.Errorf("negotiated version: got %v", clientObs.completedVersion)
	}
	if suite.ByID(clientObs.completedSuite) == nil || !suite.ByID(clientObs.completedSuite).IsTLS13() {
		t.Errorf("negotiated a non-1.3 suite: %04x", uint16(clientObs.completedSuite))
	}
	if client.ALPNProtocol() != "h2" {
		t.Errorf("ALPN lost in EncryptedExtensions: %q", client.ALPNProtocol())
	}

	tracer := clientConfig.Tracer.(*metrics.SimpleTracer)
	spans := tracer.Spans()
	if len(spans) != 1 || spans[0].Error != nil {
		t.Errorf("expected one successful handshake span, got %+v", spans)
	}

	exchangeAppData(t, client, server)
}

// S5: the server has no usable key share but can retry onto X25519.
func TestHandshakeTLS13HelloRetry(t *testing.T) {
	cert, roots := serverCertificate(t, false)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.SupportedGroups = []wire.NamedGroup{wire.GroupX25519}

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.KeyShareGroups = []wire.NamedGroup{wire.GroupSecp256r1}

	server, _ := NewServerSession(serverConfig)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := pump(client, server); err != nil {
		t.Fatalf("Failed handshake after retry: %v", err)
	}
	if !client.HandshakeComplete() || !server.HandshakeComplete() {
		t.Fatalf("handshake incomplete after retry")
	}

	exchangeAppData(t, client, server)
}

// S6: a server stuck on TLS 1.1 is fatally rejected.
func TestClientRejectsOldServer(t *testing.T) {
	clientConfig := NewClientConfig()
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.OutgoingMessages()

	sh := &wire.ServerHello{
		Version:     wire.VersionTLS11,
		Random:      wire.Random{},
		CipherSuite: wire.TLSECDHERSAWithAES128GCMSHA256,
		Compression: wire.CompressionNull,
	}
	err = client.HandleMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(sh)))

	var incompatible *qerrors.PeerIncompatibleError
	if !qerrors.As(err, &incompatible) {
		t.Fatalf("expected PeerIncompatibleError, got %v", err)
	}

	// The HandshakeFailure alert must be queued for the transport.
	foundAlert := false
	for _, m := range client.OutgoingMessages() {
		if m.Type == wire.ContentTypeAlert &&
			bytes.Equal(m.Payload, []byte{byte(wire.AlertLevelFatal), byte(wire.AlertHandshakeFailure)}) {
			foundAlert = true
		}
	}
	if !foundAlert {
		t.Fatalf("no HandshakeFailure alert queued")
	}
}

// Unsolicited server extensions are fatal with UnsupportedExtension.
func TestClientRejectsUnsolicitedExtension(t *testing.T) {
	clientConfig := NewClientConfig()
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.OutgoingMessages()

	sh := &wire.ServerHello{
		Version:     wire.VersionTLS12,
		Random:      wire.Random{},
		CipherSuite: wire.TLSECDHERSAWithAES128GCMSHA256,
		Compression: wire.CompressionNull,
		Extensions: []wire.ServerExtension{
			{Type: wire.ExtensionTypeHeartbeat, Raw: []byte{1}},
		},
	}
	err = client.HandleMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(sh)))

	var misbehaved *qerrors.PeerMisbehavedError
	if !qerrors.As(err, &misbehaved) {
		t.Fatalf("expected PeerMisbehavedError, got %v", err)
	}

	foundAlert := false
	for _, m := range client.OutgoingMessages() {
		if m.Type == wire.ContentTypeAlert &&
			bytes.Equal(m.Payload, []byte{byte(wire.AlertLevelFatal), byte(wire.AlertUnsupportedExtension)}) {
			foundAlert = true
		}
	}
	if !foundAlert {
		t.Fatalf("no UnsupportedExtension alert queued")
	}
}

// An unsolicited RenegotiationInfo is the one permitted exception:
// the client never offers the extension but must not reject the ack.
func TestClientToleratesRenegotiationInfo(t *testing.T) {
	clientConfig := NewClientConfig()
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.OutgoingMessages()

	sh := &wire.ServerHello{
		Version:     wire.VersionTLS12,
		Random:      wire.Random{},
		CipherSuite: wire.TLSECDHERSAWithAES128GCMSHA256,
		Compression: wire.CompressionNull,
		Extensions: []wire.ServerExtension{
			{Type: wire.ExtensionTypeRenegotiationInfo},
		},
	}
	if err := client.HandleMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(sh))); err != nil {
		t.Fatalf("client rejected unsolicited RenegotiationInfo: %v", err)
	}
}

// Duplicate extensions in a ClientHello are fatal with DecodeError.
func TestServerRejectsDuplicateExtensions(t *testing.T) {
	cert, _ := serverCertificate(t, true)
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverObs := &captureObserver{}
	serverConfig.Observer = serverObs

	server, err := NewServerSession(serverConfig)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	hello := &wire.ClientHello{
		Version:      wire.VersionTLS12,
		CipherSuites: []wire.CipherSuiteID{wire.TLSECDHERSAWithAES128GCMSHA256},
		Compressions: []wire.Compression{wire.CompressionNull},
		Extensions: []wire.ClientExtension{
			{Type: wire.ExtensionTypeSupportedGroups, Groups: []wire.NamedGroup{wire.GroupX25519}},
			{Type: wire.ExtensionTypeSupportedGroups, Groups: []wire.NamedGroup{wire.GroupSecp256r1}},
		},
	}
	err = server.HandleMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(hello)))

	var misbehaved *qerrors.PeerMisbehavedError
	if !qerrors.As(err, &misbehaved) {
		t.Fatalf("expected PeerMisbehavedError, got %v", err)
	}
	if len(serverObs.alertsSent) != 1 || serverObs.alertsSent[0] != wire.AlertDecodeError {
		t.Fatalf("expected DecodeError alert, got %v", serverObs.alertsSent)
	}
}

// A ClientHello below TLS 1.2 is rejected with ProtocolVersion.
func TestServerRejectsOldClient(t *testing.T) {
	cert, _ := serverCertificate(t, true)
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}

	server, _ := NewServerSession(serverConfig)

	hello := &wire.ClientHello{
		Version:      wire.VersionTLS11,
		CipherSuites: []wire.CipherSuiteID{wire.TLSECDHERSAWithAES128GCMSHA256},
		Compressions: []wire.Compression{wire.CompressionNull},
	}
	err := server.HandleMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(hello)))

	var incompatible *qerrors.PeerIncompatibleError
	if !qerrors.As(err, &incompatible) {
		t.Fatalf("expected PeerIncompatibleError, got %v", err)
	}
}

// A CCS arriving while the joiner holds a partial handshake message is
// a fatal InappropriateMessage error.
func TestCCSInterleavedWithFragmentedHandshake(t *testing.T) {
	cert, roots := serverCertificate(t, true)
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false

	server, _ := NewServerSession(serverConfig)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	// Walk the client to ExpectCCS: deliver its hello, return the
	// server flight, and drop the client's answer on the floor.
	for _, m := range client.OutgoingMessages() {
		if err := server.HandleMessage(m); err != nil {
			t.Fatalf("Failed to deliver hello: %v", err)
		}
	}
	for _, m := range server.OutgoingMessages() {
		if err := client.HandleMessage(m); err != nil {
			t.Fatalf("Failed to deliver server flight: %v", err)
		}
	}
	client.OutgoingMessages()

	// A fragment of a Finished header, then a CCS.
	partial := wire.Message{
		Type:    wire.ContentTypeHandshake,
		Version: wire.VersionTLS12,
		Payload: []byte{byte(wire.HandshakeTypeFinished), 0, 0, 12, 1, 2},
	}
	if err := client.HandleMessage(partial); err != nil {
		t.Fatalf("partial handshake fragment rejected early: %v", err)
	}

	err = client.HandleMessage(wire.NewChangeCipherSpec())
	var inappropriate *qerrors.InappropriateMessageError
	if !qerrors.As(err, &inappropriate) {
		t.Fatalf("expected InappropriateMessageError, got %v", err)
	}
}

// TLS 1.2 client authentication end to end.
func TestHandshakeTLS12ClientAuth(t *testing.T) {
	serverCert, roots := serverCertificate(t, false)
	clientCert, clientRoots := clientCertificate(t)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: serverCert}
	serverConfig.ClientAuthOffer = true
	serverConfig.ClientAuthMandatory = true
	serverConfig.ClientAuthRoots = clientRoots

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHEECDSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false
	clientConfig.ClientAuthResolver = NewClientCertResolver(clientCert)

	server, _ := NewServerSession(serverConfig)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := pump(client, server); err != nil {
		t.Fatalf("Failed client-auth handshake: %v", err)
	}

	if len(server.PeerCertificates()) != 1 {
		t.Fatalf("server did not retain the client chain")
	}

	exchangeAppData(t, client, server)
}

// Without a resolver the client declines auth; a lenient server
// proceeds, a mandatory one aborts.
func TestClientAuthDeclined(t *testing.T) {
	serverCert, roots := serverCertificate(t, false)
	_, clientRoots := clientCertificate(t)

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHEECDSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false

	lenient := NewServerConfig()
	lenient.CertResolver = &SingleCertResolver{Cert: serverCert}
	lenient.ClientAuthOffer = true
	lenient.ClientAuthRoots = clientRoots

	server, _ := NewServerSession(lenient)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client, server); err != nil {
		t.Fatalf("lenient server refused certless client: %v", err)
	}

	mandatory := NewServerConfig()
	mandatory.CertResolver = &SingleCertResolver{Cert: serverCert}
	mandatory.ClientAuthOffer = true
	mandatory.ClientAuthMandatory = true
	mandatory.ClientAuthRoots = clientRoots

	server2, _ := NewServerSession(mandatory)
	client2, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client2, server2); err == nil {
		t.Fatalf("mandatory server accepted certless client")
	}
}

// The server honors IgnoreClientOrder.
func TestSuiteSelectionOrder(t *testing.T) {
	cert, roots := serverCertificate(t, true)

	serverObs := &captureObserver{}
	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}
	serverConfig.CipherSuites = tls12OnlySuites(
		wire.TLSECDHERSAWithAES256GCMSHA384,
		wire.TLSECDHERSAWithAES128GCMSHA256,
	)
	serverConfig.IgnoreClientOrder = true
	serverConfig.Observer = serverObs

	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(
		wire.TLSECDHERSAWithAES128GCMSHA256,
		wire.TLSECDHERSAWithAES256GCMSHA384,
	)
	clientConfig.EnableTickets = false

	server, _ := NewServerSession(serverConfig)
	client, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client, server); err != nil {
		t.Fatalf("Failed handshake: %v", err)
	}

	if serverObs.completedSuite != wire.TLSECDHERSAWithAES256GCMSHA384 {
		t.Errorf("server preference ignored: got %04x", uint16(serverObs.completedSuite))
	}
}

// A resumption attempt whose cached suite the server no longer speaks
// must not resurrect the session silently.
func TestResumptionSuiteMismatchRejected(t *testing.T) {
	cert, roots := serverCertificate(t, true)

	serverConfig := NewServerConfig()
	serverConfig.CertResolver = &SingleCertResolver{Cert: cert}

	sharedStorage := NewMemoryStorage(0)
	clientConfig := NewClientConfig()
	clientConfig.RootStore = roots
	clientConfig.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES128GCMSHA256)
	clientConfig.EnableTickets = false
	clientConfig.SessionStorage = sharedStorage

	server1, _ := NewServerSession(serverConfig)
	client1, err := NewClientSession(clientConfig, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := pump(client1, server1); err != nil {
		t.Fatalf("Failed first handshake: %v", err)
	}

	// The client now offers only a different suite; the server's
	// cache hit would pin the old one. That mismatch is fatal.
	clientConfig2 := NewClientConfig()
	clientConfig2.RootStore = roots
	clientConfig2.CipherSuites = tls12OnlySuites(wire.TLSECDHERSAWithAES256GCMSHA384)
	clientConfig2.EnableTickets = false
	clientConfig2.SessionStorage = sharedStorage

	server2, _ := NewServerSession(serverConfig)
	client2, err := NewClientSession(clientConfig2, testServerName)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	err = pump(client2, server2)
	var misbehaved *qerrors.PeerMisbehavedError
	if err == nil || !qerrors.As(err, &misbehaved) {
		t.Fatalf("expected suite-varied resumption to fail, got %v", err)
	}
}
