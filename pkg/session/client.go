package session

import (
	"bytes"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/kx"
	"github.com/veiltls/veil/pkg/metrics"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

// clientState tags the client handshake states. State handlers are
// pure over the session; the tag carries no data of its own.
type clientState int

const (
	clientExpectServerHello clientState = iota
	clientExpectEncryptedExtensions
	clientExpectCertificate
	clientExpectCertificateVerify
	clientExpectServerKX
	clientExpectDoneOrCertReq
	clientExpectServerHelloDone
	clientExpectNewTicket
	clientExpectCCS
	clientExpectFinished
	clientExpectNewTicketResume
	clientExpectCCSResume
	clientExpectFinishedResume
	clientTrafficTLS12
	clientTrafficTLS13
)

// ClientSession is a TLS client handshake and traffic session.
type ClientSession struct {
	session
	config  *ClientConfig
	dnsName string
	state   clientState
}

// NewClientSession creates a client session for the named server and
// queues its ClientHello.
func NewClientSession(config *ClientConfig, dnsName string) (*ClientSession, error) {
	if config == nil {
		config = NewClientConfig()
	}
	c := &ClientSession{
		session: *newSession(RoleClient, config.Logger, config.Observer, config.Tracer),
		config:  config,
		dnsName: dnsName,
	}
	freshRandom(&c.scratch.randoms.Client)

	if err := c.emitClientHello(0); err != nil {
		return nil, c.fail(err)
	}
	c.state = clientExpectServerHello
	return c, nil
}

// HandleMessage feeds one record-layer message into the session.
func (c *ClientSession) HandleMessage(m wire.Message) error {
	return c.handleMessage(m, c.dispatch)
}

type clientHandler struct {
	expect expectation
	handle func(*ClientSession, *incoming) (clientState, error)
}

var clientHandlers = map[clientState]clientHandler{
	clientExpectServerHello: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeServerHello, wire.HandshakeTypeHelloRetryRequest},
		},
		handle: (*ClientSession).handleServerHello,
	},
	clientExpectEncryptedExtensions: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeEncryptedExtensions},
		},
		handle: (*ClientSession).handleEncryptedExtensions,
	},
	clientExpectCertificate: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeCertificate},
		},
		handle: (*ClientSession).handleCertificate,
	},
	clientExpectCertificateVerify: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeCertificateVerify},
		},
		handle: (*ClientSession).handleCertificateVerify,
	},
	clientExpectServerKX: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeServerKeyExchange},
		},
		handle: (*ClientSession).handleServerKX,
	},
	clientExpectDoneOrCertReq: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeCertificateRequest, wire.HandshakeTypeServerHelloDone},
		},
		handle: (*ClientSession).handleDoneOrCertReq,
	},
	clientExpectServerHelloDone: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeServerHelloDone},
		},
		handle: (*ClientSession).handleServerHelloDone,
	},
	clientExpectNewTicket: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeNewSessionTicket},
		},
		handle: (*ClientSession).handleNewTicket,
	},
	clientExpectCCS: {
		expect: expectation{
			contentTypes: []wire.ContentType{wire.ContentTypeChangeCipherSpec},
		},
		handle: (*ClientSession).handleCCS,
	},
	clientExpectFinished: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeFinished},
		},
		handle: (*ClientSession).handleFinished,
	},
	clientExpectNewTicketResume: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeNewSessionTicket},
		},
		handle: (*ClientSession).handleNewTicketResume,
	},
	clientExpectCCSResume: {
		expect: expectation{
			contentTypes: []wire.ContentType{wire.ContentTypeChangeCipherSpec},
		},
		handle: (*ClientSession).handleCCSResume,
	},
	clientExpectFinishedResume: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeFinished},
		},
		handle: (*ClientSession).handleFinishedResume,
	},
	clientTrafficTLS12: {
		expect: expectation{
			contentTypes: []wire.ContentType{wire.ContentTypeApplicationData},
		},
		handle: (*ClientSession).handleTraffic,
	},
	clientTrafficTLS13: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeApplicationData, wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeNewSessionTicket},
		},
		handle: (*ClientSession).handleTrafficTLS13,
	},
}

func (c *ClientSession) dispatch(in *incoming) error {
	handler := clientHandlers[c.state]
	if err := handler.expect.check(in); err != nil {
		return c.rejectInappropriate(err)
	}
	next, err := handler.handle(c, in)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// findSession loads a cached session for our DNS name.
func (c *ClientSession) findSession() *clientSessionValue {
	data, ok := c.config.SessionStorage.Get(clientSessionKey(c.dnsName))
	if !ok {
		c.logger.Debug("no cached session", metrics.Fields{"server": c.dnsName})
		return nil
	}
	value, ok := decodeClientSessionValue(data)
	if !ok {
		return nil
	}
	return value
}

// emitClientHello builds and queues the ClientHello. A non-zero
// retryGroup restricts the key shares to that group, for the
// HelloRetryRequest flow.
func (c *ClientSession) emitClientHello(retryGroup wire.NamedGroup) error {
	if retryGroup == 0 {
		c.scratch.resumingSession = c.findSession()
	}

	var sessionID, ticket []byte
	if resuming := c.scratch.resumingSession; resuming != nil {
		// With a ticket in hand, the session id is a fresh random
		// value: its only job is to signal an abbreviated handshake
		// when echoed (RFC 5077 section 3.4).
		if len(resuming.ticket) > 0 && retryGroup == 0 {
			id := make([]byte, constants.TicketSessionIDSize)
			mustRandom(id)
			resuming.sessionID = id
		}
		sessionID = resuming.sessionID
		ticket = resuming.ticket
		c.logger.Info("resuming session", metrics.Fields{"server": c.dnsName})
	}

	groups := suite.SupportedGroups()
	if c.config.KeyShareGroups != nil {
		groups = c.config.KeyShareGroups
	}
	if retryGroup != 0 {
		groups = []wire.NamedGroup{retryGroup}
	}

	var shares []wire.KeyShareEntry
	c.scratch.offeredKeyShares = nil
	for _, group := range groups {
		share, err := kx.Start(group)
		if err != nil {
			return err
		}
		shares = append(shares, wire.KeyShareEntry{Group: group, Payload: share.PublicKey})
		c.scratch.offeredKeyShares = append(c.scratch.offeredKeyShares, share)
	}

	// Offer the 1.3 draft version only when a 1.3 suite is on the
	// table.
	versions := []wire.ProtocolVersion{wire.VersionTLS12}
	for _, s := range c.config.CipherSuites {
		if s.IsTLS13() {
			versions = []wire.ProtocolVersion{wire.VersionTLS13Draft18, wire.VersionTLS12}
			break
		}
	}

	exts := []wire.ClientExtension{
		{Type: wire.ExtensionTypeSupportedVersions, Versions: versions},
		{Type: wire.ExtensionTypeServerName, ServerName: c.dnsName},
		{Type: wire.ExtensionTypeECPointFormats, PointFormats: suite.SupportedPointFormats()},
		{Type: wire.ExtensionTypeSupportedGroups, Groups: suite.SupportedGroups()},
		{Type: wire.ExtensionTypeSignatureAlgorithms, SignatureSchemes: suite.SupportedVerifySchemes()},
		{Type: wire.ExtensionTypeKeyShare, KeyShares: shares},
	}

	if c.config.EnableTickets {
		// Offer the ticket we hold, or ask for one.
		exts = append(exts, wire.ClientExtension{Type: wire.ExtensionTypeSessionTicket, Ticket: ticket})
	}
	if len(c.config.ALPNProtocols) > 0 {
		exts = append(exts, wire.ClientExtension{Type: wire.ExtensionTypeALPN, Protocols: c.config.ALPNProtocols})
	}

	c.scratch.sentExtensions = nil
	for i := range exts {
		c.scratch.sentExtensions = append(c.scratch.sentExtensions, exts[i].Type)
	}

	suiteIDs := make([]wire.CipherSuiteID, 0, len(c.config.CipherSuites))
	for _, s := range c.config.CipherSuites {
		suiteIDs = append(suiteIDs, s.ID)
	}

	hello := &wire.ClientHello{
		Version:      wire.VersionTLS12,
		Random:       wire.Random(c.scratch.randoms.Client),
		SessionID:    sessionID,
		CipherSuites: suiteIDs,
		Compressions: []wire.Compression{wire.CompressionNull},
		Extensions:   exts,
	}
	return c.sendHandshake(hello)
}

// findCipherSuite locates a server-chosen suite in our offered list.
func (c *ClientSession) findCipherSuite(id wire.CipherSuiteID) *suite.CipherSuite {
	for _, s := range c.config.CipherSuites {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// sentUnsolicitedExtensions reports whether the server answered with
// an extension we never offered. RenegotiationInfo is permitted
// unsolicited.
func (c *ClientSession) sentUnsolicitedExtensions(exts []wire.ServerExtension) bool {
	for i := range exts {
		typ := exts[i].Type
		if typ == wire.ExtensionTypeRenegotiationInfo {
			continue
		}
		if !c.scratch.sentExtension(typ) {
			c.logger.Debug("unsolicited extension", metrics.Fields{"type": uint16(typ)})
			return true
		}
	}
	return false
}

// startHandshakeTraffic runs the TLS 1.3 key schedule through the
// handshake stage and rotates both directions to handshake-traffic
// keys.
func (c *ClientSession) startHandshakeTraffic(hello *wire.ServerHello) error {
	theirShare := hello.KeyShare()
	if theirShare == nil {
		c.sendFatalAlert(wire.AlertMissingExtension)
		return qerrors.PeerMisbehaved("missing key share")
	}

	ourShare := c.scratch.takeKeyShare(theirShare.Group)
	if ourShare == nil {
		c.sendFatalAlert(wire.AlertIllegalParameter)
		return qerrors.PeerMisbehaved("wrong group for key share")
	}

	result, err := ourShare.Complete(theirShare.Payload)
	if err != nil {
		return qerrors.PeerMisbehaved("key exchange failed")
	}

	schedule := keysched.NewSchedule13(c.suite.HashFunc())
	schedule.InputEmpty() // no PSK
	schedule.InputSecret(result.PremasterSecret)

	handshakeHash := c.transcript.CurrentHash()
	writeKey := schedule.Derive(keysched.ClientHandshakeTrafficSecret, handshakeHash)
	readKey := schedule.Derive(keysched.ServerHandshakeTrafficSecret, handshakeHash)
	if err := c.setTLS13Cipher(writeKey, readKey); err != nil {
		return err
	}
	schedule.CurrentClientTrafficSecret = writeKey
	schedule.CurrentServerTrafficSecret = readKey
	c.schedule = schedule
	return nil
}

func (c *ClientSession) handleServerHello(in *incoming) (clientState, error) {
	if in.handshakeType() == wire.HandshakeTypeHelloRetryRequest {
		return c.handleHelloRetry(in)
	}
	hello := in.hs.body.(*wire.ServerHello)

	switch {
	case hello.Version == wire.VersionTLS12:
		c.isTLS13 = false
	case hello.Version.IsTLS13():
		c.isTLS13 = true
	default:
		c.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerIncompatible("server does not support TLS v1.2/v1.3")
	}

	if hello.Compression != wire.CompressionNull {
		c.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerMisbehaved("server chose non-Null compression")
	}

	if hello.HasDuplicateExtension() {
		c.sendFatalAlert(wire.AlertDecodeError)
		return 0, qerrors.PeerMisbehaved("server sent duplicate extensions")
	}

	if c.sentUnsolicitedExtensions(hello.Extensions) {
		c.sendFatalAlert(wire.AlertUnsupportedExtension)
		return 0, qerrors.PeerMisbehaved("server sent unsolicited extension")
	}

	if alpn := hello.ALPNProtocol(); alpn != "" {
		if !containsString(c.config.ALPNProtocols, alpn) {
			c.sendFatalAlert(wire.AlertIllegalParameter)
			return 0, qerrors.PeerMisbehaved("server sent non-offered ALPN protocol")
		}
		c.alpn = alpn
	}

	chosen := c.findCipherSuite(hello.CipherSuite)
	if chosen == nil {
		c.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerMisbehaved("server chose non-offered ciphersuite")
	}
	c.logger.Info("using ciphersuite", metrics.Fields{"suite": uint16(hello.CipherSuite)})

	// The suite is known; the transcript hash can begin. The buffered
	// ClientHello folds in, then the ServerHello.
	c.suite = chosen
	c.transcript.Start(chosen.HashFunc())
	c.transcript.Add(in.hs.raw)

	if c.isTLS13 {
		if err := c.startHandshakeTraffic(hello); err != nil {
			return 0, err
		}
		return clientExpectEncryptedExtensions, nil
	}

	// TLS 1.2 only from here on.
	copy(c.scratch.randoms.Server[:], hello.Random[:])
	c.scratch.sessionID = hello.SessionID

	if hello.FindExtension(wire.ExtensionTypeSessionTicket) != nil {
		c.logger.Debug("server supports tickets")
		c.scratch.mustIssueNewTicket = true
	}

	if resuming := c.scratch.resumingSession; resuming != nil &&
		len(hello.SessionID) > 0 && bytes.Equal(resuming.sessionID, hello.SessionID) {
		c.logger.Info("server agreed to resume")

		if resuming.suiteID != chosen.ID {
			return 0, qerrors.PeerMisbehaved("abbreviated handshake offered, but with varied cs")
		}

		secrets, err := keysched.ResumeSessionSecrets(&c.scratch.randoms, chosen.HashFunc(), resuming.masterSecret)
		if err != nil {
			return 0, err
		}
		c.secrets = secrets
		c.scratch.doingResume = true
		c.observer.OnResumption(true)
		if err := c.startEncryptionTLS12(); err != nil {
			return 0, err
		}

		if c.scratch.mustIssueNewTicket {
			return clientExpectNewTicketResume, nil
		}
		return clientExpectCCSResume, nil
	}

	return clientExpectCertificate, nil
}

// handleHelloRetry re-emits the ClientHello with a key share on the
// group the server asked for.
func (c *ClientSession) handleHelloRetry(in *incoming) (clientState, error) {
	retry := in.hs.body.(*wire.HelloRetryRequest)

	group := retry.RequestedGroup()
	if !kx.GroupSupported(group) {
		c.sendFatalAlert(wire.AlertIllegalParameter)
		return 0, qerrors.PeerMisbehaved("HelloRetryRequest for unsupported group")
	}
	c.logger.Info("server requested retry", metrics.Fields{"group": group.String()})

	// The HelloRetryRequest itself is not hashed; the second
	// ClientHello joins the first in the pre-start buffer.
	if err := c.emitClientHello(group); err != nil {
		return 0, err
	}
	return clientExpectServerHello, nil
}

func (c *ClientSession) handleEncryptedExtensions(in *incoming) (clientState, error) {
	exts := in.hs.body.(*wire.EncryptedExtensions)

	if exts.HasDuplicateExtension() {
		c.sendFatalAlert(wire.AlertDecodeError)
		return 0, qerrors.PeerMisbehaved("server sent duplicate encrypted extensions")
	}
	if c.sentUnsolicitedExtensions(exts.Extensions) {
		c.sendFatalAlert(wire.AlertUnsupportedExtension)
		return 0, qerrors.PeerMisbehaved("server sent unsolicited encrypted extension")
	}

	for i := range exts.Extensions {
		if alpn := exts.Extensions[i].ALPNProtocol(); alpn != "" {
			if !containsString(c.config.ALPNProtocols, alpn) {
				c.sendFatalAlert(wire.AlertIllegalParameter)
				return 0, qerrors.PeerMisbehaved("server sent non-offered ALPN protocol")
			}
			c.alpn = alpn
		}
	}

	c.transcript.Add(in.hs.raw)
	return clientExpectCertificate, nil
}

func (c *ClientSession) handleCertificate(in *incoming) (clientState, error) {
	c.transcript.Add(in.hs.raw)

	if c.isTLS13 {
		certs := in.hs.body.(*wire.Certificate13)
		c.scratch.serverCertChain = certs.Chain()
		return clientExpectCertificateVerify, nil
	}

	certs := in.hs.body.(*wire.Certificate)
	c.scratch.serverCertChain = certs.Chain
	return clientExpectServerKX, nil
}

func (c *ClientSession) handleCertificateVerify(in *incoming) (clientState, error) {
	verify := in.hs.body.(*wire.CertificateVerify)

	if len(c.scratch.serverCertChain) == 0 {
		return 0, qerrors.PeerMisbehaved("no server certificate to verify against")
	}
	if err := c.config.Verifier.VerifyServerCert(c.config.RootStore, c.scratch.serverCertChain, c.dnsName); err != nil {
		c.sendFatalAlert(wire.AlertBadCertificate)
		return 0, err
	}

	handshakeHash := c.transcript.CurrentHash()
	if err := verifyTLS13CertVerify(c.scratch.serverCertChain[0], &verify.Signed, handshakeHash); err != nil {
		c.sendFatalAlert(wire.AlertDecryptError)
		return 0, err
	}

	c.transcript.Add(in.hs.raw)
	return clientExpectFinished, nil
}

func (c *ClientSession) handleServerKX(in *incoming) (clientState, error) {
	skx := in.hs.body.(*wire.ServerKeyExchange)
	c.transcript.Add(in.hs.raw)

	if c.suite.Kx != suite.KxECDHE {
		c.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerIncompatible("cannot decode server's kx")
	}
	decoded, err := skx.DecodeECDHE()
	if err != nil {
		c.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerIncompatible("cannot decode server's kx")
	}

	c.scratch.serverKxParams = &decoded.Params
	c.scratch.serverKxSig = &decoded.Signed
	c.logger.Debug("server kx", metrics.Fields{"group": decoded.Params.Group.String()})

	return clientExpectDoneOrCertReq, nil
}

func (c *ClientSession) handleDoneOrCertReq(in *incoming) (clientState, error) {
	if in.handshakeType() == wire.HandshakeTypeCertificateRequest {
		return c.handleCertificateReq(in)
	}
	c.transcript.AbandonClientAuth()
	return c.handleServerHelloDone(in)
}

func (c *ClientSession) handleCertificateReq(in *incoming) (clientState, error) {
	certReq := in.hs.body.(*wire.CertificateRequest)
	c.transcript.Add(in.hs.raw)
	c.scratch.doingClientAuth = true

	if !certReq.HasCertType(wire.ClientCertTypeRSASign) {
		c.logger.Warn("server asked for client auth but without RSASign")
		return clientExpectServerHelloDone, nil
	}

	if c.config.ClientAuthResolver == nil {
		c.logger.Info("client auth requested but no resolver configured")
		return clientExpectServerHelloDone, nil
	}

	cert, ok := c.config.ClientAuthResolver.Resolve(certReq.CANames, certReq.SignatureSchemes)
	scheme, schemeOK := c.suite.ResolveSigScheme(certReq.SignatureSchemes)
	if ok && cert != nil && schemeOK {
		c.logger.Info("attempting client auth")
		c.scratch.clientAuthCert = cert.Chain
		c.scratch.clientAuthSigner = cert.Signer
		c.scratch.clientAuthSigScheme = scheme
	} else {
		c.logger.Info("client auth requested but no cert/sigscheme available")
	}

	return clientExpectServerHelloDone, nil
}

func (c *ClientSession) emitClientCertificate() error {
	return c.sendHandshake(&wire.Certificate{Chain: c.scratch.clientAuthCert})
}

func (c *ClientSession) emitCertificateVerify() error {
	if c.scratch.clientAuthSigner == nil {
		c.logger.Debug("not sending CertificateVerify, no key")
		c.transcript.AbandonClientAuth()
		return nil
	}

	message := c.transcript.TakeHandshakeBuf()
	sig, err := c.scratch.clientAuthSigner.Sign(c.scratch.clientAuthSigScheme, message)
	if err != nil {
		return qerrors.General("client auth signing failed", err)
	}

	return c.sendHandshake(&wire.CertificateVerify{
		Signed: wire.DigitallySigned{Scheme: c.scratch.clientAuthSigScheme, Signature: sig},
	})
}

func (c *ClientSession) emitCCS() error {
	if err := c.queueMessage(wire.NewChangeCipherSpec()); err != nil {
		return err
	}
	c.guard.WeNowEncrypting()
	return nil
}

func (c *ClientSession) emitFinished12() error {
	verifyHash := c.transcript.CurrentHash()
	verifyData := c.secrets.ClientVerifyData(verifyHash)
	return c.sendHandshake(&wire.Finished{VerifyData: verifyData})
}

func (c *ClientSession) handleServerHelloDone(in *incoming) (clientState, error) {
	c.transcript.Add(in.hs.raw)

	// 1. Verify the cert chain.
	if err := c.config.Verifier.VerifyServerCert(c.config.RootStore, c.scratch.serverCertChain, c.dnsName); err != nil {
		c.sendFatalAlert(wire.AlertBadCertificate)
		return 0, err
	}

	// 2. Verify the top certificate signed their kx: the signed blob
	// is ClientHello.random || ServerHello.random || params.
	sig := c.scratch.serverKxSig
	if sig == nil || c.scratch.serverKxParams == nil {
		return 0, qerrors.PeerMisbehaved("no server kx to verify")
	}
	if sig.Scheme.Sign() != c.suite.Sign {
		return 0, qerrors.PeerMisbehaved("peer signed kx with wrong algorithm")
	}

	message := make([]byte, 0, 2*constants.RandomSize+64)
	message = append(message, c.scratch.randoms.Client[:]...)
	message = append(message, c.scratch.randoms.Server[:]...)
	message = append(message, c.scratch.serverKxParams.Marshal()...)
	if err := verifySignedStruct(message, c.scratch.serverCertChain[0], sig); err != nil {
		c.sendFatalAlert(wire.AlertDecryptError)
		return 0, err
	}

	// 3. If doing client auth, send our Certificate.
	if c.scratch.doingClientAuth {
		if err := c.emitClientCertificate(); err != nil {
			return 0, err
		}
	}

	// 4. Complete the key exchange and send ClientKeyExchange.
	result, err := kx.ClientECDHE(c.scratch.serverKxParams)
	if err != nil {
		return 0, qerrors.PeerMisbehaved("key exchange failed")
	}
	if err := c.sendHandshake(wire.NewClientKeyExchange(result.PublicKey)); err != nil {
		return 0, err
	}

	// 5. CertificateVerify over the accumulated handshake, if doing
	// client auth with a usable key.
	if c.scratch.doingClientAuth {
		if err := c.emitCertificateVerify(); err != nil {
			return 0, err
		}
	}

	// 6. Derive the secrets, switch on encryption at our CCS, and send
	// Finished under the new keys.
	c.secrets = keysched.NewSessionSecrets(&c.scratch.randoms, c.suite.HashFunc(), result.PremasterSecret)
	if err := c.startEncryptionTLS12(); err != nil {
		return 0, err
	}
	if err := c.emitCCS(); err != nil {
		return 0, err
	}
	if err := c.emitFinished12(); err != nil {
		return 0, err
	}

	if c.scratch.mustIssueNewTicket {
		return clientExpectNewTicket, nil
	}
	return clientExpectCCS, nil
}

func (c *ClientSession) handleCCS(in *incoming) (clientState, error) {
	// A CCS interleaved with a fragmented handshake message is fatal.
	if !c.joiner.IsEmpty() {
		c.logger.Warn("CCS received interleaved with fragmented handshake")
		return 0, c.rejectInappropriate(&qerrors.InappropriateMessageError{
			ExpectContentTypes: []uint8{uint8(wire.ContentTypeHandshake)},
			GotContentType:     uint8(wire.ContentTypeChangeCipherSpec),
		})
	}
	c.guard.PeerNowEncrypting()
	return clientExpectFinished, nil
}

func (c *ClientSession) handleNewTicket(in *incoming) (clientState, error) {
	ticket := in.hs.body.(*wire.NewSessionTicket)
	c.transcript.Add(in.hs.raw)
	c.scratch.newTicket = ticket.Ticket
	c.scratch.newTicketLifetime = ticket.LifetimeHint
	return clientExpectCCS, nil
}

func (c *ClientSession) handleNewTicketResume(in *incoming) (clientState, error) {
	if _, err := c.handleNewTicket(in); err != nil {
		return 0, err
	}
	return clientExpectCCSResume, nil
}

func (c *ClientSession) handleCCSResume(in *incoming) (clientState, error) {
	if _, err := c.handleCCS(in); err != nil {
		return 0, err
	}
	return clientExpectFinishedResume, nil
}

// saveSession persists the session for later resumption. If the server
// issued a new ticket we save that one; otherwise the previously held
// ticket is re-saved.
func (c *ClientSession) saveSession() {
	ticket := c.scratch.newTicket
	c.scratch.newTicket = nil
	if len(ticket) == 0 && c.scratch.resumingSession != nil {
		ticket = c.scratch.resumingSession.takeTicket()
	}

	if len(c.scratch.sessionID) == 0 && len(ticket) == 0 {
		c.logger.Debug("session not saved: server didn't allocate id or ticket")
		return
	}

	value := &clientSessionValue{
		suiteID:      c.suite.ID,
		sessionID:    c.scratch.sessionID,
		ticket:       ticket,
		masterSecret: c.secrets.MasterSecret(),
	}
	if c.config.SessionStorage.Put(clientSessionKey(c.dnsName), value.encode()) {
		c.logger.Debug("session saved")
	} else {
		c.logger.Debug("session not saved")
	}
}

func (c *ClientSession) handleFinished(in *incoming) (clientState, error) {
	if c.isTLS13 {
		return c.handleFinished13(in)
	}
	return c.handleFinished12(in)
}

func (c *ClientSession) handleFinished12(in *incoming) (clientState, error) {
	finished := in.hs.body.(*wire.Finished)

	verifyHash := c.transcript.CurrentHash()
	expect := c.secrets.ServerVerifyData(verifyHash)
	if !constantTimeEqual(expect, finished.VerifyData) {
		c.sendFatalAlert(wire.AlertDecryptError)
		return 0, qerrors.ErrDecrypt
	}

	c.transcript.Add(in.hs.raw)
	c.saveSession()
	c.completeHandshake(wire.VersionTLS12)
	return clientTrafficTLS12, nil
}

func (c *ClientSession) handleFinishedResume(in *incoming) (clientState, error) {
	next, err := c.handleFinished(in)
	if err != nil {
		return 0, err
	}

	// Abbreviated handshakes end with our own CCS and Finished.
	if err := c.emitCCS(); err != nil {
		return 0, err
	}
	if err := c.emitFinished12(); err != nil {
		return 0, err
	}
	return next, nil
}

func (c *ClientSession) emitFinished13(handshakeHash []byte) error {
	verifyData := c.schedule.SignVerifyData(keysched.ClientHandshakeTrafficSecret, handshakeHash)
	return c.sendHandshake(&wire.Finished{VerifyData: verifyData})
}

func (c *ClientSession) handleFinished13(in *incoming) (clientState, error) {
	finished := in.hs.body.(*wire.Finished)

	handshakeHash := c.transcript.CurrentHash()
	expect := c.schedule.SignVerifyData(keysched.ServerHandshakeTrafficSecret, handshakeHash)
	if !constantTimeEqual(expect, finished.VerifyData) {
		c.sendFatalAlert(wire.AlertDecryptError)
		return 0, qerrors.ErrDecrypt
	}

	c.transcript.Add(in.hs.raw)
	handshakeHash = c.transcript.CurrentHash()

	// Our Finished goes out under the handshake keys; only then do
	// both directions rotate to application traffic.
	if err := c.emitFinished13(handshakeHash); err != nil {
		return 0, err
	}

	c.schedule.InputEmpty()
	writeKey := c.schedule.Derive(keysched.ClientApplicationTrafficSecret, handshakeHash)
	readKey := c.schedule.Derive(keysched.ServerApplicationTrafficSecret, handshakeHash)
	if err := c.setTLS13Cipher(writeKey, readKey); err != nil {
		return 0, err
	}
	c.schedule.CurrentClientTrafficSecret = writeKey
	c.schedule.CurrentServerTrafficSecret = readKey

	c.completeHandshake(wire.VersionTLS13Draft18)
	return clientTrafficTLS13, nil
}

func (c *ClientSession) handleTraffic(in *incoming) (clientState, error) {
	c.takeReceivedPlaintext(in.payload)
	return clientTrafficTLS12, nil
}

// handleTrafficTLS13 also tolerates NewSessionTicket, which Veil
// ignores: TLS 1.3 resumption is out of scope.
func (c *ClientSession) handleTrafficTLS13(in *incoming) (clientState, error) {
	if in.contentType == wire.ContentTypeApplicationData {
		c.takeReceivedPlaintext(in.payload)
	} else if in.handshakeType() == wire.HandshakeTypeNewSessionTicket {
		c.logger.Debug("ignoring TLS 1.3 NewSessionTicket")
	}
	return clientTrafficTLS13, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
