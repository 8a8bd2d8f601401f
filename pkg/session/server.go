package session

import (
	"crypto/x509"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/kx"
	"github.com/veiltls/veil/pkg/metrics"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

// serverState tags the server handshake states.
type serverState int

const (
	serverExpectClientHello serverState = iota
	serverExpectCertificate
	serverExpectClientKX
	serverExpectCertificateVerify
	serverExpectCCS
	serverExpectFinished
	serverExpectFinishedTLS13
	serverTraffic
)

// ServerSession is a TLS server handshake and traffic session.
type ServerSession struct {
	session
	config *ServerConfig
	signer Signer
	state  serverState
}

// NewServerSession creates a server session awaiting a ClientHello.
func NewServerSession(config *ServerConfig) (*ServerSession, error) {
	if config == nil {
		config = NewServerConfig()
	}
	if config.CertResolver == nil {
		return nil, errNoCertificate
	}
	s := &ServerSession{
		session: *newSession(RoleServer, config.Logger, config.Observer, config.Tracer),
		config:  config,
	}
	freshRandom(&s.scratch.randoms.Server)
	s.state = serverExpectClientHello
	return s, nil
}

// HandleMessage feeds one record-layer message into the session.
func (s *ServerSession) HandleMessage(m wire.Message) error {
	return s.handleMessage(m, s.dispatch)
}

type serverHandler struct {
	expect expectation
	handle func(*ServerSession, *incoming) (serverState, error)
}

var serverHandlers = map[serverState]serverHandler{
	serverExpectClientHello: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeClientHello},
		},
		handle: (*ServerSession).handleClientHello,
	},
	serverExpectCertificate: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeCertificate},
		},
		handle: (*ServerSession).handleClientCertificate,
	},
	serverExpectClientKX: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeClientKeyExchange},
		},
		handle: (*ServerSession).handleClientKX,
	},
	serverExpectCertificateVerify: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeCertificateVerify},
		},
		handle: (*ServerSession).handleCertificateVerify,
	},
	serverExpectCCS: {
		expect: expectation{
			contentTypes: []wire.ContentType{wire.ContentTypeChangeCipherSpec},
		},
		handle: (*ServerSession).handleCCS,
	},
	serverExpectFinished: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeFinished},
		},
		handle: (*ServerSession).handleFinished,
	},
	serverExpectFinishedTLS13: {
		expect: expectation{
			contentTypes:   []wire.ContentType{wire.ContentTypeHandshake},
			handshakeTypes: []wire.HandshakeType{wire.HandshakeTypeFinished},
		},
		handle: (*ServerSession).handleFinishedTLS13,
	},
	serverTraffic: {
		expect: expectation{
			contentTypes: []wire.ContentType{wire.ContentTypeApplicationData},
		},
		handle: (*ServerSession).handleTraffic,
	},
}

func (s *ServerSession) dispatch(in *incoming) error {
	handler := serverHandlers[s.state]
	if err := handler.expect.check(in); err != nil {
		return s.rejectInappropriate(err)
	}
	next, err := handler.handle(s, in)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// supportedGroups is the server's acceptable ECDHE group list.
func (s *ServerSession) supportedGroups() []wire.NamedGroup {
	if s.config.SupportedGroups != nil {
		return s.config.SupportedGroups
	}
	return suite.SupportedGroups()
}

// incompatible queues HandshakeFailure and builds the error.
func (s *ServerSession) incompatible(why string) error {
	s.sendFatalAlert(wire.AlertHandshakeFailure)
	return qerrors.PeerIncompatible(why)
}

// processExtensions builds the server's answering extensions for
// ServerHello (1.2) or EncryptedExtensions (1.3).
func (s *ServerSession) processExtensions(hello *wire.ClientHello) ([]wire.ServerExtension, error) {
	var ret []wire.ServerExtension

	// ALPN: choose the first of our protocols the client offered.
	if theirProtocols := hello.ALPNProtocols(); theirProtocols != nil {
		for _, p := range theirProtocols {
			if p == "" {
				return nil, qerrors.PeerMisbehaved("client offered empty ALPN protocol")
			}
		}
		if chosen := firstStringInBoth(s.config.ALPNProtocols, theirProtocols); chosen != "" {
			s.alpn = chosen
			s.logger.Info("chosen ALPN protocol", metrics.Fields{"protocol": chosen})
			ret = append(ret, wire.ServerExtension{Type: wire.ExtensionTypeALPN, Protocols: []string{chosen}})
		}
	}

	// SNI acknowledgement.
	if hello.FindExtension(wire.ExtensionTypeServerName) != nil {
		ret = append(ret, wire.ServerExtension{Type: wire.ExtensionTypeServerName})
	}

	if !s.isTLS13 {
		// Secure renegotiation: we never renegotiate, but acknowledge
		// the offer so well-behaved clients are satisfied.
		renegOffered := hello.FindExtension(wire.ExtensionTypeRenegotiationInfo) != nil ||
			containsSuiteID(hello.CipherSuites, wire.TLSEmptyRenegotiationInfoSCSV)
		if renegOffered {
			ret = append(ret, wire.ServerExtension{Type: wire.ExtensionTypeRenegotiationInfo})
		}

		// Tickets: any SessionTicket extension plus an enabled
		// ticketer means we will issue one.
		if hello.FindExtension(wire.ExtensionTypeSessionTicket) != nil && s.config.Ticketer.Enabled() {
			s.scratch.sendTicket = true
			ret = append(ret, wire.ServerExtension{Type: wire.ExtensionTypeSessionTicket})
		}
	}

	return ret, nil
}

func (s *ServerSession) emitServerHello(hello *wire.ClientHello) error {
	extensions, err := s.processExtensions(hello)
	if err != nil {
		return err
	}

	if len(s.scratch.sessionID) == 0 {
		s.scratch.sessionID = s.config.SessionStorage.Generate()
	}

	sh := &wire.ServerHello{
		Version:     wire.VersionTLS12,
		Random:      wire.Random(s.scratch.randoms.Server),
		SessionID:   s.scratch.sessionID,
		CipherSuite: s.suite.ID,
		Compression: wire.CompressionNull,
		Extensions:  extensions,
	}
	return s.sendHandshake(sh)
}

func (s *ServerSession) emitCertificate12() error {
	return s.sendHandshake(&wire.Certificate{Chain: s.scratch.serverCertChain})
}

func (s *ServerSession) emitServerKX(sigscheme wire.SignatureScheme, group wire.NamedGroup) error {
	exchange, err := kx.Start(group)
	if err != nil {
		return err
	}
	params := wire.ServerECDHParams{Group: group, Public: exchange.PublicKey}

	// The signature covers client_random || server_random || params.
	message := make([]byte, 0, 2*constants.RandomSize+64)
	message = append(message, s.scratch.randoms.Client[:]...)
	message = append(message, s.scratch.randoms.Server[:]...)
	message = append(message, params.Marshal()...)

	sig, err := s.signer.Sign(sigscheme, message)
	if err != nil {
		return qerrors.General("signing failed", err)
	}

	skx := &wire.ServerKeyExchange{
		ECDHE: &wire.ECDHEServerKeyExchange{
			Params: params,
			Signed: wire.DigitallySigned{Scheme: sigscheme, Signature: sig},
		},
	}

	s.scratch.kxData = exchange
	return s.sendHandshake(skx)
}

func (s *ServerSession) emitCertificateReq() error {
	if !s.config.ClientAuthOffer {
		return nil
	}

	cr := &wire.CertificateRequest{
		CertTypes:        []wire.ClientCertificateType{wire.ClientCertTypeRSASign, wire.ClientCertTypeECDSASign},
		SignatureSchemes: suite.SupportedVerifySchemes(),
		CANames:          caNamesFromPool(s.config.ClientAuthRoots),
	}
	if err := s.sendHandshake(cr); err != nil {
		return err
	}
	s.scratch.doingClientAuth = true
	return nil
}

func (s *ServerSession) emitServerHelloDone() error {
	return s.sendHandshake(&wire.ServerHelloDone{})
}

func (s *ServerSession) emitCCS() error {
	if err := s.queueMessage(wire.NewChangeCipherSpec()); err != nil {
		return err
	}
	s.guard.WeNowEncrypting()
	return nil
}

func (s *ServerSession) emitFinished12() error {
	verifyHash := s.transcript.CurrentHash()
	verifyData := s.secrets.ServerVerifyData(verifyHash)
	return s.sendHandshake(&wire.Finished{VerifyData: verifyData})
}

// serverSessionState captures what resumption needs to restore.
func (s *ServerSession) serverSessionState() *serverSessionValue {
	return &serverSessionValue{
		suiteID:         s.suite.ID,
		masterSecret:    s.secrets.MasterSecret(),
		clientCertChain: s.scratch.validClientCertChain,
	}
}

// emitTicket issues a NewSessionTicket when one was negotiated. A
// ticketer failure cannot be reported on the wire, so it degrades to
// an empty ticket.
func (s *ServerSession) emitTicket() error {
	if !s.scratch.sendTicket {
		return nil
	}

	plain := s.serverSessionState().encode()
	ticket, ok := s.config.Ticketer.Encrypt(plain)
	if !ok {
		ticket = nil
	}

	nst := &wire.NewSessionTicket{
		LifetimeHint: s.config.Ticketer.Lifetime(),
		Ticket:       ticket,
	}
	if err := s.sendHandshake(nst); err != nil {
		return err
	}
	if ok {
		s.observer.OnTicketIssued()
	}
	return nil
}

// startResumption completes an abbreviated handshake from restored
// session state.
func (s *ServerSession) startResumption(hello *wire.ClientHello, id []byte, resumed *serverSessionValue) (serverState, error) {
	s.logger.Info("resuming session")

	// The RFC underspecifies a suite change across resumption; reject
	// it.
	if s.suite.ID != resumed.suiteID {
		return 0, qerrors.PeerMisbehaved("client varied ciphersuite over resumption")
	}

	s.scratch.sessionID = append([]byte(nil), id...)
	if err := s.emitServerHello(hello); err != nil {
		return 0, err
	}

	secrets, err := keysched.ResumeSessionSecrets(&s.scratch.randoms, s.suite.HashFunc(), resumed.masterSecret)
	if err != nil {
		return 0, err
	}
	s.secrets = secrets
	s.scratch.validClientCertChain = resumed.clientCertChain
	s.scratch.doingResume = true
	s.observer.OnResumption(true)

	if err := s.startEncryptionTLS12(); err != nil {
		return 0, err
	}
	if err := s.emitTicket(); err != nil {
		return 0, err
	}
	if err := s.emitCCS(); err != nil {
		return 0, err
	}
	if err := s.emitFinished12(); err != nil {
		return 0, err
	}
	return serverExpectCCS, nil
}

// --- TLS 1.3 emission ---

func (s *ServerSession) emitServerHello13(share *wire.KeyShareEntry) error {
	exchange, err := kx.Start(share.Group)
	if err != nil {
		return err
	}
	result, err := exchange.Complete(share.Payload)
	if err != nil {
		return qerrors.PeerMisbehaved("key exchange failed")
	}

	sh := &wire.ServerHello{
		Version:     wire.VersionTLS13Draft18,
		Random:      wire.Random(s.scratch.randoms.Server),
		CipherSuite: s.suite.ID,
		Extensions: []wire.ServerExtension{
			{Type: wire.ExtensionTypeKeyShare, KeyShare: wire.KeyShareEntry{
				Group:   share.Group,
				Payload: result.PublicKey,
			}},
		},
	}
	if err := s.sendHandshake(sh); err != nil {
		return err
	}

	schedule := keysched.NewSchedule13(s.suite.HashFunc())
	schedule.InputEmpty() // no PSK
	schedule.InputSecret(result.PremasterSecret)

	handshakeHash := s.transcript.CurrentHash()
	writeKey := schedule.Derive(keysched.ServerHandshakeTrafficSecret, handshakeHash)
	readKey := schedule.Derive(keysched.ClientHandshakeTrafficSecret, handshakeHash)
	if err := s.setTLS13Cipher(writeKey, readKey); err != nil {
		return err
	}
	schedule.CurrentServerTrafficSecret = writeKey
	schedule.CurrentClientTrafficSecret = readKey
	s.schedule = schedule
	return nil
}

// emitHelloRetryRequest asks the client to retry with a share on a
// group we support. Not hashed: the retried ClientHello restarts the
// exchange.
func (s *ServerSession) emitHelloRetryRequest(group wire.NamedGroup) error {
	req := &wire.HelloRetryRequest{
		Version: wire.VersionTLS13Draft18,
		Extensions: []wire.HelloRetryExtension{
			{Type: wire.ExtensionTypeKeyShare, Group: group},
		},
	}
	return s.sendHandshakeUnhashed(req)
}

func (s *ServerSession) emitEncryptedExtensions(hello *wire.ClientHello) error {
	exts, err := s.processExtensions(hello)
	if err != nil {
		return err
	}
	return s.sendHandshake(&wire.EncryptedExtensions{Extensions: exts})
}

func (s *ServerSession) emitCertificate13() error {
	body := &wire.Certificate13{}
	for _, cert := range s.scratch.serverCertChain {
		body.Entries = append(body.Entries, wire.CertificateEntry{Cert: cert})
	}
	return s.sendHandshake(body)
}

func (s *ServerSession) emitCertificateVerify13(offered []wire.SignatureScheme) error {
	scheme, ok := s.signer.ChooseScheme(offered)
	if !ok {
		return qerrors.General("no overlapping sigschemes", nil)
	}

	message := make([]byte, 0, constants.CertVerifyPadSize+len(constants.CertVerifyContext13)+64)
	for i := 0; i < constants.CertVerifyPadSize; i++ {
		message = append(message, 0x20)
	}
	message = append(message, constants.CertVerifyContext13...)
	message = append(message, s.transcript.CurrentHash()...)

	sig, err := s.signer.Sign(scheme, message)
	if err != nil {
		return qerrors.General("cannot sign", err)
	}

	return s.sendHandshake(&wire.CertificateVerify{
		Signed: wire.DigitallySigned{Scheme: scheme, Signature: sig},
	})
}

func (s *ServerSession) emitFinished13() error {
	handshakeHash := s.transcript.CurrentHash()
	verifyData := s.schedule.SignVerifyData(keysched.ServerHandshakeTrafficSecret, handshakeHash)
	return s.sendHandshake(&wire.Finished{VerifyData: verifyData})
}

// --- ClientHello ---

func (s *ServerSession) handleClientHelloTLS13(hello *wire.ClientHello) (serverState, error) {
	groupsExt := hello.NamedGroups()
	if groupsExt == nil {
		return 0, s.incompatible("client didn't describe groups")
	}
	sigschemesExt := hello.SignatureSchemes()
	if sigschemesExt == nil {
		return 0, s.incompatible("client didn't describe sigschemes")
	}
	shares := hello.KeyShares()
	if shares == nil {
		return 0, s.incompatible("client didn't send keyshares")
	}

	shareGroups := make([]wire.NamedGroup, 0, len(shares))
	for i := range shares {
		shareGroups = append(shareGroups, shares[i].Group)
	}

	chosenGroup, ok := firstGroupInBoth(s.supportedGroups(), shareGroups)
	if !ok {
		// No usable key share. If the client can do a group we
		// support, ask for a retry; otherwise there is no overlap.
		retryGroup, ok := firstGroupInBoth(s.supportedGroups(), groupsExt)
		if !ok {
			return 0, s.incompatible("no kx group overlap with client")
		}
		if err := s.emitHelloRetryRequest(retryGroup); err != nil {
			return 0, err
		}
		return serverExpectClientHello, nil
	}

	var chosenShare *wire.KeyShareEntry
	for i := range shares {
		if shares[i].Group == chosenGroup {
			chosenShare = &shares[i]
			break
		}
	}

	if err := s.emitServerHello13(chosenShare); err != nil {
		return 0, err
	}
	if err := s.emitEncryptedExtensions(hello); err != nil {
		return 0, err
	}
	if err := s.emitCertificate13(); err != nil {
		return 0, err
	}
	if err := s.emitCertificateVerify13(sigschemesExt); err != nil {
		return 0, err
	}
	if err := s.emitFinished13(); err != nil {
		return 0, err
	}
	return serverExpectFinishedTLS13, nil
}

func (s *ServerSession) handleClientHello(in *incoming) (serverState, error) {
	hello := in.hs.body.(*wire.ClientHello)

	if uint16(hello.Version) < uint16(wire.VersionTLS12) {
		s.sendFatalAlert(wire.AlertProtocolVersion)
		return 0, qerrors.PeerIncompatible("client does not support TLSv1.2")
	}

	if !containsCompression(hello.Compressions, wire.CompressionNull) {
		s.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerIncompatible("client did not offer Null compression")
	}

	if hello.HasDuplicateExtension() {
		s.sendFatalAlert(wire.AlertDecodeError)
		return 0, qerrors.PeerMisbehaved("client sent duplicate extensions")
	}

	// Common to 1.2 and 1.3: certificate and ciphersuite selection.
	sigschemesExt := hello.SignatureSchemes()
	if sigschemesExt == nil {
		// Without the extension the RFC mandates SHA-1 RSA.
		sigschemesExt = []wire.SignatureScheme{wire.SchemeRSAPKCS1SHA1}
	}

	cert, err := s.config.CertResolver.Resolve(hello.SNI(), sigschemesExt)
	if err != nil {
		s.sendFatalAlert(wire.AlertAccessDenied)
		return 0, qerrors.General("no server certificate chain resolved", err)
	}
	s.scratch.serverCertChain = cert.Chain
	s.signer = cert.Signer

	suitable := suite.ReduceGivenSigAlg(s.config.CipherSuites, cert.Signer.Algorithm())

	var chosen *suite.CipherSuite
	if s.config.IgnoreClientOrder {
		chosen = suite.ChoosePreferringServer(hello.CipherSuites, suitable)
	} else {
		chosen = suite.ChoosePreferringClient(hello.CipherSuites, suitable)
	}
	if chosen == nil {
		return 0, s.incompatible("no ciphersuites in common")
	}
	s.logger.Info("decided upon suite", metrics.Fields{"suite": uint16(chosen.ID)})
	s.suite = chosen

	// Start the handshake hash. A HelloRetryRequest round trips back
	// here with the hash already running; both ClientHellos fold in.
	if !s.transcript.Started() {
		s.transcript.Start(chosen.HashFunc())
	}
	s.transcript.Add(in.hs.raw)

	// TLS 1.3? Only when the negotiated suite can actually carry it.
	if chosen.IsTLS13() {
		for _, v := range hello.SupportedVersions() {
			if v == wire.VersionTLS13Draft18 {
				s.isTLS13 = true
				return s.handleClientHelloTLS13(hello)
			}
		}
	}

	// -- TLS 1.2 only from here on --
	copy(s.scratch.randoms.Client[:], hello.Random[:])

	groupsExt := hello.NamedGroups()
	if groupsExt == nil {
		return 0, s.incompatible("client didn't describe groups")
	}
	ecpointsExt := hello.PointFormats()
	if ecpointsExt == nil {
		return 0, s.incompatible("client didn't describe ec points")
	}
	if !containsPointFormat(ecpointsExt, wire.ECPointFormatUncompressed) {
		s.sendFatalAlert(wire.AlertHandshakeFailure)
		return 0, qerrors.PeerIncompatible("client didn't support uncompressed ec points")
	}

	// Resumption, in order of preference: a ticket that decrypts, then
	// a session id in the cache. A received ticket means the session
	// id is not a real cache key.
	ticketReceived := false
	if ext := hello.FindExtension(wire.ExtensionTypeSessionTicket); ext != nil && len(ext.Ticket) > 0 {
		ticketReceived = true
		s.logger.Debug("ticket received")
		if plain, ok := s.config.Ticketer.Decrypt(ext.Ticket); ok {
			if resumed, ok := decodeServerSessionValue(plain); ok {
				return s.startResumption(hello, hello.SessionID, resumed)
			}
		}
		s.logger.Debug("ticket didn't decrypt")
	}

	if len(hello.SessionID) > 0 && !ticketReceived {
		if data, ok := s.config.SessionStorage.Get(hello.SessionID); ok {
			if resumed, ok := decodeServerSessionValue(data); ok {
				return s.startResumption(hello, hello.SessionID, resumed)
			}
		}
	}
	s.observer.OnResumption(false)

	// Fresh handshake: resolve signing and kx parameters.
	sigscheme, ok := s.suite.ResolveSigScheme(sigschemesExt)
	if !ok {
		return 0, s.incompatible("no supported sig scheme")
	}
	group, ok := firstGroupInBoth(s.supportedGroups(), groupsExt)
	if !ok {
		return 0, s.incompatible("no supported group")
	}

	if err := s.emitServerHello(hello); err != nil {
		return 0, err
	}
	if err := s.emitCertificate12(); err != nil {
		return 0, err
	}
	if err := s.emitServerKX(sigscheme, group); err != nil {
		return 0, err
	}
	if err := s.emitCertificateReq(); err != nil {
		return 0, err
	}
	if err := s.emitServerHelloDone(); err != nil {
		return 0, err
	}

	if s.scratch.doingClientAuth {
		return serverExpectCertificate, nil
	}
	return serverExpectClientKX, nil
}

// --- client auth Certificate ---

func (s *ServerSession) handleClientCertificate(in *incoming) (serverState, error) {
	s.transcript.Add(in.hs.raw)
	certs := in.hs.body.(*wire.Certificate)

	if len(certs.Chain) == 0 {
		if s.config.ClientAuthMandatory {
			s.sendFatalAlert(wire.AlertAccessDenied)
			return 0, qerrors.PeerMisbehaved("client did not present a certificate")
		}
		s.logger.Info("client auth requested but no certificate supplied")
		s.scratch.doingClientAuth = false
		s.transcript.AbandonClientAuth()
		return serverExpectClientKX, nil
	}

	if err := s.config.Verifier.VerifyClientCert(s.config.ClientAuthRoots, certs.Chain); err != nil {
		s.sendFatalAlert(wire.AlertBadCertificate)
		return 0, err
	}

	s.scratch.validClientCertChain = certs.Chain
	return serverExpectClientKX, nil
}

// --- ClientKeyExchange ---

func (s *ServerSession) handleClientKX(in *incoming) (serverState, error) {
	ckx := in.hs.body.(*wire.ClientKeyExchange)
	s.transcript.Add(in.hs.raw)

	public, err := ckx.ECDHPublic()
	if err != nil {
		return 0, qerrors.PeerMisbehaved("bad ClientKeyExchange")
	}

	exchange := s.scratch.kxData
	s.scratch.kxData = nil
	if exchange == nil {
		return 0, qerrors.PeerMisbehaved("unexpected ClientKeyExchange")
	}
	result, err := exchange.Complete(public)
	if err != nil {
		return 0, qerrors.PeerMisbehaved("key exchange completion failed")
	}

	s.secrets = keysched.NewSessionSecrets(&s.scratch.randoms, s.suite.HashFunc(), result.PremasterSecret)
	if err := s.startEncryptionTLS12(); err != nil {
		return 0, err
	}

	if s.scratch.doingClientAuth {
		return serverExpectCertificateVerify, nil
	}
	return serverExpectCCS, nil
}

// --- client CertificateVerify ---

func (s *ServerSession) handleCertificateVerify(in *incoming) (serverState, error) {
	verify := in.hs.body.(*wire.CertificateVerify)

	certs := s.scratch.validClientCertChain
	if len(certs) == 0 {
		s.sendFatalAlert(wire.AlertAccessDenied)
		return 0, qerrors.PeerMisbehaved("CertificateVerify without certificate")
	}

	// The signature covers the raw accumulated handshake messages,
	// not a hash of them.
	handshakeMsgs := s.transcript.TakeHandshakeBuf()
	if err := verifySignedStruct(handshakeMsgs, certs[0], &verify.Signed); err != nil {
		s.sendFatalAlert(wire.AlertAccessDenied)
		return 0, err
	}
	s.logger.Debug("client CertificateVerify OK")

	s.transcript.Add(in.hs.raw)
	return serverExpectCCS, nil
}

// --- ChangeCipherSpec ---

func (s *ServerSession) handleCCS(in *incoming) (serverState, error) {
	if !s.joiner.IsEmpty() {
		s.logger.Warn("CCS received interleaved with fragmented handshake")
		return 0, s.rejectInappropriate(&qerrors.InappropriateMessageError{
			ExpectContentTypes: []uint8{uint8(wire.ContentTypeHandshake)},
			GotContentType:     uint8(wire.ContentTypeChangeCipherSpec),
		})
	}
	s.guard.PeerNowEncrypting()
	return serverExpectFinished, nil
}

// --- Finished ---

func (s *ServerSession) handleFinished(in *incoming) (serverState, error) {
	finished := in.hs.body.(*wire.Finished)

	verifyHash := s.transcript.CurrentHash()
	expect := s.secrets.ClientVerifyData(verifyHash)
	if !constantTimeEqual(expect, finished.VerifyData) {
		s.sendFatalAlert(wire.AlertDecryptError)
		return 0, qerrors.ErrDecrypt
	}

	// Save the session for stateful resumption. Put may refuse; that
	// is not an error.
	if !s.scratch.doingResume && len(s.scratch.sessionID) > 0 {
		if s.config.SessionStorage.Put(s.scratch.sessionID, s.serverSessionState().encode()) {
			s.logger.Debug("session saved")
		} else {
			s.logger.Debug("session not saved")
		}
	}

	s.transcript.Add(in.hs.raw)
	if !s.scratch.doingResume {
		if err := s.emitTicket(); err != nil {
			return 0, err
		}
		if err := s.emitCCS(); err != nil {
			return 0, err
		}
		if err := s.emitFinished12(); err != nil {
			return 0, err
		}
	}

	s.completeHandshake(wire.VersionTLS12)
	return serverTraffic, nil
}

func (s *ServerSession) handleFinishedTLS13(in *incoming) (serverState, error) {
	finished := in.hs.body.(*wire.Finished)

	handshakeHash := s.transcript.CurrentHash()
	expect := s.schedule.SignVerifyData(keysched.ClientHandshakeTrafficSecret, handshakeHash)
	if !constantTimeEqual(expect, finished.VerifyData) {
		s.sendFatalAlert(wire.AlertDecryptError)
		return 0, qerrors.ErrDecrypt
	}

	// Later derivations include the client Finished, but the
	// application keying does not.
	s.transcript.Add(in.hs.raw)

	s.schedule.InputEmpty()
	writeKey := s.schedule.Derive(keysched.ServerApplicationTrafficSecret, handshakeHash)
	readKey := s.schedule.Derive(keysched.ClientApplicationTrafficSecret, handshakeHash)
	if err := s.setTLS13Cipher(writeKey, readKey); err != nil {
		return 0, err
	}
	s.schedule.CurrentServerTrafficSecret = writeKey
	s.schedule.CurrentClientTrafficSecret = readKey

	s.completeHandshake(wire.VersionTLS13Draft18)
	return serverTraffic, nil
}

// --- traffic ---

func (s *ServerSession) handleTraffic(in *incoming) (serverState, error) {
	s.takeReceivedPlaintext(in.payload)
	return serverTraffic, nil
}

// --- helpers ---

func firstGroupInBoth(ours, theirs []wire.NamedGroup) (wire.NamedGroup, bool) {
	for _, a := range ours {
		for _, b := range theirs {
			if a == b {
				return a, true
			}
		}
	}
	return 0, false
}

func firstStringInBoth(ours, theirs []string) string {
	for _, a := range ours {
		for _, b := range theirs {
			if a == b {
				return a
			}
		}
	}
	return ""
}

func containsCompression(list []wire.Compression, want wire.Compression) bool {
	for _, c := range list {
		if c == want {
			return true
		}
	}
	return false
}

func containsPointFormat(list []wire.ECPointFormat, want wire.ECPointFormat) bool {
	for _, f := range list {
		if f == want {
			return true
		}
	}
	return false
}

func containsSuiteID(list []wire.CipherSuiteID, want wire.CipherSuiteID) bool {
	for _, id := range list {
		if id == want {
			return true
		}
	}
	return false
}

// caNamesFromPool extracts the raw subject names of the client-auth
// roots for CertificateRequest.
func caNamesFromPool(pool *x509.CertPool) [][]byte {
	if pool == nil {
		return nil
	}
	//nolint:staticcheck // Subjects is exactly the DER name list the wire wants
	return pool.Subjects()
}
