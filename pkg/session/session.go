package session

import (
	"context"
	"encoding/binary"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/metrics"
	"github.com/veiltls/veil/pkg/record"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/transcript"
	"github.com/veiltls/veil/pkg/wire"
)

// Role identifies which side of the handshake a session plays.
type Role int

// Session roles.
const (
	RoleClient Role = iota
	RoleServer
)

// handshakeMsg is one complete handshake message: the decoded body and
// its exact wire bytes for the transcript.
type handshakeMsg struct {
	body wire.HandshakeBody
	raw  []byte
}

// handshakeJoiner reassembles handshake messages from record payloads.
// Handshake messages may span records and records may carry several
// messages; the joiner buffers bytes and pops whole messages.
type handshakeJoiner struct {
	buf []byte
}

// IsEmpty reports whether no partial message is buffered.
func (j *handshakeJoiner) IsEmpty() bool {
	return len(j.buf) == 0
}

func (j *handshakeJoiner) push(payload []byte) {
	j.buf = append(j.buf, payload...)
}

// pop returns the next complete message, or nil if more bytes are
// needed.
func (j *handshakeJoiner) pop(vers wire.ProtocolVersion) (*handshakeMsg, error) {
	if len(j.buf) < 4 {
		return nil, nil
	}
	bodyLen := int(binary.BigEndian.Uint32([]byte{0, j.buf[1], j.buf[2], j.buf[3]}))
	if bodyLen > constants.MaxHandshakeMessageSize {
		return nil, qerrors.PeerMisbehaved("oversized handshake message")
	}
	total := 4 + bodyLen
	if len(j.buf) < total {
		return nil, nil
	}

	raw := append([]byte(nil), j.buf[:total]...)
	j.buf = j.buf[total:]
	if len(j.buf) == 0 {
		j.buf = nil
	}

	body, err := wire.ParseHandshake(raw, vers)
	if err != nil {
		return nil, err
	}
	return &handshakeMsg{body: body, raw: raw}, nil
}

// incoming is one message after record decryption, ready for the state
// machine.
type incoming struct {
	contentType wire.ContentType
	hs          *handshakeMsg // nil unless contentType is Handshake
	payload     []byte        // CCS / ApplicationData payload
}

func (in *incoming) handshakeType() wire.HandshakeType {
	if in.hs == nil {
		return 0
	}
	return in.hs.body.Type()
}

// expectation is a state's admissible message set.
type expectation struct {
	contentTypes   []wire.ContentType
	handshakeTypes []wire.HandshakeType
}

func (e *expectation) check(in *incoming) error {
	for _, ct := range e.contentTypes {
		if ct != in.contentType {
			continue
		}
		if in.contentType != wire.ContentTypeHandshake || len(e.handshakeTypes) == 0 {
			return nil
		}
		for _, ht := range e.handshakeTypes {
			if ht == in.handshakeType() {
				return nil
			}
		}
	}

	err := &qerrors.InappropriateMessageError{
		GotContentType:   uint8(in.contentType),
		GotHandshakeType: uint8(in.handshakeType()),
	}
	for _, ct := range e.contentTypes {
		err.ExpectContentTypes = append(err.ExpectContentTypes, uint8(ct))
	}
	for _, ht := range e.handshakeTypes {
		err.ExpectHandshakeTypes = append(err.ExpectHandshakeTypes, uint8(ht))
	}
	return err
}

// session holds the state shared by the client and server machines.
type session struct {
	role Role

	guard      *record.Guard
	transcript *transcript.Transcript
	joiner     handshakeJoiner
	scratch    *handshakeScratch

	suite   *suite.CipherSuite
	isTLS13 bool
	alpn    string

	// Exactly one of these is populated, by protocol version.
	secrets  *keysched.SessionSecrets
	schedule *keysched.Schedule13

	outQueue  []wire.Message
	plainIn   []byte
	peerCerts [][]byte

	handshakeDone bool
	sentFatal     bool
	err           error

	logger   *metrics.Logger
	observer Observer
	endSpan  func(error)
}

func newSession(role Role, logger *metrics.Logger, observer Observer, tracer metrics.Tracer) *session {
	s := &session{
		role:       role,
		guard:      record.NewGuard(),
		transcript: transcript.New(),
		scratch:    newHandshakeScratch(),
		logger:     logger,
		observer:   observer,
	}
	if s.observer == nil {
		s.observer = NoOpObserver{}
	}
	if tracer == nil {
		tracer = metrics.NoOpTracer{}
	}
	kind := metrics.SpanKindServer
	name := "tls.handshake.server"
	if role == RoleClient {
		kind = metrics.SpanKindClient
		name = "tls.handshake.client"
	}
	_, s.endSpan = tracer.StartSpan(context.Background(), name, metrics.WithSpanKind(kind))
	_, obsDone := s.observer.OnHandshakeStart(context.Background())
	// Fold the observer's completion into the span ender.
	spanEnd := s.endSpan
	s.endSpan = func(err error) {
		obsDone(err)
		spanEnd(err)
	}
	return s
}

// parseVersion is the version handed to the handshake parser for the
// version-dependent bodies.
func (s *session) parseVersion() wire.ProtocolVersion {
	if s.isTLS13 {
		return wire.VersionTLS13
	}
	return wire.VersionTLS12
}

// queueMessage protects and queues one record for the transport.
func (s *session) queueMessage(m wire.Message) error {
	out, err := s.guard.EncryptOutgoing(m)
	if err != nil {
		return err
	}
	s.outQueue = append(s.outQueue, out)
	return nil
}

// sendHandshake encodes a handshake body, mixes it into the
// transcript, and queues it.
func (s *session) sendHandshake(body wire.HandshakeBody) error {
	encoded := wire.MarshalHandshake(body)
	s.transcript.Add(encoded)
	return s.queueMessage(wire.NewHandshakeMessage(encoded))
}

// sendHandshakeUnhashed queues a handshake body without touching the
// transcript (HelloRetryRequest).
func (s *session) sendHandshakeUnhashed(body wire.HandshakeBody) error {
	return s.queueMessage(wire.NewHandshakeMessage(wire.MarshalHandshake(body)))
}

// sendFatalAlert queues a fatal alert for transmission. Only the first
// fatal alert of a session goes out.
func (s *session) sendFatalAlert(desc wire.AlertDescription) {
	if s.sentFatal {
		return
	}
	s.sentFatal = true
	s.observer.OnAlertSent(desc)
	s.logger.Warn("sending fatal alert", metrics.Fields{"alert": desc.String()})
	// Alert queueing must not fail the session harder than it already
	// has; encryption errors here are swallowed.
	_ = s.queueMessage(wire.NewAlertMessage(wire.AlertLevelFatal, desc))
}

// fail records the terminal error, ends the handshake span, and
// returns the error for propagation.
func (s *session) fail(err error) error {
	if s.err == nil {
		s.err = err
		s.observer.OnProtocolError(err)
		if !s.handshakeDone {
			s.endSpan(err)
		}
	}
	return s.err
}

// completeHandshake marks the session established and frees the
// handshake scratch; the peer's certificate chain survives it.
func (s *session) completeHandshake(version wire.ProtocolVersion) {
	if s.scratch != nil {
		if s.role == RoleClient {
			s.peerCerts = s.scratch.serverCertChain
		} else {
			s.peerCerts = s.scratch.validClientCertChain
		}
	}
	s.handshakeDone = true
	s.scratch = nil
	s.endSpan(nil)
	s.observer.OnHandshakeComplete(version, s.suite.ID, s.alpn)
	s.logger.Info("handshake complete", metrics.Fields{
		"version": version.String(),
		"suite":   uint16(s.suite.ID),
		"alpn":    s.alpn,
	})
}

// startEncryptionTLS12 builds the TLS 1.2 record cipher from the
// session secrets. The CCS boundaries activate each direction.
func (s *session) startEncryptionTLS12() error {
	cipher, err := record.NewTLS12Cipher(s.suite, s.secrets, s.role == RoleClient)
	if err != nil {
		return err
	}
	s.guard.PrepareTLS12(cipher)
	return nil
}

// setTLS13Cipher rotates both directions to a fresh traffic cipher.
// writeSecret/readSecret are from this session's perspective.
func (s *session) setTLS13Cipher(writeSecret, readSecret []byte) error {
	cipher, err := record.NewTLS13Cipher(s.suite, writeSecret, readSecret)
	if err != nil {
		return err
	}
	s.guard.SetMessageCipher(cipher, record.ChangeBothNew)
	s.observer.OnCipherRotate()
	return nil
}

// handleMessage is the shared receive path: decrypt, demultiplex, and
// hand complete messages to the role's dispatch function.
func (s *session) handleMessage(m wire.Message, dispatch func(*incoming) error) error {
	if s.err != nil {
		return s.err
	}

	plain, err := s.guard.DecryptIncoming(m)
	if err != nil {
		s.sendFatalAlert(wire.AlertDecryptError)
		return s.fail(err)
	}

	switch plain.Type {
	case wire.ContentTypeAlert:
		alert, err := wire.ParseAlert(plain.Payload)
		if err != nil {
			s.sendFatalAlert(wire.AlertDecodeError)
			return s.fail(qerrors.PeerMisbehaved("bad alert payload"))
		}
		s.observer.OnAlertReceived(alert.Description)
		if alert.Level == wire.AlertLevelWarning && alert.Description != wire.AlertCloseNotify {
			s.logger.Debug("ignoring warning alert", metrics.Fields{"alert": alert.Description.String()})
			return nil
		}
		return s.fail(qerrors.AlertReceived(uint8(alert.Description), alert.Description.String()))

	case wire.ContentTypeHandshake:
		s.joiner.push(plain.Payload)
		for {
			msg, err := s.joiner.pop(s.parseVersion())
			if err != nil {
				s.sendFatalAlert(wire.AlertDecodeError)
				return s.fail(err)
			}
			if msg == nil {
				return nil
			}
			if err := dispatch(&incoming{contentType: wire.ContentTypeHandshake, hs: msg}); err != nil {
				return s.fail(err)
			}
		}

	case wire.ContentTypeChangeCipherSpec:
		if !plain.ValidChangeCipherSpec() {
			s.sendFatalAlert(wire.AlertDecodeError)
			return s.fail(qerrors.PeerMisbehaved("malformed ChangeCipherSpec"))
		}
		if err := dispatch(&incoming{contentType: plain.Type, payload: plain.Payload}); err != nil {
			return s.fail(err)
		}
		return nil

	case wire.ContentTypeApplicationData:
		if err := dispatch(&incoming{contentType: plain.Type, payload: plain.Payload}); err != nil {
			return s.fail(err)
		}
		return nil

	default:
		s.sendFatalAlert(wire.AlertUnexpectedMessage)
		return s.fail(qerrors.PeerMisbehaved("unknown record content type"))
	}
}

// rejectInappropriate sends the unexpected-message alert and wraps the
// expectation failure.
func (s *session) rejectInappropriate(err error) error {
	s.sendFatalAlert(wire.AlertUnexpectedMessage)
	return err
}

// takeReceivedPlaintext appends decrypted application data to the
// inbound queue.
func (s *session) takeReceivedPlaintext(data []byte) {
	s.plainIn = append(s.plainIn, data...)
}

// --- caller-facing buffered I/O ---

// OutgoingMessages drains the records queued for the transport.
func (s *session) OutgoingMessages() []wire.Message {
	out := s.outQueue
	s.outQueue = nil
	return out
}

// ReadApplicationData drains the plaintext received so far.
func (s *session) ReadApplicationData() []byte {
	out := s.plainIn
	s.plainIn = nil
	return out
}

// SendApplicationData queues plaintext for protected transmission.
// Valid only after the handshake completes.
func (s *session) SendApplicationData(data []byte) error {
	if s.err != nil {
		return s.err
	}
	if !s.handshakeDone {
		return qerrors.ErrHandshakeNotComplete
	}
	for len(data) > 0 {
		n := len(data)
		if n > constants.MaxPlaintextSize {
			n = constants.MaxPlaintextSize
		}
		if err := s.queueMessage(wire.NewApplicationData(data[:n])); err != nil {
			return s.fail(err)
		}
		data = data[n:]
	}
	return nil
}

// HandshakeComplete reports whether the session reached traffic.
func (s *session) HandshakeComplete() bool {
	return s.handshakeDone
}

// ALPNProtocol returns the negotiated ALPN protocol, or "".
func (s *session) ALPNProtocol() string {
	return s.alpn
}

// PeerCertificates returns the validated peer chain (leaf first,
// DER), nil when the peer presented none.
func (s *session) PeerCertificates() [][]byte {
	return s.peerCerts
}

// Err returns the session's terminal error, if any.
func (s *session) Err() error {
	return s.err
}

// constantTimeEqual compares verify_data in constant time.
func constantTimeEqual(a, b []byte) bool {
	return record.ConstantTimeEqual(a, b)
}
