package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/veiltls/veil/internal/constants"
)

// HandshakeBody is one decoded handshake message body.
//
// Parsing is context-free except for Certificate and NewSessionTicket,
// whose encodings differ between TLS 1.2 and 1.3; ParseHandshake takes
// the negotiated version explicitly for that reason.
type HandshakeBody interface {
	Type() HandshakeType
	marshalBody(b *cryptobyte.Builder)
}

// MarshalHandshake encodes a handshake body with its four-byte header
// (type, u24 length).
func MarshalHandshake(body HandshakeBody) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(uint8(body.Type()))
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		body.marshalBody(b)
	})
	out, err := b.Bytes()
	if err != nil {
		// Builder errors only occur on length overflow, which the
		// size limits rule out.
		panic("wire: handshake encoding failed: " + err.Error())
	}
	return out
}

// ParseHandshake decodes a complete handshake message (header and
// body). vers selects the TLS 1.2 or 1.3 encoding for the
// version-dependent bodies. Trailing bytes are a decode error.
func ParseHandshake(data []byte, vers ProtocolVersion) (HandshakeBody, error) {
	s := cryptobyte.String(data)
	var typ uint8
	var body cryptobyte.String
	if !s.ReadUint8(&typ) || !s.ReadUint24LengthPrefixed(&body) || !s.Empty() {
		return nil, errDecode("bad handshake header")
	}
	return parseHandshakeBody(HandshakeType(typ), body, vers)
}

func parseHandshakeBody(typ HandshakeType, body cryptobyte.String, vers ProtocolVersion) (HandshakeBody, error) {
	var parsed HandshakeBody
	ok := false

	switch typ {
	case HandshakeTypeHelloRequest:
		parsed, ok = &HelloRequest{}, body.Empty()
	case HandshakeTypeClientHello:
		m := &ClientHello{}
		parsed, ok = m, m.unmarshal(&body)
	case HandshakeTypeServerHello:
		m := &ServerHello{}
		parsed, ok = m, m.unmarshal(&body)
	case HandshakeTypeHelloRetryRequest:
		m := &HelloRetryRequest{}
		parsed, ok = m, m.unmarshal(&body)
	case HandshakeTypeCertificate:
		if vers.IsTLS13() {
			m := &Certificate13{}
			parsed, ok = m, m.unmarshal(&body)
		} else {
			m := &Certificate{}
			parsed, ok = m, m.unmarshal(&body)
		}
	case HandshakeTypeServerKeyExchange:
		m := &ServerKeyExchange{Raw: append([]byte(nil), body...)}
		body.Skip(len(body))
		parsed, ok = m, true
	case HandshakeTypeCertificateRequest:
		m := &CertificateRequest{}
		parsed, ok = m, m.unmarshal(&body)
	case HandshakeTypeCertificateVerify:
		m := &CertificateVerify{}
		parsed, ok = m, readDigitallySigned(&body, &m.Signed)
	case HandshakeTypeServerHelloDone:
		parsed, ok = &ServerHelloDone{}, body.Empty()
	case HandshakeTypeClientKeyExchange:
		m := &ClientKeyExchange{Raw: append([]byte(nil), body...)}
		body.Skip(len(body))
		parsed, ok = m, true
	case HandshakeTypeNewSessionTicket:
		if vers.IsTLS13() {
			m := &NewSessionTicket13{}
			parsed, ok = m, m.unmarshal(&body)
		} else {
			m := &NewSessionTicket{}
			parsed, ok = m, m.unmarshal(&body)
		}
	case HandshakeTypeEncryptedExtensions:
		m := &EncryptedExtensions{}
		parsed, ok = m, m.unmarshal(&body)
	case HandshakeTypeFinished:
		m := &Finished{VerifyData: append([]byte(nil), body...)}
		body.Skip(len(body))
		parsed, ok = m, true
	case HandshakeTypeKeyUpdate:
		m := &KeyUpdate{}
		var req uint8
		ok = body.ReadUint8(&req) && body.Empty()
		m.Request = KeyUpdateRequest(req)
		parsed = m
	default:
		m := &UnknownHandshake{Typ: typ, Raw: append([]byte(nil), body...)}
		body.Skip(len(body))
		parsed, ok = m, true
	}

	if !ok || !body.Empty() {
		return nil, errDecode("bad " + typ.String() + " body")
	}
	return parsed, nil
}

// Random is the 32-byte hello random: a u32 gmt_unix_time followed by
// 28 opaque bytes. Veil treats the whole value as opaque.
type Random [constants.RandomSize]byte

// readSessionID reads a u8-length session id, rejecting anything over
// 32 bytes.
func readSessionID(s *cryptobyte.String, out *[]byte) bool {
	var id cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&id) || len(id) > constants.MaxSessionIDSize {
		return false
	}
	if len(id) > 0 {
		*out = append([]byte(nil), id...)
	}
	return true
}

func addSessionID(b *cryptobyte.Builder, id []byte) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(id)
	})
}

// --- ClientHello ---

// ClientHello is the ClientHello body.
type ClientHello struct {
	Version      ProtocolVersion
	Random       Random
	SessionID    []byte
	CipherSuites []CipherSuiteID
	Compressions []Compression
	Extensions   []ClientExtension
}

// Type implements HandshakeBody.
func (m *ClientHello) Type() HandshakeType { return HandshakeTypeClientHello }

func (m *ClientHello) marshalBody(b *cryptobyte.Builder) {
	b.AddUint16(uint16(m.Version))
	b.AddBytes(m.Random[:])
	addSessionID(b, m.SessionID)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, cs := range m.CipherSuites {
			b.AddUint16(uint16(cs))
		}
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, c := range m.Compressions {
			b.AddUint8(uint8(c))
		}
	})
	if len(m.Extensions) > 0 {
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for i := range m.Extensions {
				m.Extensions[i].marshal(b)
			}
		})
	}
}

func (m *ClientHello) unmarshal(s *cryptobyte.String) bool {
	var vers uint16
	if !s.ReadUint16(&vers) || !s.CopyBytes(m.Random[:]) {
		return false
	}
	m.Version = ProtocolVersion(vers)
	if !readSessionID(s, &m.SessionID) {
		return false
	}

	var suites cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&suites) {
		return false
	}
	for !suites.Empty() {
		var cs uint16
		if !suites.ReadUint16(&cs) {
			return false
		}
		m.CipherSuites = append(m.CipherSuites, CipherSuiteID(cs))
	}

	var comps cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&comps) {
		return false
	}
	for !comps.Empty() {
		var c uint8
		if !comps.ReadUint8(&c) {
			return false
		}
		m.Compressions = append(m.Compressions, Compression(c))
	}

	if s.Empty() {
		return true
	}
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return false
	}
	for !exts.Empty() {
		var ext ClientExtension
		if !readClientExtension(&exts, &ext) {
			return false
		}
		m.Extensions = append(m.Extensions, ext)
	}
	return true
}

// HasDuplicateExtension reports whether two extensions share a type.
func (m *ClientHello) HasDuplicateExtension() bool {
	types := make([]ExtensionType, len(m.Extensions))
	for i := range m.Extensions {
		types[i] = m.Extensions[i].Type
	}
	return hasDuplicateExtensionType(types)
}

// FindExtension returns the first extension of the given type.
func (m *ClientHello) FindExtension(typ ExtensionType) *ClientExtension {
	for i := range m.Extensions {
		if m.Extensions[i].Type == typ {
			return &m.Extensions[i]
		}
	}
	return nil
}

// SNI returns the offered hostname, or "".
func (m *ClientHello) SNI() string {
	if ext := m.FindExtension(ExtensionTypeServerName); ext != nil {
		return ext.ServerName
	}
	return ""
}

// NamedGroups returns the supported-groups extension, or nil.
func (m *ClientHello) NamedGroups() []NamedGroup {
	if ext := m.FindExtension(ExtensionTypeSupportedGroups); ext != nil {
		return ext.Groups
	}
	return nil
}

// PointFormats returns the ec-point-formats extension, or nil.
func (m *ClientHello) PointFormats() []ECPointFormat {
	if ext := m.FindExtension(ExtensionTypeECPointFormats); ext != nil {
		return ext.PointFormats
	}
	return nil
}

// SignatureSchemes returns the signature-algorithms extension, or nil.
func (m *ClientHello) SignatureSchemes() []SignatureScheme {
	if ext := m.FindExtension(ExtensionTypeSignatureAlgorithms); ext != nil {
		return ext.SignatureSchemes
	}
	return nil
}

// ALPNProtocols returns the offered protocol names, or nil.
func (m *ClientHello) ALPNProtocols() []string {
	if ext := m.FindExtension(ExtensionTypeALPN); ext != nil {
		return ext.Protocols
	}
	return nil
}

// SupportedVersions returns the supported-versions extension, or nil.
func (m *ClientHello) SupportedVersions() []ProtocolVersion {
	if ext := m.FindExtension(ExtensionTypeSupportedVersions); ext != nil {
		return ext.Versions
	}
	return nil
}

// KeyShares returns the key-share extension, or nil.
func (m *ClientHello) KeyShares() []KeyShareEntry {
	if ext := m.FindExtension(ExtensionTypeKeyShare); ext != nil {
		return ext.KeyShares
	}
	return nil
}

// --- ServerHello ---

// ServerHello is the ServerHello body. The TLS 1.3 draft-18 encoding
// omits session_id and compression; marshalling branches on Version.
type ServerHello struct {
	Version     ProtocolVersion
	Random      Random
	SessionID   []byte
	CipherSuite CipherSuiteID
	Compression Compression
	Extensions  []ServerExtension
}

// Type implements HandshakeBody.
func (m *ServerHello) Type() HandshakeType { return HandshakeTypeServerHello }

func (m *ServerHello) marshalBody(b *cryptobyte.Builder) {
	b.AddUint16(uint16(m.Version))
	b.AddBytes(m.Random[:])
	if m.Version.IsTLS13() {
		b.AddUint16(uint16(m.CipherSuite))
	} else {
		addSessionID(b, m.SessionID)
		b.AddUint16(uint16(m.CipherSuite))
		b.AddUint8(uint8(m.Compression))
	}
	if len(m.Extensions) > 0 {
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for i := range m.Extensions {
				m.Extensions[i].marshal(b)
			}
		})
	}
}

func (m *ServerHello) unmarshal(s *cryptobyte.String) bool {
	var vers uint16
	if !s.ReadUint16(&vers) || !s.CopyBytes(m.Random[:]) {
		return false
	}
	m.Version = ProtocolVersion(vers)

	if m.Version.IsTLS13() {
		var cs uint16
		if !s.ReadUint16(&cs) {
			return false
		}
		m.CipherSuite = CipherSuiteID(cs)
		m.Compression = CompressionNull
	} else {
		if !readSessionID(s, &m.SessionID) {
			return false
		}
		var cs uint16
		var comp uint8
		if !s.ReadUint16(&cs) || !s.ReadUint8(&comp) {
			return false
		}
		m.CipherSuite = CipherSuiteID(cs)
		m.Compression = Compression(comp)
	}

	if s.Empty() {
		return true
	}
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return false
	}
	for !exts.Empty() {
		var ext ServerExtension
		if !readServerExtension(&exts, &ext) {
			return false
		}
		m.Extensions = append(m.Extensions, ext)
	}
	return true
}

// HasDuplicateExtension reports whether two extensions share a type.
func (m *ServerHello) HasDuplicateExtension() bool {
	types := make([]ExtensionType, len(m.Extensions))
	for i := range m.Extensions {
		types[i] = m.Extensions[i].Type
	}
	return hasDuplicateExtensionType(types)
}

// FindExtension returns the first extension of the given type.
func (m *ServerHello) FindExtension(typ ExtensionType) *ServerExtension {
	for i := range m.Extensions {
		if m.Extensions[i].Type == typ {
			return &m.Extensions[i]
		}
	}
	return nil
}

// ALPNProtocol returns the negotiated protocol, or "".
func (m *ServerHello) ALPNProtocol() string {
	if ext := m.FindExtension(ExtensionTypeALPN); ext != nil {
		return ext.ALPNProtocol()
	}
	return ""
}

// KeyShare returns the server key share, or nil.
func (m *ServerHello) KeyShare() *KeyShareEntry {
	if ext := m.FindExtension(ExtensionTypeKeyShare); ext != nil {
		return &ext.KeyShare
	}
	return nil
}

// --- HelloRetryRequest ---

// HelloRetryRequest directs the client to retry its ClientHello with a
// different key-share group.
type HelloRetryRequest struct {
	Version    ProtocolVersion
	Extensions []HelloRetryExtension
}

// Type implements HandshakeBody.
func (m *HelloRetryRequest) Type() HandshakeType { return HandshakeTypeHelloRetryRequest }

func (m *HelloRetryRequest) marshalBody(b *cryptobyte.Builder) {
	b.AddUint16(uint16(m.Version))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for i := range m.Extensions {
			m.Extensions[i].marshal(b)
		}
	})
}

func (m *HelloRetryRequest) unmarshal(s *cryptobyte.String) bool {
	var vers uint16
	var exts cryptobyte.String
	if !s.ReadUint16(&vers) || !s.ReadUint16LengthPrefixed(&exts) {
		return false
	}
	m.Version = ProtocolVersion(vers)
	for !exts.Empty() {
		var ext HelloRetryExtension
		if !readHelloRetryExtension(&exts, &ext) {
			return false
		}
		m.Extensions = append(m.Extensions, ext)
	}
	return true
}

// RequestedGroup returns the key-share group being requested, or 0.
func (m *HelloRetryRequest) RequestedGroup() NamedGroup {
	for i := range m.Extensions {
		if m.Extensions[i].Type == ExtensionTypeKeyShare {
			return m.Extensions[i].Group
		}
	}
	return 0
}

// --- Certificates ---

// Certificate is the TLS 1.2 Certificate body: a u24 vector of u24
// DER certificates, leaf first.
type Certificate struct {
	Chain [][]byte
}

// Type implements HandshakeBody.
func (m *Certificate) Type() HandshakeType { return HandshakeTypeCertificate }

func (m *Certificate) marshalBody(b *cryptobyte.Builder) {
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, cert := range m.Chain {
			b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(cert)
			})
		}
	})
}

func (m *Certificate) unmarshal(s *cryptobyte.String) bool {
	var list cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&list) || !s.Empty() {
		return false
	}
	for !list.Empty() {
		var cert cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&cert) {
			return false
		}
		m.Chain = append(m.Chain, append([]byte(nil), cert...))
	}
	return true
}

// CertificateEntry is one certificate plus its extensions in the
// TLS 1.3 encoding. Extensions round-trip opaquely.
type CertificateEntry struct {
	Cert       []byte
	Extensions []byte
}

// Certificate13 is the TLS 1.3 Certificate body: a request context and
// a u24 vector of entries.
type Certificate13 struct {
	RequestContext []byte
	Entries        []CertificateEntry
}

// Type implements HandshakeBody.
func (m *Certificate13) Type() HandshakeType { return HandshakeTypeCertificate }

func (m *Certificate13) marshalBody(b *cryptobyte.Builder) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.RequestContext)
	})
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, e := range m.Entries {
			b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(e.Cert)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(e.Extensions)
			})
		}
	})
}

func (m *Certificate13) unmarshal(s *cryptobyte.String) bool {
	var ctx cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&ctx) {
		return false
	}
	if len(ctx) > 0 {
		m.RequestContext = append([]byte(nil), ctx...)
	}
	var list cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&list) || !s.Empty() {
		return false
	}
	for !list.Empty() {
		var cert, exts cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&cert) || !list.ReadUint16LengthPrefixed(&exts) {
			return false
		}
		entry := CertificateEntry{Cert: append([]byte(nil), cert...)}
		if len(exts) > 0 {
			entry.Extensions = append([]byte(nil), exts...)
		}
		m.Entries = append(m.Entries, entry)
	}
	return true
}

// Chain flattens the entries into a plain certificate chain.
func (m *Certificate13) Chain() [][]byte {
	chain := make([][]byte, 0, len(m.Entries))
	for _, e := range m.Entries {
		chain = append(chain, e.Cert)
	}
	return chain
}

// --- ServerKeyExchange ---

// DigitallySigned is a signature scheme plus signature bytes.
type DigitallySigned struct {
	Scheme    SignatureScheme
	Signature []byte
}

func (d *DigitallySigned) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(d.Scheme))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(d.Signature)
	})
}

func readDigitallySigned(s *cryptobyte.String, d *DigitallySigned) bool {
	var scheme uint16
	var sig cryptobyte.String
	if !s.ReadUint16(&scheme) || !s.ReadUint16LengthPrefixed(&sig) {
		return false
	}
	d.Scheme = SignatureScheme(scheme)
	d.Signature = append([]byte(nil), sig...)
	return true
}

// ServerECDHParams is the signed ECDHE parameter block: a named-curve
// declaration and the server's public point.
type ServerECDHParams struct {
	Group  NamedGroup
	Public []byte
}

func (p *ServerECDHParams) marshal(b *cryptobyte.Builder) {
	b.AddUint8(uint8(ECCurveTypeNamedCurve))
	b.AddUint16(uint16(p.Group))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(p.Public)
	})
}

// Marshal encodes the parameter block alone, as signed in
// ServerKeyExchange.
func (p *ServerECDHParams) Marshal() []byte {
	b := cryptobyte.NewBuilder(nil)
	p.marshal(b)
	out, _ := b.Bytes()
	return out
}

func readServerECDHParams(s *cryptobyte.String, p *ServerECDHParams) bool {
	var curveType uint8
	if !s.ReadUint8(&curveType) || ECCurveType(curveType) != ECCurveTypeNamedCurve {
		return false
	}
	var group uint16
	var public cryptobyte.String
	if !s.ReadUint16(&group) || !s.ReadUint8LengthPrefixed(&public) {
		return false
	}
	p.Group = NamedGroup(group)
	p.Public = append([]byte(nil), public...)
	return true
}

// ECDHEServerKeyExchange is a decoded ECDHE ServerKeyExchange.
type ECDHEServerKeyExchange struct {
	Params ServerECDHParams
	Signed DigitallySigned
}

// ServerKeyExchange is the ServerKeyExchange body. It is read as
// opaque bytes and fully parsed once the key exchange algorithm is
// known.
type ServerKeyExchange struct {
	Raw   []byte
	ECDHE *ECDHEServerKeyExchange
}

// Type implements HandshakeBody.
func (m *ServerKeyExchange) Type() HandshakeType { return HandshakeTypeServerKeyExchange }

func (m *ServerKeyExchange) marshalBody(b *cryptobyte.Builder) {
	if m.ECDHE != nil {
		m.ECDHE.Params.marshal(b)
		m.ECDHE.Signed.marshal(b)
		return
	}
	b.AddBytes(m.Raw)
}

// DecodeECDHE parses the opaque payload as an ECDHE exchange.
func (m *ServerKeyExchange) DecodeECDHE() (*ECDHEServerKeyExchange, error) {
	if m.ECDHE != nil {
		return m.ECDHE, nil
	}
	s := cryptobyte.String(m.Raw)
	var kx ECDHEServerKeyExchange
	if !readServerECDHParams(&s, &kx.Params) || !readDigitallySigned(&s, &kx.Signed) || !s.Empty() {
		return nil, errDecode("bad ECDHE ServerKeyExchange")
	}
	return &kx, nil
}

// --- CertificateRequest ---

// CertificateRequest is the TLS 1.2 CertificateRequest body.
type CertificateRequest struct {
	CertTypes        []ClientCertificateType
	SignatureSchemes []SignatureScheme
	CANames          [][]byte
}

// Type implements HandshakeBody.
func (m *CertificateRequest) Type() HandshakeType { return HandshakeTypeCertificateRequest }

func (m *CertificateRequest) marshalBody(b *cryptobyte.Builder) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, t := range m.CertTypes {
			b.AddUint8(uint8(t))
		}
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, s := range m.SignatureSchemes {
			b.AddUint16(uint16(s))
		}
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, name := range m.CANames {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(name)
			})
		}
	})
}

func (m *CertificateRequest) unmarshal(s *cryptobyte.String) bool {
	var types cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&types) {
		return false
	}
	for !types.Empty() {
		var t uint8
		if !types.ReadUint8(&t) {
			return false
		}
		m.CertTypes = append(m.CertTypes, ClientCertificateType(t))
	}

	var schemes cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&schemes) {
		return false
	}
	for !schemes.Empty() {
		var sc uint16
		if !schemes.ReadUint16(&sc) {
			return false
		}
		m.SignatureSchemes = append(m.SignatureSchemes, SignatureScheme(sc))
	}

	var names cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&names) || !s.Empty() {
		return false
	}
	for !names.Empty() {
		var name cryptobyte.String
		if !names.ReadUint16LengthPrefixed(&name) {
			return false
		}
		m.CANames = append(m.CANames, append([]byte(nil), name...))
	}
	return true
}

// HasCertType reports whether the request allows the given type.
func (m *CertificateRequest) HasCertType(t ClientCertificateType) bool {
	for _, ct := range m.CertTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// --- CertificateVerify ---

// CertificateVerify carries a signature over the handshake transcript.
type CertificateVerify struct {
	Signed DigitallySigned
}

// Type implements HandshakeBody.
func (m *CertificateVerify) Type() HandshakeType { return HandshakeTypeCertificateVerify }

func (m *CertificateVerify) marshalBody(b *cryptobyte.Builder) {
	m.Signed.marshal(b)
}

// --- Trivial bodies ---

// HelloRequest is the empty HelloRequest body.
type HelloRequest struct{}

// Type implements HandshakeBody.
func (m *HelloRequest) Type() HandshakeType { return HandshakeTypeHelloRequest }

func (m *HelloRequest) marshalBody(b *cryptobyte.Builder) {}

// ServerHelloDone is the empty ServerHelloDone body.
type ServerHelloDone struct{}

// Type implements HandshakeBody.
func (m *ServerHelloDone) Type() HandshakeType { return HandshakeTypeServerHelloDone }

func (m *ServerHelloDone) marshalBody(b *cryptobyte.Builder) {}

// --- ClientKeyExchange ---

// ClientKeyExchange is the ClientKeyExchange body: opaque at the codec
// level, a u8-length EC point for the ECDHE key exchanges Veil speaks.
type ClientKeyExchange struct {
	Raw []byte
}

// NewClientKeyExchange builds the ECDHE form around a public point.
func NewClientKeyExchange(public []byte) *ClientKeyExchange {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(public)
	})
	out, _ := b.Bytes()
	return &ClientKeyExchange{Raw: out}
}

// Type implements HandshakeBody.
func (m *ClientKeyExchange) Type() HandshakeType { return HandshakeTypeClientKeyExchange }

func (m *ClientKeyExchange) marshalBody(b *cryptobyte.Builder) {
	b.AddBytes(m.Raw)
}

// ECDHPublic parses the payload as a u8-length EC point.
func (m *ClientKeyExchange) ECDHPublic() ([]byte, error) {
	s := cryptobyte.String(m.Raw)
	var public cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&public) || !s.Empty() || len(public) == 0 {
		return nil, errDecode("bad ClientKeyExchange point")
	}
	return append([]byte(nil), public...), nil
}

// --- Finished ---

// Finished carries verify_data proving transcript and key knowledge.
type Finished struct {
	VerifyData []byte
}

// Type implements HandshakeBody.
func (m *Finished) Type() HandshakeType { return HandshakeTypeFinished }

func (m *Finished) marshalBody(b *cryptobyte.Builder) {
	b.AddBytes(m.VerifyData)
}

// --- NewSessionTicket ---

// NewSessionTicket is the TLS 1.2 (RFC 5077) NewSessionTicket body.
type NewSessionTicket struct {
	LifetimeHint uint32
	Ticket       []byte
}

// Type implements HandshakeBody.
func (m *NewSessionTicket) Type() HandshakeType { return HandshakeTypeNewSessionTicket }

func (m *NewSessionTicket) marshalBody(b *cryptobyte.Builder) {
	b.AddUint32(m.LifetimeHint)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Ticket)
	})
}

func (m *NewSessionTicket) unmarshal(s *cryptobyte.String) bool {
	var ticket cryptobyte.String
	if !s.ReadUint32(&m.LifetimeHint) || !s.ReadUint16LengthPrefixed(&ticket) || !s.Empty() {
		return false
	}
	if len(ticket) > 0 {
		m.Ticket = append([]byte(nil), ticket...)
	}
	return true
}

// NewSessionTicket13 is the TLS 1.3 draft-18 NewSessionTicket body.
// Inbound tickets are parsed and ignored; Veil does not resume 1.3.
type NewSessionTicket13 struct {
	Lifetime   uint32
	AgeAdd     uint32
	Ticket     []byte
	Extensions []byte
}

// Type implements HandshakeBody.
func (m *NewSessionTicket13) Type() HandshakeType { return HandshakeTypeNewSessionTicket }

func (m *NewSessionTicket13) marshalBody(b *cryptobyte.Builder) {
	b.AddUint32(m.Lifetime)
	b.AddUint32(m.AgeAdd)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Ticket)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Extensions)
	})
}

func (m *NewSessionTicket13) unmarshal(s *cryptobyte.String) bool {
	var ticket, exts cryptobyte.String
	if !s.ReadUint32(&m.Lifetime) || !s.ReadUint32(&m.AgeAdd) ||
		!s.ReadUint16LengthPrefixed(&ticket) || !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return false
	}
	if len(ticket) > 0 {
		m.Ticket = append([]byte(nil), ticket...)
	}
	if len(exts) > 0 {
		m.Extensions = append([]byte(nil), exts...)
	}
	return true
}

// --- EncryptedExtensions ---

// EncryptedExtensions is the TLS 1.3 EncryptedExtensions body.
type EncryptedExtensions struct {
	Extensions []ServerExtension
}

// Type implements HandshakeBody.
func (m *EncryptedExtensions) Type() HandshakeType { return HandshakeTypeEncryptedExtensions }

func (m *EncryptedExtensions) marshalBody(b *cryptobyte.Builder) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for i := range m.Extensions {
			m.Extensions[i].marshal(b)
		}
	})
}

func (m *EncryptedExtensions) unmarshal(s *cryptobyte.String) bool {
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return false
	}
	for !exts.Empty() {
		var ext ServerExtension
		if !readServerExtension(&exts, &ext) {
			return false
		}
		m.Extensions = append(m.Extensions, ext)
	}
	return true
}

// HasDuplicateExtension reports whether two extensions share a type.
func (m *EncryptedExtensions) HasDuplicateExtension() bool {
	types := make([]ExtensionType, len(m.Extensions))
	for i := range m.Extensions {
		types[i] = m.Extensions[i].Type
	}
	return hasDuplicateExtensionType(types)
}

// --- KeyUpdate ---

// KeyUpdate is the TLS 1.3 KeyUpdate body. Parsed for round-trip;
// never acted upon.
type KeyUpdate struct {
	Request KeyUpdateRequest
}

// Type implements HandshakeBody.
func (m *KeyUpdate) Type() HandshakeType { return HandshakeTypeKeyUpdate }

func (m *KeyUpdate) marshalBody(b *cryptobyte.Builder) {
	b.AddUint8(uint8(m.Request))
}

// --- Unknown ---

// UnknownHandshake round-trips a handshake type Veil does not model.
type UnknownHandshake struct {
	Typ HandshakeType
	Raw []byte
}

// Type implements HandshakeBody.
func (m *UnknownHandshake) Type() HandshakeType { return m.Typ }

func (m *UnknownHandshake) marshalBody(b *cryptobyte.Builder) {
	b.AddBytes(m.Raw)
}
