package wire

import (
	"bytes"
	"testing"
)

func testRandom() Random {
	var r Random
	for i := range r {
		r[i] = byte(i)
	}
	return r
}

// roundTrip encodes a body, reparses it at the given version, and
// re-encodes, expecting identical bytes.
func roundTrip(t *testing.T, body HandshakeBody, vers ProtocolVersion) HandshakeBody {
	t.Helper()

	encoded := MarshalHandshake(body)
	parsed, err := ParseHandshake(encoded, vers)
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", body.Type(), err)
	}
	reencoded := MarshalHandshake(parsed)
	if !bytes.Equal(encoded, reencoded) {
		t.Fatalf("%s did not round-trip:\n  first:  %x\n  second: %x", body.Type(), encoded, reencoded)
	}
	return parsed
}

func sampleClientHello() *ClientHello {
	return &ClientHello{
		Version:      VersionTLS12,
		Random:       testRandom(),
		SessionID:    []byte{1, 2, 3, 4},
		CipherSuites: []CipherSuiteID{TLS13AES128GCMSHA256, TLSECDHERSAWithAES128GCMSHA256},
		Compressions: []Compression{CompressionNull},
		Extensions: []ClientExtension{
			{Type: ExtensionTypeSupportedVersions, Versions: []ProtocolVersion{VersionTLS13Draft18, VersionTLS12}},
			{Type: ExtensionTypeServerName, ServerName: "example.com"},
			{Type: ExtensionTypeECPointFormats, PointFormats: []ECPointFormat{ECPointFormatUncompressed}},
			{Type: ExtensionTypeSupportedGroups, Groups: []NamedGroup{GroupX25519, GroupSecp384r1}},
			{Type: ExtensionTypeSignatureAlgorithms, SignatureSchemes: []SignatureScheme{SchemeED25519, SchemeECDSAP256SHA256}},
			{Type: ExtensionTypeKeyShare, KeyShares: []KeyShareEntry{{Group: GroupX25519, Payload: []byte{9, 9, 9}}}},
			{Type: ExtensionTypeALPN, Protocols: []string{"h2", "http/1.1"}},
			{Type: ExtensionTypeSessionTicket},
			{Type: ExtensionType(0x1234), Raw: []byte{0xde, 0xad}},
		},
	}
}

func TestClientHelloRoundTrip(t *testing.T) {
	parsed := roundTrip(t, sampleClientHello(), VersionTLS12).(*ClientHello)

	if parsed.SNI() != "example.com" {
		t.Errorf("SNI mismatch: got %q", parsed.SNI())
	}
	if len(parsed.KeyShares()) != 1 || parsed.KeyShares()[0].Group != GroupX25519 {
		t.Errorf("KeyShares mismatch: %+v", parsed.KeyShares())
	}
	if got := parsed.ALPNProtocols(); len(got) != 2 || got[0] != "h2" {
		t.Errorf("ALPN mismatch: %v", got)
	}
	if parsed.HasDuplicateExtension() {
		t.Errorf("false duplicate detection")
	}
}

func TestClientHelloTicketOffer(t *testing.T) {
	hello := sampleClientHello()
	for i := range hello.Extensions {
		if hello.Extensions[i].Type == ExtensionTypeSessionTicket {
			hello.Extensions[i].Ticket = []byte{5, 6, 7}
		}
	}
	parsed := roundTrip(t, hello, VersionTLS12).(*ClientHello)

	ext := parsed.FindExtension(ExtensionTypeSessionTicket)
	if ext == nil || !bytes.Equal(ext.Ticket, []byte{5, 6, 7}) {
		t.Fatalf("ticket offer did not survive: %+v", ext)
	}
}

func TestServerHelloRoundTripTLS12(t *testing.T) {
	sh := &ServerHello{
		Version:     VersionTLS12,
		Random:      testRandom(),
		SessionID:   bytes.Repeat([]byte{7}, 32),
		CipherSuite: TLSECDHEECDSAWithAES256GCMSHA384,
		Compression: CompressionNull,
		Extensions: []ServerExtension{
			{Type: ExtensionTypeServerName},
			{Type: ExtensionTypeSessionTicket},
			{Type: ExtensionTypeRenegotiationInfo},
			{Type: ExtensionTypeALPN, Protocols: []string{"h2"}},
		},
	}
	parsed := roundTrip(t, sh, VersionTLS12).(*ServerHello)

	if parsed.ALPNProtocol() != "h2" {
		t.Errorf("ALPN mismatch: got %q", parsed.ALPNProtocol())
	}
	if len(parsed.SessionID) != 32 {
		t.Errorf("session id length mismatch: %d", len(parsed.SessionID))
	}
}

// The draft-18 ServerHello omits session_id and compression entirely.
func TestServerHelloEncodingTLS13(t *testing.T) {
	sh := &ServerHello{
		Version:     VersionTLS13Draft18,
		Random:      testRandom(),
		CipherSuite: TLS13AES128GCMSHA256,
		Extensions: []ServerExtension{
			{Type: ExtensionTypeKeyShare, KeyShare: KeyShareEntry{Group: GroupX25519, Payload: []byte{1, 2}}},
		},
	}
	encoded := MarshalHandshake(sh)

	// type(1) + len(3) + version(2) + random(32) + suite(2) + exts.
	if encoded[0] != byte(HandshakeTypeServerHello) {
		t.Fatalf("wrong handshake type byte: %d", encoded[0])
	}
	body := encoded[4:]
	if body[0] != 0x7f || body[1] != 0x12 {
		t.Errorf("wrong version bytes: %x", body[:2])
	}
	// Immediately after the random comes the cipher suite, no
	// session id byte.
	if body[34] != 0x13 || body[35] != 0x01 {
		t.Errorf("expected cipher suite right after random, got %x", body[34:36])
	}

	parsed := roundTrip(t, sh, VersionTLS12).(*ServerHello)
	if parsed.KeyShare() == nil || parsed.KeyShare().Group != GroupX25519 {
		t.Errorf("key share did not survive: %+v", parsed.KeyShare())
	}
	if len(parsed.SessionID) != 0 {
		t.Errorf("1.3 ServerHello grew a session id")
	}
}

// HelloRetryRequest must carry its extension bodies: a KeyShare retry
// without the group bytes is undecodable.
func TestHelloRetryRequestCarriesBody(t *testing.T) {
	req := &HelloRetryRequest{
		Version: VersionTLS13Draft18,
		Extensions: []HelloRetryExtension{
			{Type: ExtensionTypeKeyShare, Group: GroupX25519},
		},
	}
	parsed := roundTrip(t, req, VersionTLS12).(*HelloRetryRequest)

	if parsed.RequestedGroup() != GroupX25519 {
		t.Fatalf("requested group lost in encoding: got %v", parsed.RequestedGroup())
	}
}

func TestCertificateRoundTripBothVersions(t *testing.T) {
	chain := [][]byte{{1, 1, 1}, {2, 2}}

	parsed12 := roundTrip(t, &Certificate{Chain: chain}, VersionTLS12).(*Certificate)
	if len(parsed12.Chain) != 2 || !bytes.Equal(parsed12.Chain[0], chain[0]) {
		t.Errorf("1.2 chain mismatch: %v", parsed12.Chain)
	}

	cert13 := &Certificate13{
		Entries: []CertificateEntry{{Cert: chain[0]}, {Cert: chain[1]}},
	}
	parsed13 := roundTrip(t, cert13, VersionTLS13).(*Certificate13)
	got := parsed13.Chain()
	if len(got) != 2 || !bytes.Equal(got[1], chain[1]) {
		t.Errorf("1.3 chain mismatch: %v", got)
	}
}

// The two Certificate encodings are version-selected: each body parsed
// at its own version comes back as its own type.
func TestCertificateParsingIsVersionDriven(t *testing.T) {
	encoded := MarshalHandshake(&Certificate{Chain: [][]byte{{1, 2, 3}}})

	body, err := ParseHandshake(encoded, VersionTLS12)
	if err != nil {
		t.Fatalf("Failed to parse as 1.2: %v", err)
	}
	if _, ok := body.(*Certificate); !ok {
		t.Fatalf("expected *Certificate, got %T", body)
	}

	encoded13 := MarshalHandshake(&Certificate13{Entries: []CertificateEntry{{Cert: []byte{1, 2, 3}}}})
	body13, err := ParseHandshake(encoded13, VersionTLS13)
	if err != nil {
		t.Fatalf("Failed to parse as 1.3: %v", err)
	}
	if _, ok := body13.(*Certificate13); !ok {
		t.Fatalf("expected *Certificate13, got %T", body13)
	}
}

func TestServerKeyExchangeRoundTrip(t *testing.T) {
	skx := &ServerKeyExchange{
		ECDHE: &ECDHEServerKeyExchange{
			Params: ServerECDHParams{Group: GroupX25519, Public: bytes.Repeat([]byte{3}, 32)},
			Signed: DigitallySigned{Scheme: SchemeECDSAP256SHA256, Signature: []byte{9, 8, 7}},
		},
	}
	parsed := roundTrip(t, skx, VersionTLS12).(*ServerKeyExchange)

	decoded, err := parsed.DecodeECDHE()
	if err != nil {
		t.Fatalf("Failed to decode ECDHE kx: %v", err)
	}
	if decoded.Params.Group != GroupX25519 {
		t.Errorf("group mismatch: %v", decoded.Params.Group)
	}
	if decoded.Signed.Scheme != SchemeECDSAP256SHA256 {
		t.Errorf("scheme mismatch: %v", decoded.Signed.Scheme)
	}
}

func TestNewSessionTicketBothVersions(t *testing.T) {
	nst := &NewSessionTicket{LifetimeHint: 3600, Ticket: []byte{1, 2, 3}}
	parsed := roundTrip(t, nst, VersionTLS12).(*NewSessionTicket)
	if parsed.LifetimeHint != 3600 || !bytes.Equal(parsed.Ticket, nst.Ticket) {
		t.Errorf("1.2 ticket mismatch: %+v", parsed)
	}

	nst13 := &NewSessionTicket13{Lifetime: 7200, AgeAdd: 42, Ticket: []byte{4, 5}}
	parsed13 := roundTrip(t, nst13, VersionTLS13).(*NewSessionTicket13)
	if parsed13.Lifetime != 7200 || parsed13.AgeAdd != 42 {
		t.Errorf("1.3 ticket mismatch: %+v", parsed13)
	}
}

func TestTrivialBodies(t *testing.T) {
	roundTrip(t, &ServerHelloDone{}, VersionTLS12)
	roundTrip(t, &HelloRequest{}, VersionTLS12)
	roundTrip(t, &Finished{VerifyData: []byte{1, 2, 3}}, VersionTLS12)
	roundTrip(t, &KeyUpdate{Request: KeyUpdateRequested}, VersionTLS13)
	roundTrip(t, &EncryptedExtensions{}, VersionTLS13)
	roundTrip(t, &CertificateRequest{
		CertTypes:        []ClientCertificateType{ClientCertTypeRSASign},
		SignatureSchemes: []SignatureScheme{SchemeRSAPSSSHA256},
		CANames:          [][]byte{{0x30, 0x00}},
	}, VersionTLS12)
}

func TestClientKeyExchangePoint(t *testing.T) {
	point := bytes.Repeat([]byte{6}, 32)
	ckx := NewClientKeyExchange(point)
	parsed := roundTrip(t, ckx, VersionTLS12).(*ClientKeyExchange)

	got, err := parsed.ECDHPublic()
	if err != nil {
		t.Fatalf("Failed to extract point: %v", err)
	}
	if !bytes.Equal(got, point) {
		t.Errorf("point mismatch")
	}
}

func TestUnknownHandshakeRoundTrip(t *testing.T) {
	unk := &UnknownHandshake{Typ: HandshakeType(99), Raw: []byte{1, 2, 3}}
	parsed := roundTrip(t, unk, VersionTLS12).(*UnknownHandshake)
	if parsed.Typ != HandshakeType(99) || !bytes.Equal(parsed.Raw, unk.Raw) {
		t.Errorf("unknown handshake mismatch: %+v", parsed)
	}
}

func TestDuplicateExtensionDetection(t *testing.T) {
	hello := sampleClientHello()
	hello.Extensions = append(hello.Extensions, ClientExtension{
		Type: ExtensionTypeServerName, ServerName: "evil.example",
	})
	parsed := roundTrip(t, hello, VersionTLS12).(*ClientHello)
	if !parsed.HasDuplicateExtension() {
		t.Fatalf("duplicate ServerName extension not detected")
	}
}

func TestSessionIDTooLongRejected(t *testing.T) {
	hello := sampleClientHello()
	hello.SessionID = bytes.Repeat([]byte{1}, 32)
	encoded := MarshalHandshake(hello)

	// Corrupt the session id length byte to 33. It sits after
	// type(1) + len(3) + version(2) + random(32).
	idx := 1 + 3 + 2 + 32
	if encoded[idx] != 32 {
		t.Fatalf("test setup wrong: expected session id length at offset %d, got %d", idx, encoded[idx])
	}
	encoded[idx] = 33
	if _, err := ParseHandshake(encoded, VersionTLS12); err == nil {
		t.Fatalf("session id over 32 bytes was accepted")
	}
}

func TestTruncatedHandshakeRejected(t *testing.T) {
	encoded := MarshalHandshake(sampleClientHello())
	for _, cut := range []int{1, 3, 5, len(encoded) / 2, len(encoded) - 1} {
		if _, err := ParseHandshake(encoded[:cut], VersionTLS12); err == nil {
			t.Errorf("truncation at %d was accepted", cut)
		}
	}
	if _, err := ParseHandshake(append(encoded, 0), VersionTLS12); err == nil {
		t.Errorf("trailing garbage was accepted")
	}
}

func TestAlertRoundTrip(t *testing.T) {
	a := &Alert{Level: AlertLevelFatal, Description: AlertHandshakeFailure}
	parsed, err := ParseAlert(a.Marshal())
	if err != nil {
		t.Fatalf("Failed to parse alert: %v", err)
	}
	if parsed.Level != AlertLevelFatal || parsed.Description != AlertHandshakeFailure {
		t.Errorf("alert mismatch: %+v", parsed)
	}

	if _, err := ParseAlert([]byte{1}); err == nil {
		t.Errorf("short alert accepted")
	}
}

func TestChangeCipherSpecValidation(t *testing.T) {
	ccs := NewChangeCipherSpec()
	if !ccs.ValidChangeCipherSpec() {
		t.Fatalf("canonical CCS rejected")
	}
	bad := Message{Type: ContentTypeChangeCipherSpec, Version: VersionTLS12, Payload: []byte{2}}
	if bad.ValidChangeCipherSpec() {
		t.Fatalf("CCS with wrong payload accepted")
	}
}
