// Package wire implements the TLS wire codec: record-layer messages,
// handshake message bodies, extensions and alerts, for TLS 1.2
// (RFC 5246) and TLS 1.3 draft-18.
//
// Structures re-encode to the byte sequence they parsed, with two
// exceptions: a ServerName extension keeps only a single host_name
// entry, and a hello's empty extensions block is not re-emitted.
// Unknown extensions and handshake types round-trip as opaque payloads.
package wire

import "fmt"

// ContentType identifies the record-layer content type.
type ContentType uint8

// Record-layer content types.
const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// String returns a human-readable name for the content type.
func (t ContentType) String() string {
	switch t {
	case ContentTypeChangeCipherSpec:
		return "ChangeCipherSpec"
	case ContentTypeAlert:
		return "Alert"
	case ContentTypeHandshake:
		return "Handshake"
	case ContentTypeApplicationData:
		return "ApplicationData"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// HandshakeType identifies a handshake message.
type HandshakeType uint8

// Handshake message types.
const (
	HandshakeTypeHelloRequest        HandshakeType = 0
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeNewSessionTicket    HandshakeType = 4
	HandshakeTypeHelloRetryRequest   HandshakeType = 6
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeServerKeyExchange   HandshakeType = 12
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeServerHelloDone     HandshakeType = 14
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeClientKeyExchange   HandshakeType = 16
	HandshakeTypeFinished            HandshakeType = 20
	HandshakeTypeKeyUpdate           HandshakeType = 24
)

// String returns a human-readable name for the handshake type.
func (t HandshakeType) String() string {
	switch t {
	case HandshakeTypeHelloRequest:
		return "HelloRequest"
	case HandshakeTypeClientHello:
		return "ClientHello"
	case HandshakeTypeServerHello:
		return "ServerHello"
	case HandshakeTypeNewSessionTicket:
		return "NewSessionTicket"
	case HandshakeTypeHelloRetryRequest:
		return "HelloRetryRequest"
	case HandshakeTypeEncryptedExtensions:
		return "EncryptedExtensions"
	case HandshakeTypeCertificate:
		return "Certificate"
	case HandshakeTypeServerKeyExchange:
		return "ServerKeyExchange"
	case HandshakeTypeCertificateRequest:
		return "CertificateRequest"
	case HandshakeTypeServerHelloDone:
		return "ServerHelloDone"
	case HandshakeTypeCertificateVerify:
		return "CertificateVerify"
	case HandshakeTypeClientKeyExchange:
		return "ClientKeyExchange"
	case HandshakeTypeFinished:
		return "Finished"
	case HandshakeTypeKeyUpdate:
		return "KeyUpdate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// ProtocolVersion is a TLS wire version.
type ProtocolVersion uint16

// Known protocol versions. TLS13Draft18 is the draft-ietf-tls-tls13-18
// code point; it is what Veil puts on the wire for TLS 1.3.
const (
	VersionSSL30        ProtocolVersion = 0x0300
	VersionTLS10        ProtocolVersion = 0x0301
	VersionTLS11        ProtocolVersion = 0x0302
	VersionTLS12        ProtocolVersion = 0x0303
	VersionTLS13        ProtocolVersion = 0x0304
	VersionTLS13Draft18 ProtocolVersion = 0x7f12
)

// IsTLS13 reports whether the version means TLS 1.3: the final code
// point and the draft-18 code point are treated as equivalent.
func (v ProtocolVersion) IsTLS13() bool {
	return v == VersionTLS13 || v == VersionTLS13Draft18
}

// String returns a human-readable name for the version.
func (v ProtocolVersion) String() string {
	switch v {
	case VersionSSL30:
		return "SSLv3.0"
	case VersionTLS10:
		return "TLSv1.0"
	case VersionTLS11:
		return "TLSv1.1"
	case VersionTLS12:
		return "TLSv1.2"
	case VersionTLS13:
		return "TLSv1.3"
	case VersionTLS13Draft18:
		return "TLSv1.3-draft18"
	default:
		return fmt.Sprintf("Unknown(%#04x)", uint16(v))
	}
}

// ExtensionType identifies a hello extension.
type ExtensionType uint16

// Extension types. KeyShare is the draft-18 code point (40), not the
// RFC 8446 value.
const (
	ExtensionTypeServerName          ExtensionType = 0
	ExtensionTypeSupportedGroups     ExtensionType = 10
	ExtensionTypeECPointFormats      ExtensionType = 11
	ExtensionTypeSignatureAlgorithms ExtensionType = 13
	ExtensionTypeHeartbeat           ExtensionType = 15
	ExtensionTypeALPN                ExtensionType = 16
	ExtensionTypeSessionTicket       ExtensionType = 35
	ExtensionTypeKeyShare            ExtensionType = 40
	ExtensionTypePreSharedKey        ExtensionType = 41
	ExtensionTypeEarlyData           ExtensionType = 42
	ExtensionTypeSupportedVersions   ExtensionType = 43
	ExtensionTypeCookie              ExtensionType = 44
	ExtensionTypeRenegotiationInfo   ExtensionType = 0xff01
)

// Compression is a legacy compression method.
type Compression uint8

// CompressionNull is the only compression method Veil accepts.
const CompressionNull Compression = 0

// NamedGroup identifies an ECDHE group.
type NamedGroup uint16

// Supported named groups.
const (
	GroupSecp256r1 NamedGroup = 23
	GroupSecp384r1 NamedGroup = 24
	GroupSecp521r1 NamedGroup = 25
	GroupX25519    NamedGroup = 29
)

// String returns a human-readable name for the group.
func (g NamedGroup) String() string {
	switch g {
	case GroupSecp256r1:
		return "secp256r1"
	case GroupSecp384r1:
		return "secp384r1"
	case GroupSecp521r1:
		return "secp521r1"
	case GroupX25519:
		return "X25519"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(g))
	}
}

// ECPointFormat is a legacy EC point format.
type ECPointFormat uint8

// ECPointFormatUncompressed is the only point format Veil supports.
const ECPointFormatUncompressed ECPointFormat = 0

// ECCurveType identifies the curve encoding in ServerKeyExchange.
type ECCurveType uint8

// ECCurveTypeNamedCurve is the only curve type Veil supports.
// Arbitrary explicit curves are unnecessary attack surface.
const ECCurveTypeNamedCurve ECCurveType = 3

// SignatureScheme is a TLS signature scheme (signature algorithm and
// hash, jointly coded).
type SignatureScheme uint16

// Signature schemes.
const (
	SchemeRSAPKCS1SHA1    SignatureScheme = 0x0201
	SchemeECDSASHA1       SignatureScheme = 0x0203
	SchemeRSAPKCS1SHA256  SignatureScheme = 0x0401
	SchemeECDSAP256SHA256 SignatureScheme = 0x0403
	SchemeRSAPKCS1SHA384  SignatureScheme = 0x0501
	SchemeECDSAP384SHA384 SignatureScheme = 0x0503
	SchemeRSAPKCS1SHA512  SignatureScheme = 0x0601
	SchemeECDSAP521SHA512 SignatureScheme = 0x0603
	SchemeRSAPSSSHA256    SignatureScheme = 0x0804
	SchemeRSAPSSSHA384    SignatureScheme = 0x0805
	SchemeRSAPSSSHA512    SignatureScheme = 0x0806
	SchemeED25519         SignatureScheme = 0x0807
)

// SignatureAlgorithm is the signature half of a scheme, and the
// algorithm a certificate key supports.
type SignatureAlgorithm uint8

// Signature algorithms. Anonymous marks TLS 1.3 suites, whose
// authentication is not coupled to the suite.
const (
	SignatureAlgorithmAnonymous SignatureAlgorithm = 0
	SignatureAlgorithmRSA       SignatureAlgorithm = 1
	SignatureAlgorithmECDSA     SignatureAlgorithm = 3
)

// HashAlgorithm is the hash half of a scheme.
type HashAlgorithm uint8

// Hash algorithms.
const (
	HashSHA1   HashAlgorithm = 2
	HashSHA256 HashAlgorithm = 4
	HashSHA384 HashAlgorithm = 5
	HashSHA512 HashAlgorithm = 6
)

// Sign returns the signature algorithm of a scheme.
func (s SignatureScheme) Sign() SignatureAlgorithm {
	switch s {
	case SchemeRSAPKCS1SHA1, SchemeRSAPKCS1SHA256, SchemeRSAPKCS1SHA384,
		SchemeRSAPKCS1SHA512, SchemeRSAPSSSHA256, SchemeRSAPSSSHA384,
		SchemeRSAPSSSHA512:
		return SignatureAlgorithmRSA
	case SchemeECDSASHA1, SchemeECDSAP256SHA256, SchemeECDSAP384SHA384,
		SchemeECDSAP521SHA512:
		return SignatureAlgorithmECDSA
	default:
		return SignatureAlgorithmAnonymous
	}
}

// MakeScheme composes a scheme from a signature algorithm and hash.
// Returns 0 when the pair has no code point.
func MakeScheme(sign SignatureAlgorithm, hash HashAlgorithm) SignatureScheme {
	switch sign {
	case SignatureAlgorithmRSA:
		switch hash {
		case HashSHA1:
			return SchemeRSAPKCS1SHA1
		case HashSHA256:
			return SchemeRSAPKCS1SHA256
		case HashSHA384:
			return SchemeRSAPKCS1SHA384
		case HashSHA512:
			return SchemeRSAPKCS1SHA512
		}
	case SignatureAlgorithmECDSA:
		switch hash {
		case HashSHA1:
			return SchemeECDSASHA1
		case HashSHA256:
			return SchemeECDSAP256SHA256
		case HashSHA384:
			return SchemeECDSAP384SHA384
		case HashSHA512:
			return SchemeECDSAP521SHA512
		}
	}
	return 0
}

// CipherSuiteID is the TLS enumeration naming a cipher suite.
type CipherSuiteID uint16

// Cipher suite identifiers. The TLS13_* values are the draft-18 code
// points, which survived into RFC 8446 unchanged.
const (
	TLSEmptyRenegotiationInfoSCSV CipherSuiteID = 0x00ff

	TLS13AES128GCMSHA256        CipherSuiteID = 0x1301
	TLS13AES256GCMSHA384        CipherSuiteID = 0x1302
	TLS13ChaCha20Poly1305SHA256 CipherSuiteID = 0x1303

	TLSECDHEECDSAWithAES128GCMSHA256        CipherSuiteID = 0xc02b
	TLSECDHEECDSAWithAES256GCMSHA384        CipherSuiteID = 0xc02c
	TLSECDHERSAWithAES128GCMSHA256          CipherSuiteID = 0xc02f
	TLSECDHERSAWithAES256GCMSHA384          CipherSuiteID = 0xc030
	TLSECDHERSAWithChaCha20Poly1305SHA256   CipherSuiteID = 0xcca8
	TLSECDHEECDSAWithChaCha20Poly1305SHA256 CipherSuiteID = 0xcca9
)

// ClientCertificateType is a legacy certificate type in
// CertificateRequest.
type ClientCertificateType uint8

// Client certificate types.
const (
	ClientCertTypeRSASign   ClientCertificateType = 1
	ClientCertTypeECDSASign ClientCertificateType = 64
)

// KeyUpdateRequest is the body of a TLS 1.3 KeyUpdate.
type KeyUpdateRequest uint8

// Key update request values.
const (
	KeyUpdateNotRequested KeyUpdateRequest = 0
	KeyUpdateRequested    KeyUpdateRequest = 1
)
