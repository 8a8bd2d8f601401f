// Package constants defines protocol parameters and size limits for the
// Veil TLS library.
//
// Veil implements the TLS 1.2 (RFC 5246) and TLS 1.3 draft-18 handshake
// protocols. TLS 1.3 support is pinned to draft-18: the wire version is
// 0x7f12, not the RFC 8446 value of 0x0304.
package constants

// Protocol versions on the wire.
const (
	// VersionTLS12 is the TLS 1.2 wire version (RFC 5246).
	VersionTLS12 uint16 = 0x0303

	// VersionTLS13 is the final TLS 1.3 wire version. Veil never puts
	// this value on the wire but treats it as equivalent to the draft
	// version when detecting TLS 1.3.
	VersionTLS13 uint16 = 0x0304

	// VersionTLS13Draft18 is the draft-ietf-tls-tls13-18 wire version.
	VersionTLS13Draft18 uint16 = 0x7f12
)

// Handshake field sizes.
const (
	// RandomSize is the size of the ClientHello/ServerHello random.
	RandomSize = 32

	// RandomOpaqueSize is the opaque tail of a Random after the
	// gmt_unix_time prefix.
	RandomOpaqueSize = 28

	// MaxSessionIDSize is the largest legal session_id vector.
	MaxSessionIDSize = 32

	// TicketSessionIDSize is the size of the fresh random session id a
	// client sends alongside a ticket offer (RFC 5077 section 3.4).
	TicketSessionIDSize = 16

	// MasterSecretSize is the TLS 1.2 master secret length.
	MasterSecretSize = 48

	// VerifyDataSize12 is the TLS 1.2 Finished verify_data length.
	VerifyDataSize12 = 12
)

// Key derivation labels. The TLS 1.2 labels are from RFC 5246; the
// TLS 1.3 labels are the draft-18 set.
const (
	LabelMasterSecret   = "master secret"
	LabelKeyExpansion   = "key expansion"
	LabelClientFinished = "client finished"
	LabelServerFinished = "server finished"

	// LabelPrefix13 prefixes every HKDF-Expand-Label label.
	LabelPrefix13 = "tls13 "

	LabelClientHandshakeTraffic   = "c hs traffic"
	LabelServerHandshakeTraffic   = "s hs traffic"
	LabelClientApplicationTraffic = "c ap traffic"
	LabelServerApplicationTraffic = "s ap traffic"
	LabelFinished                 = "finished"
	LabelKey                      = "key"
	LabelIV                       = "iv"
)

// CertVerifyContext13 is the context string signed in a TLS 1.3
// server CertificateVerify, after the 64 bytes of 0x20 padding and
// before the transcript hash. Includes the trailing NUL.
const CertVerifyContext13 = "TLS 1.3, server CertificateVerify\x00"

// CertVerifyPadSize is the number of leading 0x20 bytes in the
// CertificateVerify signed message.
const CertVerifyPadSize = 64

// Record and message size limits.
const (
	// MaxHandshakeMessageSize bounds a single handshake message body.
	// The length field is 24 bits; anything near that is hostile, but
	// certificate chains can legitimately exceed a record.
	MaxHandshakeMessageSize = 1 << 20

	// MaxPlaintextSize is the largest record plaintext (RFC 5246 6.2.1).
	MaxPlaintextSize = 16384

	// MaxTicketSize bounds an accepted session ticket.
	MaxTicketSize = 1 << 16
)

// Ticketer parameters.
const (
	// TicketKeySize is the size of a ticket sealing key.
	TicketKeySize = 32

	// DefaultTicketLifetimeSeconds is the lifetime hint advertised in
	// NewSessionTicket when the caller does not configure one.
	DefaultTicketLifetimeSeconds = 6 * 60 * 60
)

// DefaultSessionCacheSize is the capacity of the built-in session
// caches before put refuses new entries.
const DefaultSessionCacheSize = 256
