// Package veil implements the TLS 1.2 (RFC 5246) and TLS 1.3 draft-18
// handshake protocols for client and server roles, as a buffered,
// transport-agnostic library: the caller feeds ciphertext records in
// and drains plaintext out, and the session owns no socket.
//
// # Quick Start
//
// A client session against an in-process server:
//
//	import "github.com/veiltls/veil/pkg/session"
//
//	config := session.NewClientConfig()
//	config.RootStore = roots
//	client, _ := session.NewClientSession(config, "example.com")
//
//	// Pump records between the session and your transport.
//	for _, m := range client.OutgoingMessages() {
//		transport.WriteRecord(m)
//	}
//	client.HandleMessage(recordFromTransport)
//
//	// Once client.HandshakeComplete():
//	client.SendApplicationData([]byte("hello"))
//	plaintext := client.ReadApplicationData()
//
// # Package Structure
//
//   - pkg/session: handshake state machines, resumption, configuration
//   - pkg/wire: record and handshake message codec
//   - pkg/suite: the static cipher suite registry
//   - pkg/keysched: TLS 1.2 PRF and TLS 1.3 HKDF key schedules
//   - pkg/kx: ephemeral ECDHE (X25519, P-256, P-384)
//   - pkg/record: record protection and the cleartext/AEAD switch
//   - pkg/transcript: rolling handshake transcript hash
//   - pkg/metrics: structured logging and tracing hooks
//
// # Protocol Notes
//
// TLS 1.3 support is pinned to draft-ietf-tls-tls13-18, wire version
// 0x7f12. Session resumption is implemented for TLS 1.2 (session ids
// and RFC 5077 tickets); TLS 1.3 NewSessionTicket messages are
// tolerated and ignored. Renegotiation is never performed.
package veil
