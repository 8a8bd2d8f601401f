package record

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"testing"

	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

func testSecrets(t *testing.T, alg crypto.Hash) *keysched.SessionSecrets {
	t.Helper()
	var randoms keysched.Randoms
	for i := range randoms.Client {
		randoms.Client[i] = byte(i)
		randoms.Server[i] = byte(i * 2)
	}
	return keysched.NewSessionSecrets(&randoms, alg, bytes.Repeat([]byte{0x55}, 32))
}

func pairTLS12(t *testing.T, s *suite.CipherSuite) (client, server MessageCipher) {
	t.Helper()
	secrets := testSecrets(t, s.HashFunc())
	client, err := NewTLS12Cipher(s, secrets, true)
	if err != nil {
		t.Fatalf("Failed to build client cipher: %v", err)
	}
	server, err = NewTLS12Cipher(s, secrets, false)
	if err != nil {
		t.Fatalf("Failed to build server cipher: %v", err)
	}
	return client, server
}

func TestTLS12RoundTrip(t *testing.T) {
	suites := []*suite.CipherSuite{
		&suite.TLSECDHERSAWithAES128GCMSHA256,
		&suite.TLSECDHERSAWithAES256GCMSHA384,
		&suite.TLSECDHERSAWithChaCha20Poly1305SHA256,
	}

	for _, s := range suites {
		client, server := pairTLS12(t, s)

		for seq := uint64(0); seq < 3; seq++ {
			plain := wire.NewHandshakeMessage([]byte{1, 2, 3, byte(seq)})
			sealed, err := client.Encrypt(plain, seq)
			if err != nil {
				t.Fatalf("%04x: Failed to encrypt: %v", uint16(s.ID), err)
			}
			if bytes.Contains(sealed.Payload, plain.Payload) {
				t.Fatalf("%04x: ciphertext contains plaintext", uint16(s.ID))
			}

			opened, err := server.Decrypt(sealed, seq)
			if err != nil {
				t.Fatalf("%04x: Failed to decrypt: %v", uint16(s.ID), err)
			}
			if !bytes.Equal(opened.Payload, plain.Payload) {
				t.Fatalf("%04x: payload mismatch", uint16(s.ID))
			}
			if opened.Type != wire.ContentTypeHandshake {
				t.Fatalf("%04x: content type mismatch", uint16(s.ID))
			}
		}
	}
}

func TestTLS12WrongSeqFails(t *testing.T) {
	client, server := pairTLS12(t, &suite.TLSECDHERSAWithAES128GCMSHA256)

	sealed, err := client.Encrypt(wire.NewApplicationData([]byte("hi")), 0)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if _, err := server.Decrypt(sealed, 1); !qerrors.Is(err, qerrors.ErrDecrypt) {
		t.Fatalf("wrong sequence number accepted: %v", err)
	}
}

func TestTLS12TamperFails(t *testing.T) {
	client, server := pairTLS12(t, &suite.TLSECDHERSAWithChaCha20Poly1305SHA256)

	sealed, err := client.Encrypt(wire.NewApplicationData([]byte("hi")), 0)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	sealed.Payload[0] ^= 1
	if _, err := server.Decrypt(sealed, 0); !qerrors.Is(err, qerrors.ErrDecrypt) {
		t.Fatalf("tampered record accepted: %v", err)
	}
}

func pairTLS13(t *testing.T, s *suite.CipherSuite) (client, server MessageCipher) {
	t.Helper()
	clientSecret := bytes.Repeat([]byte{0x0c}, s.HashFunc().Size())
	serverSecret := bytes.Repeat([]byte{0x0d}, s.HashFunc().Size())

	client, err := NewTLS13Cipher(s, clientSecret, serverSecret)
	if err != nil {
		t.Fatalf("Failed to build client cipher: %v", err)
	}
	server, err = NewTLS13Cipher(s, serverSecret, clientSecret)
	if err != nil {
		t.Fatalf("Failed to build server cipher: %v", err)
	}
	return client, server
}

func TestTLS13RoundTripRestoresContentType(t *testing.T) {
	for _, s := range []*suite.CipherSuite{
		&suite.TLS13AES128GCMSHA256,
		&suite.TLS13AES256GCMSHA384,
		&suite.TLS13ChaCha20Poly1305SHA256,
	} {
		client, server := pairTLS13(t, s)

		plain := wire.NewHandshakeMessage([]byte{8, 0, 0, 0})
		sealed, err := client.Encrypt(plain, 0)
		if err != nil {
			t.Fatalf("%04x: Failed to encrypt: %v", uint16(s.ID), err)
		}

		// The outer record hides the true type.
		if sealed.Type != wire.ContentTypeApplicationData {
			t.Fatalf("%04x: outer type leaked: %v", uint16(s.ID), sealed.Type)
		}

		opened, err := server.Decrypt(sealed, 0)
		if err != nil {
			t.Fatalf("%04x: Failed to decrypt: %v", uint16(s.ID), err)
		}
		if opened.Type != wire.ContentTypeHandshake {
			t.Fatalf("%04x: inner type lost: %v", uint16(s.ID), opened.Type)
		}
		if !bytes.Equal(opened.Payload, plain.Payload) {
			t.Fatalf("%04x: payload mismatch", uint16(s.ID))
		}
	}
}

func TestGuardPlaintextPassthrough(t *testing.T) {
	g := NewGuard()
	m := wire.NewHandshakeMessage([]byte{1})

	out, err := g.EncryptOutgoing(m)
	if err != nil {
		t.Fatalf("Failed passthrough encrypt: %v", err)
	}
	if !bytes.Equal(out.Payload, m.Payload) {
		t.Fatalf("plaintext passthrough modified the message")
	}
	if g.Encrypting() || g.PeerEncrypting() {
		t.Fatalf("fresh guard claims to be encrypting")
	}
}

// TLS 1.2 directions activate independently at their CCS boundaries.
func TestGuardTLS12Boundaries(t *testing.T) {
	s := &suite.TLSECDHERSAWithAES128GCMSHA256
	clientCipher, serverCipher := pairTLS12(t, s)

	cg := NewGuard()
	cg.PrepareTLS12(clientCipher)
	if cg.Encrypting() {
		t.Fatalf("prepared cipher active before CCS")
	}

	cg.WeNowEncrypting()
	if !cg.Encrypting() || cg.PeerEncrypting() {
		t.Fatalf("send activation leaked into receive direction")
	}

	sg := NewGuard()
	sg.PrepareTLS12(serverCipher)
	sg.PeerNowEncrypting()

	sent, err := cg.EncryptOutgoing(wire.NewApplicationData([]byte("abc")))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	got, err := sg.DecryptIncoming(sent)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if !bytes.Equal(got.Payload, []byte("abc")) {
		t.Fatalf("guard pair round-trip failed")
	}
}

// TLS 1.3 rotation swaps both directions and resets both sequence
// numbers.
func TestGuardTLS13Rotation(t *testing.T) {
	s := &suite.TLS13AES128GCMSHA256
	clientCipher, serverCipher := pairTLS13(t, s)

	cg, sg := NewGuard(), NewGuard()
	cg.SetMessageCipher(clientCipher, ChangeBothNew)
	sg.SetMessageCipher(serverCipher, ChangeBothNew)

	if !cg.Encrypting() || !cg.PeerEncrypting() {
		t.Fatalf("SetMessageCipher left a direction in cleartext")
	}

	for i := 0; i < 3; i++ {
		sent, err := cg.EncryptOutgoing(wire.NewApplicationData([]byte{byte(i)}))
		if err != nil {
			t.Fatalf("Failed to encrypt: %v", err)
		}
		got, err := sg.DecryptIncoming(sent)
		if err != nil {
			t.Fatalf("Failed to decrypt record %d: %v", i, err)
		}
		if !bytes.Equal(got.Payload, []byte{byte(i)}) {
			t.Fatalf("record %d mismatch", i)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte{1, 2}, []byte{1, 2}) {
		t.Errorf("equal slices compared unequal")
	}
	if ConstantTimeEqual([]byte{1, 2}, []byte{1, 3}) {
		t.Errorf("unequal slices compared equal")
	}
	if ConstantTimeEqual([]byte{1, 2}, []byte{1}) {
		t.Errorf("different lengths compared equal")
	}
}
