// Package record owns the cryptographic state of the record layer:
// the per-suite message ciphers and the RecordGuard that switches a
// direction between cleartext and authenticated encryption.
//
// The actual fragmentation of byte streams into records happens
// outside this library; record ciphers operate on whole record-layer
// messages.
package record

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/keysched"
	"github.com/veiltls/veil/pkg/suite"
	"github.com/veiltls/veil/pkg/wire"
)

// MessageCipher seals and opens record-layer messages. Implementations
// are direction-aware: Encrypt uses the send keys, Decrypt the receive
// keys.
type MessageCipher interface {
	Encrypt(m wire.Message, seq uint64) (wire.Message, error)
	Decrypt(m wire.Message, seq uint64) (wire.Message, error)
}

const gcmTagSize = 16

func newAEAD(bulk suite.BulkAlgorithm, key []byte) (cipher.AEAD, error) {
	switch bulk {
	case suite.BulkAES128GCM, suite.BulkAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.General("aes cipher init failed", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.General("gcm init failed", err)
		}
		return aead, nil
	case suite.BulkChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.General("chacha20poly1305 init failed", err)
		}
		return aead, nil
	default:
		return nil, qerrors.General("unknown bulk algorithm", nil)
	}
}

// aad12 builds the TLS 1.2 additional data:
// seq(8) || type(1) || version(2) || plaintext_length(2).
func aad12(seq uint64, typ wire.ContentType, vers wire.ProtocolVersion, plainLen int) []byte {
	var aad [13]byte
	binary.BigEndian.PutUint64(aad[:8], seq)
	aad[8] = byte(typ)
	binary.BigEndian.PutUint16(aad[9:11], uint16(vers))
	binary.BigEndian.PutUint16(aad[11:13], uint16(plainLen))
	return aad[:]
}

// xorNonce computes fixed_iv XOR left-padded sequence number, the
// nonce form shared by TLS 1.2 ChaCha20 (RFC 7905) and all of
// TLS 1.3 draft-18.
func xorNonce(iv []byte, seq uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-8+i] ^= seqBytes[i]
	}
	return nonce
}

// --- TLS 1.2 GCM ---

// tls12GCM protects records per RFC 5288: a 4-byte fixed IV and an
// 8-byte explicit nonce carried on the wire. The explicit nonce is the
// sequence number masked with a key-block-derived offset, which keeps
// it unique without leaking a bare counter.
type tls12GCM struct {
	send, recv     cipher.AEAD
	sendIV, recvIV [4]byte
	nonceMask      [8]byte
}

func (c *tls12GCM) explicitNonce(seq uint64) [8]byte {
	var explicit [8]byte
	binary.BigEndian.PutUint64(explicit[:], seq)
	for i := range explicit {
		explicit[i] ^= c.nonceMask[i]
	}
	return explicit
}

func (c *tls12GCM) Encrypt(m wire.Message, seq uint64) (wire.Message, error) {
	explicit := c.explicitNonce(seq)
	nonce := make([]byte, 0, 12)
	nonce = append(nonce, c.sendIV[:]...)
	nonce = append(nonce, explicit[:]...)

	aad := aad12(seq, m.Type, m.Version, len(m.Payload))

	payload := make([]byte, 0, len(explicit)+len(m.Payload)+gcmTagSize)
	payload = append(payload, explicit[:]...)
	payload = c.send.Seal(payload, nonce, m.Payload, aad)

	return wire.Message{Type: m.Type, Version: m.Version, Payload: payload}, nil
}

func (c *tls12GCM) Decrypt(m wire.Message, seq uint64) (wire.Message, error) {
	if len(m.Payload) < 8+gcmTagSize {
		return wire.Message{}, qerrors.ErrDecrypt
	}

	nonce := make([]byte, 0, 12)
	nonce = append(nonce, c.recvIV[:]...)
	nonce = append(nonce, m.Payload[:8]...)

	plainLen := len(m.Payload) - 8 - gcmTagSize
	aad := aad12(seq, m.Type, m.Version, plainLen)

	plain, err := c.recv.Open(nil, nonce, m.Payload[8:], aad)
	if err != nil {
		return wire.Message{}, qerrors.ErrDecrypt
	}
	return wire.Message{Type: m.Type, Version: m.Version, Payload: plain}, nil
}

// --- TLS 1.2 ChaCha20-Poly1305 ---

// tls12ChaCha protects records per RFC 7905: no explicit nonce, the
// 12-byte fixed IV is XORed with the sequence number.
type tls12ChaCha struct {
	send, recv     cipher.AEAD
	sendIV, recvIV []byte
}

func (c *tls12ChaCha) Encrypt(m wire.Message, seq uint64) (wire.Message, error) {
	aad := aad12(seq, m.Type, m.Version, len(m.Payload))
	payload := c.send.Seal(nil, xorNonce(c.sendIV, seq), m.Payload, aad)
	return wire.Message{Type: m.Type, Version: m.Version, Payload: payload}, nil
}

func (c *tls12ChaCha) Decrypt(m wire.Message, seq uint64) (wire.Message, error) {
	if len(m.Payload) < gcmTagSize {
		return wire.Message{}, qerrors.ErrDecrypt
	}
	plainLen := len(m.Payload) - gcmTagSize
	aad := aad12(seq, m.Type, m.Version, plainLen)
	plain, err := c.recv.Open(nil, xorNonce(c.recvIV, seq), m.Payload, aad)
	if err != nil {
		return wire.Message{}, qerrors.ErrDecrypt
	}
	return wire.Message{Type: m.Type, Version: m.Version, Payload: plain}, nil
}

// NewTLS12Cipher builds the record cipher from the suite's key block.
// The key block partitions as [client_write_key, server_write_key,
// client_write_iv, server_write_iv, explicit_nonce_seed]; isClient
// selects which half drives each direction.
func NewTLS12Cipher(s *suite.CipherSuite, secrets *keysched.SessionSecrets, isClient bool) (MessageCipher, error) {
	block := secrets.KeyBlock(s.KeyBlockLen())
	defer wipe(block)

	off := 0
	clientKey := block[off : off+s.EncKeyLen]
	off += s.EncKeyLen
	serverKey := block[off : off+s.EncKeyLen]
	off += s.EncKeyLen
	clientIV := block[off : off+s.FixedIVLen]
	off += s.FixedIVLen
	serverIV := block[off : off+s.FixedIVLen]
	off += s.FixedIVLen
	nonceSeed := block[off : off+s.ExplicitNonceLen]

	sendKey, recvKey := serverKey, clientKey
	sendIV, recvIV := serverIV, clientIV
	if isClient {
		sendKey, recvKey = clientKey, serverKey
		sendIV, recvIV = clientIV, serverIV
	}

	send, err := newAEAD(s.Bulk, sendKey)
	if err != nil {
		return nil, err
	}
	recv, err := newAEAD(s.Bulk, recvKey)
	if err != nil {
		return nil, err
	}

	if s.Bulk == suite.BulkChaCha20Poly1305 {
		return &tls12ChaCha{
			send:   send,
			recv:   recv,
			sendIV: append([]byte(nil), sendIV...),
			recvIV: append([]byte(nil), recvIV...),
		}, nil
	}

	c := &tls12GCM{send: send, recv: recv}
	copy(c.sendIV[:], sendIV)
	copy(c.recvIV[:], recvIV)
	copy(c.nonceMask[:], nonceSeed)
	return c, nil
}

// --- TLS 1.3 ---

// tls13Cipher protects records per draft-18: the true content type
// moves inside the plaintext, the outer record claims ApplicationData,
// and the nonce is the XOR form. Additional data is empty in this
// draft.
type tls13Cipher struct {
	send, recv     cipher.AEAD
	sendIV, recvIV []byte
}

func (c *tls13Cipher) Encrypt(m wire.Message, seq uint64) (wire.Message, error) {
	inner := make([]byte, 0, len(m.Payload)+1)
	inner = append(inner, m.Payload...)
	inner = append(inner, byte(m.Type))

	payload := c.send.Seal(nil, xorNonce(c.sendIV, seq), inner, nil)
	return wire.Message{
		Type:    wire.ContentTypeApplicationData,
		Version: wire.VersionTLS10,
		Payload: payload,
	}, nil
}

func (c *tls13Cipher) Decrypt(m wire.Message, seq uint64) (wire.Message, error) {
	inner, err := c.recv.Open(nil, xorNonce(c.recvIV, seq), m.Payload, nil)
	if err != nil {
		return wire.Message{}, qerrors.ErrDecrypt
	}

	// Strip zero padding, then the true content type.
	end := len(inner)
	for end > 0 && inner[end-1] == 0 {
		end--
	}
	if end == 0 {
		return wire.Message{}, qerrors.ErrDecrypt
	}
	return wire.Message{
		Type:    wire.ContentType(inner[end-1]),
		Version: wire.VersionTLS12,
		Payload: inner[:end-1],
	}, nil
}

// NewTLS13Cipher builds a record cipher from the two current traffic
// secrets. The write and read secrets are expanded into key and IV and
// the key expansions wiped once the AEADs hold them; the IVs stay with
// the cipher for nonce construction.
func NewTLS13Cipher(s *suite.CipherSuite, writeSecret, readSecret []byte) (MessageCipher, error) {
	alg := s.HashFunc()

	writeKey, writeIV := keysched.TrafficKeyIV(alg, writeSecret, s.EncKeyLen, s.FixedIVLen)
	readKey, readIV := keysched.TrafficKeyIV(alg, readSecret, s.EncKeyLen, s.FixedIVLen)
	defer wipe(writeKey)
	defer wipe(readKey)

	send, err := newAEAD(s.Bulk, writeKey)
	if err != nil {
		return nil, err
	}
	recv, err := newAEAD(s.Bulk, readKey)
	if err != nil {
		return nil, err
	}

	return &tls13Cipher{send: send, recv: recv, sendIV: writeIV, recvIV: readIV}, nil
}

// ConstantTimeEqual compares two byte slices in constant time.
func ConstantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
