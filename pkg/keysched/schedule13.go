package keysched

import (
	"crypto"
	"crypto/hmac"
	"io"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"

	"github.com/veiltls/veil/internal/constants"
)

// SecretKind names one of the TLS 1.3 traffic secrets.
type SecretKind int

// Secret kinds.
const (
	ClientHandshakeTrafficSecret SecretKind = iota
	ServerHandshakeTrafficSecret
	ClientApplicationTrafficSecret
	ServerApplicationTrafficSecret
)

func (k SecretKind) label() string {
	switch k {
	case ClientHandshakeTrafficSecret:
		return constants.LabelClientHandshakeTraffic
	case ServerHandshakeTrafficSecret:
		return constants.LabelServerHandshakeTraffic
	case ClientApplicationTrafficSecret:
		return constants.LabelClientApplicationTraffic
	case ServerApplicationTrafficSecret:
		return constants.LabelServerApplicationTraffic
	default:
		panic("keysched: unknown secret kind")
	}
}

// IsClient reports whether the kind belongs to the client direction.
func (k SecretKind) IsClient() bool {
	return k == ClientHandshakeTrafficSecret || k == ClientApplicationTrafficSecret
}

// Schedule13 is the TLS 1.3 draft-18 key schedule. Stage inputs are an
// explicit sequence: InputEmpty (no PSK), InputSecret (ECDHE shared
// secret), InputEmpty (application stage). Each stage extracts over
// the previous stage's secret.
type Schedule13 struct {
	hash    crypto.Hash
	current []byte

	// The traffic secrets currently in force, kept for Finished
	// verify_data and the application-stage derivation.
	CurrentClientTrafficSecret []byte
	CurrentServerTrafficSecret []byte
}

// NewSchedule13 creates an empty schedule for the suite's hash.
func NewSchedule13(alg crypto.Hash) *Schedule13 {
	return &Schedule13{hash: alg}
}

// Hash returns the schedule's hash algorithm.
func (s *Schedule13) Hash() crypto.Hash {
	return s.hash
}

// InputEmpty feeds a stage input of hash-length zeroes.
func (s *Schedule13) InputEmpty() {
	s.InputSecret(make([]byte, s.hash.Size()))
}

// InputSecret feeds a stage input, consuming it: the secret is wiped
// before return.
func (s *Schedule13) InputSecret(secret []byte) {
	salt := s.current
	if salt == nil {
		salt = make([]byte, s.hash.Size())
	}
	next := hkdf.Extract(s.hash.New, secret, salt)
	wipe(s.current)
	wipe(secret)
	s.current = next
}

// expandLabel is HKDF-Expand-Label: Expand(secret, "tls13 " || label,
// context, n) over the HkdfLabel structure.
func expandLabel(alg crypto.Hash, secret []byte, label string, context []byte, n int) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(n))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(constants.LabelPrefix13))
		b.AddBytes([]byte(label))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	info, _ := b.Bytes()

	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(alg.New, secret, info), out); err != nil {
		panic("keysched: hkdf expand failed: " + err.Error())
	}
	return out
}

// Derive produces the kind-appropriate traffic secret over a
// transcript hash, from the current stage secret.
func (s *Schedule13) Derive(kind SecretKind, transcriptHash []byte) []byte {
	return expandLabel(s.hash, s.current, kind.label(), transcriptHash, s.hash.Size())
}

// SignVerifyData computes Finished verify_data for the direction's
// current traffic secret: HMAC(finished_key, transcript_hash) with
// finished_key = Expand-Label(secret, "finished", "", hash_len).
func (s *Schedule13) SignVerifyData(kind SecretKind, transcriptHash []byte) []byte {
	secret := s.CurrentServerTrafficSecret
	if kind.IsClient() {
		secret = s.CurrentClientTrafficSecret
	}
	finishedKey := expandLabel(s.hash, secret, constants.LabelFinished, nil, s.hash.Size())
	mac := hmac.New(s.hash.New, finishedKey)
	mac.Write(transcriptHash)
	wipe(finishedKey)
	return mac.Sum(nil)
}

// TrafficKeyIV expands a traffic secret into record protection key and
// IV of the requested lengths.
func TrafficKeyIV(alg crypto.Hash, secret []byte, keyLen, ivLen int) (key, iv []byte) {
	key = expandLabel(alg, secret, constants.LabelKey, nil, keyLen)
	iv = expandLabel(alg, secret, constants.LabelIV, nil, ivLen)
	return key, iv
}
