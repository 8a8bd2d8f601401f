// Package keysched implements the two TLS key schedules: the classic
// TLS 1.2 PRF over the master secret, and the TLS 1.3 draft-18
// HKDF-Extract/Expand-Label ladder.
package keysched

import (
	"crypto"
	"crypto/hmac"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
)

// Randoms carries the client and server hello randoms, in that order.
type Randoms struct {
	Client [constants.RandomSize]byte
	Server [constants.RandomSize]byte
}

// clientServer returns client_random || server_random.
func (r *Randoms) clientServer() []byte {
	out := make([]byte, 0, 2*constants.RandomSize)
	out = append(out, r.Client[:]...)
	return append(out, r.Server[:]...)
}

// serverClient returns server_random || client_random.
func (r *Randoms) serverClient() []byte {
	out := make([]byte, 0, 2*constants.RandomSize)
	out = append(out, r.Server[:]...)
	return append(out, r.Client[:]...)
}

// pHash is the P_hash expansion of RFC 5246 section 5.
func pHash(alg crypto.Hash, secret, seed []byte, n int) []byte {
	out := make([]byte, 0, n)

	mac := hmac.New(alg.New, secret)
	mac.Write(seed)
	a := mac.Sum(nil) // A(1)

	for len(out) < n {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}
	return out[:n]
}

// prf12 is the TLS 1.2 PRF: P_hash(secret, label || seed).
func prf12(alg crypto.Hash, secret []byte, label string, seed []byte, n int) []byte {
	labelled := make([]byte, 0, len(label)+len(seed))
	labelled = append(labelled, label...)
	labelled = append(labelled, seed...)
	return pHash(alg, secret, labelled, n)
}

// SessionSecrets holds the TLS 1.2 master secret and derives the key
// block and Finished verify_data. The master secret is immutable once
// the secrets exist.
type SessionSecrets struct {
	randoms Randoms
	hash    crypto.Hash
	master  [constants.MasterSecretSize]byte
}

// NewSessionSecrets derives a fresh master secret from the premaster.
// The premaster is consumed: wiped before return.
func NewSessionSecrets(randoms *Randoms, alg crypto.Hash, premaster []byte) *SessionSecrets {
	s := &SessionSecrets{randoms: *randoms, hash: alg}
	master := prf12(alg, premaster, constants.LabelMasterSecret,
		randoms.clientServer(), constants.MasterSecretSize)
	copy(s.master[:], master)
	wipe(master)
	wipe(premaster)
	return s
}

// ResumeSessionSecrets installs a master secret recovered from a
// session cache or ticket; no derivation happens.
func ResumeSessionSecrets(randoms *Randoms, alg crypto.Hash, master []byte) (*SessionSecrets, error) {
	if len(master) != constants.MasterSecretSize {
		return nil, qerrors.ErrInvalidKeySize
	}
	s := &SessionSecrets{randoms: *randoms, hash: alg}
	copy(s.master[:], master)
	return s, nil
}

// MasterSecret returns a copy of the master secret for persistence.
func (s *SessionSecrets) MasterSecret() []byte {
	return append([]byte(nil), s.master[:]...)
}

// Hash returns the suite PRF hash these secrets were built with.
func (s *SessionSecrets) Hash() crypto.Hash {
	return s.hash
}

// KeyBlock expands the master secret into n bytes of key material,
// seeded with server_random || client_random.
func (s *SessionSecrets) KeyBlock(n int) []byte {
	return prf12(s.hash, s.master[:], constants.LabelKeyExpansion,
		s.randoms.serverClient(), n)
}

// ClientVerifyData computes the client Finished verify_data over a
// transcript hash.
func (s *SessionSecrets) ClientVerifyData(transcriptHash []byte) []byte {
	return prf12(s.hash, s.master[:], constants.LabelClientFinished,
		transcriptHash, constants.VerifyDataSize12)
}

// ServerVerifyData computes the server Finished verify_data over a
// transcript hash.
func (s *SessionSecrets) ServerVerifyData(transcriptHash []byte) []byte {
	return prf12(s.hash, s.master[:], constants.LabelServerFinished,
		transcriptHash, constants.VerifyDataSize12)
}

// wipe zeroes key material that is no longer needed.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
