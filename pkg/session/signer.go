package session

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"

	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/wire"
)

// Signer abstracts the private key behind a certificate. Sign produces
// a signature for the given scheme; ChooseScheme resolves a TLS 1.3
// CertificateVerify scheme from the peer's offer.
type Signer interface {
	Sign(scheme wire.SignatureScheme, message []byte) ([]byte, error)
	ChooseScheme(offered []wire.SignatureScheme) (wire.SignatureScheme, bool)
	Algorithm() wire.SignatureAlgorithm
}

// stdSigner wraps a crypto.Signer (RSA, ECDSA or Ed25519 key).
type stdSigner struct {
	key crypto.Signer
	alg wire.SignatureAlgorithm
}

// NewSigner builds a Signer around a private key, inferring the
// signature algorithm from the public key type.
func NewSigner(key crypto.Signer) (Signer, error) {
	switch key.Public().(type) {
	case *rsa.PublicKey:
		return &stdSigner{key: key, alg: wire.SignatureAlgorithmRSA}, nil
	case *ecdsa.PublicKey:
		return &stdSigner{key: key, alg: wire.SignatureAlgorithmECDSA}, nil
	case ed25519.PublicKey:
		// Ed25519 has no SignatureAlgorithm code point in the TLS 1.2
		// suite sense; advertise ECDSA-like anonymous pairing is wrong,
		// so these keys serve TLS 1.3 only.
		return &stdSigner{key: key, alg: wire.SignatureAlgorithmAnonymous}, nil
	default:
		return nil, qerrors.General("unsupported private key type", nil)
	}
}

// Algorithm implements Signer.
func (s *stdSigner) Algorithm() wire.SignatureAlgorithm {
	return s.alg
}

// Sign implements Signer.
func (s *stdSigner) Sign(scheme wire.SignatureScheme, message []byte) ([]byte, error) {
	if scheme == wire.SchemeED25519 {
		return s.key.Sign(rand.Reader, message, crypto.Hash(0))
	}

	hash := schemeHash(scheme)
	if hash == 0 {
		return nil, qerrors.General("unsupported signature scheme", nil)
	}
	h := hash.New()
	h.Write(message)
	digest := h.Sum(nil)

	var opts crypto.SignerOpts = hash
	switch scheme {
	case wire.SchemeRSAPSSSHA256, wire.SchemeRSAPSSSHA384, wire.SchemeRSAPSSSHA512:
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
	}

	sig, err := s.key.Sign(rand.Reader, digest, opts)
	if err != nil {
		return nil, qerrors.General("signing failed", err)
	}
	return sig, nil
}

// tls13SchemePreference lists the schemes acceptable in a TLS 1.3
// CertificateVerify, strongest first per key type.
var tls13SchemePreference = map[wire.SignatureAlgorithm][]wire.SignatureScheme{
	wire.SignatureAlgorithmRSA: {
		wire.SchemeRSAPSSSHA512,
		wire.SchemeRSAPSSSHA384,
		wire.SchemeRSAPSSSHA256,
	},
	wire.SignatureAlgorithmECDSA: {
		wire.SchemeECDSAP384SHA384,
		wire.SchemeECDSAP256SHA256,
	},
	wire.SignatureAlgorithmAnonymous: {
		wire.SchemeED25519,
	},
}

// ChooseScheme implements Signer.
func (s *stdSigner) ChooseScheme(offered []wire.SignatureScheme) (wire.SignatureScheme, bool) {
	for _, want := range tls13SchemePreference[s.alg] {
		for _, got := range offered {
			if got == want {
				return want, true
			}
		}
	}
	return 0, false
}
