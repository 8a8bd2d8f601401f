package session

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"time"

	circled "github.com/cloudflare/circl/sign/ed25519"

	"github.com/veiltls/veil/internal/constants"
	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/wire"
)

var errNoCertificate = errors.New("session: no certificate resolved")

// CertVerifier validates certificate chains. X.509 semantics live
// outside the protocol core; the default implementation wraps the
// standard library.
type CertVerifier interface {
	// VerifyServerCert checks a server chain (leaf first, DER) against
	// the roots and the intended DNS name.
	VerifyServerCert(roots *x509.CertPool, chain [][]byte, dnsName string) error

	// VerifyClientCert checks a client chain against the client-auth
	// roots.
	VerifyClientCert(roots *x509.CertPool, chain [][]byte) error
}

// StdVerifier is the crypto/x509-backed CertVerifier.
type StdVerifier struct {
	// Now overrides the verification time; nil means time.Now.
	Now func() time.Time
}

func (v *StdVerifier) verify(roots *x509.CertPool, chain [][]byte, dnsName string, usage x509.ExtKeyUsage) error {
	if len(chain) == 0 {
		return qerrors.PeerMisbehaved("empty certificate chain")
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return qerrors.PeerMisbehaved("bad leaf certificate: " + err.Error())
	}

	intermediates := x509.NewCertPool()
	for _, der := range chain[1:] {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return qerrors.PeerMisbehaved("bad intermediate certificate: " + err.Error())
		}
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       dnsName,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	}
	if v.Now != nil {
		opts.CurrentTime = v.Now()
	}

	if _, err := leaf.Verify(opts); err != nil {
		return qerrors.PeerMisbehaved("certificate verification failed: " + err.Error())
	}
	return nil
}

// VerifyServerCert implements CertVerifier.
func (v *StdVerifier) VerifyServerCert(roots *x509.CertPool, chain [][]byte, dnsName string) error {
	return v.verify(roots, chain, dnsName, x509.ExtKeyUsageServerAuth)
}

// VerifyClientCert implements CertVerifier.
func (v *StdVerifier) VerifyClientCert(roots *x509.CertPool, chain [][]byte) error {
	return v.verify(roots, chain, "", x509.ExtKeyUsageClientAuth)
}

// InsecureVerifier accepts any chain without inspection. Test use
// only.
type InsecureVerifier struct{}

// VerifyServerCert implements CertVerifier.
func (InsecureVerifier) VerifyServerCert(roots *x509.CertPool, chain [][]byte, dnsName string) error {
	return nil
}

// VerifyClientCert implements CertVerifier.
func (InsecureVerifier) VerifyClientCert(roots *x509.CertPool, chain [][]byte) error {
	return nil
}

// schemeHash maps a signature scheme to its digest.
func schemeHash(scheme wire.SignatureScheme) crypto.Hash {
	switch scheme {
	case wire.SchemeRSAPKCS1SHA1, wire.SchemeECDSASHA1:
		return crypto.SHA1
	case wire.SchemeRSAPKCS1SHA256, wire.SchemeECDSAP256SHA256, wire.SchemeRSAPSSSHA256:
		return crypto.SHA256
	case wire.SchemeRSAPKCS1SHA384, wire.SchemeECDSAP384SHA384, wire.SchemeRSAPSSSHA384:
		return crypto.SHA384
	case wire.SchemeRSAPKCS1SHA512, wire.SchemeECDSAP521SHA512, wire.SchemeRSAPSSSHA512:
		return crypto.SHA512
	default:
		return 0 // Ed25519 signs the message directly
	}
}

// verifySignedStruct checks a DigitallySigned signature over message
// with the public key of the leaf certificate. Used for TLS 1.2
// ServerKeyExchange and CertificateVerify.
func verifySignedStruct(message []byte, leafDER []byte, ds *wire.DigitallySigned) error {
	cert, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return qerrors.PeerMisbehaved("bad certificate: " + err.Error())
	}
	return verifyWithKey(cert.PublicKey, message, ds)
}

func verifyWithKey(pub interface{}, message []byte, ds *wire.DigitallySigned) error {
	hash := schemeHash(ds.Scheme)
	var digest []byte
	if hash != 0 {
		h := hash.New()
		h.Write(message)
		digest = h.Sum(nil)
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		switch ds.Scheme {
		case wire.SchemeRSAPKCS1SHA1, wire.SchemeRSAPKCS1SHA256,
			wire.SchemeRSAPKCS1SHA384, wire.SchemeRSAPKCS1SHA512:
			if err := rsa.VerifyPKCS1v15(key, hash, digest, ds.Signature); err != nil {
				return qerrors.PeerMisbehaved("invalid RSA signature")
			}
			return nil
		case wire.SchemeRSAPSSSHA256, wire.SchemeRSAPSSSHA384, wire.SchemeRSAPSSSHA512:
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
			if err := rsa.VerifyPSS(key, hash, digest, ds.Signature, opts); err != nil {
				return qerrors.PeerMisbehaved("invalid RSA-PSS signature")
			}
			return nil
		}
	case *ecdsa.PublicKey:
		switch ds.Scheme {
		case wire.SchemeECDSASHA1, wire.SchemeECDSAP256SHA256,
			wire.SchemeECDSAP384SHA384, wire.SchemeECDSAP521SHA512:
			if !ecdsa.VerifyASN1(key, digest, ds.Signature) {
				return qerrors.PeerMisbehaved("invalid ECDSA signature")
			}
			return nil
		}
	case ed25519.PublicKey:
		if ds.Scheme == wire.SchemeED25519 {
			if !circled.Verify(circled.PublicKey(key), message, ds.Signature) {
				return qerrors.PeerMisbehaved("invalid Ed25519 signature")
			}
			return nil
		}
	}
	return qerrors.PeerMisbehaved("signature scheme does not match certificate key")
}

// verifyTLS13CertVerify checks a TLS 1.3 CertificateVerify: the
// signature covers 64 bytes of 0x20, the context string, and the
// transcript hash. Legacy PKCS#1 and SHA-1 schemes are not acceptable
// here.
func verifyTLS13CertVerify(leafDER []byte, ds *wire.DigitallySigned, transcriptHash []byte) error {
	switch ds.Scheme {
	case wire.SchemeRSAPKCS1SHA1, wire.SchemeRSAPKCS1SHA256,
		wire.SchemeRSAPKCS1SHA384, wire.SchemeRSAPKCS1SHA512,
		wire.SchemeECDSASHA1:
		return qerrors.PeerMisbehaved("legacy signature scheme in TLS 1.3 CertificateVerify")
	}

	message := make([]byte, 0, constants.CertVerifyPadSize+len(constants.CertVerifyContext13)+len(transcriptHash))
	for i := 0; i < constants.CertVerifyPadSize; i++ {
		message = append(message, 0x20)
	}
	message = append(message, constants.CertVerifyContext13...)
	message = append(message, transcriptHash...)

	return verifySignedStruct(message, leafDER, ds)
}
