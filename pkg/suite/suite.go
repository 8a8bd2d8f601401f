// Package suite holds the static cipher suite registry: the nine
// suites Veil speaks, the selection policies, and signature scheme
// resolution.
//
// Suite parameters are plain fields resolved against a process-wide
// read-only table; there is no dynamic dispatch on suites.
package suite

import (
	"crypto"
	_ "crypto/sha1" // suites never hash with SHA-1 but schemes may verify with it
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/veiltls/veil/pkg/wire"
)

// BulkAlgorithm is the AEAD used for record protection.
type BulkAlgorithm int

// Bulk algorithms.
const (
	BulkAES128GCM BulkAlgorithm = iota
	BulkAES256GCM
	BulkChaCha20Poly1305
)

// KeyExchangeAlgorithm distinguishes suites that name their key
// exchange (TLS 1.2) from TLS 1.3 suites, which only name the bulk
// protection.
type KeyExchangeAlgorithm int

// Key exchange algorithms.
const (
	KxBulkOnly KeyExchangeAlgorithm = iota
	KxECDHE
)

// CipherSuite is one entry of the static suite table. Equality is by
// ID.
type CipherSuite struct {
	ID   wire.CipherSuiteID
	Kx   KeyExchangeAlgorithm
	Bulk BulkAlgorithm
	Hash wire.HashAlgorithm
	Sign wire.SignatureAlgorithm

	EncKeyLen  int
	FixedIVLen int

	// ExplicitNonceLen extends the TLS 1.2 key block with an initial
	// explicit nonce offset. GCM needs this; chacha20poly1305 works
	// without one.
	ExplicitNonceLen int
}

// HashFunc maps the suite's PRF/transcript hash to crypto.Hash.
func (s *CipherSuite) HashFunc() crypto.Hash {
	switch s.Hash {
	case wire.HashSHA384:
		return crypto.SHA384
	case wire.HashSHA512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// KeyBlockLen is the TLS 1.2 key block length for this suite.
func (s *CipherSuite) KeyBlockLen() int {
	return (s.EncKeyLen+s.FixedIVLen)*2 + s.ExplicitNonceLen
}

// IsTLS13 reports whether this is a TLS 1.3 suite.
func (s *CipherSuite) IsTLS13() bool {
	return s.Kx == KxBulkOnly
}

// ResolveSigScheme resolves a single signature scheme from the peer's
// offer. Preference: the suite's own (sign, hash) pair for security
// level consistency, then the suite's sign algorithm with the best
// hashes first.
func (s *CipherSuite) ResolveSigScheme(offered []wire.SignatureScheme) (wire.SignatureScheme, bool) {
	preference := []wire.SignatureScheme{
		wire.MakeScheme(s.Sign, s.Hash),
		wire.MakeScheme(s.Sign, wire.HashSHA512),
		wire.MakeScheme(s.Sign, wire.HashSHA384),
		wire.MakeScheme(s.Sign, wire.HashSHA256),
	}
	for _, want := range preference {
		if want == 0 {
			continue
		}
		for _, got := range offered {
			if got == want {
				return want, true
			}
		}
	}
	return 0, false
}

// The suite table entries.
var (
	TLSECDHEECDSAWithChaCha20Poly1305SHA256 = CipherSuite{
		ID:               wire.TLSECDHEECDSAWithChaCha20Poly1305SHA256,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmECDSA,
		Bulk:             BulkChaCha20Poly1305,
		Hash:             wire.HashSHA256,
		EncKeyLen:        32,
		FixedIVLen:       12,
		ExplicitNonceLen: 0,
	}

	TLSECDHERSAWithChaCha20Poly1305SHA256 = CipherSuite{
		ID:               wire.TLSECDHERSAWithChaCha20Poly1305SHA256,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmRSA,
		Bulk:             BulkChaCha20Poly1305,
		Hash:             wire.HashSHA256,
		EncKeyLen:        32,
		FixedIVLen:       12,
		ExplicitNonceLen: 0,
	}

	TLSECDHERSAWithAES128GCMSHA256 = CipherSuite{
		ID:               wire.TLSECDHERSAWithAES128GCMSHA256,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmRSA,
		Bulk:             BulkAES128GCM,
		Hash:             wire.HashSHA256,
		EncKeyLen:        16,
		FixedIVLen:       4,
		ExplicitNonceLen: 8,
	}

	TLSECDHERSAWithAES256GCMSHA384 = CipherSuite{
		ID:               wire.TLSECDHERSAWithAES256GCMSHA384,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmRSA,
		Bulk:             BulkAES256GCM,
		Hash:             wire.HashSHA384,
		EncKeyLen:        32,
		FixedIVLen:       4,
		ExplicitNonceLen: 8,
	}

	TLSECDHEECDSAWithAES128GCMSHA256 = CipherSuite{
		ID:               wire.TLSECDHEECDSAWithAES128GCMSHA256,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmECDSA,
		Bulk:             BulkAES128GCM,
		Hash:             wire.HashSHA256,
		EncKeyLen:        16,
		FixedIVLen:       4,
		ExplicitNonceLen: 8,
	}

	TLSECDHEECDSAWithAES256GCMSHA384 = CipherSuite{
		ID:               wire.TLSECDHEECDSAWithAES256GCMSHA384,
		Kx:               KxECDHE,
		Sign:             wire.SignatureAlgorithmECDSA,
		Bulk:             BulkAES256GCM,
		Hash:             wire.HashSHA384,
		EncKeyLen:        32,
		FixedIVLen:       4,
		ExplicitNonceLen: 8,
	}

	TLS13ChaCha20Poly1305SHA256 = CipherSuite{
		ID:               wire.TLS13ChaCha20Poly1305SHA256,
		Kx:               KxBulkOnly,
		Sign:             wire.SignatureAlgorithmAnonymous,
		Bulk:             BulkChaCha20Poly1305,
		Hash:             wire.HashSHA256,
		EncKeyLen:        32,
		FixedIVLen:       12,
		ExplicitNonceLen: 0,
	}

	TLS13AES256GCMSHA384 = CipherSuite{
		ID:               wire.TLS13AES256GCMSHA384,
		Kx:               KxBulkOnly,
		Sign:             wire.SignatureAlgorithmAnonymous,
		Bulk:             BulkAES256GCM,
		Hash:             wire.HashSHA384,
		EncKeyLen:        32,
		FixedIVLen:       12,
		ExplicitNonceLen: 0,
	}

	TLS13AES128GCMSHA256 = CipherSuite{
		ID:               wire.TLS13AES128GCMSHA256,
		Kx:               KxBulkOnly,
		Sign:             wire.SignatureAlgorithmAnonymous,
		Bulk:             BulkAES128GCM,
		Hash:             wire.HashSHA256,
		EncKeyLen:        16,
		FixedIVLen:       12,
		ExplicitNonceLen: 0,
	}
)

// All lists every suite Veil supports, in default preference order.
var All = []*CipherSuite{
	// TLS 1.3 suites
	&TLS13ChaCha20Poly1305SHA256,
	&TLS13AES256GCMSHA384,
	&TLS13AES128GCMSHA256,

	// TLS 1.2 suites
	&TLSECDHEECDSAWithChaCha20Poly1305SHA256,
	&TLSECDHERSAWithChaCha20Poly1305SHA256,
	&TLSECDHEECDSAWithAES256GCMSHA384,
	&TLSECDHEECDSAWithAES128GCMSHA256,
	&TLSECDHERSAWithAES256GCMSHA384,
	&TLSECDHERSAWithAES128GCMSHA256,
}

// ByID looks a suite up in the static table.
func ByID(id wire.CipherSuiteID) *CipherSuite {
	for _, s := range All {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ChoosePreferringClient picks the first client-offered suite the
// server permits.
func ChoosePreferringClient(clientSuites []wire.CipherSuiteID, serverSuites []*CipherSuite) *CipherSuite {
	for _, id := range clientSuites {
		for _, s := range serverSuites {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}

// ChoosePreferringServer picks the first server-permitted suite the
// client offered.
func ChoosePreferringServer(clientSuites []wire.CipherSuiteID, serverSuites []*CipherSuite) *CipherSuite {
	for _, s := range serverSuites {
		for _, id := range clientSuites {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}

// ReduceGivenSigAlg retains the suites compatible with a certificate
// signature algorithm. Anonymous suites (TLS 1.3) always survive.
func ReduceGivenSigAlg(all []*CipherSuite, sigalg wire.SignatureAlgorithm) []*CipherSuite {
	var out []*CipherSuite
	for _, s := range all {
		if s.Sign == wire.SignatureAlgorithmAnonymous || s.Sign == sigalg {
			out = append(out, s)
		}
	}
	return out
}

// SupportedGroups is the ECDHE group list, in offer/preference order.
func SupportedGroups() []wire.NamedGroup {
	return []wire.NamedGroup{wire.GroupX25519, wire.GroupSecp384r1, wire.GroupSecp256r1}
}

// SupportedPointFormats is the EC point format list Veil supports.
func SupportedPointFormats() []wire.ECPointFormat {
	return []wire.ECPointFormat{wire.ECPointFormatUncompressed}
}

// SupportedVerifySchemes lists the signature schemes Veil can verify,
// in decreasing order of expected security.
func SupportedVerifySchemes() []wire.SignatureScheme {
	return []wire.SignatureScheme{
		wire.SchemeED25519,

		wire.SchemeECDSAP384SHA384,
		wire.SchemeECDSAP256SHA256,

		wire.SchemeRSAPSSSHA512,
		wire.SchemeRSAPSSSHA384,
		wire.SchemeRSAPSSSHA256,

		wire.SchemeRSAPKCS1SHA512,
		wire.SchemeRSAPKCS1SHA384,
		wire.SchemeRSAPKCS1SHA256,
		wire.SchemeRSAPKCS1SHA1,
	}
}
