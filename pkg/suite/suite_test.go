package suite

import (
	"crypto"
	"testing"

	"github.com/veiltls/veil/pkg/wire"
)

func TestTableHasNineSuites(t *testing.T) {
	if len(All) != 9 {
		t.Fatalf("expected 9 suites, got %d", len(All))
	}

	tls13 := 0
	for _, s := range All {
		if s.IsTLS13() {
			tls13++
			if s.Sign != wire.SignatureAlgorithmAnonymous {
				t.Errorf("%04x: TLS 1.3 suite with coupled signature algorithm", uint16(s.ID))
			}
		}
	}
	if tls13 != 3 {
		t.Errorf("expected 3 TLS 1.3 suites, got %d", tls13)
	}
}

func TestKeyBlockLen(t *testing.T) {
	// AES-128-GCM: (16+4)*2 + 8 = 48.
	if got := TLSECDHERSAWithAES128GCMSHA256.KeyBlockLen(); got != 48 {
		t.Errorf("AES-128-GCM key block: got %d, want 48", got)
	}
	// ChaCha20: (32+12)*2 + 0 = 88.
	if got := TLSECDHERSAWithChaCha20Poly1305SHA256.KeyBlockLen(); got != 88 {
		t.Errorf("ChaCha20 key block: got %d, want 88", got)
	}
}

func TestHashFunc(t *testing.T) {
	if TLSECDHERSAWithAES128GCMSHA256.HashFunc() != crypto.SHA256 {
		t.Errorf("expected SHA-256")
	}
	if TLS13AES256GCMSHA384.HashFunc() != crypto.SHA384 {
		t.Errorf("expected SHA-384")
	}
}

func TestChoosePreferringClient(t *testing.T) {
	clientOrder := []wire.CipherSuiteID{
		wire.TLSECDHERSAWithAES128GCMSHA256,
		wire.TLSECDHERSAWithAES256GCMSHA384,
	}
	serverSuites := []*CipherSuite{
		&TLSECDHERSAWithAES256GCMSHA384,
		&TLSECDHERSAWithAES128GCMSHA256,
	}

	chosen := ChoosePreferringClient(clientOrder, serverSuites)
	if chosen != &TLSECDHERSAWithAES128GCMSHA256 {
		t.Fatalf("expected client's first preference, got %+v", chosen)
	}
}

func TestChoosePreferringServer(t *testing.T) {
	clientOrder := []wire.CipherSuiteID{
		wire.TLSECDHERSAWithAES128GCMSHA256,
		wire.TLSECDHERSAWithAES256GCMSHA384,
	}
	serverSuites := []*CipherSuite{
		&TLSECDHERSAWithAES256GCMSHA384,
		&TLSECDHERSAWithAES128GCMSHA256,
	}

	chosen := ChoosePreferringServer(clientOrder, serverSuites)
	if chosen != &TLSECDHERSAWithAES256GCMSHA384 {
		t.Fatalf("expected server's first preference, got %+v", chosen)
	}
}

func TestChooseNoOverlap(t *testing.T) {
	clientOrder := []wire.CipherSuiteID{0x0000}
	if ChoosePreferringClient(clientOrder, All) != nil {
		t.Errorf("chose a suite the client never offered")
	}
	if ChoosePreferringServer(clientOrder, All) != nil {
		t.Errorf("chose a suite the client never offered")
	}
}

func TestReduceGivenSigAlg(t *testing.T) {
	reduced := ReduceGivenSigAlg(All, wire.SignatureAlgorithmRSA)
	for _, s := range reduced {
		if s.Sign != wire.SignatureAlgorithmRSA && s.Sign != wire.SignatureAlgorithmAnonymous {
			t.Errorf("%04x survived RSA reduction with sign %v", uint16(s.ID), s.Sign)
		}
	}
	// 3 anonymous (TLS 1.3) + 3 RSA.
	if len(reduced) != 6 {
		t.Errorf("expected 6 suites after RSA reduction, got %d", len(reduced))
	}
}

func TestResolveSigScheme(t *testing.T) {
	// The suite's own hash is preferred.
	offered := []wire.SignatureScheme{
		wire.SchemeRSAPKCS1SHA512,
		wire.SchemeRSAPKCS1SHA384,
	}
	scheme, ok := TLSECDHERSAWithAES256GCMSHA384.ResolveSigScheme(offered)
	if !ok || scheme != wire.SchemeRSAPKCS1SHA384 {
		t.Errorf("expected RSA-SHA384 (suite hash), got %v ok=%v", scheme, ok)
	}

	// Without the suite hash, the strongest hash for the right
	// signature algorithm wins.
	offered = []wire.SignatureScheme{
		wire.SchemeRSAPKCS1SHA256,
		wire.SchemeRSAPKCS1SHA512,
		wire.SchemeECDSAP384SHA384,
	}
	scheme, ok = TLSECDHERSAWithAES256GCMSHA384.ResolveSigScheme(offered)
	if !ok || scheme != wire.SchemeRSAPKCS1SHA512 {
		t.Errorf("expected RSA-SHA512, got %v ok=%v", scheme, ok)
	}

	// Wrong algorithm entirely: no resolution.
	offered = []wire.SignatureScheme{wire.SchemeECDSAP256SHA256}
	if _, ok := TLSECDHERSAWithAES256GCMSHA384.ResolveSigScheme(offered); ok {
		t.Errorf("resolved a scheme with no RSA candidate")
	}
}

func TestByID(t *testing.T) {
	if ByID(wire.TLS13ChaCha20Poly1305SHA256) != &TLS13ChaCha20Poly1305SHA256 {
		t.Errorf("ByID missed a table entry")
	}
	if ByID(0x0000) != nil {
		t.Errorf("ByID invented a suite")
	}
}
