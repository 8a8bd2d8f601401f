package kx

import (
	"bytes"
	"testing"

	"github.com/veiltls/veil/pkg/wire"
)

func TestAgreementAllGroups(t *testing.T) {
	groups := []wire.NamedGroup{wire.GroupX25519, wire.GroupSecp256r1, wire.GroupSecp384r1}

	for _, group := range groups {
		alice, err := Start(group)
		if err != nil {
			t.Fatalf("Failed to start %v exchange: %v", group, err)
		}
		bob, err := Start(group)
		if err != nil {
			t.Fatalf("Failed to start %v exchange: %v", group, err)
		}

		aliceResult, err := alice.Complete(bob.PublicKey)
		if err != nil {
			t.Fatalf("Failed to complete %v on alice's side: %v", group, err)
		}
		bobResult, err := bob.Complete(aliceResult.PublicKey)
		if err != nil {
			t.Fatalf("Failed to complete %v on bob's side: %v", group, err)
		}

		if !bytes.Equal(aliceResult.PremasterSecret, bobResult.PremasterSecret) {
			t.Errorf("%v: shared secrets disagree", group)
		}
		if len(aliceResult.PremasterSecret) == 0 {
			t.Errorf("%v: empty shared secret", group)
		}
	}
}

func TestInvalidPeerPointFailsClosed(t *testing.T) {
	exchange, err := Start(wire.GroupSecp256r1)
	if err != nil {
		t.Fatalf("Failed to start exchange: %v", err)
	}
	if _, err := exchange.Complete([]byte{1, 2, 3}); err == nil {
		t.Fatalf("garbage peer point accepted")
	}
}

func TestExchangeIsSingleUse(t *testing.T) {
	exchange, err := Start(wire.GroupX25519)
	if err != nil {
		t.Fatalf("Failed to start exchange: %v", err)
	}
	peer, _ := Start(wire.GroupX25519)
	if _, err := exchange.Complete(peer.PublicKey); err != nil {
		t.Fatalf("Failed first completion: %v", err)
	}
	if _, err := exchange.Complete(peer.PublicKey); err == nil {
		t.Fatalf("exchange completed twice")
	}
}

func TestUnsupportedGroup(t *testing.T) {
	if GroupSupported(wire.GroupSecp521r1) {
		t.Errorf("secp521r1 claimed supported")
	}
	if _, err := Start(wire.GroupSecp521r1); err == nil {
		t.Errorf("Start accepted secp521r1")
	}
}

func TestClientECDHE(t *testing.T) {
	server, err := Start(wire.GroupX25519)
	if err != nil {
		t.Fatalf("Failed to start server exchange: %v", err)
	}

	params := &wire.ServerECDHParams{Group: wire.GroupX25519, Public: server.PublicKey}
	clientResult, err := ClientECDHE(params)
	if err != nil {
		t.Fatalf("Failed client ECDHE: %v", err)
	}

	serverResult, err := server.Complete(clientResult.PublicKey)
	if err != nil {
		t.Fatalf("Failed server completion: %v", err)
	}
	if !bytes.Equal(clientResult.PremasterSecret, serverResult.PremasterSecret) {
		t.Fatalf("client/server shared secrets disagree")
	}
}
