// Package kx implements ephemeral ECDHE key exchange for the groups
// Veil offers: X25519, secp256r1 and secp384r1.
//
// Peer public values are validated by crypto/ecdh; an invalid point
// fails closed. Premaster secrets are moved into the key schedule, not
// copied: Complete hands ownership of the shared secret to the caller.
package kx

import (
	"crypto/ecdh"
	"crypto/rand"

	qerrors "github.com/veiltls/veil/internal/errors"
	"github.com/veiltls/veil/pkg/wire"
)

// Result is the outcome of a completed key exchange: our public value
// and the agreed premaster secret.
type Result struct {
	PublicKey       []byte
	PremasterSecret []byte
}

// KeyExchange is an in-progress exchange: the group, our ephemeral
// private key, and our public value.
type KeyExchange struct {
	Group   wire.NamedGroup
	private *ecdh.PrivateKey

	// PublicKey is the uncompressed point (or raw X25519 value) to put
	// on the wire.
	PublicKey []byte
}

// curveForGroup maps a named group to its ecdh curve.
func curveForGroup(group wire.NamedGroup) ecdh.Curve {
	switch group {
	case wire.GroupX25519:
		return ecdh.X25519()
	case wire.GroupSecp256r1:
		return ecdh.P256()
	case wire.GroupSecp384r1:
		return ecdh.P384()
	default:
		return nil
	}
}

// GroupSupported reports whether Veil can do ECDHE on the group.
func GroupSupported(group wire.NamedGroup) bool {
	return curveForGroup(group) != nil
}

// Start generates an ephemeral key on the group.
func Start(group wire.NamedGroup) (*KeyExchange, error) {
	curve := curveForGroup(group)
	if curve == nil {
		return nil, qerrors.PeerIncompatible("unsupported key exchange group")
	}

	private, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, qerrors.General("ecdhe key generation failed", err)
	}

	return &KeyExchange{
		Group:     group,
		private:   private,
		PublicKey: private.PublicKey().Bytes(),
	}, nil
}

// Complete agrees on the shared secret with the peer's public value.
// Fails closed on an invalid peer point. The exchange is consumed:
// the private key is dropped either way.
func (kx *KeyExchange) Complete(peerPublic []byte) (*Result, error) {
	private := kx.private
	kx.private = nil
	if private == nil {
		return nil, qerrors.ErrKeyExchangeFailed
	}

	curve := curveForGroup(kx.Group)
	peer, err := curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, qerrors.ErrKeyExchangeFailed
	}

	shared, err := private.ECDH(peer)
	if err != nil {
		return nil, qerrors.ErrKeyExchangeFailed
	}

	return &Result{PublicKey: kx.PublicKey, PremasterSecret: shared}, nil
}

// ClientECDHE parses encoded ServerECDHParams and completes a fresh
// exchange on the named group, as the TLS 1.2 client does.
func ClientECDHE(params *wire.ServerECDHParams) (*Result, error) {
	kx, err := Start(params.Group)
	if err != nil {
		return nil, err
	}
	return kx.Complete(params.Public)
}
