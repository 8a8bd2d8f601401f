package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestPeerMisbehavedError(t *testing.T) {
	err := PeerMisbehaved("server sent duplicate extensions")
	if !strings.Contains(err.Error(), "duplicate extensions") {
		t.Errorf("reason lost: %v", err)
	}

	var target *PeerMisbehavedError
	if !As(err, &target) {
		t.Errorf("As failed for PeerMisbehavedError")
	}
}

func TestPeerIncompatibleError(t *testing.T) {
	err := PeerIncompatible("no ciphersuites in common")
	var target *PeerIncompatibleError
	if !As(err, &target) || target.Reason != "no ciphersuites in common" {
		t.Errorf("As failed for PeerIncompatibleError: %v", err)
	}
}

func TestGeneralErrorUnwrap(t *testing.T) {
	inner := stderrors.New("boom")
	err := General("signing failed", inner)
	if !Is(err, inner) {
		t.Errorf("General did not unwrap to inner error")
	}

	bare := General("no cert resolved", nil)
	if !strings.Contains(bare.Error(), "no cert resolved") {
		t.Errorf("bare General lost its reason: %v", bare)
	}
}

func TestAlertReceivedError(t *testing.T) {
	err := AlertReceived(40, "handshake_failure")
	if !strings.Contains(err.Error(), "handshake_failure") {
		t.Errorf("alert name lost: %v", err)
	}
}

func TestInappropriateMessageError(t *testing.T) {
	err := &InappropriateMessageError{
		ExpectContentTypes: []uint8{22},
		GotContentType:     20,
	}
	if !strings.Contains(err.Error(), "inappropriate message") {
		t.Errorf("unexpected message text: %v", err)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if Is(ErrDecrypt, ErrDecodeMalformed) {
		t.Errorf("sentinels alias each other")
	}
}
