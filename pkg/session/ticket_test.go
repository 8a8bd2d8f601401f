package session

import (
	"bytes"
	"testing"
)

func TestTicketerRoundTrip(t *testing.T) {
	tk := NewAEADTicketer(0)
	if !tk.Enabled() {
		t.Fatalf("fresh ticketer disabled")
	}

	plain := []byte("session state goes here")
	ticket, ok := tk.Encrypt(plain)
	if !ok {
		t.Fatalf("Failed to encrypt ticket")
	}
	if bytes.Contains(ticket, plain) {
		t.Fatalf("ticket leaks plaintext")
	}

	got, ok := tk.Decrypt(ticket)
	if !ok {
		t.Fatalf("Failed to decrypt ticket")
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("ticket round-trip mismatch")
	}
}

func TestTicketerKeyRotation(t *testing.T) {
	tk := NewAEADTicketer(3600)
	ticket, ok := tk.Encrypt([]byte("before rotation"))
	if !ok {
		t.Fatalf("Failed to encrypt ticket")
	}

	tk.RotateKey()
	if got, ok := tk.Decrypt(ticket); !ok || !bytes.Equal(got, []byte("before rotation")) {
		t.Fatalf("ticket did not survive one rotation")
	}

	tk.RotateKey()
	if _, ok := tk.Decrypt(ticket); ok {
		t.Fatalf("ticket survived two rotations")
	}
}

func TestTicketerRejectsGarbage(t *testing.T) {
	tk := NewAEADTicketer(0)
	if _, ok := tk.Decrypt([]byte("not a ticket at all")); ok {
		t.Fatalf("garbage ticket accepted")
	}
	if _, ok := tk.Decrypt(nil); ok {
		t.Fatalf("empty ticket accepted")
	}
}

func TestTicketerDistinctProcesses(t *testing.T) {
	// Two ticketers sharing a key interoperate; distinct keys do not.
	key := bytes.Repeat([]byte{0x31}, 32)
	a, err := NewAEADTicketerWithKey(key, 60)
	if err != nil {
		t.Fatalf("Failed to create ticketer: %v", err)
	}
	b, err := NewAEADTicketerWithKey(key, 60)
	if err != nil {
		t.Fatalf("Failed to create ticketer: %v", err)
	}

	ticket, _ := a.Encrypt([]byte("shared"))
	if got, ok := b.Decrypt(ticket); !ok || !bytes.Equal(got, []byte("shared")) {
		t.Fatalf("shared-key ticketer failed to decrypt")
	}

	other := NewAEADTicketer(60)
	if _, ok := other.Decrypt(ticket); ok {
		t.Fatalf("foreign ticketer decrypted the ticket")
	}
}

func TestDisabledTicketer(t *testing.T) {
	var tk DisabledTicketer
	if tk.Enabled() {
		t.Fatalf("disabled ticketer claims to be enabled")
	}
	if _, ok := tk.Encrypt([]byte("x")); ok {
		t.Fatalf("disabled ticketer produced a ticket")
	}
}

func TestTicketerLifetime(t *testing.T) {
	if got := NewAEADTicketer(1234).Lifetime(); got != 1234 {
		t.Errorf("lifetime: got %d, want 1234", got)
	}
	if got := NewAEADTicketer(0).Lifetime(); got == 0 {
		t.Errorf("zero lifetime not defaulted")
	}
}
