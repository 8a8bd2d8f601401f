package wire

import (
	"fmt"

	qerrors "github.com/veiltls/veil/internal/errors"
)

// Message is a record-layer message: the unit exchanged between the
// session core and the caller's byte transport. The payload of an
// encrypted record is opaque ciphertext; the payload of a plaintext
// record is the encoded content (handshake body, alert, CCS byte, or
// application data).
type Message struct {
	Type    ContentType
	Version ProtocolVersion
	Payload []byte
}

// errDecode wraps a malformed-message condition with detail.
func errDecode(why string) error {
	return fmt.Errorf("%w: %s", qerrors.ErrDecodeMalformed, why)
}

// NewHandshakeMessage wraps an encoded handshake body in a record-layer
// message. The record version is the legacy TLSv1.2 value, for TLS 1.3
// draft-18 plaintext records too; the TLS 1.3 record cipher sets
// TLSv1.0 on the outer header of protected records.
func NewHandshakeMessage(encoded []byte) Message {
	return Message{
		Type:    ContentTypeHandshake,
		Version: VersionTLS12,
		Payload: encoded,
	}
}

// NewChangeCipherSpec builds the one-byte CCS record.
func NewChangeCipherSpec() Message {
	return Message{
		Type:    ContentTypeChangeCipherSpec,
		Version: VersionTLS12,
		Payload: []byte{1},
	}
}

// NewAlertMessage wraps an alert in a record-layer message.
func NewAlertMessage(level AlertLevel, desc AlertDescription) Message {
	a := Alert{Level: level, Description: desc}
	return Message{
		Type:    ContentTypeAlert,
		Version: VersionTLS12,
		Payload: a.Marshal(),
	}
}

// NewApplicationData wraps plaintext application data.
func NewApplicationData(data []byte) Message {
	return Message{
		Type:    ContentTypeApplicationData,
		Version: VersionTLS12,
		Payload: data,
	}
}

// ValidChangeCipherSpec reports whether a CCS payload has the mandated
// single 0x01 byte.
func (m *Message) ValidChangeCipherSpec() bool {
	return m.Type == ContentTypeChangeCipherSpec &&
		len(m.Payload) == 1 && m.Payload[0] == 1
}
