package wire

import "fmt"

// AlertLevel indicates the severity of an alert.
type AlertLevel uint8

// Alert severity levels.
const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription identifies a specific alert condition.
type AlertDescription uint8

// Alert descriptions.
const (
	AlertCloseNotify           AlertDescription = 0
	AlertUnexpectedMessage     AlertDescription = 10
	AlertBadRecordMAC          AlertDescription = 20
	AlertRecordOverflow        AlertDescription = 22
	AlertHandshakeFailure      AlertDescription = 40
	AlertBadCertificate        AlertDescription = 42
	AlertUnsupportedCert       AlertDescription = 43
	AlertCertificateRevoked    AlertDescription = 44
	AlertCertificateExpired    AlertDescription = 45
	AlertCertificateUnknown    AlertDescription = 46
	AlertIllegalParameter      AlertDescription = 47
	AlertUnknownCA             AlertDescription = 48
	AlertAccessDenied          AlertDescription = 49
	AlertDecodeError           AlertDescription = 50
	AlertDecryptError          AlertDescription = 51
	AlertProtocolVersion       AlertDescription = 70
	AlertInsufficientSecurity  AlertDescription = 71
	AlertInternalError         AlertDescription = 80
	AlertMissingExtension      AlertDescription = 109
	AlertUnsupportedExtension  AlertDescription = 110
	AlertNoApplicationProtocol AlertDescription = 120
)

// String returns a human-readable name for the alert description.
func (d AlertDescription) String() string {
	switch d {
	case AlertCloseNotify:
		return "close_notify"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertRecordOverflow:
		return "record_overflow"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertBadCertificate:
		return "bad_certificate"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertUnknownCA:
		return "unknown_ca"
	case AlertAccessDenied:
		return "access_denied"
	case AlertDecodeError:
		return "decode_error"
	case AlertDecryptError:
		return "decrypt_error"
	case AlertProtocolVersion:
		return "protocol_version"
	case AlertInsufficientSecurity:
		return "insufficient_security"
	case AlertInternalError:
		return "internal_error"
	case AlertMissingExtension:
		return "missing_extension"
	case AlertUnsupportedExtension:
		return "unsupported_extension"
	case AlertNoApplicationProtocol:
		return "no_application_protocol"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Alert is the record-layer alert payload.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

// Marshal encodes the alert to its two-byte wire form.
func (a *Alert) Marshal() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// ParseAlert decodes a two-byte alert payload.
func ParseAlert(data []byte) (*Alert, error) {
	if len(data) != 2 {
		return nil, errDecode("alert payload must be 2 bytes")
	}
	return &Alert{
		Level:       AlertLevel(data[0]),
		Description: AlertDescription(data[1]),
	}, nil
}
