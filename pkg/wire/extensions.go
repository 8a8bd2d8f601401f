package wire

import (
	"golang.org/x/crypto/cryptobyte"
)

// KeyShareEntry is a TLS 1.3 key share: a group and the public value.
type KeyShareEntry struct {
	Group   NamedGroup
	Payload []byte
}

func (e *KeyShareEntry) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(e.Group))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(e.Payload)
	})
}

func readKeyShareEntry(s *cryptobyte.String, e *KeyShareEntry) bool {
	var group uint16
	var payload cryptobyte.String
	if !s.ReadUint16(&group) || !s.ReadUint16LengthPrefixed(&payload) {
		return false
	}
	e.Group = NamedGroup(group)
	e.Payload = append([]byte(nil), payload...)
	return true
}

// ClientExtension is one extension in a ClientHello. Exactly the field
// selected by Type is meaningful; unknown types carry Raw.
type ClientExtension struct {
	Type ExtensionType

	ServerName       string
	Groups           []NamedGroup
	PointFormats     []ECPointFormat
	SignatureSchemes []SignatureScheme
	Protocols        []string
	Versions         []ProtocolVersion
	KeyShares        []KeyShareEntry

	// Ticket is the SessionTicket offer body. A nil Ticket with
	// Type == ExtensionTypeSessionTicket is a ticket request.
	Ticket []byte

	Raw []byte
}

// marshalBody encodes the extension body (without type and length).
func (e *ClientExtension) marshalBody(b *cryptobyte.Builder) {
	switch e.Type {
	case ExtensionTypeServerName:
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(0) // name_type host_name
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(e.ServerName))
			})
		})
	case ExtensionTypeSupportedGroups:
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, g := range e.Groups {
				b.AddUint16(uint16(g))
			}
		})
	case ExtensionTypeECPointFormats:
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, f := range e.PointFormats {
				b.AddUint8(uint8(f))
			}
		})
	case ExtensionTypeSignatureAlgorithms:
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, s := range e.SignatureSchemes {
				b.AddUint16(uint16(s))
			}
		})
	case ExtensionTypeALPN:
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, p := range e.Protocols {
				b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes([]byte(p))
				})
			}
		})
	case ExtensionTypeSupportedVersions:
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, v := range e.Versions {
				b.AddUint16(uint16(v))
			}
		})
	case ExtensionTypeKeyShare:
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for i := range e.KeyShares {
				e.KeyShares[i].marshal(b)
			}
		})
	case ExtensionTypeSessionTicket:
		b.AddBytes(e.Ticket)
	default:
		b.AddBytes(e.Raw)
	}
}

func (e *ClientExtension) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(e.Type))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		e.marshalBody(b)
	})
}

// readClientExtension parses one extension. The whole body must be
// consumed; trailing garbage inside an extension is a decode failure.
func readClientExtension(s *cryptobyte.String, e *ClientExtension) bool {
	var typ uint16
	var body cryptobyte.String
	if !s.ReadUint16(&typ) || !s.ReadUint16LengthPrefixed(&body) {
		return false
	}
	e.Type = ExtensionType(typ)

	switch e.Type {
	case ExtensionTypeServerName:
		var names cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&names) || !body.Empty() {
			return false
		}
		for !names.Empty() {
			var nameType uint8
			var name cryptobyte.String
			if !names.ReadUint8(&nameType) || !names.ReadUint16LengthPrefixed(&name) {
				return false
			}
			if nameType == 0 {
				e.ServerName = string(name)
			}
		}
		return true
	case ExtensionTypeSupportedGroups:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var g uint16
			if !list.ReadUint16(&g) {
				return false
			}
			e.Groups = append(e.Groups, NamedGroup(g))
		}
		return true
	case ExtensionTypeECPointFormats:
		var list cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var f uint8
			if !list.ReadUint8(&f) {
				return false
			}
			e.PointFormats = append(e.PointFormats, ECPointFormat(f))
		}
		return true
	case ExtensionTypeSignatureAlgorithms:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var sc uint16
			if !list.ReadUint16(&sc) {
				return false
			}
			e.SignatureSchemes = append(e.SignatureSchemes, SignatureScheme(sc))
		}
		return true
	case ExtensionTypeALPN:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var proto cryptobyte.String
			if !list.ReadUint8LengthPrefixed(&proto) {
				return false
			}
			e.Protocols = append(e.Protocols, string(proto))
		}
		return true
	case ExtensionTypeSupportedVersions:
		var list cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var v uint16
			if !list.ReadUint16(&v) {
				return false
			}
			e.Versions = append(e.Versions, ProtocolVersion(v))
		}
		return true
	case ExtensionTypeKeyShare:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var entry KeyShareEntry
			if !readKeyShareEntry(&list, &entry) {
				return false
			}
			e.KeyShares = append(e.KeyShares, entry)
		}
		return true
	case ExtensionTypeSessionTicket:
		if !body.Empty() {
			e.Ticket = append([]byte(nil), body...)
		}
		return true
	default:
		e.Raw = append([]byte(nil), body...)
		return true
	}
}

// ServerExtension is one extension in a ServerHello or
// EncryptedExtensions. KeyShare carries a single entry on the server
// side. ServerName, SessionTicket and RenegotiationInfo bodies are
// empty acknowledgements.
type ServerExtension struct {
	Type ExtensionType

	Protocols    []string
	KeyShare     KeyShareEntry
	PointFormats []ECPointFormat
	RenegInfo    []byte

	Raw []byte
}

func (e *ServerExtension) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(e.Type))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		switch e.Type {
		case ExtensionTypeALPN:
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, p := range e.Protocols {
					b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(p))
					})
				}
			})
		case ExtensionTypeKeyShare:
			e.KeyShare.marshal(b)
		case ExtensionTypeECPointFormats:
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, f := range e.PointFormats {
					b.AddUint8(uint8(f))
				}
			})
		case ExtensionTypeRenegotiationInfo:
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(e.RenegInfo)
			})
		case ExtensionTypeServerName, ExtensionTypeSessionTicket:
			// empty acknowledgement
		default:
			b.AddBytes(e.Raw)
		}
	})
}

func readServerExtension(s *cryptobyte.String, e *ServerExtension) bool {
	var typ uint16
	var body cryptobyte.String
	if !s.ReadUint16(&typ) || !s.ReadUint16LengthPrefixed(&body) {
		return false
	}
	e.Type = ExtensionType(typ)

	switch e.Type {
	case ExtensionTypeALPN:
		var list cryptobyte.String
		if !body.ReadUint16LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var proto cryptobyte.String
			if !list.ReadUint8LengthPrefixed(&proto) {
				return false
			}
			e.Protocols = append(e.Protocols, string(proto))
		}
		return true
	case ExtensionTypeKeyShare:
		return readKeyShareEntry(&body, &e.KeyShare) && body.Empty()
	case ExtensionTypeECPointFormats:
		var list cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&list) || !body.Empty() {
			return false
		}
		for !list.Empty() {
			var f uint8
			if !list.ReadUint8(&f) {
				return false
			}
			e.PointFormats = append(e.PointFormats, ECPointFormat(f))
		}
		return true
	case ExtensionTypeRenegotiationInfo:
		var info cryptobyte.String
		if !body.ReadUint8LengthPrefixed(&info) || !body.Empty() {
			return false
		}
		e.RenegInfo = append([]byte(nil), info...)
		return true
	case ExtensionTypeServerName, ExtensionTypeSessionTicket:
		return body.Empty()
	default:
		e.Raw = append([]byte(nil), body...)
		return true
	}
}

// ALPNProtocol returns the single protocol of an ALPN extension, or ""
// if the extension does not carry exactly one.
func (e *ServerExtension) ALPNProtocol() string {
	if e.Type == ExtensionTypeALPN && len(e.Protocols) == 1 {
		return e.Protocols[0]
	}
	return ""
}

// HelloRetryExtension is one extension in a HelloRetryRequest. The
// KeyShare form carries only the group the server wants retried.
type HelloRetryExtension struct {
	Type  ExtensionType
	Group NamedGroup
	Raw   []byte
}

func (e *HelloRetryExtension) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(e.Type))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		switch e.Type {
		case ExtensionTypeKeyShare:
			b.AddUint16(uint16(e.Group))
		default:
			b.AddBytes(e.Raw)
		}
	})
}

func readHelloRetryExtension(s *cryptobyte.String, e *HelloRetryExtension) bool {
	var typ uint16
	var body cryptobyte.String
	if !s.ReadUint16(&typ) || !s.ReadUint16LengthPrefixed(&body) {
		return false
	}
	e.Type = ExtensionType(typ)

	switch e.Type {
	case ExtensionTypeKeyShare:
		var g uint16
		if !body.ReadUint16(&g) || !body.Empty() {
			return false
		}
		e.Group = NamedGroup(g)
		return true
	default:
		e.Raw = append([]byte(nil), body...)
		return true
	}
}

func hasDuplicateExtensionType(types []ExtensionType) bool {
	seen := make(map[ExtensionType]bool, len(types))
	for _, t := range types {
		if seen[t] {
			return true
		}
		seen[t] = true
	}
	return false
}
