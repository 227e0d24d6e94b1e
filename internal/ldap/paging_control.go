package ldap

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// ControlEncoding selects how the simple paged results control
// (RFC 2696) is carried on the wire.
type ControlEncoding int

const (
	// ControlEncodingNamed uses go-ldap's typed ControlPaging, with the
	// page size and cookie as named fields.
	ControlEncodingNamed ControlEncoding = iota

	// ControlEncodingLegacy sends a raw critical control whose value is the
	// BER tuple (size, cookie), for servers that reject the non-critical
	// form or clients that only understand the tuple.
	ControlEncodingLegacy
)

// String returns string representation of the encoding.
func (e ControlEncoding) String() string {
	switch e {
	case ControlEncodingNamed:
		return "named"
	case ControlEncodingLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseControlEncoding parses the configuration form of an encoding.
// An empty string selects the named encoding.
func ParseControlEncoding(s string) (ControlEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "named":
		return ControlEncodingNamed, nil
	case "legacy":
		return ControlEncodingLegacy, nil
	default:
		return ControlEncodingNamed, fmt.Errorf("unknown paging control encoding %q, must be one of: named, legacy", s)
	}
}

// pageControl is the per-search paging state for one encoding. It is
// created for a single logical search and discarded afterwards.
type pageControl interface {
	// Control returns the request control carrying the current cookie.
	Control() ldap.Control

	// Advance reads the paging response control from a page's controls and
	// stores the returned cookie for the next request. ok is false when the
	// response carries no paging control.
	Advance(controls []ldap.Control) (cookie []byte, ok bool, err error)
}

// newPageControl returns the paging state for the given encoding.
func newPageControl(encoding ControlEncoding, pageSize uint32) (pageControl, error) {
	switch encoding {
	case ControlEncodingNamed:
		return &namedPageControl{size: pageSize}, nil
	case ControlEncodingLegacy:
		return &legacyPageControl{size: pageSize}, nil
	default:
		return nil, fmt.Errorf("unsupported paging control encoding: %s", encoding.String())
	}
}

type namedPageControl struct {
	size   uint32
	cookie []byte
}

// Control returns a fresh control for every page; a sent request is never
// mutated afterwards.
func (c *namedPageControl) Control() ldap.Control {
	control := ldap.NewControlPaging(c.size)
	control.SetCookie(c.cookie)
	return control
}

func (c *namedPageControl) Advance(controls []ldap.Control) ([]byte, bool, error) {
	found := ldap.FindControl(controls, ldap.ControlTypePaging)
	if found == nil {
		return nil, false, nil
	}

	response, ok := found.(*ldap.ControlPaging)
	if !ok {
		return nil, false, fmt.Errorf("unexpected paging response control type %T", found)
	}

	c.cookie = response.Cookie
	return response.Cookie, true, nil
}

type legacyPageControl struct {
	size   uint32
	cookie []byte
}

func (c *legacyPageControl) Control() ldap.Control {
	return ldap.NewControlString(ldap.ControlTypePaging, true, string(encodePagingValue(c.size, c.cookie)))
}

func (c *legacyPageControl) Advance(controls []ldap.Control) ([]byte, bool, error) {
	for _, control := range controls {
		if control.GetControlType() != ldap.ControlTypePaging {
			continue
		}

		var cookie []byte
		switch response := control.(type) {
		case *ldap.ControlPaging:
			cookie = response.Cookie
		case *ldap.ControlString:
			_, decoded, err := decodePagingValue([]byte(response.ControlValue))
			if err != nil {
				return nil, false, err
			}
			cookie = decoded
		default:
			return nil, false, fmt.Errorf("unexpected paging response control type %T", control)
		}

		c.cookie = cookie
		return cookie, true, nil
	}

	return nil, false, nil
}

// encodePagingValue encodes the realSearchControlValue sequence
// { size INTEGER, cookie OCTET STRING }.
func encodePagingValue(size uint32, cookie []byte) []byte {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Search Control Value")
	packet.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(size), "Paging Size"))
	cookiePacket := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "Cookie")
	cookiePacket.Value = cookie
	cookiePacket.Data.Write(cookie)
	packet.AppendChild(cookiePacket)
	return packet.Bytes()
}

// decodePagingValue decodes the (size, cookie) tuple of a paging control.
// In a response the size is the server's estimate of the total result count.
func decodePagingValue(data []byte) (int64, []byte, error) {
	packet, err := ber.DecodePacketErr(data)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode paging control value: %w", err)
	}

	if len(packet.Children) != 2 {
		return 0, nil, fmt.Errorf("malformed paging control value: expected 2 elements, got %d", len(packet.Children))
	}

	size, ok := packet.Children[0].Value.(int64)
	if !ok {
		return 0, nil, fmt.Errorf("malformed paging control value: size is %T", packet.Children[0].Value)
	}

	return size, packet.Children[1].Data.Bytes(), nil
}
