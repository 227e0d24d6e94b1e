package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Well known Zimbra directory locations.
const (
	ZimbraBaseDN  = "cn=zimbra"
	ConfigDN      = "cn=config,cn=zimbra"
	CosBaseDN     = "cn=cos,cn=zimbra"
	ServersBaseDN = "cn=servers,cn=zimbra"
)

// EscapeDNValue escapes a DN attribute value according to RFC 4514.
//
// Examples:
//   - "Doe, John" → "Doe\, John"
//   - " default " → "\ default\ "
//   - "#1" → "\#1"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch {
		case strings.ContainsRune(`,+"\<>;=`, r):
			result.WriteRune('\\')
			result.WriteRune(r)
		case r == '#' && i == 0:
			result.WriteString(`\#`)
		case r == ' ' && (i == 0 || i == last):
			result.WriteString(`\ `)
		case r == 0:
			result.WriteString(`\00`)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// CosDN returns the DN of the named class of service.
func CosDN(cos string) string {
	return "cn=" + EscapeDNValue(cos) + "," + CosBaseDN
}

// ServerDN returns the DN of the named mailbox server.
func ServerDN(server string) string {
	return "cn=" + EscapeDNValue(server) + "," + ServersBaseDN
}

// DomainDN returns the DN of a mail domain entry, one dc component per
// label: "example.com" becomes "dc=example,dc=com".
func DomainDN(domain string) string {
	labels := strings.Split(strings.Trim(domain, "."), ".")
	for i, label := range labels {
		labels[i] = "dc=" + EscapeDNValue(label)
	}
	return strings.Join(labels, ",")
}

// ValidateDN checks that dn parses as an RFC 4514 distinguished name.
// The empty DN (root DSE) is accepted.
func ValidateDN(dn string) error {
	if dn == "" {
		return nil
	}
	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN %q: %w", dn, err)
	}
	return nil
}
