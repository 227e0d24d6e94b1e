// Package localconfig reads Zimbra's localconfig.xml without shelling out
// to zmlocalconfig.
package localconfig

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zimbra-tools/terraform-provider-zimbra/internal/ldap"
)

// DefaultPath is where Zimbra keeps its local configuration.
const DefaultPath = "/opt/zimbra/conf/localconfig.xml"

// DefaultCACertDir holds the CA certificates Zimbra trusts for LDAP.
const DefaultCACertDir = "/opt/zimbra/conf/ca"

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("localconfig key not found")

type document struct {
	XMLName xml.Name `xml:"localconfig"`
	Keys    []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"key"`
}

// Config is a parsed localconfig.xml.
type Config struct {
	path   string
	values map[string]string
}

// Load parses the localconfig file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open localconfig: %w", err)
	}
	defer f.Close()

	config, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	config.path = path
	return config, nil
}

// Parse reads a localconfig document. When a key appears more than once the
// first occurrence wins, as with zmlocalconfig.
func Parse(r io.Reader) (*Config, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(doc.Keys))
	for _, key := range doc.Keys {
		if _, seen := values[key.Name]; !seen {
			values[key.Name] = key.Value
		}
	}

	return &Config{values: values}, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Get returns the value of key.
func (c *Config) Get(key string) (string, error) {
	value, ok := c.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

// Lookup is Get without the error.
func (c *Config) Lookup(key string) (string, bool) {
	value, ok := c.values[key]
	return value, ok
}

// Len returns the number of keys.
func (c *Config) Len() int {
	return len(c.values)
}

// ConnectionSettings holds the LDAP connection details Zimbra's own
// processes use.
type ConnectionSettings struct {
	URLs     []string
	BindDN   string
	Password string
	StartTLS bool
}

// ConnectionSettings derives LDAP connection details. ldap_master_url may
// hold several space separated URLs.
func (c *Config) ConnectionSettings() (*ConnectionSettings, error) {
	var missing []string
	get := func(key string) string {
		value, ok := c.values[key]
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
		return strings.TrimSpace(value)
	}

	urls := get("ldap_master_url")
	bindDN := get("zimbra_ldap_userdn")
	password, _ := c.Lookup("zimbra_ldap_password")

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, strings.Join(missing, ", "))
	}

	supported, _ := c.Lookup("ldap_starttls_supported")
	required, _ := c.Lookup("zimbra_require_interprocess_security")

	return &ConnectionSettings{
		URLs:     strings.Fields(urls),
		BindDN:   bindDN,
		Password: password,
		StartTLS: strings.TrimSpace(supported) == "1" && strings.TrimSpace(required) == "1",
	}, nil
}

// LDAPConfig returns a connection configuration for these settings. The
// Zimbra CA directory is trusted when it exists.
func (s *ConnectionSettings) LDAPConfig() *ldap.ConnectionConfig {
	config := ldap.DefaultConfig()
	config.LDAPURLs = append([]string(nil), s.URLs...)
	config.BindDN = s.BindDN
	config.Password = s.Password
	config.StartTLS = s.StartTLS

	if info, err := os.Stat(DefaultCACertDir); err == nil && info.IsDir() {
		config.TLSCACertDir = DefaultCACertDir
	}
	return config
}
