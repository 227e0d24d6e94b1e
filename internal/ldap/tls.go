package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// buildCertPool returns the system pool extended with the certificates in
// caFile and every PEM file in caDir. Files in caDir that hold no
// certificate (OpenSSL hash links to CRLs and the like) are skipped.
func buildCertPool(caFile, caDir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", caFile, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("invalid PEM format in CA certificate file %s", caFile)
		}
	}

	if caDir != "" {
		entries, err := os.ReadDir(caDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate directory %s: %w", caDir, err)
		}

		loaded := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(caDir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate %s: %w", entry.Name(), err)
			}
			if pool.AppendCertsFromPEM(pem) {
				loaded++
			}
		}

		if loaded == 0 {
			return nil, fmt.Errorf("no PEM certificates found in CA certificate directory %s", caDir)
		}
	}

	return pool, nil
}

// tlsConfigFor returns the TLS configuration for one server. The shared
// configuration is cloned so the per-server ServerName does not leak.
func tlsConfigFor(config *ConnectionConfig, server *ServerInfo) *tls.Config {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.SkipTLSVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if !tlsConfig.InsecureSkipVerify && tlsConfig.ServerName == "" {
		tlsConfig.ServerName = server.Host
	}

	return tlsConfig
}
