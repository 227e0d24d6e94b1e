package ldap

import (
	"context"
	"crypto/tls"
	"math"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for LDAP connections.
type ConnectionConfig struct {
	// Connection settings
	LDAPURLs []string      // LDAP URLs, tried in order
	Timeout  time.Duration `default:"30s"` // Connection and per-request timeout

	// Authentication settings
	BindDN   string // DN used for simple bind (zimbra_ldap_userdn)
	Password string // Password for simple bind (zimbra_ldap_password)

	// TLS settings
	TLSConfig     *tls.Config // Custom TLS configuration
	StartTLS      bool        // Upgrade ldap:// connections with StartTLS
	SkipTLSVerify bool        // Skip certificate verification (not recommended)
	TLSCACertFile string      // Path to a PEM CA bundle
	TLSCACertDir  string      // Directory of PEM CA certificates (/opt/zimbra/conf/ca)

	// Pool settings
	MaxConnections int           `default:"10"`
	MaxIdleTime    time.Duration `default:"5m"`
	HealthCheck    time.Duration `default:"30s"`

	// Retry settings for connection establishment
	MaxRetries     int           `default:"3"`
	InitialBackoff time.Duration `default:"500ms"`
	MaxBackoff     time.Duration `default:"30s"`
	BackoffFactor  float64       `default:"2.0"`

	// Paging settings
	PageSize       uint32          `default:"400"`
	PagingEncoding ControlEncoding // Chosen once; see ControlEncoding
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	config := &ConnectionConfig{}
	defaults.MustSet(config)
	config.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	return config
}

// HasAuthentication reports whether bind credentials are configured.
func (c *ConnectionConfig) HasAuthentication() bool {
	return c.BindDN != ""
}

// PooledConnection represents a connection in the pool.
type PooledConnection struct {
	conn          *ldap.Conn
	searcher      Searcher // conn, or a stand-in when no socket is involved
	lastUsed      time.Time
	healthy       bool
	authenticated bool
	authTime      time.Time
	serverInfo    *ServerInfo
	returnToPool  func(*PooledConnection)
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host   string
	Port   int
	UseTLS bool
}

// ConnectionPool manages a pool of LDAP connections.
type ConnectionPool interface {
	// Get retrieves a connection from the pool
	Get(ctx context.Context) (*PooledConnection, error)

	// Close closes all connections and shuts down the pool
	Close() error

	// Stats returns pool statistics
	Stats() PoolStats
}

// PoolStats provides statistics about the connection pool.
type PoolStats struct {
	Total   int           // Total connections
	Active  int64         // Active (in-use) connections
	Idle    int           // Idle connections
	Created int64         // Total connections created
	Errors  int64         // Total connection errors
	Uptime  time.Duration // Pool uptime
}

// Client provides high-level directory read operations.
type Client interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error

	// Searches
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// Lookups built on paged search
	Exists(ctx context.Context, baseDN, filter string) (bool, error)
	GetAttribute(ctx context.Context, baseDN, attribute string) ([]string, error)

	// Health and statistics
	Ping(ctx context.Context) error
	Stats() PoolStats
}

// SearchRequest encapsulates LDAP search parameters. A request is not
// modified by the client, so one value can back every page of a search.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	TypesOnly    bool           // Return attribute names without values
	Controls     []ldap.Control // Additional server controls sent with every page
	SizeLimit    int            // 0 means unbounded
	TimeLimit    time.Duration  // Sent rounded up to whole seconds, 0 means unbounded
	DerefAliases DerefAliases
}

// timeLimitSeconds returns the time limit sent to the server. A budget
// below one second becomes 1, since 0 would lift the limit.
func (r *SearchRequest) timeLimitSeconds() int {
	if r.TimeLimit <= 0 {
		return 0
	}
	return int(math.Ceil(r.TimeLimit.Seconds()))
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	Pages   int
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String returns the string representation of the scope.
func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
