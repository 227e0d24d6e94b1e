package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// MaxConnectionPoolLimit is the maximum allowed connections in a pool.
const MaxConnectionPoolLimit = 100

// dialFunc opens a raw connection to one server. It is a field so tests can
// run the pool without a directory server.
type dialFunc func(ctx context.Context, config *ConnectionConfig, server *ServerInfo) (*ldap.Conn, error)

// connectionPool implements ConnectionPool interface.
type connectionPool struct {
	ctx         context.Context // Logging context with LDAP subsystem
	config      *ConnectionConfig
	servers     []*ServerInfo
	connections chan *PooledConnection
	dial        dialFunc
	mu          sync.RWMutex
	closed      bool

	// Statistics
	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time

	// Health checking
	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a new connection pool. No connection is opened
// until the first Get.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (ConnectionPool, error) {
	return newConnectionPool(ctx, config, dialServer)
}

func newConnectionPool(ctx context.Context, config *ConnectionConfig, dial dialFunc) (*connectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var servers []*ServerInfo
	for _, url := range config.LDAPURLs {
		parsed, err := ParseLDAPURLs(url)
		if err != nil {
			return nil, err
		}
		servers = append(servers, parsed...)
	}
	if len(servers) == 0 {
		return nil, errors.New("at least one LDAP URL must be specified")
	}

	if config.TLSConfig == nil {
		config.TLSConfig = DefaultConfig().TLSConfig
	}
	if config.TLSConfig.RootCAs == nil && !config.SkipTLSVerify {
		rootCAs, err := buildCertPool(config.TLSCACertFile, config.TLSCACertDir)
		if err != nil {
			return nil, err
		}
		config.TLSConfig.RootCAs = rootCAs
	}

	pool := &connectionPool{
		ctx:         ctx,
		config:      config,
		servers:     servers,
		connections: make(chan *PooledConnection, config.MaxConnections),
		dial:        dial,
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	LogPoolEvent(ctx, "pool_initialized", map[string]any{
		"server_count":    len(servers),
		"max_connections": config.MaxConnections,
		"start_tls":       config.StartTLS,
	})

	return pool, nil
}

// dialServer dials one server, upgrading plain connections with StartTLS
// when configured.
func dialServer(ctx context.Context, config *ConnectionConfig, server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)
	tlsConfig := tlsConfigFor(config, server)

	dialer := ldap.DialWithDialer(&net.Dialer{Timeout: config.Timeout})

	var conn *ldap.Conn
	var err error
	if server.UseTLS {
		conn, err = ldap.DialURL(url, dialer, ldap.DialWithTLSConfig(tlsConfig))
	} else {
		conn, err = ldap.DialURL(url, dialer)
		if err == nil && config.StartTLS {
			if err = conn.StartTLS(tlsConfig); err != nil {
				conn.Close()
			}
		}
	}
	if err != nil {
		LogConnectionEvent(ctx, "connection_failed", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	conn.SetTimeout(config.Timeout)
	LogConnectionEvent(ctx, "connection_established", map[string]any{
		"url":       url,
		"start_tls": config.StartTLS && !server.UseTLS,
	})
	return conn, nil
}

// Get retrieves a connection from the pool.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	p.mu.RUnlock()

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(conn); err != nil {
					p.closeConnection(conn)
					break
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.createConnection(ctx)
}

// createConnection creates a new connection with retry logic.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.createSingleConnection(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}

		// Authentication failures will not heal on their own
		if IsAuthenticationError(lastErr) {
			break
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	LogPoolEvent(p.ctx, "all_connections_failed", map[string]any{
		"error": lastErr.Error(),
	})
	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// createSingleConnection creates a connection to a specific server.
func (p *connectionPool) createSingleConnection(ctx context.Context, server *ServerInfo) (*PooledConnection, error) {
	conn, err := p.dial(p.ctx, p.config, server)
	if err != nil {
		return nil, err
	}

	pooledConn := &PooledConnection{
		conn:         conn,
		searcher:     conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasAuthentication() {
		if err := p.authenticateConnection(pooledConn); err != nil {
			conn.Close()
			return nil, NewLDAPError("bind", err)
		}
	}

	return pooledConn, nil
}

// authenticateConnection simple-binds a pooled connection.
func (p *connectionPool) authenticateConnection(pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	fields := map[string]any{
		"bind_dn": p.config.BindDN,
	}
	LogConnectionEvent(p.ctx, "authentication_attempt", fields)

	if err := pooledConn.conn.Bind(p.config.BindDN, p.config.Password); err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		LogLDAPError(p.ctx, "ldap", "simple_bind", err, fields)
		return err
	}

	pooledConn.authenticated = true
	pooledConn.authTime = time.Now()
	LogConnectionEvent(p.ctx, "authentication_success", fields)
	return nil
}

// needsReAuthentication determines if a connection needs to be re-authenticated.
func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > 5*time.Minute
}

// returnConnection returns a connection to the pool.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	if p.isConnectionHealthy(conn) && time.Since(conn.lastUsed) < p.config.MaxIdleTime {
		select {
		case p.connections <- conn:
		default:
			// Pool is full
			p.closeConnection(conn)
		}
	} else {
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection is healthy.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy {
		return false
	}

	if conn.conn.IsClosing() {
		return false
	}

	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}

	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}

	return true
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idle := 0
	if !p.closed {
		idle = len(p.connections)
	}

	return PoolStats{
		Total:   idle + int(atomic.LoadInt64(&p.activeConns)),
		Active:  atomic.LoadInt64(&p.activeConns),
		Idle:    idle,
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// startHealthChecker starts the periodic health checker.
func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				p.performHealthCheck()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck tests up to three idle connections.
func (p *connectionPool) performHealthCheck() {
	var toCheck []*PooledConnection

healthCheckLoop:
	for range 3 {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				break healthCheckLoop
			}
			toCheck = append(toCheck, conn)
		default:
			break healthCheckLoop
		}
	}

	for _, conn := range toCheck {
		// returnConnection decrements the active count
		atomic.AddInt64(&p.activeConns, 1)
		if p.testConnection(conn) {
			p.returnConnection(conn)
		} else {
			LogPoolEvent(p.ctx, "health_check_failed", map[string]any{
				"server": ServerInfoToURL(conn.serverInfo),
			})
			conn.healthy = false
			p.returnConnection(conn)
		}
	}
}

// testConnection tests if a connection is working and properly authenticated.
func (p *connectionPool) testConnection(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(conn); err != nil {
			return false
		}
	}

	if _, err := conn.conn.Search(rootDSERequest(nil)); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	return true
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}

	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}

	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	if config.PagingEncoding != ControlEncodingNamed && config.PagingEncoding != ControlEncodingLegacy {
		return fmt.Errorf("unsupported paging control encoding: %s", config.PagingEncoding.String())
	}

	return nil
}

// Methods for PooledConnection.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

// Searcher returns the connection's search interface.
func (pc *PooledConnection) Searcher() Searcher {
	return pc.searcher
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}

func (pc *PooledConnection) IsHealthy() bool {
	return pc.healthy
}

func (pc *PooledConnection) LastUsed() time.Time {
	return pc.lastUsed
}
