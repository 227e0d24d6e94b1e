package ldap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ErrAttributeNotFound is returned by GetAttribute when no entry under the
// base carries the attribute.
var ErrAttributeNotFound = errors.New("attribute not found")

// client implements the Client interface.
type client struct {
	pool            ConnectionPool
	config          *ConnectionConfig
	pager           *Pager
	pagingSupported bool
	logContext      context.Context // Context with configured subsystems for logging
}

// NewClient creates a new LDAP client with connection pooling. The context
// is kept for subsystem logging from pooled connections.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, "ldap", "Creating new LDAP client", map[string]any{
		"ldap_urls_count": len(config.LDAPURLs),
		"bind_dn":         config.BindDN,
		"start_tls":       config.StartTLS,
		"max_connections": config.MaxConnections,
		"page_size":       config.PageSize,
		"paging_encoding": config.PagingEncoding.String(),
	})

	start := time.Now()
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		tflog.SubsystemError(ctx, "ldap", "Failed to create connection pool", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return newClient(ctx, config, pool), nil
}

func newClient(ctx context.Context, config *ConnectionConfig, pool ConnectionPool) *client {
	return &client{
		pool:       pool,
		config:     config,
		pager:      NewPager(config.PageSize, config.PagingEncoding),
		logContext: ctx,
	}
}

// Connect opens a first connection and probes the root DSE for the paged
// results control. A server that does not advertise the control is still
// accepted, since some servers omit it from supportedControl.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(ctx, "ldap", "connection_test", map[string]any{
		"ldap_urls": c.config.LDAPURLs,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		defer conn.Close()

		result, err := conn.Searcher().Search(rootDSERequest([]string{"supportedControl"}))
		if err != nil {
			return NewLDAPError("root_dse", err)
		}

		if len(result.Entries) > 0 {
			controls := result.Entries[0].GetAttributeValues("supportedControl")
			c.pagingSupported = slices.Contains(controls, ldap.ControlTypePaging)
		}

		if !c.pagingSupported {
			tflog.SubsystemWarn(ctx, "ldap", "Server does not advertise the paged results control", map[string]any{
				"control": ldap.ControlTypePaging,
			})
		}

		tflog.SubsystemInfo(ctx, "ldap", "Connection test successful", map[string]any{
			"server":           ServerInfoToURL(conn.ServerInfo()),
			"paging_supported": c.pagingSupported,
		})
		return nil
	})
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// performSearch wraps a search with entry and exit logging.
func (c *client) performSearch(ctx context.Context, operation string, fields map[string]any, searchFunc func() (*SearchResult, error)) (*SearchResult, error) {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, "ldap", "Starting search operation", fields)

	result, err := searchFunc()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, "ldap", "Search operation failed", fields)
		return nil, err
	}

	fields["entries_found"] = len(result.Entries)
	fields["pages"] = result.Pages
	tflog.SubsystemDebug(ctx, "ldap", "Search operation completed successfully", fields)

	return result, nil
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"types_only": req.TypesOnly,
		"size_limit": req.SizeLimit,
		"time_limit": req.TimeLimit.String(),
	}
}

// Search performs a single round trip LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := searchFields(req)

	return c.performSearch(ctx, "search", fields, func() (*SearchResult, error) {
		filter := req.Filter
		if filter == "" {
			filter = DefaultFilter
		}

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			req.SizeLimit,
			req.timeLimitSeconds(),
			req.TypesOnly,
			filter,
			req.Attributes,
			req.Controls,
		)

		var result *ldap.SearchResult
		err := c.withRetry(ctx, func() error {
			conn, err := c.pool.Get(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			var searchErr error
			result, searchErr = conn.Searcher().Search(ldapReq)
			return searchErr
		})
		if err != nil {
			LogLDAPError(ctx, "ldap", "search", err, fields)
			return nil, WrapError("search", err)
		}

		return &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
			Pages:   1,
		}, nil
	})
}

// SearchWithPaging performs an LDAP search with the paged results control.
// The whole search runs on one pooled connection and is not retried: a
// server cookie is only valid on the connection that issued it.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := searchFields(req)
	fields["page_size"] = c.pager.PageSize()
	fields["paging_encoding"] = c.pager.Encoding().String()

	return c.performSearch(ctx, "paged_search", fields, func() (*SearchResult, error) {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			LogLDAPError(ctx, "ldap", "get_connection", err, fields)
			return nil, fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		entries, pages, err := c.pager.Search(ctx, conn.Searcher(), req)
		if err != nil {
			var pagingErr *PagingError
			if errors.As(err, &pagingErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			LogLDAPError(ctx, "ldap", "paged_search", err, fields)
			return nil, WrapError("paged search", err)
		}

		return &SearchResult{
			Entries: entries,
			Total:   len(entries),
			Pages:   pages,
		}, nil
	})
}

// Exists reports whether any entry under baseDN matches filter.
func (c *client) Exists(ctx context.Context, baseDN, filter string) (bool, error) {
	result, err := c.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     filter,
		Attributes: []string{"1.1"},
		TypesOnly:  true,
	})
	if err != nil {
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	return len(result.Entries) > 0, nil
}

// GetAttribute returns the values of attribute on the first entry under
// baseDN that carries it.
func (c *client) GetAttribute(ctx context.Context, baseDN, attribute string) ([]string, error) {
	attribute = strings.TrimSpace(attribute)
	if attribute == "" {
		return nil, fmt.Errorf("attribute name cannot be empty")
	}

	result, err := c.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(%s=*)", ldap.EscapeFilter(attribute)),
		Attributes: []string{attribute},
	})
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s under %s", ErrAttributeNotFound, attribute, baseDN)
		}
		return nil, err
	}

	for _, entry := range result.Entries {
		if values := entry.GetEqualFoldAttributeValues(attribute); len(values) > 0 {
			return values, nil
		}
	}

	return nil, fmt.Errorf("%w: %s under %s", ErrAttributeNotFound, attribute, baseDN)
}

// Ping tests connectivity to the LDAP server.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.Searcher().Search(rootDSERequest(nil))
	return err
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// rootDSERequest returns a base search of the root DSE.
func rootDSERequest(attributes []string) *ldap.SearchRequest {
	if len(attributes) == 0 {
		attributes = []string{"namingContexts"}
	}
	return ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		DefaultFilter,
		attributes,
		nil,
	)
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, "ldap", "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	tflog.SubsystemError(ctx, "ldap", "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}

// isRetryableError determines if an error should be retried.
func (c *client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pagingErr *PagingError
	if errors.As(err, &pagingErr) {
		return false
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) ||
		ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		return true
	}

	return IsRetryableError(err)
}
