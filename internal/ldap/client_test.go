package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePool hands out connections backed by a fakeSearcher.
type fakePool struct {
	searcher *fakeSearcher
	getErr   error
	gets     int
	returned int
	closed   bool
}

func (p *fakePool) Get(context.Context) (*PooledConnection, error) {
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return &PooledConnection{
		searcher:     p.searcher,
		healthy:      true,
		lastUsed:     time.Now(),
		serverInfo:   &ServerInfo{Host: "ldap.example.com", Port: 389},
		returnToPool: func(*PooledConnection) { p.returned++ },
	}, nil
}

func (p *fakePool) Close() error {
	p.closed = true
	return nil
}

func (p *fakePool) Stats() PoolStats {
	return PoolStats{Created: int64(p.gets)}
}

func newTestClient(pages ...fakePage) (*client, *fakePool) {
	config := DefaultConfig()
	config.InitialBackoff = time.Millisecond
	config.MaxBackoff = time.Millisecond
	pool := &fakePool{searcher: &fakeSearcher{pages: pages}}
	return newClient(context.Background(), config, pool), pool
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		urls    []string
		wantErr bool
	}{
		{"single URL", []string{"ldap://ldap.example.com:389"}, false},
		{"URL list", []string{"ldap://ldap1.example.com ldap://ldap2.example.com"}, false},
		{"no URLs", nil, true},
		{"bad scheme", []string{"https://ldap.example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.LDAPURLs = tt.urls
			config.HealthCheck = 0

			c, err := NewClient(context.Background(), config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, c.Close())
		})
	}
}

func TestClient_Connect(t *testing.T) {
	t.Run("paging advertised", func(t *testing.T) {
		c, pool := newTestClient(fakePage{entries: []*ldap.Entry{
			ldap.NewEntry("", map[string][]string{
				"supportedControl": {"2.16.840.1.113730.3.4.18", ldap.ControlTypePaging},
			}),
		}})

		require.NoError(t, c.Connect(context.Background()))
		assert.True(t, c.pagingSupported)
		assert.Equal(t, 1, pool.returned)

		req := pool.searcher.requests[0]
		assert.Equal(t, "", req.BaseDN)
		assert.Equal(t, ldap.ScopeBaseObject, req.Scope)
		assert.Equal(t, []string{"supportedControl"}, req.Attributes)
	})

	t.Run("paging not advertised", func(t *testing.T) {
		c, _ := newTestClient(fakePage{entries: []*ldap.Entry{
			ldap.NewEntry("", map[string][]string{"supportedControl": {"1.3.6.1.4.1.4203.1.10.1"}}),
		}})

		require.NoError(t, c.Connect(context.Background()))
		assert.False(t, c.pagingSupported)
	})

	t.Run("bind failure", func(t *testing.T) {
		c, pool := newTestClient()
		pool.getErr = NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")))

		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthenticationError(err))
	})
}

func TestClient_SearchWithPaging(t *testing.T) {
	c, pool := newTestClient(
		fakePage{entries: testEntries("a", "b"), controls: pagingResponse("c1")},
		fakePage{entries: testEntries("c"), controls: pagingResponse("")},
	)

	result, err := c.SearchWithPaging(context.Background(), peopleRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Pages)
	assert.Len(t, result.Entries, 3)

	assert.Equal(t, 1, pool.gets, "a paged search uses a single connection")
	assert.Equal(t, 1, pool.returned)
}

func TestClient_SearchWithPaging_Errors(t *testing.T) {
	t.Run("nil request", func(t *testing.T) {
		c, _ := newTestClient()
		_, err := c.SearchWithPaging(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("missing control is not retried", func(t *testing.T) {
		c, pool := newTestClient(fakePage{entries: testEntries("a")})

		result, err := c.SearchWithPaging(context.Background(), peopleRequest())
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrPagingControlMissing)
		assert.Len(t, pool.searcher.requests, 1)
	})

	t.Run("server error is classified", func(t *testing.T) {
		c, pool := newTestClient(fakePage{err: ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))})

		_, err := c.SearchWithPaging(context.Background(), peopleRequest())
		require.Error(t, err)

		var ldapErr *LDAPError
		require.ErrorAs(t, err, &ldapErr)
		assert.Equal(t, uint16(ldap.LDAPResultBusy), ldapErr.LDAPCode)
		assert.Len(t, pool.searcher.requests, 1)
	})

	t.Run("pool failure", func(t *testing.T) {
		c, pool := newTestClient()
		pool.getErr = errors.New("connection pool is closed")

		_, err := c.SearchWithPaging(context.Background(), peopleRequest())
		assert.ErrorContains(t, err, "failed to get connection")
	})
}

func TestClient_Search(t *testing.T) {
	c, pool := newTestClient(
		fakePage{err: ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))},
		fakePage{entries: testEntries("a", "b")},
	)

	result, err := c.Search(context.Background(), peopleRequest())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, pool.searcher.requests, 2, "busy server is retried")
	assert.Nil(t, ldap.FindControl(pool.searcher.requests[1].Controls, ldap.ControlTypePaging))
}

func TestClient_Search_SubSecondTimeLimit(t *testing.T) {
	c, pool := newTestClient(fakePage{entries: testEntries("a")})

	req := peopleRequest()
	req.TimeLimit = 250 * time.Millisecond

	_, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, pool.searcher.requests, 1)
	assert.Equal(t, 1, pool.searcher.requests[0].TimeLimit)
}

func TestClient_Search_NotRetried(t *testing.T) {
	c, pool := newTestClient(
		fakePage{err: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))},
	)

	_, err := c.Search(context.Background(), peopleRequest())
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Len(t, pool.searcher.requests, 1)
}

func TestClient_Exists(t *testing.T) {
	tests := []struct {
		name    string
		page    fakePage
		want    bool
		wantErr bool
	}{
		{"match", fakePage{entries: testEntries("a"), controls: pagingResponse("")}, true, false},
		{"no match", fakePage{controls: pagingResponse("")}, false, false},
		{"missing base", fakePage{err: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))}, false, false},
		{"server error", fakePage{err: ldap.NewError(ldap.LDAPResultOperationsError, errors.New("broken"))}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pool := newTestClient(tt.page)

			got, err := c.Exists(context.Background(), "cn=zimbra", "(zimbraDomainName=example.com)")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			req := pool.searcher.requests[0]
			assert.True(t, req.TypesOnly)
			assert.Equal(t, ldap.ScopeWholeSubtree, req.Scope)
			assert.Equal(t, "(zimbraDomainName=example.com)", req.Filter)
		})
	}
}

func TestClient_GetAttribute(t *testing.T) {
	withAttr := func(dn string, values ...string) *ldap.Entry {
		return ldap.NewEntry(dn, map[string][]string{"zimbraZimletAvailableZimlets": values})
	}

	t.Run("first entry values", func(t *testing.T) {
		c, pool := newTestClient(fakePage{
			entries: []*ldap.Entry{
				withAttr("cn=default,cn=cos,cn=zimbra", "+com_zimbra_phone", "-com_zimbra_date"),
				withAttr("cn=other,cn=cos,cn=zimbra", "+com_zimbra_url"),
			},
			controls: pagingResponse(""),
		})

		values, err := c.GetAttribute(context.Background(), "cn=default,cn=cos,cn=zimbra", "zimbraZimletAvailableZimlets")
		require.NoError(t, err)
		assert.Equal(t, []string{"+com_zimbra_phone", "-com_zimbra_date"}, values)

		req := pool.searcher.requests[0]
		assert.Equal(t, "(zimbraZimletAvailableZimlets=*)", req.Filter)
		assert.Equal(t, []string{"zimbraZimletAvailableZimlets"}, req.Attributes)
	})

	t.Run("absent", func(t *testing.T) {
		c, _ := newTestClient(fakePage{controls: pagingResponse("")})

		_, err := c.GetAttribute(context.Background(), "cn=config,cn=zimbra", "zimbraImapMaxConnections")
		assert.ErrorIs(t, err, ErrAttributeNotFound)
	})

	t.Run("missing base", func(t *testing.T) {
		c, _ := newTestClient(fakePage{err: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))})

		_, err := c.GetAttribute(context.Background(), "cn=nope,cn=cos,cn=zimbra", "zimbraMailQuota")
		assert.ErrorIs(t, err, ErrAttributeNotFound)
	})

	t.Run("empty name", func(t *testing.T) {
		c, pool := newTestClient()

		_, err := c.GetAttribute(context.Background(), "cn=config,cn=zimbra", "  ")
		assert.Error(t, err)
		assert.Empty(t, pool.searcher.requests)
	})
}

func TestClient_CloseAndStats(t *testing.T) {
	c, pool := newTestClient()

	assert.Equal(t, int64(0), c.Stats().Created)
	require.NoError(t, c.Close())
	assert.True(t, pool.closed)
}

func TestClient_IsRetryableError(t *testing.T) {
	c, _ := newTestClient()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")), true},
		{"unavailable", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("unavailable")), true},
		{"network", ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed")), true},
		{"invalid credentials", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")), false},
		{"no such object", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")), false},
		{"paging", &PagingError{Page: 1, Err: ErrPagingControlMissing}, false},
		{"retryable connection error", NewConnectionError("dial", true, errors.New("refused")), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.isRetryableError(tt.err))
		})
	}
}

func TestClient_WithRetry_StopsOnCancel(t *testing.T) {
	c, _ := newTestClient()
	c.config.InitialBackoff = time.Hour
	c.config.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := c.withRetry(ctx, func() error {
		calls++
		cancel()
		return ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSearchScope_String(t *testing.T) {
	assert.Equal(t, "base", ScopeBaseObject.String())
	assert.Equal(t, "one", ScopeSingleLevel.String())
	assert.Equal(t, "sub", ScopeWholeSubtree.String())
	assert.Equal(t, "unknown", SearchScope(9).String())

	assert.Equal(t, ldap.ScopeWholeSubtree, int(ScopeWholeSubtree))
	assert.Equal(t, ldap.DerefAlways, int(DerefAlways))
}
