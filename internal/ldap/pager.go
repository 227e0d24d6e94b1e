package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// DefaultPageSize is the number of entries requested per page.
const DefaultPageSize uint32 = 400

// DefaultFilter matches every entry.
const DefaultFilter = "(objectClass=*)"

// ErrPagingControlMissing is returned when a server answers a paged search
// without a paging response control. Pagination is never assumed complete
// in that case.
var ErrPagingControlMissing = errors.New("paged results control missing from search response")

// PagingError reports a paging protocol failure on a specific page.
type PagingError struct {
	Page   int
	BaseDN string
	Filter string
	Err    error
}

func (e *PagingError) Error() string {
	return fmt.Sprintf("paged search of %q with filter %s failed on page %d: %v", e.BaseDN, e.Filter, e.Page, e.Err)
}

func (e *PagingError) Unwrap() error {
	return e.Err
}

// Searcher is the subset of a go-ldap connection used by the pager.
// *ldap.Conn satisfies it.
type Searcher interface {
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Pager pages through search results with the simple paged results control.
// A Pager holds no per-search state and may be shared, but a single
// Searcher must not run overlapping searches.
type Pager struct {
	pageSize uint32
	encoding ControlEncoding
}

// NewPager creates a pager. A zero page size selects DefaultPageSize.
func NewPager(pageSize uint32, encoding ControlEncoding) *Pager {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		pageSize: pageSize,
		encoding: encoding,
	}
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() uint32 {
	return p.pageSize
}

// Encoding returns the configured control encoding.
func (p *Pager) Encoding() ControlEncoding {
	return p.encoding
}

// Search runs req against conn, following the server's cookies until it
// returns an empty one, and returns every entry in server order together
// with the number of round trips made. On any error no entries are
// returned.
func (p *Pager) Search(ctx context.Context, conn Searcher, req *SearchRequest) ([]*ldap.Entry, int, error) {
	if req == nil {
		return nil, 0, fmt.Errorf("search request cannot be nil")
	}

	control, err := newPageControl(p.encoding, p.pageSize)
	if err != nil {
		return nil, 0, err
	}

	filter := req.Filter
	if filter == "" {
		filter = DefaultFilter
	}

	entries := make([]*ldap.Entry, 0)
	page := 0

	for {
		// A submitted page always runs to completion; cancellation is
		// honoured between pages only.
		if err := ctx.Err(); err != nil {
			return nil, page, err
		}

		page++
		controls := make([]ldap.Control, 0, len(req.Controls)+1)
		controls = append(controls, req.Controls...)
		controls = append(controls, control.Control())

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			req.SizeLimit,
			req.timeLimitSeconds(),
			req.TypesOnly,
			filter,
			req.Attributes,
			controls,
		)

		start := time.Now()
		result, err := conn.Search(ldapReq)
		if err != nil {
			return nil, page, err
		}

		entries = append(entries, result.Entries...)

		cookie, ok, err := control.Advance(result.Controls)
		if err != nil {
			return nil, page, &PagingError{Page: page, BaseDN: req.BaseDN, Filter: filter, Err: err}
		}
		if !ok {
			return nil, page, &PagingError{Page: page, BaseDN: req.BaseDN, Filter: filter, Err: ErrPagingControlMissing}
		}

		tflog.SubsystemTrace(ctx, "ldap", "Received search page", map[string]any{
			"page_number":     page,
			"entries_in_page": len(result.Entries),
			"total_entries":   len(entries),
			"cookie_length":   len(cookie),
			"duration_ms":     time.Since(start).Milliseconds(),
		})

		if len(cookie) == 0 {
			return entries, page, nil
		}
	}
}
