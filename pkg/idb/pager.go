package idb

import (
	"context"
	"fmt"
	"math"
)

// DefaultPageSize is the page size used when Pages gets size < 1 and the
// factory was not given another default.
const DefaultPageSize = 10

// Page is one window of a cursor walk.
type Page struct {
	Data []any
	Page int
	Size int
}

// PageFunc receives a completed page.
type PageFunc func(data []any, page, size int)

// Pages reads page number page (1-based; lower values mean 1) of size
// records from the walk selected by query and dir. call runs exactly once
// when the page is complete, with fewer than size records on the last page
// and none past the end. call and the Page get the page and size actually
// used: a page below 1 is reported as 1 and a size below 1 as the default. A failed walk is reported to the error handler and
// the request, never to call. A nil call logs the page at debug level.
func (s source) Pages(ctx context.Context, query any, dir Direction, page, size int, call PageFunc) *Request[*Page] {
	if size < 1 {
		size = s.db.opts.pageSize
	}
	if page < 1 {
		page = 1
	}
	req := newRequest[*Page]()
	go func() {
		p, err := s.page(ctx, query, dir, page, size)
		if err != nil {
			err = fmt.Errorf("pages %s: %w", s.label(), err)
			s.db.report("pages", err)
			req.resolve(nil, err)
			return
		}
		if call != nil {
			call(p.Data, p.Page, p.Size)
		} else {
			s.db.log.Debug("page", "source", s.label(), "page", p.Page, "size", p.Size, "records", len(p.Data))
		}
		req.resolve(p, nil)
	}()
	return req
}

func (s source) page(ctx context.Context, query any, dir Direction, page, size int) (*Page, error) {
	offset := pageOffset(page, size)
	cur, err := s.openCursor(ctx, query, dir, false)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	data := make([]any, 0, min(size, 256))
	first := true
	for !cur.Done() {
		if first && offset > 0 {
			// One bulk skip; the engine walks the offset records itself.
			first = false
			cur.Advance(offset)
			continue
		}
		first = false
		data = append(data, cur.Value())
		if len(data) == size {
			break
		}
		cur.Continue()
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return &Page{Data: data, Page: page, Size: size}, nil
}

// pageOffset is (page-1)*size, saturating instead of overflowing.
func pageOffset(page, size int) int {
	if page <= 1 {
		return 0
	}
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}
