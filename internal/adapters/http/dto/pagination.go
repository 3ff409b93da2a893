package dto

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// DefaultLimit is the page size when the client sends none.
const DefaultLimit = 20

// cursorPrefix versions the cursor encoding.
const cursorPrefix = "v1:"

// ErrInvalidCursor reports a cursor this service did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// PageQuery is the query string of a listing ordered by sequence.
type PageQuery struct {
	// Cursor is NextCursor from the previous page. Empty asks for the first.
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"  validate:"omitempty,gte=1"`
}

// Window resolves q into the sequence the page starts after and the page
// size, which defaults to DefaultLimit and never exceeds maxLimit.
func (q *PageQuery) Window(maxLimit int) (after int64, limit int, err error) {
	after, err = DecodeCursor(q.Cursor)
	if err != nil {
		return 0, 0, err
	}

	limit = q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return after, min(limit, maxLimit), nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// NewPage builds a page of at most limit items. Callers fetch limit+1 items;
// the surplus one only signals that another page follows.
func NewPage[T any](items []T, limit int, sequence func(T) int64) *Page[T] {
	p := &Page[T]{Items: items}
	if len(items) > limit {
		p.Items, p.HasMore = items[:limit], true
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	if p.HasMore && len(p.Items) > 0 {
		p.NextCursor = EncodeCursor(sequence(p.Items[len(p.Items)-1]))
	}
	return p
}

// EncodeCursor returns the opaque cursor for a page starting after seq.
func EncodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(seq, 10)))
}

// DecodeCursor returns the sequence encoded in cursor. The empty cursor
// decodes to zero, the start of the listing.
func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}

	digits, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}

	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 0 {
		return 0, ErrInvalidCursor
	}
	return seq, nil
}
