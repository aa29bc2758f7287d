// Package rewrite computes pagination-preserving URL rewrites.
//
// Given a listing URL carrying limit/offset query parameters and a desired
// page size, it produces an equivalent URL that lands on the same logical
// page under the new size. The functions are pure and safe to call
// redundantly; a rewritten URL rewritten again with the same size is a no-op.
package rewrite

import (
	"errors"
	"net/url"
	"strconv"
)

// DefaultLimit is assumed when a URL carries no limit parameter.
const DefaultLimit = 20

// ErrMalformedURL signals a URL that could not be parsed. The caller receives
// the original URL unchanged alongside this error and must let the request
// proceed untouched.
var ErrMalformedURL = errors.New("rewrite: malformed url")

// Page computes the 1-based logical page for an offset under a page size.
// A zero or negative limit means the offset cannot be interpreted; that maps
// to page 1.
func Page(offset, limit int) int {
	if limit <= 0 || offset <= 0 {
		return 1
	}
	return offset/limit + 1
}

// OffsetFor computes the zero-based item offset of a 1-based page under the
// given page size.
func OffsetFor(page, limit int) int {
	off := (page - 1) * limit
	if off < 0 {
		return 0
	}
	return off
}

// Rewrite replaces the limit/offset parameters of rawURL so that the same
// logical page is requested under newLimit. All other parameters are
// preserved untouched. A URL missing limit is treated as limit=20, missing
// offset as offset=0, and negative or non-numeric values clamp to 0.
//
// On a malformed URL the input is returned unchanged together with
// ErrMalformedURL; the error is recoverable and must never block the
// underlying call.
func Rewrite(rawURL string, newLimit int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, ErrMalformedURL
	}

	q := u.Query()
	oldLimit := intParam(q, "limit", DefaultLimit)
	oldOffset := intParam(q, "offset", 0)

	page := Page(oldOffset, oldLimit)
	newOffset := OffsetFor(page, newLimit)

	q.Set("limit", strconv.Itoa(newLimit))
	q.Set("offset", strconv.Itoa(newOffset))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// intParam reads a non-negative integer query parameter, falling back to def
// when absent and clamping unparseable or negative values to 0.
func intParam(q url.Values, key string, def int) int {
	raw := q.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
