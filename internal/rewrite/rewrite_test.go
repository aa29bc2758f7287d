package rewrite

import (
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingURL = "https://www.freelancer.com/api/projects/0.1/projects/active"

func TestRewritePreservesLogicalPage(t *testing.T) {
	for _, oldLimit := range []int{1, 7, 20, 35, 50, 100} {
		for _, page := range []int{1, 2, 4, 9, 50} {
			for _, newLimit := range []int{1, 20, 35, 50, 100} {
				oldOffset := (page - 1) * oldLimit
				raw := fmt.Sprintf("%s?limit=%d&offset=%d", listingURL, oldLimit, oldOffset)

				got, err := Rewrite(raw, newLimit)
				require.NoError(t, err)

				u, err := url.Parse(got)
				require.NoError(t, err)

				gotLimit, _ := strconv.Atoi(u.Query().Get("limit"))
				gotOffset, _ := strconv.Atoi(u.Query().Get("offset"))
				assert.Equal(t, newLimit, gotLimit)
				assert.Equal(t, page, gotOffset/gotLimit+1,
					"page must survive %d×%d → %d", oldLimit, oldOffset, newLimit)
			}
		}
	}
}

func TestRewritePaginationRoundTrip(t *testing.T) {
	// Page 4 under size 20, switched to size 35, must become page 4 under 35.
	got, err := Rewrite(listingURL+"?limit=20&offset=60", 35)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "35", u.Query().Get("limit"))
	assert.Equal(t, "105", u.Query().Get("offset"))
}

func TestRewriteIdempotent(t *testing.T) {
	first, err := Rewrite(listingURL+"?limit=20&offset=40&full_description=true", 50)
	require.NoError(t, err)

	second, err := Rewrite(first, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRewriteDefaults(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		newLimit   int
		wantOffset string
	}{
		{"missing offset treated as zero", listingURL + "?limit=20", 50, "0"},
		{"missing limit treated as twenty", listingURL + "?offset=40", 50, "100"},
		{"bare url lands on page one", listingURL, 35, "0"},
		{"negative offset clamps", listingURL + "?limit=20&offset=-40", 50, "0"},
		{"non-numeric offset clamps", listingURL + "?limit=20&offset=abc", 50, "0"},
		{"zero limit maps to page one", listingURL + "?limit=0&offset=500", 35, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rewrite(tt.raw, tt.newLimit)
			require.NoError(t, err)

			u, err := url.Parse(got)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOffset, u.Query().Get("offset"))
			assert.Equal(t, strconv.Itoa(tt.newLimit), u.Query().Get("limit"))
		})
	}
}

func TestRewritePreservesOtherParams(t *testing.T) {
	got, err := Rewrite(listingURL+"?limit=20&offset=60&query=golang&compact=true", 35)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "golang", u.Query().Get("query"))
	assert.Equal(t, "true", u.Query().Get("compact"))
}

func TestRewriteMalformedURL(t *testing.T) {
	raw := "http://[::1]:namedport/projects?limit=20"
	got, err := Rewrite(raw, 50)
	assert.ErrorIs(t, err, ErrMalformedURL)
	assert.Equal(t, raw, got, "malformed input must come back unchanged")
}

func TestPage(t *testing.T) {
	assert.Equal(t, 1, Page(0, 20))
	assert.Equal(t, 1, Page(0, 0))
	assert.Equal(t, 1, Page(500, 0))
	assert.Equal(t, 3, Page(40, 20))
	assert.Equal(t, 4, Page(60, 20))
}

func TestOffsetFor(t *testing.T) {
	assert.Equal(t, 0, OffsetFor(1, 50))
	assert.Equal(t, 100, OffsetFor(3, 50))
	assert.Equal(t, 0, OffsetFor(0, 50))
}
