// Package intercept wraps the host page's network primitive so that listing
// calls are rewritten to the user's page size before they leave the page.
// In the extension this meant monkey-patching fetch and XHR inside the page
// realm; here the same hook is an http.RoundTripper decorator registered
// against the host-traffic transport.
package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/rewrite"
	"github.com/frevohq/frevo-core/internal/shared/types"
)

const (
	// WatchedPath is the default active-projects listing API match.
	WatchedPath = "/api/projects/0.1/projects/active"

	// SelfPath matches the logged-in-user API that gets the
	// profile_description enrichment.
	SelfPath = "/api/users/0.1/self"
)

// Options tunes what the transport watches and the page size it applies
// before the first update arrives. Zero values fall back to the defaults.
type Options struct {
	WatchedPath     string
	DefaultPageSize int
}

func (o Options) withDefaults() Options {
	if o.WatchedPath == "" {
		o.WatchedPath = WatchedPath
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = types.DefaultJobsPerPage
	}
	return o
}

// Observer is notified with every original/modified URL pair. Observer
// failures never affect the request.
type Observer func(original, modified string)

// SnapshotObserver receives project metadata captured from observed listing
// responses.
type SnapshotObserver func(types.ProjectSnapshot)

// Transport decorates a base RoundTripper with pagination rewriting. The
// page-size value arrives asynchronously after construction; until the first
// update the configured default is used. That first-call race is acceptable
// because pagination is idempotent: a wrong initial size self-corrects on
// the next rewrite.
type Transport struct {
	base    http.RoundTripper
	watched string
	logger  *zap.Logger

	pageSize  atomic.Int64
	hasUpdate atomic.Bool

	mu        sync.RWMutex
	observers []Observer
	snapObs   []SnapshotObserver
}

// New creates a Transport over base. A nil base falls back to the default
// transport.
func New(base http.RoundTripper, opts Options, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	t := &Transport{base: base, watched: opts.WatchedPath, logger: logger}
	t.pageSize.Store(int64(opts.DefaultPageSize))
	return t
}

// SetPageSize installs a new page size for subsequent rewrites.
func (t *Transport) SetPageSize(n int) {
	t.pageSize.Store(int64(types.ClampJobsPerPage(n)))
	t.hasUpdate.Store(true)
}

// PageSize returns the page size currently applied.
func (t *Transport) PageSize() int {
	return int(t.pageSize.Load())
}

// Observe registers an interception observer.
func (t *Transport) Observe(fn Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// ObserveSnapshots registers a listing-response observer.
func (t *Transport) ObserveSnapshots(fn SnapshotObserver) {
	t.mu.Lock()
	t.snapObs = append(t.snapObs, fn)
	t.mu.Unlock()
}

// RoundTrip implements http.RoundTripper. Non-matching calls pass through
// untouched, and interception never alters the wrapped call's response and
// error shape.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case strings.Contains(req.URL.Path, t.watched):
		return t.roundTripListing(req)
	case strings.Contains(req.URL.Path, SelfPath):
		return t.roundTripSelf(req)
	default:
		return t.base.RoundTrip(req)
	}
}

func (t *Transport) roundTripListing(req *http.Request) (*http.Response, error) {
	original := req.URL.String()

	modified, err := rewrite.Rewrite(original, t.PageSize())
	if err != nil {
		// Recoverable: the call proceeds on the original URL.
		t.logger.Warn("rewrite failed, passing through",
			zap.String("url", original), zap.Error(err))
		return t.base.RoundTrip(req)
	}

	out := req
	if modified != original {
		out = cloneWithURL(req, modified)
	}
	t.notify(original, modified)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return resp, err
	}
	t.observeListing(resp)
	return resp, nil
}

// roundTripSelf adds profile_description=true to self-API calls that lack
// it, mirroring the enrichment the page's own client never asks for.
func (t *Transport) roundTripSelf(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	if q.Get("status") != "true" || q.Get("profile_description") == "true" {
		return t.base.RoundTrip(req)
	}

	original := req.URL.String()
	q.Set("profile_description", "true")

	u := *req.URL
	u.RawQuery = q.Encode()
	out := cloneWithURL(req, u.String())

	t.notify(original, u.String())
	return t.base.RoundTrip(out)
}

// observeListing parses a listing response body opportunistically and feeds
// project snapshots to observers. The body is restored for the caller; any
// parse problem is logged and swallowed.
func (t *Transport) observeListing(resp *http.Response) {
	if resp.Body == nil || resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return
	}

	var payload struct {
		Result struct {
			Projects []struct {
				ID                 int64  `json:"id"`
				OwnerID            int64  `json:"owner_id"`
				Title              string `json:"title"`
				PreviewDescription string `json:"preview_description"`
				SeoURL             string `json:"seo_url"`
				Type               string `json:"type"`
			} `json:"projects"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.logger.Debug("listing response not parseable", zap.Error(err))
		return
	}

	t.mu.RLock()
	obs := append([]SnapshotObserver(nil), t.snapObs...)
	t.mu.RUnlock()

	now := time.Now().UnixMilli()
	for _, p := range payload.Result.Projects {
		snap := types.ProjectSnapshot{
			ID:                 p.ID,
			OwnerID:            p.OwnerID,
			Title:              p.Title,
			PreviewDescription: p.PreviewDescription,
			SeoURL:             p.SeoURL,
			Type:               p.Type,
			Timestamp:          now,
		}
		for _, fn := range obs {
			t.dispatch(func() { fn(snap) })
		}
	}
}

func (t *Transport) notify(original, modified string) {
	if original == modified {
		return
	}
	t.logger.Debug("request intercepted",
		zap.String("original", original), zap.String("modified", modified))

	t.mu.RLock()
	obs := append([]Observer(nil), t.observers...)
	t.mu.RUnlock()

	for _, fn := range obs {
		t.dispatch(func() { fn(original, modified) })
	}
}

// dispatch runs one observer callback, containing any panic so a misbehaving
// observer cannot kill the in-flight request.
func (t *Transport) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("observer panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// cloneWithURL copies the request with a replacement target, leaving the
// caller's request untouched per the RoundTripper contract.
func cloneWithURL(req *http.Request, rawURL string) *http.Request {
	out := req.Clone(req.Context())
	if u, err := out.URL.Parse(rawURL); err == nil {
		out.URL = u
	}
	return out
}
