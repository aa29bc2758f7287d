package intercept

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/state"
	"github.com/frevohq/frevo-core/internal/store"
)

// recordingTransport captures the request it receives and serves a canned
// response.
type recordingTransport struct {
	lastURL string
	status  int
	body    string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.lastURL = req.URL.String()
	status := rt.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(rt.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func doGet(t *testing.T, rt http.RoundTripper, rawURL string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, rawURL, nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	return resp
}

func TestListingCallRewritten(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	tr.SetPageSize(35)

	doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20&offset=60")

	u, err := url.Parse(rec.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "35", u.Query().Get("limit"))
	assert.Equal(t, "105", u.Query().Get("offset"))
}

func TestDefaultPageSizeBeforeFirstUpdate(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)

	doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=50&offset=100")

	u, err := url.Parse(rec.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "20", u.Query().Get("limit"), "hardcoded default until first update")
	assert.Equal(t, "40", u.Query().Get("offset"), "page 3 preserved under default size")
}

func TestNonMatchingCallPassesThrough(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	tr.SetPageSize(35)

	original := "https://www.freelancer.com/api/messages/0.1/threads?limit=20&offset=60"
	doGet(t, tr, original)
	assert.Equal(t, original, rec.lastURL)
}

func TestObserverSeesOriginalAndModified(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	tr.SetPageSize(50)

	var gotOriginal, gotModified string
	tr.Observe(func(o, m string) { gotOriginal, gotModified = o, m })

	doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20&offset=40")

	assert.Contains(t, gotOriginal, "limit=20")
	assert.Contains(t, gotModified, "limit=50")
	assert.Contains(t, gotModified, "offset=100")
}

func TestSelfCallEnriched(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)

	doGet(t, tr, "https://www.freelancer.com/api/users/0.1/self?status=true")

	u, err := url.Parse(rec.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "true", u.Query().Get("profile_description"))
	assert.Equal(t, "true", u.Query().Get("status"))
}

func TestSelfCallAlreadyEnrichedLeftAlone(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)

	original := "https://www.freelancer.com/api/users/0.1/self?status=true&profile_description=true"
	doGet(t, tr, original)
	assert.Equal(t, original, rec.lastURL)
}

func TestListingResponseSnapshotsCaptured(t *testing.T) {
	rec := &recordingTransport{body: `{
		"result": {"projects": [
			{"id": 101, "owner_id": 7, "title": "Build a scraper",
			 "preview_description": "Scrape things", "seo_url": "build-a-scraper", "type": "fixed"},
			{"id": 102, "owner_id": 8, "title": "Fix a bug",
			 "preview_description": "Small fix", "seo_url": "fix-a-bug", "type": "hourly"}
		]}}`}
	tr := New(rec, Options{}, nil)

	var snaps []types.ProjectSnapshot
	tr.ObserveSnapshots(func(s types.ProjectSnapshot) { snaps = append(snaps, s) })

	resp := doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20")

	require.Len(t, snaps, 2)
	assert.Equal(t, int64(101), snaps[0].ID)
	assert.Equal(t, int64(7), snaps[0].OwnerID)
	assert.Equal(t, "build-a-scraper", snaps[0].SeoURL)

	// The body is still readable by the caller after observation.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Build a scraper")
}

func TestUnparseableListingBodyIgnored(t *testing.T) {
	rec := &recordingTransport{body: `not-json`}
	tr := New(rec, Options{}, nil)

	fired := false
	tr.ObserveSnapshots(func(types.ProjectSnapshot) { fired = true })

	resp := doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20")
	assert.False(t, fired)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "not-json", string(body))
}

func TestOptionsConfigureWatchedPathAndDefault(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{WatchedPath: "/api/jobs/list", DefaultPageSize: 40}, nil)

	doGet(t, tr, "https://example.com/api/jobs/list?limit=20&offset=20")

	u, err := url.Parse(rec.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "40", u.Query().Get("limit"))
	assert.Equal(t, "40", u.Query().Get("offset"), "page 2 preserved under the configured size")

	// The stock listing path is not watched once another one is configured.
	original := "https://example.com/api/projects/0.1/projects/active?limit=20"
	doGet(t, tr, original)
	assert.Equal(t, original, rec.lastURL)
}

func TestPanickingObserverDoesNotKillRequest(t *testing.T) {
	rec := &recordingTransport{body: `{
		"result": {"projects": [{"id": 1, "owner_id": 2, "title": "x"}]}}`}
	tr := New(rec, Options{}, nil)
	tr.SetPageSize(35)

	var urlSeen, snapSeen bool
	tr.Observe(func(string, string) { panic("broken observer") })
	tr.Observe(func(string, string) { urlSeen = true })
	tr.ObserveSnapshots(func(types.ProjectSnapshot) { panic("broken observer") })
	tr.ObserveSnapshots(func(types.ProjectSnapshot) { snapSeen = true })

	resp := doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, urlSeen, "observers after the panicking one still run")
	assert.True(t, snapSeen)
}

func TestAgentBridgesWindowChannel(t *testing.T) {
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	w := bus.NewWindow()

	var events []bus.WindowEvent
	defer w.AddListener(func(ev bus.WindowEvent) { events = append(events, ev) })()

	agent := NewAgent(tr, w, nil)
	agent.Start()
	defer agent.Stop()

	// Startup announces a page-size request.
	require.NotEmpty(t, events)
	assert.Equal(t, bus.EventRequestJobsPerPage, events[0].Type)

	// A page-size update flows into the transport.
	w.Post(bus.WindowEvent{
		Type: bus.EventUpdateJobsPerPage,
		Data: map[string]interface{}{bus.FieldJobsPerPage: 35},
	})
	assert.Equal(t, 35, tr.PageSize())

	// An intercepted call is reported back over the channel.
	doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20&offset=60")

	var intercepted *bus.WindowEvent
	for i := range events {
		if events[i].Type == bus.EventAPIIntercepted {
			intercepted = &events[i]
		}
	}
	require.NotNil(t, intercepted)
	assert.Contains(t, intercepted.Data["modified"], "limit=35")
}

func TestPageSizeFlowsFromContentToPageRealm(t *testing.T) {
	ctx := context.Background()
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	win := bus.NewWindow()

	agent := NewAgent(tr, win, nil)
	agent.Start()
	defer agent.Stop()

	m := state.NewManager(bus.Content, state.Components{
		Store: store.NewMemory(), Bus: bus.New(), Window: win,
	})
	require.True(t, m.Initialize(ctx).Success)
	defer m.Close()

	res := m.Apply(ctx, types.ActionUpdatePagination, map[string]interface{}{"jobsPerPage": 35})
	require.True(t, res.Success)
	require.Equal(t, 35, tr.PageSize(), "pagination action must reach the page realm")

	doGet(t, tr, "https://www.freelancer.com/api/projects/0.1/projects/active?limit=20&offset=60")

	u, err := url.Parse(rec.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "35", u.Query().Get("limit"))
	assert.Equal(t, "105", u.Query().Get("offset"))
}

func TestAgentLateJoinAdoptsCurrentPageSize(t *testing.T) {
	ctx := context.Background()
	rec := &recordingTransport{body: `{}`}
	tr := New(rec, Options{}, nil)
	win := bus.NewWindow()

	m := state.NewManager(bus.Content, state.Components{
		Store: store.NewMemory(), Bus: bus.New(), Window: win,
	})
	require.True(t, m.Initialize(ctx).Success)
	defer m.Close()
	require.True(t, m.Apply(ctx, types.ActionUpdatePagination, map[string]interface{}{"jobsPerPage": 45}).Success)

	// The page realm starts after the setting changed; its startup request
	// pulls the current value.
	agent := NewAgent(tr, win, nil)
	agent.Start()
	defer agent.Stop()

	assert.Equal(t, 45, tr.PageSize())
}
