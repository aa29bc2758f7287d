// Package state holds the per-context extension state machine. Each
// execution context runs its own Manager over a private in-memory mirror;
// the shared store is the source of truth and the bus carries action
// requests. Managers converge by applying store change notifications to
// their mirrors and re-running idempotent side effects.
package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/dom"
	"github.com/frevohq/frevo-core/internal/filter"
	"github.com/frevohq/frevo-core/internal/inject"
	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

// Components are the collaborators one context wires into its manager.
// Window and Injector are optional: only the content context carries them.
type Components struct {
	Store    store.Store
	Bus      *bus.Bus
	Window   *bus.Window
	Page     *dom.Page
	Injector *inject.Manager
	Logger   *zap.Logger
}

// Status is a read-only snapshot of one manager's mirror.
type Status struct {
	Initialized   bool    `json:"initialized"`
	Enabled       bool    `json:"enabled"`
	MinStarRating float64 `json:"min_star_rating"`
	JobsPerPage   int     `json:"jobs_per_page"`
	Route         string  `json:"route"`
	URL           string  `json:"url"`
}

// Manager drives one context's slice of the extension.
type Manager struct {
	name   bus.ContextName
	comp   Components
	logger *zap.Logger

	mu           sync.Mutex
	initializing bool
	initialized  bool
	settings     types.Settings
	jobsPerPage  int
	route        Route
	currentURL   string
	unsubs       []func()
	busUnsub     func()
}

// NewManager builds an uninitialized manager for the named context.
func NewManager(name bus.ContextName, comp Components) *Manager {
	if comp.Logger == nil {
		comp.Logger = zap.NewNop()
	}
	return &Manager{
		name:        name,
		comp:        comp,
		logger:      comp.Logger.With(zap.String("context", string(name))),
		jobsPerPage: types.DefaultJobsPerPage,
	}
}

// Initialize loads both store scopes into the mirror, subscribes to store
// changes and bus messages, classifies the current route, and runs the
// route's side effects. Reentrant: a second call while one is in flight, or
// after a successful first call, returns success without redoing the work.
func (m *Manager) Initialize(ctx context.Context) *types.Result {
	m.mu.Lock()
	if m.initializing || m.initialized {
		m.mu.Unlock()
		return types.Ok(nil)
	}
	m.initializing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
	}()

	synced, err := m.comp.Store.Get(ctx, store.ScopeSync, []string{store.KeyEnabled, store.KeyMinStarRating})
	if err != nil {
		m.logger.Warn("settings load failed", zap.Error(err))
		return types.Fail(fmt.Sprintf("load settings: %v", err))
	}
	local, err := m.comp.Store.Get(ctx, store.ScopeLocal, []string{store.KeyJobsPerPage})
	if err != nil {
		m.logger.Warn("pagination load failed", zap.Error(err))
		return types.Fail(fmt.Sprintf("load pagination: %v", err))
	}

	m.mu.Lock()
	m.settings.Enabled = synced[store.KeyEnabled] == "true"
	if v, err := strconv.ParseFloat(synced[store.KeyMinStarRating], 64); err == nil {
		m.settings.MinStarRating = types.ClampRating(v)
	}
	if v, err := strconv.Atoi(local[store.KeyJobsPerPage]); err == nil {
		m.jobsPerPage = types.ClampJobsPerPage(v)
	}

	m.unsubs = append(m.unsubs,
		m.comp.Store.Subscribe(store.ScopeSync, m.onStoreChange),
		m.comp.Store.Subscribe(store.ScopeLocal, m.onStoreChange),
	)
	if m.comp.Window != nil {
		m.unsubs = append(m.unsubs, m.comp.Window.AddListener(m.onWindowEvent))
	}
	// The bus listener outlives reset: it is the context's address, and
	// losing it would leave no way to deliver the re-enabling action.
	if m.busUnsub == nil {
		m.busUnsub = m.comp.Bus.Listen(m.name, m.handleMessage)
	}

	if m.comp.Page != nil {
		m.currentURL = m.comp.Page.URL()
		m.route = Classify(m.comp.Page.Path())
	}
	m.initialized = true
	m.logger.Info("context initialized",
		zap.Bool("enabled", m.settings.Enabled),
		zap.String("route", m.route.String()))
	m.applySideEffectsLocked()
	m.mu.Unlock()

	return types.Ok(m.statusData())
}

// Apply runs one state-machine transition: mutate the mirror, persist the
// changed subset so peer contexts converge, then run the side effect.
// Storage failures come back as structured failures, never as panics.
func (m *Manager) Apply(ctx context.Context, action types.Action, payload map[string]interface{}) *types.Result {
	switch action {
	case types.ActionEnable:
		return m.setEnabled(ctx, true)

	case types.ActionDisable:
		return m.setEnabled(ctx, false)

	case types.ActionDisableAndReload:
		res := m.setEnabled(ctx, false)
		if !res.Success {
			return res
		}
		m.reset()
		return res

	case types.ActionUpdateRating:
		v, ok := numField(payload, "minStarRating")
		if !ok {
			return types.Fail("update-rating: missing minStarRating")
		}
		return m.setRating(ctx, types.ClampRating(v))

	case types.ActionUpdatePagination:
		v, ok := numField(payload, "jobsPerPage")
		if !ok {
			return types.Fail("update-pagination: missing jobsPerPage")
		}
		return m.setJobsPerPage(ctx, types.ClampJobsPerPage(int(v)))

	case types.ActionInjectFrevo:
		return m.requestInjection()

	default:
		return types.Fail(fmt.Sprintf("unknown action %q", action))
	}
}

// Status reports the current mirror.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Initialized:   m.initialized,
		Enabled:       m.settings.Enabled,
		MinStarRating: m.settings.MinStarRating,
		JobsPerPage:   m.jobsPerPage,
		Route:         m.route.String(),
		URL:           m.currentURL,
	}
}

// HandleNavigation is the settled-route callback: tear down the old route's
// UI, reclassify, and re-run side effects for the new route.
func (m *Manager) HandleNavigation(rawURL string) {
	if m.comp.Injector != nil {
		m.comp.Injector.Cleanup()
	}

	m.mu.Lock()
	m.currentURL = rawURL
	if m.comp.Page != nil {
		m.route = Classify(m.comp.Page.Path())
	}
	m.logger.Debug("route reclassified",
		zap.String("url", rawURL),
		zap.String("route", m.route.String()))
	m.applySideEffectsLocked()
	m.mu.Unlock()
}

// Close detaches every subscription, the bus listener included, and tears
// down injected UI.
func (m *Manager) Close() {
	m.reset()

	m.mu.Lock()
	busUnsub := m.busUnsub
	m.busUnsub = nil
	m.mu.Unlock()
	if busUnsub != nil {
		busUnsub()
	}
}

func (m *Manager) setEnabled(ctx context.Context, enabled bool) *types.Result {
	m.mu.Lock()
	m.settings.Enabled = enabled
	m.mu.Unlock()

	if err := m.comp.Store.Set(ctx, store.ScopeSync, map[string]string{
		store.KeyEnabled: strconv.FormatBool(enabled),
	}); err != nil {
		m.logger.Warn("persist enabled failed", zap.Error(err))
		return types.Fail(fmt.Sprintf("persist enabled: %v", err))
	}

	m.mu.Lock()
	if enabled {
		m.applySideEffectsLocked()
	} else {
		m.teardownLocked()
	}
	m.mu.Unlock()

	return types.Ok(m.statusData())
}

func (m *Manager) setRating(ctx context.Context, rating float64) *types.Result {
	m.mu.Lock()
	m.settings.MinStarRating = rating
	m.mu.Unlock()

	if err := m.comp.Store.Set(ctx, store.ScopeSync, map[string]string{
		store.KeyMinStarRating: strconv.FormatFloat(rating, 'f', -1, 64),
	}); err != nil {
		m.logger.Warn("persist rating failed", zap.Error(err))
		return types.Fail(fmt.Sprintf("persist rating: %v", err))
	}

	m.mu.Lock()
	m.applySideEffectsLocked()
	m.mu.Unlock()

	return types.Ok(m.statusData())
}

func (m *Manager) setJobsPerPage(ctx context.Context, n int) *types.Result {
	m.mu.Lock()
	m.jobsPerPage = n
	m.mu.Unlock()

	if err := m.comp.Store.Set(ctx, store.ScopeLocal, map[string]string{
		store.KeyJobsPerPage: strconv.Itoa(n),
	}); err != nil {
		m.logger.Warn("persist pagination failed", zap.Error(err))
		return types.Fail(fmt.Sprintf("persist pagination: %v", err))
	}

	if m.comp.Window != nil {
		m.comp.Window.Post(bus.WindowEvent{
			Type: bus.EventUpdateJobsPerPage,
			Data: map[string]interface{}{bus.FieldJobsPerPage: n},
		})
	}
	return types.Ok(m.statusData())
}

func (m *Manager) requestInjection() *types.Result {
	m.mu.Lock()
	route := m.route
	enabled := m.settings.Enabled
	m.mu.Unlock()

	if !enabled {
		return types.Fail("inject-frevo: extension disabled")
	}
	if route != RouteDetail {
		return types.Fail(fmt.Sprintf("inject-frevo: not a detail page (route %s)", route))
	}
	if m.comp.Injector == nil {
		return types.Fail("inject-frevo: no injector in this context")
	}

	// Anchor discovery can outlive the request; the injector's state
	// machine absorbs duplicate triggers.
	go func() {
		if err := m.comp.Injector.Inject(context.Background()); err != nil {
			m.logger.Debug("injection interrupted", zap.Error(err))
		}
	}()
	return types.Ok(m.statusData())
}

// applySideEffectsLocked runs the current route's side effects. All of them
// are idempotent, so convergence re-runs are harmless. Caller holds m.mu.
func (m *Manager) applySideEffectsLocked() {
	if !m.settings.Enabled {
		m.teardownLocked()
		return
	}

	switch m.route {
	case RouteSearch:
		if m.comp.Page != nil {
			hidden := filter.Apply(m.comp.Page.Doc(), m.settings.MinStarRating)
			m.logger.Debug("rating filter applied",
				zap.Float64("threshold", m.settings.MinStarRating),
				zap.Int("hidden", hidden))
		}
	case RouteDetail:
		if m.comp.Injector != nil {
			go func() {
				_ = m.comp.Injector.Inject(context.Background())
			}()
		}
	}
}

// teardownLocked reverses every visible side effect. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.comp.Page != nil {
		filter.RestoreAll(m.comp.Page.Doc())
	}
	if m.comp.Injector != nil {
		m.comp.Injector.Cleanup()
	}
}

// reset tears down UI and store/window subscriptions and returns the manager
// to the pre-Initialize state, the in-process analogue of a page reload. The
// bus listener stays registered so the next action can re-initialize.
func (m *Manager) reset() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.teardownLocked()
	m.initialized = false
	m.currentURL = ""
	m.route = RouteOther
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// onStoreChange folds a peer's write into the mirror and re-runs side
// effects. Our own writes arrive here too; the mirror is already current and
// the side effects are idempotent.
func (m *Manager) onStoreChange(ch store.Change) {
	m.mu.Lock()
	switch ch.Key {
	case store.KeyEnabled:
		m.settings.Enabled = ch.NewValue == "true"
	case store.KeyMinStarRating:
		if v, err := strconv.ParseFloat(ch.NewValue, 64); err == nil {
			m.settings.MinStarRating = types.ClampRating(v)
		}
	case store.KeyJobsPerPage:
		if v, err := strconv.Atoi(ch.NewValue); err == nil {
			m.jobsPerPage = types.ClampJobsPerPage(v)
		}
	default:
		m.mu.Unlock()
		return
	}
	m.applySideEffectsLocked()
	m.mu.Unlock()
}

// onWindowEvent answers the page realm's late-join request for the current
// page size.
func (m *Manager) onWindowEvent(ev bus.WindowEvent) {
	if ev.Type != bus.EventRequestJobsPerPage {
		return
	}
	m.mu.Lock()
	n := m.jobsPerPage
	m.mu.Unlock()

	m.comp.Window.Post(bus.WindowEvent{
		Type: bus.EventUpdateJobsPerPage,
		Data: map[string]interface{}{bus.FieldJobsPerPage: n},
	})
}

// handleMessage answers bus actions. After a reset the first action re-runs
// Initialize, the way a reloaded page re-runs its content script.
func (m *Manager) handleMessage(ctx context.Context, msg bus.Message, respond func(*types.Result)) {
	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized {
		if res := m.Initialize(ctx); !res.Success {
			respond(res)
			return
		}
	}
	respond(m.Apply(ctx, msg.Action, msg.Payload))
}

func (m *Manager) statusData() map[string]interface{} {
	s := m.Status()
	return map[string]interface{}{
		"enabled":       s.Enabled,
		"minStarRating": s.MinStarRating,
		"jobsPerPage":   s.JobsPerPage,
		"route":         s.Route,
	}
}

// numField extracts a numeric payload field, tolerating the types JSON
// decoding and in-process callers produce.
func numField(payload map[string]interface{}, key string) (float64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
