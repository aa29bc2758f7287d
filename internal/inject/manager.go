// Package inject mounts extension UI fragments into a host document whose
// anchor elements appear asynchronously and can be wiped by the host's own
// re-renders. Each feature gets an explicit state machine rather than loose
// boolean flags:
//
//	Uninitialized → Injecting → Injected
//	                     ↓
//	                 Abandoned
//
// Inject and Cleanup are idempotent at every state.
package inject

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/dom"
)

// State is the lifecycle state of one injected feature.
type State int

const (
	Uninitialized State = iota
	Injecting
	Injected
	Abandoned
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Injecting:
		return "injecting"
	case Injected:
		return "injected"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Strategy is one anchor lookup attempt. Strategies are data, not control
// flow: host markup drift is absorbed by editing the list.
type Strategy struct {
	Name     string
	Selector string
}

// ButtonStrategies locates the bid-form anchor for the proposal button,
// most specific first.
var ButtonStrategies = []Strategy{
	{Name: "bid-button-container", Selector: "app-bid-description-button"},
	{Name: "native-ai-button", Selector: ".AIButton"},
	{Name: "bid-description-form", Selector: "#descriptionTextArea"},
}

// Fragment is the UI payload mounted inside a style-isolated boundary.
type Fragment struct {
	// Marker is the attribute identifying the mounted container.
	Marker string
	// HTML is the fragment markup.
	HTML string
	// Stylesheet is injected inside the boundary; isolation blocks
	// inheritance, so styles must travel with the fragment.
	Stylesheet string
}

// Options tune the discovery and re-render behavior.
type Options struct {
	Strategies   []Strategy
	PollInterval time.Duration // anchor re-query cadence
	Timeout      time.Duration // give up after this long
	Debounce     time.Duration // mutation-check coalescing window
}

func (o Options) withDefaults() Options {
	if len(o.Strategies) == 0 {
		o.Strategies = ButtonStrategies
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 250 * time.Millisecond
	}
	return o
}

// Manager owns the lifecycle of one injected feature on one page.
type Manager struct {
	page   *dom.Page
	frag   Fragment
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	disconnect func()

	timerMu  sync.Mutex
	debounce *time.Timer
}

// NewManager prepares an injection manager in the Uninitialized state.
func NewManager(page *dom.Page, frag Fragment, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if frag.Marker == "" {
		frag.Marker = "data-frevo-button"
	}
	return &Manager{page: page, frag: frag, opts: opts.withDefaults(), logger: logger}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Inject mounts the fragment, polling for an anchor until the bounded
// timeout. Idempotent: a second call while Injecting or Injected returns
// immediately. An exhausted search abandons silently, since a missing anchor
// is expected during slow host rendering, not an error.
func (m *Manager) Inject(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Injecting || m.state == Injected {
		m.mu.Unlock()
		return nil
	}
	m.state = Injecting
	m.mu.Unlock()

	deadline := time.Now().Add(m.opts.Timeout)
	for {
		m.mu.Lock()
		if m.state != Injecting {
			// Cleanup raced us; stay torn down.
			m.mu.Unlock()
			return nil
		}
		if m.tryMountLocked() {
			m.startObserverLocked()
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			m.abandon()
			return nil
		}

		select {
		case <-ctx.Done():
			m.abandon()
			return ctx.Err()
		case <-time.After(m.opts.PollInterval):
		}
	}
}

// Cleanup unmounts the fragment, disconnects the observer, and resets the
// state machine. Safe to call repeatedly and before any injection happened.
func (m *Manager) Cleanup() {
	m.timerMu.Lock()
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	m.timerMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnect != nil {
		m.disconnect()
		m.disconnect = nil
	}

	marker := m.containerSelector()
	if m.page.Find(marker).Length() > 0 {
		m.page.Mutate(func(doc *goquery.Document) {
			doc.Find(marker).Remove()
		})
	}
	m.state = Uninitialized
}

// Mounted reports whether the fragment container is actually present,
// regardless of what the state machine believes.
func (m *Manager) Mounted() bool {
	return m.page.Find(m.containerSelector()).Length() > 0
}

func (m *Manager) containerSelector() string {
	return fmt.Sprintf("[%s='true']", m.frag.Marker)
}

// tryMountLocked attempts a single anchor discovery and mount. Caller holds
// m.mu.
func (m *Manager) tryMountLocked() bool {
	if m.page.Find(m.containerSelector()).Length() > 0 {
		// Present but untracked, adopt it.
		m.state = Injected
		return true
	}

	for _, strategy := range m.opts.Strategies {
		anchor := m.page.Find(strategy.Selector)
		if anchor.Length() == 0 {
			continue
		}

		html := fmt.Sprintf(
			`<div %s="true" data-frevo-shadow="open"><style>%s</style><div id="frevo-root">%s</div></div>`,
			m.frag.Marker, m.frag.Stylesheet, m.frag.HTML)

		m.page.Mutate(func(doc *goquery.Document) {
			anchor.First().AfterHtml(html)
		})

		m.logger.Debug("fragment mounted",
			zap.String("strategy", strategy.Name),
			zap.String("selector", strategy.Selector))
		m.state = Injected
		return true
	}
	return false
}

// startObserverLocked watches for host re-renders: if the state machine says
// Injected but the node is gone, remount; if the search was abandoned and a
// mutation finally revealed the anchor, mount for the first time. Caller
// holds m.mu.
func (m *Manager) startObserverLocked() {
	if m.disconnect != nil {
		return
	}
	m.disconnect = m.page.OnMutation(func() {
		m.scheduleCheck()
	})
}

// scheduleCheck coalesces bursts of mutations into one check per debounce
// window.
func (m *Manager) scheduleCheck() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.opts.Debounce, m.recheck)
}

func (m *Manager) recheck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Injected:
		if m.page.Find(m.containerSelector()).Length() == 0 {
			m.logger.Debug("mounted fragment lost to host re-render, remounting")
			m.state = Injecting
			if !m.tryMountLocked() {
				m.state = Abandoned
			}
		}
	case Abandoned:
		if m.tryMountLocked() {
			m.startObserverLocked()
		} else {
			m.state = Abandoned
		}
	}
}

func (m *Manager) abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Injecting {
		return
	}
	m.state = Abandoned
	// Keep watching: a later re-render may reveal the anchor after the
	// bounded search gave up.
	m.startObserverLocked()
	m.logger.Debug("anchor not found within timeout, abandoning injection")
}
