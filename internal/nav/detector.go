// Package nav detects client-side route changes on a host SPA that never
// reloads the document. Two complementary channels feed the detector: hooks
// on the history primitives catch programmatic navigations the moment they
// happen, and a URL poll catches anything the hooks miss. Route changes are
// reported once, after a settle delay, so a burst of redirects during one
// logical navigation collapses into a single event.
package nav

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/dom"
)

// Options tune the detection cadence.
type Options struct {
	PollInterval time.Duration // URL re-check cadence
	SettleDelay  time.Duration // quiet period before the change is reported
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = time.Second
	}
	return o
}

// Detector watches one page session and reports settled route changes.
type Detector struct {
	page     *dom.Page
	opts     Options
	logger   *zap.Logger
	onChange func(rawURL string)

	mu      sync.Mutex
	running bool
	lastURL string
	unhook  func()
	stop    chan struct{}

	timerMu sync.Mutex
	settle  *time.Timer
}

// New builds a detector that calls onChange with the settled URL after each
// route change.
func New(page *dom.Page, onChange func(rawURL string), opts Options, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		page:     page,
		opts:     opts.withDefaults(),
		logger:   logger,
		onChange: onChange,
	}
}

// Start begins watching. Idempotent: a running detector ignores the call.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.lastURL = d.page.URL()
	d.stop = make(chan struct{})
	d.unhook = d.page.OnHistory(func(rawURL string) {
		d.observe(rawURL)
	})
	stop := d.stop
	d.mu.Unlock()

	go d.poll(ctx, stop)
}

// Stop tears the detector down. Idempotent and safe before Start. A pending
// settled change is discarded.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	if d.unhook != nil {
		d.unhook()
		d.unhook = nil
	}
	d.mu.Unlock()

	d.timerMu.Lock()
	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
	d.timerMu.Unlock()
}

func (d *Detector) poll(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			d.observe(d.page.URL())
		}
	}
}

// observe records a candidate URL. The settle timer resets on every distinct
// URL, so only the final location of a redirect chain is reported.
func (d *Detector) observe(rawURL string) {
	d.mu.Lock()
	if !d.running || rawURL == d.lastURL {
		d.mu.Unlock()
		return
	}
	d.lastURL = rawURL
	d.mu.Unlock()

	d.logger.Debug("route change observed", zap.String("url", rawURL))

	d.timerMu.Lock()
	if d.settle != nil {
		d.settle.Stop()
	}
	d.settle = time.AfterFunc(d.opts.SettleDelay, func() {
		d.mu.Lock()
		running := d.running
		settled := d.lastURL
		d.mu.Unlock()
		if running {
			d.onChange(settled)
		}
	})
	d.timerMu.Unlock()
}
