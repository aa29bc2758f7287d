package intercept

import (
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/shared/types"
)

// Agent is the page-context half of interception. It owns the Transport and
// bridges it to the same-origin window channel: page-size updates flow in
// from the content context, interception and snapshot events flow out.
type Agent struct {
	transport *Transport
	window    *bus.Window
	logger    *zap.Logger

	removeListener func()
}

// NewAgent wires a transport to the window channel.
func NewAgent(t *Transport, w *bus.Window, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{transport: t, window: w, logger: logger}
}

// Start subscribes to window events and announces readiness by requesting
// the current page size. Until the content context answers, the transport's
// default applies.
func (a *Agent) Start() {
	a.removeListener = a.window.AddListener(func(ev bus.WindowEvent) {
		if ev.Type != bus.EventUpdateJobsPerPage {
			return
		}
		if v, ok := asInt(ev.Data[bus.FieldJobsPerPage]); ok {
			a.logger.Debug("page size update received", zap.Int("jobs_per_page", v))
			a.transport.SetPageSize(v)
		}
	})

	a.transport.Observe(func(original, modified string) {
		a.window.Post(bus.WindowEvent{
			Type: bus.EventAPIIntercepted,
			Data: map[string]interface{}{"original": original, "modified": modified},
		})
	})

	a.transport.ObserveSnapshots(func(snap types.ProjectSnapshot) {
		a.window.Post(bus.WindowEvent{
			Type: bus.EventProjectData,
			Data: map[string]interface{}{"project": snap},
		})
	})

	a.window.Post(bus.WindowEvent{Type: bus.EventRequestJobsPerPage})
}

// Stop detaches the window listener. Observers on the transport stay; they
// only ever forward to the channel, which drops events with no listeners.
func (a *Agent) Stop() {
	if a.removeListener != nil {
		a.removeListener()
		a.removeListener = nil
	}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
