package bus

import "sync"

// Window event types exchanged over the same-origin channel between the
// content context and the page context. This channel is deliberately
// separate from the Bus: the page context is not a privileged extension
// context and only ever sees these window-level events.
const (
	EventUpdateJobsPerPage  = "UPDATE_JOBS_PER_PAGE"
	EventRequestJobsPerPage = "REQUEST_JOBS_PER_PAGE"
	EventAPIIntercepted     = "API_INTERCEPTED"
	EventProjectData        = "PROJECT_DATA_INTERCEPTED"
	EventSelfAPIIntercepted = "SELF_API_INTERCEPTED"
)

// FieldJobsPerPage keys the page-size value inside jobs-per-page events.
// Both realms must agree on it or updates silently stop propagating.
const FieldJobsPerPage = "jobsPerPage"

// WindowEvent is a same-origin message posted between realms sharing a page.
type WindowEvent struct {
	Type string
	Data map[string]interface{}
}

// Window is the postMessage analogue: a broadcast channel scoped to one page
// that both the content and page contexts can post to and listen on. Events
// posted while nobody listens are dropped, as on the real channel.
type Window struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(WindowEvent)
}

// NewWindow creates an empty window channel.
func NewWindow() *Window {
	return &Window{listeners: make(map[int]func(WindowEvent))}
}

// Post delivers the event to every current listener.
func (w *Window) Post(ev WindowEvent) {
	w.mu.Lock()
	fns := make([]func(WindowEvent), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// AddListener registers a listener and returns its removal function.
func (w *Window) AddListener(fn func(WindowEvent)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}
