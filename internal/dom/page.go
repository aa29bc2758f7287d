// Package dom models a live host-page session: the current URL, the parsed
// document, the history primitives, and a mutation-notification layer. It is
// the stand-in for the single-page application the extension runs against;
// the navigation detector, injection manager, and rating filter all operate
// on it.
//
// Document access follows the host's scheduling model: event-driven and
// single-threaded per execution context. Only the URL, history, and listener
// registries are guarded for cross-goroutine polling.
package dom

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Page is one browsing session against the host SPA.
type Page struct {
	mu      sync.RWMutex
	current string
	history []string

	doc *goquery.Document

	listenerMu  sync.Mutex
	nextID      int
	mutationFns map[int]func()
	historyFns  map[int]func(rawURL string)
}

// New parses the initial document and positions the session at rawURL.
func New(rawURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	return &Page{
		current:     rawURL,
		history:     []string{rawURL},
		doc:         doc,
		mutationFns: make(map[int]func()),
		historyFns:  make(map[int]func(string)),
	}, nil
}

// URL returns the current location.
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Path returns the path component of the current location. A location that
// no longer parses yields an empty path.
func (p *Page) Path() string {
	u, err := url.Parse(p.URL())
	if err != nil {
		return ""
	}
	return u.Path
}

// Doc returns the live document. Callers mutate it through Mutate so that
// observers are notified.
func (p *Page) Doc() *goquery.Document {
	return p.doc
}

// Find queries the current document.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Mutate applies fn to the document and then notifies mutation observers,
// the analogue of a subtree childList mutation batch.
func (p *Page) Mutate(fn func(doc *goquery.Document)) {
	fn(p.doc)
	p.notifyMutation()
}

// SetHTML replaces the whole document, as the host SPA does on a re-render,
// and notifies mutation observers.
func (p *Page) SetHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	p.doc = doc
	p.notifyMutation()
	return nil
}

// PushState performs a programmatic navigation without a document load.
func (p *Page) PushState(rawURL string) {
	p.mu.Lock()
	p.current = rawURL
	p.history = append(p.history, rawURL)
	p.mu.Unlock()

	p.notifyHistory(rawURL)
}

// ReplaceState swaps the current history entry without growing the stack.
func (p *Page) ReplaceState(rawURL string) {
	p.mu.Lock()
	p.current = rawURL
	if n := len(p.history); n > 0 {
		p.history[n-1] = rawURL
	} else {
		p.history = []string{rawURL}
	}
	p.mu.Unlock()

	p.notifyHistory(rawURL)
}

// Back pops one history entry, the back/forward (popstate) signal. It
// reports whether there was anywhere to go.
func (p *Page) Back() bool {
	p.mu.Lock()
	if len(p.history) < 2 {
		p.mu.Unlock()
		return false
	}
	p.history = p.history[:len(p.history)-1]
	p.current = p.history[len(p.history)-1]
	rawURL := p.current
	p.mu.Unlock()

	p.notifyHistory(rawURL)
	return true
}

// OnMutation registers a document-mutation observer; the returned function
// disconnects it.
func (p *Page) OnMutation(fn func()) func() {
	p.listenerMu.Lock()
	id := p.nextID
	p.nextID++
	p.mutationFns[id] = fn
	p.listenerMu.Unlock()

	return func() {
		p.listenerMu.Lock()
		delete(p.mutationFns, id)
		p.listenerMu.Unlock()
	}
}

// OnHistory registers a hook on the history-mutation primitives, the
// wrapped-pushState analogue. The returned function unhooks it.
func (p *Page) OnHistory(fn func(rawURL string)) func() {
	p.listenerMu.Lock()
	id := p.nextID
	p.nextID++
	p.historyFns[id] = fn
	p.listenerMu.Unlock()

	return func() {
		p.listenerMu.Lock()
		delete(p.historyFns, id)
		p.listenerMu.Unlock()
	}
}

func (p *Page) notifyMutation() {
	p.listenerMu.Lock()
	fns := make([]func(), 0, len(p.mutationFns))
	for _, fn := range p.mutationFns {
		fns = append(fns, fn)
	}
	p.listenerMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (p *Page) notifyHistory(rawURL string) {
	p.listenerMu.Lock()
	fns := make([]func(string), 0, len(p.historyFns))
	for _, fn := range p.historyFns {
		fns = append(fns, fn)
	}
	p.listenerMu.Unlock()

	for _, fn := range fns {
		fn(rawURL)
	}
}
