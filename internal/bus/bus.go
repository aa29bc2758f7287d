// Package bus carries messages between the three isolated execution contexts
// (background, content, page). Contexts share no memory; the bus and the
// persistent store are their only coupling. Delivery to a context that is
// not currently listening is a routine condition during navigation churn,
// reported as an error the caller may log and ignore.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/frevohq/frevo-core/internal/shared/types"
)

// ContextName identifies one of the isolated execution contexts.
type ContextName string

const (
	Background ContextName = "background"
	Content    ContextName = "content"
	Page       ContextName = "page"
)

// ErrNoReceiver is returned when the destination context has no handler
// registered. Expected during startup and navigation; never user-visible.
var ErrNoReceiver = errors.New("bus: receiving context not listening")

// Message is a one-shot request.
type Message struct {
	ID      string                 `json:"id"`
	Action  types.Action           `json:"action"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Handler processes a message and resolves the response through respond.
// Keeping the respond callback explicit lets a handler defer its reply past
// its own return, mirroring an open response channel.
type Handler func(ctx context.Context, msg Message, respond func(*types.Result))

// Bus routes one-shot request/response messages and broadcasts.
type Bus struct {
	mu       sync.RWMutex
	handlers map[ContextName]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[ContextName]Handler)}
}

// Listen registers the handler for a context, replacing any previous one.
// The returned function detaches the handler.
func (b *Bus) Listen(name ContextName, h Handler) func() {
	b.mu.Lock()
	b.handlers[name] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if b.handlers[name] != nil {
			delete(b.handlers, name)
		}
		b.mu.Unlock()
	}
}

// Send delivers a message to one context and waits for its response. A
// handler panic is converted to a failure result: errors never propagate
// across the context boundary as exceptions.
func (b *Bus) Send(ctx context.Context, to ContextName, msg Message) (*types.Result, error) {
	b.mu.RLock()
	h := b.handlers[to]
	b.mu.RUnlock()

	if h == nil {
		return nil, ErrNoReceiver
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	resultCh := make(chan *types.Result, 1)
	respond := func(r *types.Result) {
		select {
		case resultCh <- r:
		default: // double-respond is ignored
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				respond(types.Fail(fmt.Sprintf("handler panic: %v", r)))
			}
		}()
		h(ctx, msg, respond)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res == nil {
			res = types.Fail("handler returned no response")
		}
		return res, nil
	}
}

// Broadcast delivers a message to every listening context without waiting
// for responses.
func (b *Bus) Broadcast(ctx context.Context, msg Message) {
	b.mu.RLock()
	targets := make([]ContextName, 0, len(b.handlers))
	for name := range b.handlers {
		targets = append(targets, name)
	}
	b.mu.RUnlock()

	for _, name := range targets {
		name := name
		go func() {
			_, _ = b.Send(ctx, name, msg)
		}()
	}
}
