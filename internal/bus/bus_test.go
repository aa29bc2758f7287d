package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frevohq/frevo-core/internal/shared/types"
)

func TestSendRoundTrip(t *testing.T) {
	b := New()
	defer b.Listen(Content, func(ctx context.Context, msg Message, respond func(*types.Result)) {
		assert.Equal(t, types.ActionEnable, msg.Action)
		respond(types.Ok(map[string]interface{}{"echo": msg.Payload["v"]}))
	})()

	res, err := b.Send(context.Background(), Content, Message{
		Action:  types.ActionEnable,
		Payload: map[string]interface{}{"v": "x"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "x", res.Data["echo"])
}

func TestSendNoReceiver(t *testing.T) {
	b := New()
	_, err := b.Send(context.Background(), Page, Message{Action: types.ActionDisable})
	assert.ErrorIs(t, err, ErrNoReceiver)
}

func TestSendDeferredReply(t *testing.T) {
	b := New()
	defer b.Listen(Background, func(ctx context.Context, msg Message, respond func(*types.Result)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			respond(types.Ok(nil))
		}()
	})()

	res, err := b.Send(context.Background(), Background, Message{Action: types.ActionInjectFrevo})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSendHandlerPanicBecomesFailure(t *testing.T) {
	b := New()
	defer b.Listen(Content, func(ctx context.Context, msg Message, respond func(*types.Result)) {
		panic("boom")
	})()

	res, err := b.Send(context.Background(), Content, Message{Action: types.ActionDisable})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.False(t, res.Success)
	assert.Contains(t, *res.Error, "boom")
}

func TestSendContextCancellation(t *testing.T) {
	b := New()
	defer b.Listen(Content, func(ctx context.Context, msg Message, respond func(*types.Result)) {
		// never responds
	})()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Send(ctx, Content, Message{Action: types.ActionDisable})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindowPostAndListen(t *testing.T) {
	w := NewWindow()

	var got []WindowEvent
	remove := w.AddListener(func(ev WindowEvent) { got = append(got, ev) })

	w.Post(WindowEvent{Type: EventUpdateJobsPerPage, Data: map[string]interface{}{FieldJobsPerPage: 35}})
	require.Len(t, got, 1)
	assert.Equal(t, EventUpdateJobsPerPage, got[0].Type)

	remove()
	w.Post(WindowEvent{Type: EventRequestJobsPerPage})
	assert.Len(t, got, 1, "removed listeners see nothing")
}

func TestWindowPostWithoutListenersIsDropped(t *testing.T) {
	w := NewWindow()
	assert.NotPanics(t, func() {
		w.Post(WindowEvent{Type: EventAPIIntercepted})
	})
}
