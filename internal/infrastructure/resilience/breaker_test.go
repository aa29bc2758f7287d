package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

// tripAfter mirrors the policy the collaboration-API client installs: a short
// run of consecutive failures opens the circuit.
func tripAfter(n uint32) Settings {
	return Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= n },
	}
}

func fail(b *Breaker) error {
	_, err := b.Execute(func() (interface{}, error) { return nil, errDownstream })
	return err
}

func succeed(b *Breaker) error {
	_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	return err
}

func TestBreakerAdmitsWhileHealthy(t *testing.T) {
	b := New("api", tripAfter(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, succeed(b))
	}

	assert.Equal(t, StateClosed, b.State())
	c := b.Counts()
	assert.Equal(t, uint32(5), c.TotalSuccesses)
	assert.Equal(t, uint32(0), c.TotalFailures)
}

func TestBreakerTripsOnRepeatedFailure(t *testing.T) {
	b := New("api", tripAfter(3))

	require.NoError(t, succeed(b))
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, fail(b), errDownstream)
	}

	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerFastFailsWhileOpen(t *testing.T) {
	b := New("api", tripAfter(2))
	fail(b)
	fail(b)
	require.Equal(t, StateOpen, b.State())

	ran := false
	_, err := b.Execute(func() (interface{}, error) {
		ran = true
		return "ok", nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran, "open circuit must not touch the downstream")
}

func TestBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("api", tripAfter(3))

	fail(b)
	fail(b)
	require.NoError(t, succeed(b))
	fail(b)
	fail(b)

	assert.Equal(t, StateClosed, b.State(), "non-consecutive failures never trip")
}

func TestBreakerProbesAfterTimeoutAndCloses(t *testing.T) {
	s := tripAfter(2)
	s.MaxRequests = 2
	s.Timeout = 20 * time.Millisecond
	b := New("api", s)

	fail(b)
	fail(b)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, succeed(b))
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	s := tripAfter(2)
	s.Timeout = 20 * time.Millisecond
	b := New("api", s)

	fail(b)
	fail(b)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, fail(b), errDownstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerBoundsHalfOpenAdmission(t *testing.T) {
	s := tripAfter(2)
	s.MaxRequests = 1
	s.Timeout = 20 * time.Millisecond
	b := New("api", s)

	fail(b)
	fail(b)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		b.Execute(func() (interface{}, error) {
			close(done)
			<-release
			return "ok", nil
		})
	}()
	<-done

	_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrTooManyRequests, "only MaxRequests probes at a time")
	close(release)
}

func TestBreakerCountsPanicAsFailure(t *testing.T) {
	b := New("api", tripAfter(2))

	require.Panics(t, func() {
		b.Execute(func() (interface{}, error) { panic("handler blew up") })
	})

	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerNotifiesTransitions(t *testing.T) {
	var transitions []string

	s := tripAfter(2)
	s.Timeout = 20 * time.Millisecond
	s.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	b := New("api", s)

	fail(b)
	fail(b)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, succeed(b))

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}
