package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, ScopeSync, map[string]string{
		KeyEnabled:       "true",
		KeyMinStarRating: "3.5",
	}))

	got, err := s.Get(ctx, ScopeSync, []string{KeyEnabled, KeyMinStarRating, "missing"})
	require.NoError(t, err)
	assert.Equal(t, "true", got[KeyEnabled])
	assert.Equal(t, "3.5", got[KeyMinStarRating])
	_, ok := got["missing"]
	assert.False(t, ok, "absent keys are omitted, not errors")
}

func TestMemoryScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, ScopeLocal, map[string]string{KeyJobsPerPage: "35"}))

	got, err := s.Get(ctx, ScopeSync, []string{KeyJobsPerPage})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// A change written by one context becomes visible to a different subscriber
// context once its notification fires: nobody stays permanently stale.
func TestMemoryConvergenceAcrossContexts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	var mu sync.Mutex
	var seen []Change
	unsubscribe := s.Subscribe(ScopeSync, func(ch Change) {
		mu.Lock()
		seen = append(seen, ch)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, s.Set(ctx, ScopeSync, map[string]string{KeyEnabled: "true"}))

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, KeyEnabled, seen[0].Key)
	assert.Equal(t, "true", seen[0].NewValue)
	mu.Unlock()

	// The "other context" re-reads after the notification and must observe
	// the new value.
	got, err := s.Get(ctx, ScopeSync, []string{KeyEnabled})
	require.NoError(t, err)
	assert.Equal(t, "true", got[KeyEnabled])
}

func TestMemoryNoNotifyOnUnchangedValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, ScopeSync, map[string]string{KeyEnabled: "true"}))

	fired := 0
	defer s.Subscribe(ScopeSync, func(Change) { fired++ })()

	require.NoError(t, s.Set(ctx, ScopeSync, map[string]string{KeyEnabled: "true"}))
	assert.Zero(t, fired, "idempotent write must not fan out")
}

func TestMemoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, ScopeLocal, map[string]string{
		KeyAuthToken:    "tok",
		KeyLastAuthTime: "123",
	}))

	require.NoError(t, s.Delete(ctx, ScopeLocal, []string{KeyAuthToken}))
	got, err := s.Get(ctx, ScopeLocal, []string{KeyAuthToken, KeyLastAuthTime})
	require.NoError(t, err)
	assert.NotContains(t, got, KeyAuthToken)
	assert.Equal(t, "123", got[KeyLastAuthTime])

	require.NoError(t, s.Clear(ctx, ScopeLocal))
	got, err = s.Get(ctx, ScopeLocal, []string{KeyLastAuthTime})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	fired := 0
	unsubscribe := s.Subscribe(ScopeSync, func(Change) { fired++ })
	unsubscribe()

	require.NoError(t, s.Set(ctx, ScopeSync, map[string]string{KeyEnabled: "true"}))
	assert.Zero(t, fired)
}
