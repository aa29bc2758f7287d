// Package store provides the namespaced key-value store shared by the three
// execution contexts. Two scopes exist: Sync (small, follows the account
// across devices) and Local (larger, device-only). Reads after writes in the
// same process see the new value; other processes converge through change
// notifications. Writes are last-writer-wins with no merging.
package store

import "context"

// Scope selects one of the two storage namespaces.
type Scope string

const (
	ScopeSync  Scope = "sync"
	ScopeLocal Scope = "local"
)

// Change describes a single key transition delivered to subscribers.
type Change struct {
	Scope    Scope
	Key      string
	OldValue string
	NewValue string
}

// ChangeFunc receives change notifications. Callbacks must be quick and must
// not call back into the store synchronously.
type ChangeFunc func(Change)

// Store is the persistent settings store consumed by every context.
type Store interface {
	// Get returns the values for the requested keys. Absent keys are simply
	// missing from the result, not an error.
	Get(ctx context.Context, scope Scope, keys []string) (map[string]string, error)

	// Set writes all entries and notifies subscribers of every changed key.
	Set(ctx context.Context, scope Scope, entries map[string]string) error

	// Delete removes the given keys, notifying subscribers.
	Delete(ctx context.Context, scope Scope, keys []string) error

	// Clear empties an entire scope.
	Clear(ctx context.Context, scope Scope) error

	// Subscribe registers a change listener for one scope. The returned
	// function unsubscribes.
	Subscribe(scope Scope, fn ChangeFunc) (unsubscribe func())
}

// Well-known keys.
const (
	KeyEnabled       = "enabled"
	KeyMinStarRating = "minStarRating"
	KeyJobsPerPage   = "jobsPerPage"
	KeyAuthToken     = "authToken"
	KeyUser          = "user"
	KeyLastAuthTime  = "lastAuthTime"
	KeyLastClearDate = "ownerCacheLastClearDate"
	KeyJobOwnerCache = "jobOwnerCache"
	KeyProjectData   = "projectData"
)
