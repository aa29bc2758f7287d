package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

const clearDateLayout = "2006-01-02"

// JobOwnerCache remembers revealed job owners so a job/owner pair never
// spends a second metered reveal. The cache lives in the local scope and is
// valid for one calendar day: the stored last-clear date is compared with
// today on every access, and a mismatch wipes the whole cache before the
// lookup proceeds.
type JobOwnerCache struct {
	st     store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewJobOwnerCache builds the cache over the given store.
func NewJobOwnerCache(st store.Store, logger *zap.Logger) *JobOwnerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobOwnerCache{st: st, logger: logger, now: time.Now}
}

func ownerKey(jobID, ownerID int64) string {
	return fmt.Sprintf("%d_%d", jobID, ownerID)
}

// Get returns the cached owner for a job/owner pair, if revealed today.
func (c *JobOwnerCache) Get(ctx context.Context, jobID, ownerID int64) (*types.JobOwner, bool) {
	entries, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("owner cache read failed", zap.Error(err))
		return nil, false
	}
	owner, ok := entries[ownerKey(jobID, ownerID)]
	if !ok {
		return nil, false
	}
	return &owner, true
}

// Put records a revealed owner.
func (c *JobOwnerCache) Put(ctx context.Context, jobID, ownerID int64, owner types.JobOwner) error {
	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	entries[ownerKey(jobID, ownerID)] = owner
	return c.save(ctx, entries)
}

// Clear wipes every entry and stamps today as the last clear date.
func (c *JobOwnerCache) Clear(ctx context.Context) error {
	if err := c.st.Delete(ctx, store.ScopeLocal, []string{store.KeyJobOwnerCache}); err != nil {
		return err
	}
	return c.st.Set(ctx, store.ScopeLocal, map[string]string{
		store.KeyLastClearDate: c.now().Format(clearDateLayout),
	})
}

// ScheduleDailyClear registers the midnight wipe on the given scheduler.
// The on-access date check still runs; the schedule only keeps long-lived
// idle processes from serving a stale cache at the day boundary.
func (c *JobOwnerCache) ScheduleDailyClear(ctx context.Context, cr *cron.Cron) error {
	_, err := cr.AddFunc("0 0 * * *", func() {
		if err := c.Clear(ctx); err != nil {
			c.logger.Warn("scheduled owner cache clear failed", zap.Error(err))
		}
	})
	return err
}

// load reads the cache after enforcing the daily boundary.
func (c *JobOwnerCache) load(ctx context.Context) (map[string]types.JobOwner, error) {
	vals, err := c.st.Get(ctx, store.ScopeLocal, []string{store.KeyJobOwnerCache, store.KeyLastClearDate})
	if err != nil {
		return nil, err
	}

	today := c.now().Format(clearDateLayout)
	if vals[store.KeyLastClearDate] != today {
		// Yesterday's reveals are stale: the backend resets quotas
		// daily, so stale entries would mask fresh usage numbers.
		if err := c.Clear(ctx); err != nil {
			return nil, err
		}
		return make(map[string]types.JobOwner), nil
	}

	entries := make(map[string]types.JobOwner)
	if raw := vals[store.KeyJobOwnerCache]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			c.logger.Warn("owner cache corrupt, resetting", zap.Error(err))
			return make(map[string]types.JobOwner), nil
		}
	}
	return entries, nil
}

func (c *JobOwnerCache) save(ctx context.Context, entries map[string]types.JobOwner) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode owner cache: %w", err)
	}
	return c.st.Set(ctx, store.ScopeLocal, map[string]string{
		store.KeyJobOwnerCache: string(raw),
	})
}

// ProjectDataMap keeps the project snapshots captured from intercepted
// listing responses, so a detail page can resolve its slug to an owner id
// without re-requesting the host API.
type ProjectDataMap struct {
	st     store.Store
	logger *zap.Logger
}

// NewProjectDataMap builds the map over the given store.
func NewProjectDataMap(st store.Store, logger *zap.Logger) *ProjectDataMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectDataMap{st: st, logger: logger}
}

// Record merges the given snapshots into the map, newest wins.
func (m *ProjectDataMap) Record(ctx context.Context, snaps ...types.ProjectSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	entries, err := m.load(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		entries[strconv.FormatInt(snap.ID, 10)] = snap
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode project map: %w", err)
	}
	return m.st.Set(ctx, store.ScopeLocal, map[string]string{
		store.KeyProjectData: string(raw),
	})
}

// Get returns the snapshot for a project id.
func (m *ProjectDataMap) Get(ctx context.Context, id int64) (*types.ProjectSnapshot, bool) {
	entries, err := m.load(ctx)
	if err != nil {
		m.logger.Warn("project map read failed", zap.Error(err))
		return nil, false
	}
	snap, ok := entries[strconv.FormatInt(id, 10)]
	if !ok {
		return nil, false
	}
	return &snap, true
}

// BySlug resolves a detail-page slug to its snapshot. Slugs are matched on
// the trailing segment of the stored seo_url.
func (m *ProjectDataMap) BySlug(ctx context.Context, slug string) (*types.ProjectSnapshot, bool) {
	slug = strings.Trim(slug, "/")
	if slug == "" {
		return nil, false
	}
	entries, err := m.load(ctx)
	if err != nil {
		m.logger.Warn("project map read failed", zap.Error(err))
		return nil, false
	}
	for _, snap := range entries {
		if strings.Trim(snap.SeoURL, "/") == slug || strings.HasSuffix(strings.Trim(snap.SeoURL, "/"), "/"+slug) {
			s := snap
			return &s, true
		}
	}
	return nil, false
}

func (m *ProjectDataMap) load(ctx context.Context) (map[string]types.ProjectSnapshot, error) {
	vals, err := m.st.Get(ctx, store.ScopeLocal, []string{store.KeyProjectData})
	if err != nil {
		return nil, err
	}
	entries := make(map[string]types.ProjectSnapshot)
	if raw := vals[store.KeyProjectData]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			m.logger.Warn("project map corrupt, resetting", zap.Error(err))
			return make(map[string]types.ProjectSnapshot), nil
		}
	}
	return entries, nil
}
