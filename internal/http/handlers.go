package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/backend"
	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/infrastructure/monitoring"
	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

// Handlers contains all control-plane HTTP handlers.
type Handlers struct {
	bus      *bus.Bus
	st       store.Store
	client   *backend.Client
	projects *backend.ProjectDataMap
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(
	b *bus.Bus,
	st store.Store,
	client *backend.Client,
	projects *backend.ProjectDataMap,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		bus:      b,
		st:       st,
		client:   client,
		projects: projects,
		metrics:  metrics,
		logger:   logger,
		started:  time.Now(),
	}
}

// Root reports the service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "frevo-core",
	})
}

// Health reports liveness and the backend circuit state.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"backend":        gin.H{"breaker": h.client.BreakerState().String()},
	})
}

// GetSettings reads the synchronized user settings.
func (h *Handlers) GetSettings(c *gin.Context) {
	vals, err := h.st.Get(c.Request.Context(), store.ScopeSync, []string{
		store.KeyEnabled, store.KeyMinStarRating,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rating, _ := strconv.ParseFloat(vals[store.KeyMinStarRating], 64)
	c.JSON(http.StatusOK, types.Settings{
		Enabled:       vals[store.KeyEnabled] == "true",
		MinStarRating: types.ClampRating(rating),
	})
}

// PutSettings applies settings through the content context's state machine
// so the mirrors and side effects stay coherent.
func (h *Handlers) PutSettings(c *gin.Context) {
	var body types.Settings
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action := types.ActionDisable
	if body.Enabled {
		action = types.ActionEnable
	}
	if res := h.dispatch(c, action, nil); res == nil || !res.Success {
		return
	}
	res := h.dispatch(c, types.ActionUpdateRating, map[string]interface{}{
		"minStarRating": body.MinStarRating,
	})
	if res == nil {
		return
	}
	respondResult(c, res)
}

// GetPagination reads the page-size preference.
func (h *Handlers) GetPagination(c *gin.Context) {
	vals, err := h.st.Get(c.Request.Context(), store.ScopeLocal, []string{store.KeyJobsPerPage})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	n := types.DefaultJobsPerPage
	if v, err := strconv.Atoi(vals[store.KeyJobsPerPage]); err == nil {
		n = types.ClampJobsPerPage(v)
	}
	c.JSON(http.StatusOK, types.Pagination{JobsPerPage: n})
}

// PutPagination updates the page-size preference.
func (h *Handlers) PutPagination(c *gin.Context) {
	var body types.Pagination
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.dispatch(c, types.ActionUpdatePagination, map[string]interface{}{
		"jobsPerPage": body.JobsPerPage,
	})
	if res == nil {
		return
	}
	respondResult(c, res)
}

type actionRequest struct {
	Action  types.Action           `json:"action" binding:"required"`
	Payload map[string]interface{} `json:"payload"`
}

// Dispatch routes one state-machine action to the content context.
func (h *Handlers) Dispatch(c *gin.Context) {
	var body actionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.dispatch(c, body.Action, body.Payload)
	if res == nil {
		return
	}
	respondResult(c, res)
}

type signInRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// SignIn exchanges a Google id token for a backend session.
func (h *Handlers) SignIn(c *gin.Context) {
	var body signInRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.client.SignIn(c.Request.Context(), body.IDToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Profile reads the signed-in user's record and quota counters.
func (h *Handlers) Profile(c *gin.Context) {
	profile, err := h.client.FetchProfile(c.Request.Context())
	if err != nil {
		h.respondBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type revealRequest struct {
	JobID   int64 `json:"job_id" binding:"required"`
	OwnerID int64 `json:"owner_id" binding:"required"`
}

// RevealOwner resolves a job's client identity, spending quota only on
// uncached pairs. Quota exhaustion is a 200 with upgrade-prompt material.
func (h *Handlers) RevealOwner(c *gin.Context) {
	var body revealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.client.RevealOwner(c.Request.Context(), body.JobID, body.OwnerID)
	if err != nil {
		h.respondBackendError(c, err)
		return
	}

	if h.metrics != nil {
		switch {
		case outcome.QuotaExceeded:
			h.metrics.RecordReveal("quota")
		case outcome.FromCache:
			h.metrics.RecordReveal("cached")
		default:
			h.metrics.RecordReveal("revealed")
		}
	}

	if outcome.QuotaExceeded {
		c.JSON(http.StatusOK, gin.H{
			"quota_exceeded": true,
			"limit":          outcome.Limit,
			"usage":          outcome.Usage,
			"message":        outcome.Message,
			"upgrade_prompt": true,
		})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type proposalRequest struct {
	Description  string                 `json:"description" binding:"required"`
	Conversation []backend.ProposalTurn `json:"conversation"`
}

// GenerateProposal runs one conversational proposal turn.
func (h *Handlers) GenerateProposal(c *gin.Context) {
	var body proposalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.client.GenerateProposal(c.Request.Context(), body.Description, body.Conversation)
	if err != nil {
		h.respondBackendError(c, err)
		return
	}
	if h.metrics != nil {
		if result.Final() {
			h.metrics.RecordProposal("final")
		} else {
			h.metrics.RecordProposal("question")
		}
	}
	c.JSON(http.StatusOK, result)
}

// GetProject looks up a captured project snapshot by id or slug.
func (h *Handlers) GetProject(c *gin.Context) {
	if slug := c.Query("slug"); slug != "" {
		snap, ok := h.projects.BySlug(c.Request.Context(), slug)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not captured"})
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}
	snap, ok := h.projects.Get(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not captured"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// dispatch sends one action to the content context. A nil return means the
// HTTP response was already written.
func (h *Handlers) dispatch(c *gin.Context, action types.Action, payload map[string]interface{}) *types.Result {
	res, err := h.bus.Send(c.Request.Context(), bus.Content, bus.Message{
		Action:  action,
		Payload: payload,
	})
	if errors.Is(err, bus.ErrNoReceiver) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "content context not listening"})
		return nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	return res
}

func (h *Handlers) respondBackendError(c *gin.Context, err error) {
	if errors.Is(err, backend.ErrNotSignedIn) {
		// Missing credential blocks the feature until the user signs in.
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":           "sign_in_required",
			"blocking_prompt": true,
		})
		return
	}
	h.logger.Warn("backend call failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
