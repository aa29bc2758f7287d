// Package backend is the client for the collaboration API: sign-in, profile
// and quota reads, metered job-owner reveals, profile sync, and proposal
// generation. Calls ride a resty client over a retrying transport, behind a
// rate limiter and a circuit breaker; quota exhaustion is a first-class
// outcome, not an error.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/frevohq/frevo-core/internal/infrastructure/resilience"
	"github.com/frevohq/frevo-core/internal/shared/types"
)

// Config tunes the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	RateLimit float64 // requests per second, 0 means unlimited
}

// ErrNotSignedIn is returned when an authenticated call has no valid
// credential. Callers surface it as a blocking sign-in prompt.
var ErrNotSignedIn = fmt.Errorf("backend: not signed in")

// Client talks to the collaboration API.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	session *AuthSession
	owners  *JobOwnerCache
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewClient creates a production-ready client. The session supplies bearer
// tokens; the owner cache, when non-nil, short-circuits repeat reveals.
func NewClient(cfg Config, session *AuthSession, owners *JobOwnerCache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "FrevoCore/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	breaker := resilience.New("collaboration-api", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		session: session,
		owners:  owners,
		logger:  logger,
	}
}

// Session exposes the auth session for callers that need identity checks.
func (c *Client) Session() *AuthSession {
	return c.session
}

// BreakerState reports the circuit breaker state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// request builds a rate-limited request, failing fast when the circuit is
// open. authed attaches the stored bearer token and fails without one.
func (c *Client) request(ctx context.Context, authed bool) (*resty.Request, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	c.mu.RLock()
	req := c.resty.R().SetContext(ctx)
	c.mu.RUnlock()

	if authed {
		token, ok := c.session.Token(ctx)
		if !ok {
			return nil, ErrNotSignedIn
		}
		req.SetAuthToken(token)
	}
	return req, nil
}

// execute runs one call under the circuit breaker. Only transport failures
// and server errors count against the breaker; 4xx responses are the
// caller's business.
func (c *Client) execute(fn func() (*resty.Response, error)) (*resty.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("server error: %s", resp.Status())
		}
		return resp, nil
	})
	if err == resilience.ErrCircuitOpen {
		return nil, fmt.Errorf("collaboration api unavailable: %w", err)
	}
	if err != nil {
		if resp, ok := result.(*resty.Response); ok && resp != nil {
			return resp, err
		}
		return nil, err
	}
	return result.(*resty.Response), nil
}

type signInRequest struct {
	IDToken string `json:"idToken"`
}

type signInResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// SignIn exchanges a Google id token for a backend session and persists it.
func (c *Client) SignIn(ctx context.Context, idToken string) (*types.User, error) {
	req, err := c.request(ctx, false)
	if err != nil {
		return nil, err
	}

	var out signInResponse
	resp, err := c.execute(func() (*resty.Response, error) {
		return req.SetBody(signInRequest{IDToken: idToken}).
			SetResult(&out).
			Post("/api/auth/google-signin")
	})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sign in rejected: %s", resp.Status())
	}
	if err := c.session.Save(ctx, out.Token, out.User); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.logger.Info("signed in", zap.String("email", out.User.Email))
	return &out.User, nil
}

// Profile is the authenticated user's account state.
type Profile struct {
	User       types.User       `json:"user"`
	DailyUsage types.DailyUsage `json:"daily_usage"`
}

type profileResponse struct {
	User struct {
		types.User
		DailyUsage types.DailyUsage `json:"daily_usage"`
	} `json:"user"`
}

// FetchProfile reads the current user record and quota counters.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	req, err := c.request(ctx, true)
	if err != nil {
		return nil, err
	}

	var out profileResponse
	resp, err := c.execute(func() (*resty.Response, error) {
		return req.SetResult(&out).Get("/api/users/profile")
	})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrNotSignedIn
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch profile: %s", resp.Status())
	}
	return &Profile{User: out.User.User, DailyUsage: out.User.DailyUsage}, nil
}

// RevealOutcome is the definite answer to a reveal request. Exactly one of
// Owner or QuotaExceeded describes the result; quota exhaustion carries the
// upgrade-prompt material instead of failing the call.
type RevealOutcome struct {
	Owner         *types.JobOwner     `json:"owner,omitempty"`
	Usage         *types.UsageCounter `json:"usage,omitempty"`
	QuotaExceeded bool                `json:"quota_exceeded"`
	Limit         int                 `json:"limit,omitempty"`
	Message       string              `json:"message,omitempty"`
	FromCache     bool                `json:"from_cache"`
}

type revealRequest struct {
	OwnerID int64 `json:"owner_id"`
	JobID   int64 `json:"job_id"`
}

type revealResponse struct {
	JobOwner types.JobOwner     `json:"job_owner"`
	Usage    types.UsageCounter `json:"usage"`
}

type quotaError struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Limit   int                `json:"limit"`
	Usage   types.UsageCounter `json:"usage"`
}

// RevealOwner resolves the client identity behind a job. A pair already in
// today's cache is answered locally and never re-spends the metered quota.
func (c *Client) RevealOwner(ctx context.Context, jobID, ownerID int64) (*RevealOutcome, error) {
	if c.owners != nil {
		if owner, ok := c.owners.Get(ctx, jobID, ownerID); ok {
			return &RevealOutcome{Owner: owner, FromCache: true}, nil
		}
	}

	req, err := c.request(ctx, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.execute(func() (*resty.Response, error) {
		return req.SetBody(revealRequest{OwnerID: ownerID, JobID: jobID}).
			Post("/api/users/job-owner-details")
	})
	if err != nil {
		return nil, fmt.Errorf("reveal owner: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var out revealResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, fmt.Errorf("reveal owner: decode: %w", err)
		}
		if c.owners != nil {
			if err := c.owners.Put(ctx, jobID, ownerID, out.JobOwner); err != nil {
				c.logger.Warn("owner cache write failed", zap.Error(err))
			}
		}
		return &RevealOutcome{Owner: &out.JobOwner, Usage: &out.Usage}, nil

	case http.StatusTooManyRequests:
		var qe quotaError
		if err := json.Unmarshal(resp.Body(), &qe); err != nil {
			return nil, fmt.Errorf("reveal owner: decode quota response: %w", err)
		}
		return &RevealOutcome{
			QuotaExceeded: true,
			Limit:         qe.Limit,
			Message:       qe.Message,
			Usage:         &qe.Usage,
		}, nil

	case http.StatusUnauthorized:
		return nil, ErrNotSignedIn

	default:
		return nil, fmt.Errorf("reveal owner: %s", resp.Status())
	}
}

// SaveProfile pushes the freelancer's own profile snapshot. The backend
// answers 409 when the snapshot already exists; that is a success.
func (c *Client) SaveProfile(ctx context.Context, profile map[string]interface{}) error {
	req, err := c.request(ctx, true)
	if err != nil {
		return err
	}

	resp, err := c.execute(func() (*resty.Response, error) {
		return req.SetBody(profile).Post("/api/users/save-profile")
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusConflict:
		return nil
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrNotSignedIn
	case resp.IsError():
		return fmt.Errorf("save profile: %s", resp.Status())
	}
	return nil
}

// ProposalTurn is one exchange in a proposal conversation.
type ProposalTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProposalResult is either a follow-up question or the final proposal text.
type ProposalResult struct {
	Question string              `json:"question,omitempty"`
	Proposal string              `json:"proposal,omitempty"`
	Usage    *types.UsageCounter `json:"usage,omitempty"`
}

// Final reports whether the conversation produced a proposal.
func (r *ProposalResult) Final() bool {
	return r.Proposal != ""
}

type proposalRequest struct {
	Description  string         `json:"description"`
	Conversation []ProposalTurn `json:"conversation,omitempty"`
}

// GenerateProposal runs one conversational turn against the generator. The
// backend either asks a follow-up question or returns the proposal with
// updated usage.
func (c *Client) GenerateProposal(ctx context.Context, description string, conversation []ProposalTurn) (*ProposalResult, error) {
	req, err := c.request(ctx, true)
	if err != nil {
		return nil, err
	}

	var out ProposalResult
	resp, err := c.execute(func() (*resty.Response, error) {
		return req.SetBody(proposalRequest{Description: description, Conversation: conversation}).
			SetResult(&out).
			Post("/api/generate-proposal")
	})
	if err != nil {
		return nil, fmt.Errorf("generate proposal: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &out, nil
	case http.StatusTooManyRequests:
		var qe quotaError
		if err := json.Unmarshal(resp.Body(), &qe); err == nil && qe.Message != "" {
			return nil, fmt.Errorf("generate proposal: %s", qe.Message)
		}
		return nil, fmt.Errorf("generate proposal: quota exhausted")
	case http.StatusUnauthorized:
		return nil, ErrNotSignedIn
	default:
		return nil, fmt.Errorf("generate proposal: %s", resp.Status())
	}
}
