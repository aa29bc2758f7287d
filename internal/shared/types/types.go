package types

// Action identifies a state-machine transition requested over the bus.
type Action string

const (
	ActionEnable           Action = "enable"
	ActionDisable          Action = "disable"
	ActionDisableAndReload Action = "disable-and-reload"
	ActionUpdateRating     Action = "update-rating"
	ActionUpdatePagination Action = "update-pagination"
	ActionInjectFrevo      Action = "inject-frevo"
)

// Result represents an operation result exchanged across context boundaries.
// Failures travel as data, never as panics or raw errors.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *string                `json:"error,omitempty"`
}

// Ok creates a successful result.
func Ok(data map[string]interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// Fail creates a failed result.
func Fail(message string) *Result {
	msg := message
	return &Result{Success: false, Error: &msg}
}

// Settings is the synchronized-scope user configuration.
type Settings struct {
	Enabled       bool    `json:"enabled"`
	MinStarRating float64 `json:"min_star_rating"`
}

// Pagination is the local-scope display preference.
type Pagination struct {
	JobsPerPage int `json:"jobs_per_page"`
}

// DefaultJobsPerPage is assumed when no preference has been persisted yet.
const DefaultJobsPerPage = 20

// ClampRating bounds a star rating to the valid [0,5] range.
func ClampRating(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

// ClampJobsPerPage bounds a page size to the valid [1,100] range.
func ClampJobsPerPage(n int) int {
	if n < 1 {
		return DefaultJobsPerPage
	}
	if n > 100 {
		return 100
	}
	return n
}

// User mirrors the backend's user record.
type User struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Picture     string `json:"picture,omitempty"`
	PackageType string `json:"package_type,omitempty"`
}

// UsageCounter tracks one metered action.
type UsageCounter struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// DailyUsage groups the two metered actions.
type DailyUsage struct {
	Proposals       UsageCounter `json:"proposals"`
	UserDetailViews UsageCounter `json:"user_detail_views"`
}

// JobOwner is the revealed client identity behind the paywall gate.
type JobOwner struct {
	Avatar     string `json:"avatar"`
	PublicName string `json:"public_name"`
	Username   string `json:"username"`
}

// ProjectSnapshot is the lightweight public metadata captured when listing
// responses are observed in flight.
type ProjectSnapshot struct {
	ID                 int64  `json:"id"`
	OwnerID            int64  `json:"owner_id"`
	Title              string `json:"title"`
	PreviewDescription string `json:"preview_description"`
	SeoURL             string `json:"seo_url"`
	Type               string `json:"type"`
	Timestamp          int64  `json:"timestamp"`
}

// WSMessage represents a WebSocket control-plane message.
type WSMessage struct {
	Type    string                 `json:"type"`
	Action  Action                 `json:"action,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}
