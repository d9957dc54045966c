package postsession

import "time"

// UpdateResult reports one pipeline attempt for one session. Merge-stage
// failures land in Errors without flipping Success; analysis-stage
// failures set Error and clear Success.
type UpdateResult struct {
	SessionID int64 `json:"session_id"`

	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`

	ProfileUpdated  bool     `json:"profile_updated"`
	MemoriesUpdated bool     `json:"memories_updated"`
	Errors          []string `json:"errors,omitempty"`

	// RawResponse carries the unparseable provider output for admin
	// diagnosis. Never shown to end users.
	RawResponse string `json:"raw_response,omitempty"`

	Provider       string        `json:"provider,omitempty"`
	CostUSD        float64       `json:"cost_usd,omitempty"`
	ProcessingTime time.Duration `json:"processing_time,omitempty"`

	// Retryable marks transient provider failures. The task layer uses
	// it to decide whether another attempt is worthwhile.
	Retryable bool `json:"-"`
}

func failure(sessionID int64, msg string) *UpdateResult {
	return &UpdateResult{SessionID: sessionID, Success: false, Error: msg}
}

func skipped(sessionID int64, reason string) *UpdateResult {
	return &UpdateResult{SessionID: sessionID, Success: true, Skipped: true, Reason: reason}
}
