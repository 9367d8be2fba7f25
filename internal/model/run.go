package model

import "time"

// Run tracks one enrichment request through its lifecycle.
type Run struct {
	ID        string    `json:"id"`
	Names     []string  `json:"names"`
	Status    RunStatus `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the run reached a terminal state.
func (r Run) Done() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusFailed
}
