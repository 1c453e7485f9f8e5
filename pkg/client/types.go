package client

import "time"

// ProcessStatus is one matched process from the last scan.
type ProcessStatus struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	Cmdline   string    `json:"cmdline"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"age"`
	Expired   bool      `json:"expired"`
	Killed    bool      `json:"killed"`
}

// Snapshot is the body of GET /status.
type Snapshot struct {
	Name       string          `json:"name"`
	LastScan   time.Time       `json:"last_scan"`
	Processes  []ProcessStatus `json:"processes"`
	Kills      int             `json:"kills"`
	Running    bool            `json:"running"`
	NextWakeMS int64           `json:"next_wake_ms"`
}

// NextWake converts NextWakeMS to a duration.
func (s Snapshot) NextWake() time.Duration { return time.Duration(s.NextWakeMS) * time.Millisecond }

// ErrorResponse represents an error payload returned by the server.
type ErrorResponse struct {
	Error string `json:"error"`
}
