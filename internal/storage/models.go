package storage

import "time"

// Run is one journaled batch command
type Run struct {
	ID             string
	Operation      string
	UserID         int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Total          int
	Success        int
	Skipped        int
	Failed         int
	TotalCollected string // base units, decimal string
	Reward         string // base units, decimal string
	RewardTx       string
	Error          string // set when the run could not start
}

// Duration returns how long the run took
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
