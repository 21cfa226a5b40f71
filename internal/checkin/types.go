package checkin

// Response is returned by the check-in endpoint.
type Response struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	AlreadyCheckedIn bool   `json:"already_checked_in,omitempty"`
	Streak           int    `json:"streak,omitempty"`
}

// Status describes a wallet's check-in state for the current day.
type Status struct {
	WalletAddress  string `json:"wallet_address"`
	CheckedInToday bool   `json:"checked_in_today"`
	Streak         int    `json:"streak"`
	LastCheckin    string `json:"last_checkin,omitempty"`
	TotalCheckins  int    `json:"total_checkins"`
}

// Progress is emitted after every address of a sweep.
type Progress struct {
	Processed      int
	Total          int
	Success        int
	Already        int
	Failed         int
	CurrentAddress string
}

// Done reports whether this is the last event of the sweep.
func (p Progress) Done() bool {
	return p.Processed >= p.Total
}

// Summary is the tally of a sweep.
type Summary struct {
	Total   int
	Success int
	Already int
	Failed  int
}
