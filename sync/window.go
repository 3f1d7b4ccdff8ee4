package sync

import "time"

// DefaultWindowDays bounds how far back a first sync reaches.
const DefaultWindowDays = 30

// Window is the closed time range a sync run fetches data for.
type Window struct {
	Since time.Time
	Until time.Time
}

// ComputeWindow returns the fetch range for one run: from the later of the
// last successful sync and the configured lookback, up to now. A user who
// never synced gets the full lookback.
func ComputeWindow(lastSyncedAt *time.Time, now time.Time, windowDays int) Window {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	floor := now.AddDate(0, 0, -windowDays)
	since := floor
	if lastSyncedAt != nil && lastSyncedAt.After(floor) {
		since = lastSyncedAt.UTC()
	}
	return Window{Since: since.UTC(), Until: now.UTC()}
}
