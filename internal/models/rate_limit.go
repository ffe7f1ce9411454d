package models

import "time"

// RateLimitEntry counts failed attempts for one key inside a fixed window
type RateLimitEntry struct {
	Key         string    `db:"key" json:"key"`
	Count       int       `db:"count" json:"count"`
	WindowStart time.Time `db:"window_start" json:"window_start"`
}

// WindowEnd returns the instant the entry's window closes
func (e *RateLimitEntry) WindowEnd(window time.Duration) time.Time {
	return e.WindowStart.Add(window)
}

// Active reports whether the window is still open at now
func (e *RateLimitEntry) Active(now time.Time, window time.Duration) bool {
	return now.Before(e.WindowEnd(window))
}
