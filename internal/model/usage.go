package model

import "time"

// Default tier limits.
const (
	DefaultFreeDailyLimit = 3
	DefaultAnonymousLimit = 2
)

// UsageEvent is one granted free-tier explanation.
type UsageEvent struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Date   time.Time `json:"date"`
}

// UsageSummary describes a caller's quota position.
// Limit is nil for Pro users, which encodes as JSON null.
type UsageSummary struct {
	Count       int   `json:"count"`
	IsPro       bool  `json:"isPro"`
	Limit       *int  `json:"limit"`
	IsCanceling bool  `json:"isCanceling,omitempty"`
	CancelAt    int64 `json:"cancelAt,omitempty"`
	IsAnonymous bool  `json:"isAnonymous,omitempty"`
}

// AnonymousUsage is the fixed summary for unauthenticated callers.
// Their counter lives in the browser.
func AnonymousUsage(limit int) UsageSummary {
	return UsageSummary{Count: 0, IsPro: false, Limit: &limit, IsAnonymous: true}
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
