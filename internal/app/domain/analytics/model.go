package analytics

import (
	"net/url"
	"strings"
	"time"
)

// EventType classifies a funnel event.
type EventType string

const (
	EventPageView         EventType = "page_view"
	EventGeneration       EventType = "generation"
	EventCheckoutStarted  EventType = "checkout_started"
	EventPaymentSucceeded EventType = "payment_succeeded"
)

// EventTypes lists every recorded type.
var EventTypes = []EventType{EventPageView, EventGeneration, EventCheckoutStarted, EventPaymentSucceeded}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one recorded funnel interaction. ReferrerHost is Referrer
// reduced by ReferrerLabel and is what summaries group on.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Path         string    `json:"path"`
	Referrer     string    `json:"referrer,omitempty"`
	ReferrerHost string    `json:"referrer_host,omitempty"`
	VisitorID    string    `json:"visitor_id,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyCount is the number of page views on a UTC day.
type DailyCount struct {
	Day   string `json:"day"`
	Views int    `json:"views"`
}

// Ranked is a label with its count, used for top pages and referrers.
type Ranked struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary is the dashboard traffic overview for a window of days.
type Summary struct {
	From           time.Time         `json:"from"`
	To             time.Time         `json:"to"`
	Totals         map[EventType]int `json:"totals"`
	UniqueVisitors int               `json:"unique_visitors"`
	ViewsPerDay    []DailyCount      `json:"views_per_day"`
	TopPages       []Ranked          `json:"top_pages"`
	TopReferrers   []Ranked          `json:"top_referrers"`
	ConversionRate float64           `json:"conversion_rate"`
}

// Aggregate is the per-window rollup computed by the event store.
// ViewsPerDay is keyed by UTC day (YYYY-MM-DD) and only has days with views.
type Aggregate struct {
	Totals         map[EventType]int `json:"totals"`
	UniqueVisitors int               `json:"unique_visitors"`
	ViewsPerDay    map[string]int    `json:"views_per_day"`
	TopPages       []Ranked          `json:"top_pages"`
	TopReferrers   []Ranked          `json:"top_referrers"`
}

// ReferrerLabel reduces a referrer to its lower-case host without "www.".
// Referrers without a scheme ("www.google.com/x") are read as host first.
func ReferrerLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("//" + raw)
	}
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(raw)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
