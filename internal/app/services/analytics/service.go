// Package analytics records funnel events and summarises traffic for the
// admin dashboard.
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

const (
	DefaultDays = 30
	MaxDays     = 365
	topN        = 10

	maxPathLength      = 512
	maxReferrerLength  = 512
	maxUserAgentLength = 256
)

// Service records events and builds dashboard summaries.
type Service struct {
	store storage.AnalyticsStore
	hub   *Hub
	log   *logging.Logger
	now   func() time.Time
}

// New creates an analytics service publishing to hub (may be nil).
func New(store storage.AnalyticsStore, hub *Hub, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("analytics")
	}
	return &Service{store: store, hub: hub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Hub returns the live event hub.
func (s *Service) Hub() *Hub { return s.hub }

// RecordEvent validates, stores and broadcasts evt.
func (s *Service) RecordEvent(ctx context.Context, evt analytics.Event) (analytics.Event, error) {
	if !evt.Type.Valid() {
		return analytics.Event{}, apperrors.Validation("type", "unknown event type")
	}
	evt.Path = truncate(strings.TrimSpace(evt.Path), maxPathLength)
	if evt.Path == "" || !strings.HasPrefix(evt.Path, "/") {
		evt.Path = "/"
	}
	evt.Referrer = truncate(strings.TrimSpace(evt.Referrer), maxReferrerLength)
	evt.ReferrerHost = analytics.ReferrerLabel(evt.Referrer)
	evt.UserAgent = truncate(strings.TrimSpace(evt.UserAgent), maxUserAgentLength)
	evt.VisitorID = truncate(strings.TrimSpace(evt.VisitorID), 64)
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}

	stored, err := s.store.CreateEvent(ctx, evt)
	if err != nil {
		return analytics.Event{}, err
	}
	if s.hub != nil {
		s.hub.Publish(stored)
	}
	return stored, nil
}

// Summary aggregates the last days UTC days, today included. Zero means
// DefaultDays. Counting happens in the store; only the rollup is loaded.
func (s *Service) Summary(ctx context.Context, days int) (analytics.Summary, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 || days > MaxDays {
		return analytics.Summary{}, apperrors.Validation("days", "days must be between 1 and 365")
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -(days - 1))

	agg, err := s.store.AggregateEvents(ctx, from, now, topN)
	if err != nil {
		return analytics.Summary{}, err
	}

	sum := analytics.Summary{
		From:           from,
		To:             now,
		Totals:         make(map[analytics.EventType]int, len(analytics.EventTypes)),
		UniqueVisitors: agg.UniqueVisitors,
		TopPages:       nonNil(agg.TopPages),
		TopReferrers:   nonNil(agg.TopReferrers),
	}
	for _, t := range analytics.EventTypes {
		sum.Totals[t] = agg.Totals[t]
	}
	sum.ViewsPerDay = make([]analytics.DailyCount, 0, days)
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		sum.ViewsPerDay = append(sum.ViewsPerDay, analytics.DailyCount{Day: key, Views: agg.ViewsPerDay[key]})
	}
	if gens := sum.Totals[analytics.EventGeneration]; gens > 0 {
		sum.ConversionRate = float64(sum.Totals[analytics.EventPaymentSucceeded]) / float64(gens)
	}
	return sum, nil
}

func nonNil(r []analytics.Ranked) []analytics.Ranked {
	if r == nil {
		return []analytics.Ranked{}
	}
	return r
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
