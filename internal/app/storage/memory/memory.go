package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/seo"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/storage"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	settings       map[string]string
	pending        map[string]payment.PendingResult
	tokens         map[string]payment.Token
	tokensByResult map[string]string
	orders         map[string]payment.Order
	events         []analytics.Event
	seo            map[string]seo.Metadata
	users          map[string]user.User
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		settings:       make(map[string]string),
		pending:        make(map[string]payment.PendingResult),
		tokens:         make(map[string]payment.Token),
		tokensByResult: make(map[string]string),
		orders:         make(map[string]payment.Order),
		seo:            make(map[string]seo.Metadata),
		users:          make(map[string]user.User),
	}
}

// SettingsStore ---------------------------------------------------------------

func (s *Store) ListSettings(_ context.Context) ([]settings.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]settings.Entry, 0, len(s.settings))
	for k, v := range s.settings {
		out = append(out, settings.Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) PutSettings(_ context.Context, entries []settings.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.settings[e.Key] = e.Value
	}
	return nil
}

// PendingStore ----------------------------------------------------------------

func (s *Store) CreatePendingResult(_ context.Context, res payment.PendingResult) (payment.PendingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	} else if _, exists := s.pending[res.ID]; exists {
		return payment.PendingResult{}, fmt.Errorf("pending result %s already exists", res.ID)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	res.Phrases = append([]string(nil), res.Phrases...)
	s.pending[res.ID] = res
	return clonePending(res), nil
}

func (s *Store) GetPendingResult(_ context.Context, id string) (payment.PendingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.pending[id]
	if !ok {
		return payment.PendingResult{}, storage.ErrNotFound
	}
	return clonePending(res), nil
}

func (s *Store) DeleteExpiredPendingResults(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, res := range s.pending {
		if !res.Expired(now) {
			continue
		}
		if tokID, ok := s.tokensByResult[id]; ok {
			if s.tokens[tokID].Used {
				continue
			}
			delete(s.tokens, tokID)
			delete(s.tokensByResult, id)
		}
		delete(s.pending, id)
		removed++
	}
	return removed, nil
}

func (s *Store) CreateToken(_ context.Context, tok payment.Token) (payment.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[tok.ResultID]; !ok {
		return payment.Token{}, fmt.Errorf("pending result %s: %w", tok.ResultID, storage.ErrNotFound)
	}
	if _, exists := s.tokensByResult[tok.ResultID]; exists {
		return payment.Token{}, fmt.Errorf("token for result %s already exists", tok.ResultID)
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	s.tokens[tok.ID] = tok
	s.tokensByResult[tok.ResultID] = tok.ID
	return tok, nil
}

func (s *Store) GetTokenByResult(_ context.Context, resultID string) (payment.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokensByResult[resultID]
	if !ok {
		return payment.Token{}, storage.ErrNotFound
	}
	return s.tokens[id], nil
}

func (s *Store) SetTokenCheckoutSession(_ context.Context, tokenID, sessionID string) (payment.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenID]
	if !ok {
		return payment.Token{}, storage.ErrNotFound
	}
	tok.CheckoutSessionID = sessionID
	s.tokens[tokenID] = tok
	return tok, nil
}

func (s *Store) MarkTokenUsed(_ context.Context, tokenID string, at time.Time) (payment.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenID]
	if !ok {
		return payment.Token{}, storage.ErrNotFound
	}
	if tok.Used {
		return tok, storage.ErrTokenUsed
	}
	usedAt := at.UTC()
	tok.Used = true
	tok.UsedAt = &usedAt
	s.tokens[tokenID] = tok
	return tok, nil
}

// OrderStore ------------------------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, order payment.Order) (payment.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.CheckoutSessionID != "" {
		for _, existing := range s.orders {
			if existing.CheckoutSessionID == order.CheckoutSessionID {
				return payment.Order{}, fmt.Errorf("order for session %s already exists", order.CheckoutSessionID)
			}
		}
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *Store) UpdateOrder(_ context.Context, order payment.Order) (payment.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[order.ID]
	if !ok {
		return payment.Order{}, storage.ErrNotFound
	}
	order.CreatedAt = existing.CreatedAt
	s.orders[order.ID] = order
	return order, nil
}

func (s *Store) GetOrderBySession(_ context.Context, sessionID string) (payment.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.CheckoutSessionID == sessionID {
			return order, nil
		}
	}
	return payment.Order{}, storage.ErrNotFound
}

func (s *Store) ListOrders(_ context.Context, filter payment.OrderFilter) ([]payment.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []payment.Order
	for _, order := range s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (s *Store) RevenueByCurrency(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, order := range s.orders {
		if order.Status == payment.OrderPaid {
			out[order.Currency] += order.AmountCents
		}
	}
	return out, nil
}

// AnalyticsStore --------------------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, evt analytics.Event) (analytics.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, evt)
	return evt, nil
}

func (s *Store) AggregateEvents(_ context.Context, from, to time.Time, top int) (analytics.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := analytics.Aggregate{
		Totals:      make(map[analytics.EventType]int),
		ViewsPerDay: make(map[string]int),
	}
	pages := make(map[string]int)
	referrers := make(map[string]int)
	visitors := make(map[string]struct{})
	for _, evt := range s.events {
		if evt.CreatedAt.Before(from) || evt.CreatedAt.After(to) {
			continue
		}
		agg.Totals[evt.Type]++
		if evt.VisitorID != "" {
			visitors[evt.VisitorID] = struct{}{}
		}
		if evt.Type != analytics.EventPageView {
			continue
		}
		agg.ViewsPerDay[evt.CreatedAt.UTC().Format(time.DateOnly)]++
		pages[evt.Path]++
		host := evt.ReferrerHost
		if host == "" {
			host = analytics.ReferrerLabel(evt.Referrer)
		}
		if host != "" {
			referrers[host]++
		}
	}
	agg.UniqueVisitors = len(visitors)
	agg.TopPages = rank(pages, top)
	agg.TopReferrers = rank(referrers, top)
	return agg, nil
}

func rank(counts map[string]int, n int) []analytics.Ranked {
	out := make([]analytics.Ranked, 0, len(counts))
	for label, count := range counts {
		out = append(out, analytics.Ranked{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SEOStore --------------------------------------------------------------------

func (s *Store) GetSEO(_ context.Context, path string) (seo.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.seo[path]
	if !ok {
		return seo.Metadata{}, storage.ErrNotFound
	}
	return meta, nil
}

func (s *Store) ListSEO(_ context.Context) ([]seo.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]seo.Metadata, 0, len(s.seo))
	for _, meta := range s.seo {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) UpsertSEO(_ context.Context, meta seo.Metadata) (seo.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.UpdatedAt = time.Now().UTC()
	s.seo[meta.Path] = meta
	return meta, nil
}

func (s *Store) DeleteSEO(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seo[path]; !ok {
		return storage.ErrNotFound
	}
	delete(s.seo, path)
	return nil
}

// UserStore -------------------------------------------------------------------

func (s *Store) UpsertUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(u.Email))
	if key == "" {
		return user.User{}, fmt.Errorf("email is required")
	}
	if existing, ok := s.users[key]; ok {
		u.ID = existing.ID
		u.CreatedAt = existing.CreatedAt
		if u.Role == "" {
			u.Role = existing.Role
		}
		if u.LastSignInAt == nil {
			u.LastSignInAt = existing.LastSignInAt
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = user.RoleCustomer
	}
	u.Email = key
	s.users[key] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]user.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), len(all), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func clonePending(res payment.PendingResult) payment.PendingResult {
	res.Phrases = append([]string(nil), res.Phrases...)
	return res
}
