package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/metrics"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	policyKey  = "policy"
	DefaultTTL = time.Minute
)

// Service reads the payment policy from the app_settings table through a
// short-lived cache.
type Service struct {
	store storage.SettingsStore
	log   *logging.Logger
	cache *expirable.LRU[string, settings.Policy]

	mu   sync.RWMutex
	last *settings.Policy
}

// New constructs a settings service caching reads for ttl.
func New(store storage.SettingsStore, ttl time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("settings")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store: store,
		log:   log,
		cache: expirable.NewLRU[string, settings.Policy](1, nil, ttl),
	}
}

// Policy returns the current policy. When the store fails the last good value
// is served; the error only propagates if nothing was ever loaded.
func (s *Service) Policy(ctx context.Context) (settings.Policy, error) {
	if policy, ok := s.cache.Get(policyKey); ok {
		metrics.RecordSettingsCache("hit")
		return policy, nil
	}
	metrics.RecordSettingsCache("miss")

	entries, err := s.store.ListSettings(ctx)
	if err != nil {
		s.mu.RLock()
		last := s.last
		s.mu.RUnlock()
		if last != nil {
			metrics.RecordSettingsCache("stale")
			s.log.WithError(err).Warn("settings store unavailable, serving stale policy")
			return *last, nil
		}
		return settings.Policy{}, apperrors.Unavailable("settings are temporarily unavailable", err)
	}

	policy := s.parse(entries)
	s.cache.Add(policyKey, policy)
	s.mu.Lock()
	s.last = &policy
	s.mu.Unlock()
	return policy, nil
}

// Update validates and persists patch, then drops the cached policy.
func (s *Service) Update(ctx context.Context, patch settings.Patch) (settings.Policy, error) {
	if field, err := patch.Validate(); err != nil {
		return settings.Policy{}, apperrors.Validation(field, err.Error())
	}
	entries := patch.Entries()
	if len(entries) == 0 {
		return s.Policy(ctx)
	}
	if err := s.store.PutSettings(ctx, entries); err != nil {
		return settings.Policy{}, err
	}
	s.Invalidate()

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	s.log.WithField("keys", strings.Join(keys, ",")).Info("settings updated")
	return s.Policy(ctx)
}

// Invalidate drops the cached policy so the next read hits the store.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

// parse applies rows over the defaults. A malformed value keeps the default.
func (s *Service) parse(entries []settings.Entry) settings.Policy {
	policy := settings.DefaultPolicy()
	for _, e := range entries {
		value := strings.TrimSpace(e.Value)
		var err error
		switch e.Key {
		case settings.KeyPaymentRequired:
			policy.PaymentRequired, err = parseBool(value, policy.PaymentRequired)
		case settings.KeyFreeTrialsEnabled:
			policy.FreeTrialsEnabled, err = parseBool(value, policy.FreeTrialsEnabled)
		case settings.KeyFreeTrialLimit:
			policy.FreeTrialLimit, err = parseInt(value, policy.FreeTrialLimit, 0)
		case settings.KeyPriceCents:
			policy.PriceCents, err = parseInt(value, policy.PriceCents, 1)
		case settings.KeyCurrency:
			if len(value) == 3 {
				policy.Currency = strings.ToLower(value)
			} else {
				err = strconv.ErrSyntax
			}
		default:
			continue
		}
		if err != nil {
			s.log.WithField("key", e.Key).WithField("value", e.Value).Warn("malformed setting, using default")
		}
	}
	return policy
}

func parseBool(raw string, def bool) (bool, error) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, err
	}
	return v, nil
}

func parseInt(raw string, def, min int) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, err
	}
	if v < min {
		return def, strconv.ErrRange
	}
	return v, nil
}
