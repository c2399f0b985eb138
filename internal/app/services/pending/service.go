// Package pending keeps generated phrases and their payment tokens until a
// checkout succeeds.
package pending

import (
	"context"
	"errors"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

const DefaultTTL = 24 * time.Hour

// PurgeGrace keeps expired results around a little longer so a visitor who
// paid just before expiry can still come back for them.
const PurgeGrace = time.Hour

// Service wraps the pending store with TTL and single-use semantics.
type Service struct {
	store storage.PendingStore
	ttl   time.Duration
	log   *logging.Logger
	now   func() time.Time
}

// New creates a pending-result service. Results expire after ttl.
func New(store storage.PendingStore, ttl time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("pending")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// SavePending stores phrases awaiting payment.
func (s *Service) SavePending(ctx context.Context, req generation.Request, phrases []string, visitorID string) (payment.PendingResult, error) {
	if len(phrases) == 0 {
		return payment.PendingResult{}, apperrors.BadRequest("no phrases to store")
	}
	now := s.now()
	res, err := s.store.CreatePendingResult(ctx, payment.PendingResult{
		Phrases:   phrases,
		Request:   req,
		VisitorID: visitorID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return payment.PendingResult{}, apperrors.Internal("failed to store pending result", err)
	}
	s.log.WithContext(ctx).WithField("result_id", res.ID).Debug("pending result stored")
	return res, nil
}

// GetPending returns an unexpired pending result.
func (s *Service) GetPending(ctx context.Context, id string) (payment.PendingResult, error) {
	res, err := s.store.GetPendingResult(ctx, id)
	if err != nil {
		return payment.PendingResult{}, mapNotFound(err, "pending result", id)
	}
	if res.Expired(s.now()) {
		return payment.PendingResult{}, apperrors.NotFound("pending result", id)
	}
	return res, nil
}

// GetPaid returns a pending result even when it has expired. Only call it
// once the processor has confirmed the payment.
func (s *Service) GetPaid(ctx context.Context, id string) (payment.PendingResult, error) {
	res, err := s.store.GetPendingResult(ctx, id)
	if err != nil {
		return payment.PendingResult{}, mapNotFound(err, "pending result", id)
	}
	if res.Expired(s.now()) {
		s.log.WithContext(ctx).WithField("result_id", id).Info("restoring expired result for a paid session")
	}
	return res, nil
}

// IssueToken creates the payment token for a pending result.
func (s *Service) IssueToken(ctx context.Context, resultID string, amountCents int, currency string) (payment.Token, error) {
	if amountCents <= 0 {
		return payment.Token{}, apperrors.Validation("amount_cents", "amount must be positive")
	}
	tok, err := s.store.CreateToken(ctx, payment.Token{
		ResultID:    resultID,
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return payment.Token{}, mapNotFound(err, "pending result", resultID)
	}
	return tok, nil
}

// GetTokenByResult returns the token issued for resultID.
func (s *Service) GetTokenByResult(ctx context.Context, resultID string) (payment.Token, error) {
	tok, err := s.store.GetTokenByResult(ctx, resultID)
	if err != nil {
		return payment.Token{}, mapNotFound(err, "payment token", resultID)
	}
	return tok, nil
}

// AttachCheckoutSession records the processor session on the token.
func (s *Service) AttachCheckoutSession(ctx context.Context, tokenID, sessionID string) (payment.Token, error) {
	tok, err := s.store.SetTokenCheckoutSession(ctx, tokenID, sessionID)
	if err != nil {
		return payment.Token{}, mapNotFound(err, "payment token", tokenID)
	}
	return tok, nil
}

// MarkTokenUsed consumes the token. A second call fails with a conflict
// that still unwraps to storage.ErrTokenUsed.
func (s *Service) MarkTokenUsed(ctx context.Context, tokenID string) (payment.Token, error) {
	tok, err := s.store.MarkTokenUsed(ctx, tokenID, s.now())
	switch {
	case errors.Is(err, storage.ErrTokenUsed):
		return tok, apperrors.Wrap(apperrors.Conflict("payment token already used"), err)
	case err != nil:
		return payment.Token{}, mapNotFound(err, "payment token", tokenID)
	}
	s.log.WithContext(ctx).WithField("token_id", tokenID).WithField("result_id", tok.ResultID).Info("payment token consumed")
	return tok, nil
}

// PurgeExpired removes results that expired more than PurgeGrace ago and
// whose token was never used.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredPendingResults(ctx, s.now().Add(-PurgeGrace))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("removed", n).Info("purged expired pending results")
	}
	return n, nil
}

func mapNotFound(err error, resource, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.NotFound(resource, id), err)
	}
	return err
}
