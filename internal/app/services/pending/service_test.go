package pending

import (
	"context"
	"testing"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/storage"
	"github.com/clicklone/clicklone/internal/app/storage/memory"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(now *time.Time) *Service {
	svc := New(memory.New(), time.Hour, nil)
	svc.now = func() time.Time { return *now }
	return svc
}

func TestPendingLifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(&now)
	ctx := context.Background()
	req := generation.Request{Concept: "tea", Tone: generation.ToneDirect, Language: "en"}

	res, err := svc.SavePending(ctx, req, []string{"Sip smarter"}, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), res.ExpiresAt)

	tok, err := svc.IssueToken(ctx, res.ID, 499, "eur")
	require.NoError(t, err)
	assert.False(t, tok.Used)

	tok, err = svc.AttachCheckoutSession(ctx, tok.ID, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", tok.CheckoutSessionID)

	got, err := svc.GetTokenByResult(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)

	used, err := svc.MarkTokenUsed(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, used.Used)
	require.NotNil(t, used.UsedAt)

	_, err = svc.MarkTokenUsed(ctx, tok.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.ErrorIs(t, err, storage.ErrTokenUsed)
}

func TestGetPendingExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(&now)
	ctx := context.Background()

	res, err := svc.SavePending(ctx, generation.Request{Concept: "tea"}, []string{"Sip smarter"}, "")
	require.NoError(t, err)

	_, err = svc.GetPending(ctx, res.ID)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = svc.GetPending(ctx, res.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = svc.GetPending(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	paid, err := svc.GetPaid(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, paid.ID)

	_, err = svc.GetPaid(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestPurgeExpiredKeepsPaid(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(&now)
	ctx := context.Background()

	unpaid, err := svc.SavePending(ctx, generation.Request{Concept: "a"}, []string{"One"}, "")
	require.NoError(t, err)
	_, err = svc.IssueToken(ctx, unpaid.ID, 100, "eur")
	require.NoError(t, err)

	paid, err := svc.SavePending(ctx, generation.Request{Concept: "b"}, []string{"Two"}, "")
	require.NoError(t, err)
	tok, err := svc.IssueToken(ctx, paid.ID, 100, "eur")
	require.NoError(t, err)
	_, err = svc.MarkTokenUsed(ctx, tok.ID)
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired results are kept during the grace period")

	now = now.Add(time.Hour)
	n, err = svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.GetTokenByResult(ctx, unpaid.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = svc.GetTokenByResult(ctx, paid.ID)
	assert.NoError(t, err)
}

func TestIssueTokenValidation(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(&now)

	_, err := svc.IssueToken(context.Background(), "missing", 100, "eur")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = svc.IssueToken(context.Background(), "missing", 0, "eur")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.SavePending(context.Background(), generation.Request{}, nil, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))
}
