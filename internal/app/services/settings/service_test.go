package settings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/storage/memory"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*memory.Store
	fail  atomic.Bool
	reads atomic.Int32
}

func (f *flakyStore) ListSettings(ctx context.Context) ([]domain.Entry, error) {
	f.reads.Add(1)
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Store.ListSettings(ctx)
}

func TestPolicyDefaultsWhenEmpty(t *testing.T) {
	svc := New(memory.New(), time.Minute, nil)
	policy, err := svc.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicy(), policy)
}

func TestPolicyParsesAndIgnoresMalformed(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.PutSettings(context.Background(), []domain.Entry{
		{Key: domain.KeyPaymentRequired, Value: "false"},
		{Key: domain.KeyFreeTrialLimit, Value: "abc"},
		{Key: domain.KeyPriceCents, Value: "999"},
		{Key: domain.KeyCurrency, Value: "USD"},
	}))

	policy, err := New(store, time.Minute, nil).Policy(context.Background())
	require.NoError(t, err)
	assert.False(t, policy.PaymentRequired)
	assert.Equal(t, 1, policy.FreeTrialLimit)
	assert.Equal(t, 999, policy.PriceCents)
	assert.Equal(t, "usd", policy.Currency)
}

func TestPolicyIsCachedAndInvalidatedOnUpdate(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	svc := New(store, time.Hour, nil)
	ctx := context.Background()

	_, err := svc.Policy(ctx)
	require.NoError(t, err)
	_, err = svc.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.reads.Load())

	limit := 3
	updated, err := svc.Update(ctx, domain.Patch{FreeTrialLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.FreeTrialLimit)
	assert.Equal(t, int32(2), store.reads.Load())
}

func TestPolicyServesStaleOnStoreFailure(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	svc := New(store, time.Hour, nil)
	ctx := context.Background()

	_, err := svc.Policy(ctx)
	require.NoError(t, err)

	store.fail.Store(true)
	svc.Invalidate()
	policy, err := svc.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicy(), policy)
}

func TestPolicyFailsWithoutCache(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	store.fail.Store(true)

	_, err := New(store, time.Hour, nil).Policy(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
}

func TestUpdateValidates(t *testing.T) {
	svc := New(memory.New(), time.Minute, nil)
	price := 0
	_, err := svc.Update(context.Background(), domain.Patch{PriceCents: &price})
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeValidation, se.Code)
}
