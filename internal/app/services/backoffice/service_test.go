package backoffice

import (
	"context"
	"testing"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/storage/memory"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrders(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []payment.Order{
		{CheckoutSessionID: "cs_1", AmountCents: 499, Currency: "eur", Status: payment.OrderPaid, CreatedAt: base},
		{CheckoutSessionID: "cs_2", AmountCents: 499, Currency: "eur", Status: payment.OrderPending, CreatedAt: base.Add(time.Hour)},
		{CheckoutSessionID: "cs_3", AmountCents: 999, Currency: "usd", Status: payment.OrderPaid, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, o := range seed {
		_, err := store.CreateOrder(ctx, o)
		require.NoError(t, err)
	}
	svc := New(store, nil)

	page, err := svc.Orders(ctx, payment.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "cs_3", page.Orders[0].CheckoutSessionID)
	assert.Equal(t, map[string]int{"eur": 499, "usd": 999}, page.RevenueByCurrency)

	page, err = svc.Orders(ctx, payment.OrderFilter{Status: payment.OrderPaid, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "cs_1", page.Orders[0].CheckoutSessionID)

	_, err = svc.Orders(ctx, payment.OrderFilter{Status: "refunded"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	_, err = svc.Orders(ctx, payment.OrderFilter{Offset: -1})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestUsers(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.UpsertUser(ctx, user.User{Email: "a@example.com", CreatedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	_, err = store.UpsertUser(ctx, user.User{Email: "b@example.com", Role: user.RoleAdmin})
	require.NoError(t, err)

	page, err := New(store, nil).Users(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "b@example.com", page.Users[0].Email)

	page, err = New(store, nil).Users(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Users)
	assert.NotNil(t, page.Users)
}

func TestPageBounds(t *testing.T) {
	limit, offset, err := pageBounds(1000, 3)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, limit)
	assert.Equal(t, 3, offset)
}
