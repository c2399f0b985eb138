// Package backoffice serves the admin order and user listings.
package backoffice

import (
	"context"

	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Store is the persistence the back office reads from.
type Store interface {
	storage.OrderStore
	storage.UserStore
}

type Service struct {
	store Store
	log   *logging.Logger
}

func New(store Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("backoffice")
	}
	return &Service{store: store, log: log}
}

// Orders lists orders newest first together with paid revenue per currency.
func (s *Service) Orders(ctx context.Context, filter payment.OrderFilter) (payment.OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return payment.OrderPage{}, apperrors.Validation("status", "status must be pending, paid or cancelled")
	}
	var err error
	if filter.Limit, filter.Offset, err = pageBounds(filter.Limit, filter.Offset); err != nil {
		return payment.OrderPage{}, err
	}

	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return payment.OrderPage{}, err
	}
	revenue, err := s.store.RevenueByCurrency(ctx)
	if err != nil {
		return payment.OrderPage{}, err
	}
	if orders == nil {
		orders = []payment.Order{}
	}
	return payment.OrderPage{Orders: orders, Total: total, RevenueByCurrency: revenue}, nil
}

// Users lists users newest first.
func (s *Service) Users(ctx context.Context, limit, offset int) (user.Page, error) {
	limit, offset, err := pageBounds(limit, offset)
	if err != nil {
		return user.Page{}, err
	}
	users, total, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return user.Page{}, err
	}
	if users == nil {
		users = []user.User{}
	}
	return user.Page{Users: users, Total: total}, nil
}

func pageBounds(limit, offset int) (int, int, error) {
	switch {
	case limit < 0:
		return 0, 0, apperrors.Validation("limit", "limit cannot be negative")
	case offset < 0:
		return 0, 0, apperrors.Validation("offset", "offset cannot be negative")
	case limit == 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return limit, offset, nil
}
