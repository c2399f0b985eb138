// Package seo serves per-path meta tags and lets admins edit them.
package seo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/seo"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

type Service struct {
	store storage.SEOStore
	log   *logging.Logger
	now   func() time.Time
}

func New(store storage.SEOStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("seo")
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns metadata for path, falling back to the "/" entry and then to
// the built-in defaults. The returned Path is always the requested one.
func (s *Service) Get(ctx context.Context, path string) (seo.Metadata, error) {
	path = cleanPath(path)
	candidates := []string{path}
	if path != "/" {
		candidates = append(candidates, "/")
	}
	for _, candidate := range candidates {
		meta, err := s.store.GetSEO(ctx, candidate)
		if err == nil {
			meta.Path = path
			return meta, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return seo.Metadata{}, err
		}
	}
	return seo.Fallback(path), nil
}

func (s *Service) List(ctx context.Context) ([]seo.Metadata, error) {
	return s.store.ListSEO(ctx)
}

// Upsert validates and stores meta.
func (s *Service) Upsert(ctx context.Context, meta seo.Metadata) (seo.Metadata, error) {
	meta, field, err := meta.Normalize()
	if err != nil {
		return seo.Metadata{}, apperrors.Validation(field, err.Error())
	}
	meta.UpdatedAt = s.now()
	saved, err := s.store.UpsertSEO(ctx, meta)
	if err != nil {
		return seo.Metadata{}, err
	}
	s.log.WithContext(ctx).WithField("path", saved.Path).Info("seo metadata saved")
	return saved, nil
}

func (s *Service) Delete(ctx context.Context, path string) error {
	path = cleanPath(path)
	if err := s.store.DeleteSEO(ctx, path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("seo metadata", path)
		}
		return err
	}
	s.log.WithContext(ctx).WithField("path", path).Info("seo metadata deleted")
	return nil
}

func cleanPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
