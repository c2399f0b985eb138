package generator

import (
	"context"
	"errors"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/metrics"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// ErrNoPhrases is returned when the provider output has no usable tagline.
var ErrNoPhrases = errors.New("no usable phrases in provider output")

// Provider is a text-generation backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Service generates taglines for a concept.
type Service struct {
	provider Provider
	timeout  time.Duration
	log      *logging.Logger
}

// New constructs a generator around provider.
func New(provider Provider, timeout time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("generator")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{provider: provider, timeout: timeout, log: log}
}

// Generate validates req and returns the normalized request with its phrases.
func (s *Service) Generate(ctx context.Context, req generation.Request) (generation.Request, []string, error) {
	req, field, err := req.Normalize()
	if err != nil {
		return generation.Request{}, nil, apperrors.Validation(field, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Complete(callCtx, BuildPrompt(req))
	metrics.RecordLLMCall(s.provider.Name(), time.Since(start), err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).
			WithField("provider", s.provider.Name()).
			Warn("phrase generation failed")
		return req, nil, apperrors.Unavailable("Text generation is temporarily unavailable", err)
	}

	phrases := FilterPhrases(raw)
	if len(phrases) == 0 {
		s.log.WithContext(ctx).WithField("provider", s.provider.Name()).
			WithField("raw_length", len(raw)).
			Warn("provider returned no usable phrases")
		return req, nil, apperrors.Wrap(apperrors.Unavailable("The generator returned no usable phrases, please try again", nil), ErrNoPhrases)
	}

	s.log.WithContext(ctx).
		WithField("provider", s.provider.Name()).
		WithField("tone", req.Tone).
		WithField("language", req.Language).
		WithField("phrases", len(phrases)).
		Info("phrases generated")
	return req, phrases, nil
}
