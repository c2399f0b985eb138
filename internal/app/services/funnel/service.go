// Package funnel orchestrates one visitor round trip: policy lookup, gate
// decision, generation and, when needed, the hand-off to checkout.
package funnel

import (
	"context"
	"net/url"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/flow"
	"github.com/clicklone/clicklone/internal/app/metrics"
	"github.com/clicklone/clicklone/internal/app/services/checkout"
	"github.com/clicklone/clicklone/internal/app/services/gate"
	"github.com/clicklone/clicklone/internal/app/services/pending"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

// CheckoutRetryMessage is set on the state when the payment page could not
// be opened but the phrases were saved.
const CheckoutRetryMessage = "Payment is temporarily unavailable. Your phrases are saved, please retry."

// PolicyReader returns the current payment policy.
type PolicyReader interface {
	Policy(ctx context.Context) (settings.Policy, error)
}

// Generator produces phrases for a request.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Request, []string, error)
}

// Service wires the funnel steps together.
type Service struct {
	settings  PolicyReader
	gate      *gate.Service
	generator Generator
	pending   *pending.Service
	checkout  *checkout.Service
	events    checkout.EventRecorder
	log       *logging.Logger
}

// Deps lists the collaborators of the funnel.
type Deps struct {
	Settings  PolicyReader
	Gate      *gate.Service
	Generator Generator
	Pending   *pending.Service
	Checkout  *checkout.Service
	Events    checkout.EventRecorder
}

// New creates the funnel. A nil log falls back to the default logger.
func New(deps Deps, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("funnel")
	}
	return &Service{
		settings:  deps.Settings,
		gate:      deps.Gate,
		generator: deps.Generator,
		pending:   deps.Pending,
		checkout:  deps.Checkout,
		events:    deps.Events,
		log:       log,
	}
}

// GenerateInput is a visitor's generation request.
type GenerateInput struct {
	generation.Request
	TrialCount int    `json:"trial_count"`
	VisitorID  string `json:"visitor_id"`
	UserAgent  string `json:"-"`
}

// GenerateOutput is the API response for a generation.
type GenerateOutput struct {
	Decision    gate.Decision `json:"decision"`
	Phrases     []string      `json:"phrases,omitempty"`
	TrialCount  int           `json:"trial_count"`
	ResultID    string        `json:"result_id,omitempty"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
	State       flow.State    `json:"state"`
}

// Generate runs the gate and the generator and returns either the phrases
// or a checkout redirect.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	policy, err := s.settings.Policy(ctx)
	if err != nil {
		return GenerateOutput{}, err
	}
	verdict := s.gate.Claim(ctx, policy, in.VisitorID, in.TrialCount)

	req, phrases, err := s.generator.Generate(ctx, in.Request)
	if err != nil {
		s.gate.Release(ctx, in.VisitorID, verdict)
		return GenerateOutput{}, err
	}
	metrics.RecordGeneration(string(verdict.Decision))
	s.record(ctx, analytics.Event{Type: analytics.EventGeneration, Path: "/generate", VisitorID: in.VisitorID, UserAgent: in.UserAgent})

	state, err := flow.Reduce(flow.State{Step: flow.StepGenerator}, flow.Action{Type: flow.ActionSubmit, Request: &req})
	if err != nil {
		return GenerateOutput{}, apperrors.Internal("funnel state", err)
	}
	out := GenerateOutput{Decision: verdict.Decision, TrialCount: verdict.TrialCount}

	switch verdict.Decision {
	case gate.DecisionAllow, gate.DecisionTrial:
		out.Phrases = phrases
		out.State, err = flow.Reduce(state, flow.Action{Type: flow.ActionGenerated, Phrases: phrases})

	case gate.DecisionPaymentRequired:
		res, perr := s.pending.SavePending(ctx, req, phrases, in.VisitorID)
		if perr != nil {
			return GenerateOutput{}, perr
		}
		if _, perr := s.pending.IssueToken(ctx, res.ID, policy.PriceCents, policy.Currency); perr != nil {
			return GenerateOutput{}, perr
		}
		out.ResultID = res.ID
		out.State, err = flow.Reduce(state, flow.Action{Type: flow.ActionPaymentRequired, ResultID: res.ID})
		if err != nil {
			break
		}
		checkoutURL, cerr := s.checkout.StartCheckout(ctx, res.ID, in.VisitorID)
		if cerr != nil {
			s.log.WithContext(ctx).WithError(cerr).WithField("result_id", res.ID).Warn("checkout not started, visitor can retry")
			out.State.Error = CheckoutRetryMessage
			break
		}
		out.CheckoutURL = checkoutURL
	}
	if err != nil {
		return GenerateOutput{}, apperrors.Internal("funnel state", err)
	}

	s.log.WithContext(ctx).
		WithField("decision", verdict.Decision).
		WithField("trial_count", out.TrialCount).
		Info("generation served")
	return out, nil
}

// CheckoutOutput is returned when a visitor restarts checkout.
type CheckoutOutput struct {
	ResultID    string     `json:"result_id"`
	CheckoutURL string     `json:"checkout_url"`
	State       flow.State `json:"state"`
}

// RestartCheckout opens a new payment page for an existing pending result.
func (s *Service) RestartCheckout(ctx context.Context, resultID, visitorID string) (CheckoutOutput, error) {
	checkoutURL, err := s.checkout.StartCheckout(ctx, resultID, visitorID)
	if err != nil {
		return CheckoutOutput{}, err
	}
	return CheckoutOutput{
		ResultID:    resultID,
		CheckoutURL: checkoutURL,
		State:       flow.State{Step: flow.StepPayment, PendingResultID: resultID},
	}, nil
}

// ReturnOutput is the API response for a checkout return.
type ReturnOutput struct {
	checkout.ReturnResult
	State flow.State `json:"state"`
}

// Return resolves the checkout return URL and the state the UI resumes in.
func (s *Service) Return(ctx context.Context, query url.Values) (ReturnOutput, error) {
	action, ok := flow.ResumeAction(query)
	if !ok {
		return ReturnOutput{}, apperrors.BadRequest("not a checkout return")
	}
	res, err := s.checkout.HandleReturn(ctx, checkout.ParseReturnQuery(query))
	if err != nil {
		return ReturnOutput{}, err
	}
	action.Phrases = res.Phrases
	state, err := flow.Reduce(flow.Initial(), action)
	if err != nil {
		return ReturnOutput{}, apperrors.Internal("funnel state", err)
	}
	return ReturnOutput{ReturnResult: res, State: state}, nil
}

// PublicConfig is what the UI needs before the first generation.
type PublicConfig struct {
	PriceCents        int               `json:"price_cents"`
	Currency          string            `json:"currency"`
	PaymentRequired   bool              `json:"payment_required"`
	FreeTrialsEnabled bool              `json:"free_trials_enabled"`
	FreeTrialLimit    int               `json:"free_trial_limit"`
	Tones             []generation.Tone `json:"tones"`
	Languages         []Language        `json:"languages"`
}

// Language is a selectable output language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Config returns the public configuration.
func (s *Service) Config(ctx context.Context) (PublicConfig, error) {
	policy, err := s.settings.Policy(ctx)
	if err != nil {
		return PublicConfig{}, err
	}
	langs := make([]Language, 0, len(generation.LanguageCodes))
	for _, code := range generation.LanguageCodes {
		langs = append(langs, Language{Code: code, Name: generation.Languages[code]})
	}
	return PublicConfig{
		PriceCents:        policy.PriceCents,
		Currency:          policy.Currency,
		PaymentRequired:   policy.PaymentRequired,
		FreeTrialsEnabled: policy.FreeTrialsEnabled,
		FreeTrialLimit:    policy.FreeTrialLimit,
		Tones:             generation.Tones,
		Languages:         langs,
	}, nil
}

func (s *Service) record(ctx context.Context, evt analytics.Event) {
	if s.events == nil {
		return
	}
	if _, err := s.events.RecordEvent(ctx, evt); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to record generation event")
	}
}
