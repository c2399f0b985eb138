package gate

import (
	"context"

	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/logging"
)

// Verdict is a gate decision. For a trial, TrialCount already includes the
// trial being granted and is what the client should persist.
type Verdict struct {
	Decision   Decision
	TrialCount int
	claimed    bool
}

// Service combines the reported browser counter with the server-side one.
type Service struct {
	trials TrialTracker
	log    *logging.Logger
}

// New creates a gate. trials may be nil, in which case only the reported
// count is used.
func New(trials TrialTracker, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("gate")
	}
	return &Service{trials: trials, log: log}
}

// Evaluate decides for a visitor without claiming anything. Tracker
// failures degrade to the reported count.
func (s *Service) Evaluate(ctx context.Context, policy settings.Policy, visitorID string, reported int) Verdict {
	count := max(reported, 0)
	if s.trials != nil && visitorID != "" {
		stored, err := s.trials.Count(ctx, visitorID)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("trial tracker unavailable, using reported count")
		} else {
			count = max(count, stored)
		}
	}
	return Verdict{Decision: Decide(policy, count), TrialCount: count}
}

// Claim decides for a visitor and, on a trial, takes the trial from the
// tracker before generation starts so two concurrent requests cannot both
// get the last one. A failed generation must hand it back with Release.
func (s *Service) Claim(ctx context.Context, policy settings.Policy, visitorID string, reported int) Verdict {
	reported = max(reported, 0)
	if s.trials == nil || visitorID == "" || !trialsApply(policy) {
		v := s.Evaluate(ctx, policy, visitorID, reported)
		if v.Decision == DecisionTrial {
			v.TrialCount++
		}
		return v
	}

	count, claimed, err := s.trials.Reserve(ctx, visitorID, reported, policy.FreeTrialLimit)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("trial tracker unavailable, using reported count")
		v := Verdict{Decision: Decide(policy, reported), TrialCount: reported}
		if v.Decision == DecisionTrial {
			v.TrialCount++
		}
		return v
	}
	if !claimed {
		return Verdict{Decision: DecisionPaymentRequired, TrialCount: count}
	}
	return Verdict{Decision: DecisionTrial, TrialCount: count, claimed: true}
}

// Release returns a trial taken by Claim.
func (s *Service) Release(ctx context.Context, visitorID string, v Verdict) {
	if !v.claimed || s.trials == nil {
		return
	}
	if err := s.trials.Release(ctx, visitorID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to release trial")
	}
}

func trialsApply(policy settings.Policy) bool {
	return policy.PaymentRequired && policy.FreeTrialsEnabled && policy.FreeTrialLimit > 0
}
