// Package gate decides whether a generation is shown, counted as a free
// trial, or held behind payment.
package gate

import "github.com/clicklone/clicklone/internal/app/domain/settings"

// Decision is the outcome of the payment gate.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionTrial           Decision = "trial"
	DecisionPaymentRequired Decision = "payment_required"
)

// Decide applies policy to a visitor's trial count.
func Decide(policy settings.Policy, trialCount int) Decision {
	if trialCount < 0 {
		trialCount = 0
	}
	switch {
	case !policy.PaymentRequired:
		return DecisionAllow
	case policy.FreeTrialsEnabled && trialCount < policy.FreeTrialLimit:
		return DecisionTrial
	default:
		return DecisionPaymentRequired
	}
}
