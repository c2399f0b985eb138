// Package flow is the funnel state machine shared by the API and the UI.
package flow

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
)

// Step is a screen of the funnel.
type Step string

const (
	StepHome      Step = "home"
	StepGenerator Step = "generator"
	StepPayment   Step = "payment"
	StepResults   Step = "results"
	StepSuccess   Step = "success"
)

// ActionType names a transition.
type ActionType string

const (
	ActionStart            ActionType = "start"
	ActionSubmit           ActionType = "submit"
	ActionGenerated        ActionType = "generated"
	ActionPaymentRequired  ActionType = "payment_required"
	ActionPaymentSucceeded ActionType = "payment_succeeded"
	ActionPaymentCancelled ActionType = "payment_cancelled"
	ActionFail             ActionType = "fail"
	ActionFinish           ActionType = "finish"
	ActionReset            ActionType = "reset"
)

// CancelledMessage is shown after the visitor abandons checkout.
const CancelledMessage = "Payment was cancelled. Your phrases are saved, you can try again."

// ErrInvalidTransition is returned when an action does not apply to the
// current step. The state is returned unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

// State is the visitor's position in the funnel.
type State struct {
	Step            Step                `json:"step"`
	Request         *generation.Request `json:"request,omitempty"`
	Phrases         []string            `json:"phrases,omitempty"`
	Error           string              `json:"error,omitempty"`
	PendingResultID string              `json:"pending_result_id,omitempty"`
}

// Initial is the landing state.
func Initial() State { return State{Step: StepHome} }

// Action is an event applied to a State.
type Action struct {
	Type     ActionType
	Request  *generation.Request
	Phrases  []string
	ResultID string
	Error    string
}

var allowed = map[ActionType][]Step{
	ActionStart:            {StepHome},
	ActionSubmit:           {StepGenerator, StepResults},
	ActionGenerated:        {StepGenerator},
	ActionPaymentRequired:  {StepGenerator},
	ActionPaymentSucceeded: {StepHome, StepGenerator, StepPayment},
	ActionPaymentCancelled: {StepHome, StepGenerator, StepPayment},
	ActionFail:             {StepGenerator, StepPayment},
	ActionFinish:           {StepResults},
	ActionReset:            {StepHome, StepGenerator, StepPayment, StepResults, StepSuccess},
}

// Reduce applies a to s.
func Reduce(s State, a Action) (State, error) {
	steps, ok := allowed[a.Type]
	if !ok {
		return s, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, a.Type)
	}
	if !contains(steps, s.Step) {
		return s, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a.Type, s.Step)
	}

	next := s
	switch a.Type {
	case ActionStart:
		next = State{Step: StepGenerator}
	case ActionSubmit:
		if a.Request == nil {
			return s, fmt.Errorf("%w: submit without request", ErrInvalidTransition)
		}
		req := *a.Request
		next = State{Step: StepGenerator, Request: &req}
	case ActionGenerated:
		next.Step = StepResults
		next.Phrases = clonePhrases(a.Phrases)
		next.Error = ""
		next.PendingResultID = ""
	case ActionPaymentRequired:
		if a.ResultID == "" {
			return s, fmt.Errorf("%w: payment_required without result id", ErrInvalidTransition)
		}
		next.Step = StepPayment
		next.PendingResultID = a.ResultID
		next.Phrases = nil
		next.Error = ""
	case ActionPaymentSucceeded:
		next.Step = StepResults
		next.Phrases = clonePhrases(a.Phrases)
		next.Error = ""
		if a.ResultID != "" {
			next.PendingResultID = a.ResultID
		}
	case ActionPaymentCancelled:
		next.Step = StepGenerator
		next.Phrases = nil
		next.Error = a.Error
		if next.Error == "" {
			next.Error = CancelledMessage
		}
		if a.ResultID != "" {
			next.PendingResultID = a.ResultID
		}
	case ActionFail:
		next.Step = StepGenerator
		next.Error = a.Error
	case ActionFinish:
		next.Step = StepSuccess
	case ActionReset:
		next = Initial()
	}
	return next, nil
}

// ResumeAction maps checkout return URL parameters to the action the UI
// dispatches on load. ok is false when the URL is not a checkout return.
func ResumeAction(query url.Values) (Action, bool) {
	resultID := query.Get("result_id")
	if resultID == "" {
		return Action{}, false
	}
	switch query.Get("payment") {
	case "success":
		if query.Get("session_id") == "" {
			return Action{}, false
		}
		return Action{Type: ActionPaymentSucceeded, ResultID: resultID}, true
	case "cancelled":
		return Action{Type: ActionPaymentCancelled, ResultID: resultID, Error: CancelledMessage}, true
	default:
		return Action{}, false
	}
}

func contains(steps []Step, s Step) bool {
	for _, step := range steps {
		if step == s {
			return true
		}
	}
	return false
}

func clonePhrases(p []string) []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p...)
}
