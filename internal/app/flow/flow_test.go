package flow

import (
	"net/url"
	"testing"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, s State, actions ...Action) State {
	t.Helper()
	for _, a := range actions {
		var err error
		s, err = Reduce(s, a)
		require.NoError(t, err, "action %s", a.Type)
	}
	return s
}

func TestFreeFlow(t *testing.T) {
	req := &generation.Request{Concept: "tea", Tone: generation.ToneDirect, Language: "en"}
	s := apply(t, Initial(),
		Action{Type: ActionStart},
		Action{Type: ActionSubmit, Request: req},
		Action{Type: ActionGenerated, Phrases: []string{"a", "b"}},
	)
	assert.Equal(t, StepResults, s.Step)
	assert.Equal(t, []string{"a", "b"}, s.Phrases)
	assert.Equal(t, "tea", s.Request.Concept)

	s = apply(t, s, Action{Type: ActionFinish})
	assert.Equal(t, StepSuccess, s.Step)

	s = apply(t, s, Action{Type: ActionReset})
	assert.Equal(t, Initial(), s)
}

func TestPaidFlow(t *testing.T) {
	s := apply(t, Initial(),
		Action{Type: ActionStart},
		Action{Type: ActionSubmit, Request: &generation.Request{Concept: "tea"}},
		Action{Type: ActionPaymentRequired, ResultID: "r1"},
	)
	assert.Equal(t, StepPayment, s.Step)
	assert.Equal(t, "r1", s.PendingResultID)
	assert.Empty(t, s.Phrases)

	s = apply(t, s, Action{Type: ActionPaymentSucceeded, Phrases: []string{"x"}})
	assert.Equal(t, StepResults, s.Step)
	assert.Equal(t, []string{"x"}, s.Phrases)
}

func TestCancelledFlow(t *testing.T) {
	s := apply(t, State{Step: StepPayment, PendingResultID: "r1"}, Action{Type: ActionPaymentCancelled})
	assert.Equal(t, StepGenerator, s.Step)
	assert.Equal(t, CancelledMessage, s.Error)
	assert.Equal(t, "r1", s.PendingResultID)

	s = apply(t, s, Action{Type: ActionSubmit, Request: &generation.Request{Concept: "again"}})
	assert.Empty(t, s.Error)
	assert.Empty(t, s.PendingResultID)
}

func TestFail(t *testing.T) {
	s := apply(t, State{Step: StepGenerator}, Action{Type: ActionFail, Error: "LLM down"})
	assert.Equal(t, StepGenerator, s.Step)
	assert.Equal(t, "LLM down", s.Error)
}

func TestInvalidTransitionsLeaveStateUnchanged(t *testing.T) {
	cases := []struct {
		state  State
		action Action
	}{
		{Initial(), Action{Type: ActionGenerated}},
		{Initial(), Action{Type: ActionFinish}},
		{State{Step: StepResults}, Action{Type: ActionStart}},
		{State{Step: StepSuccess}, Action{Type: ActionPaymentSucceeded}},
		{State{Step: StepGenerator}, Action{Type: ActionSubmit}},
		{State{Step: StepGenerator}, Action{Type: ActionPaymentRequired}},
		{State{Step: StepGenerator}, Action{Type: "teleport"}},
	}
	for _, tc := range cases {
		got, err := Reduce(tc.state, tc.action)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, tc.state, got)
	}
}

func TestResumeAction(t *testing.T) {
	a, ok := ResumeAction(url.Values{"payment": {"success"}, "result_id": {"r1"}, "session_id": {"cs_1"}})
	require.True(t, ok)
	assert.Equal(t, ActionPaymentSucceeded, a.Type)
	assert.Equal(t, "r1", a.ResultID)

	a, ok = ResumeAction(url.Values{"payment": {"cancelled"}, "result_id": {"r1"}})
	require.True(t, ok)
	assert.Equal(t, ActionPaymentCancelled, a.Type)

	s, err := Reduce(Initial(), a)
	require.NoError(t, err)
	assert.Equal(t, StepGenerator, s.Step)

	for _, q := range []url.Values{
		{},
		{"payment": {"success"}, "result_id": {"r1"}},
		{"payment": {"bogus"}, "result_id": {"r1"}},
		{"payment": {"success"}, "session_id": {"cs"}},
	} {
		_, ok := ResumeAction(q)
		assert.False(t, ok, q.Encode())
	}
}
