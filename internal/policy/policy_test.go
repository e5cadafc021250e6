package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-material/HandStrengthener/internal/trial"
)

func input(v trial.Validity) *trial.InputEvent {
	return &trial.InputEvent{Validity: v, Confidence: 1, Sequence: 1}
}

// #region mode-tests
func TestResolve_ModeRules(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		goal    trial.Outcome
		v       trial.Validity
		decided bool
		want    trial.Outcome
	}{
		{"strict accept accepted", Strict, trial.Accept, trial.Accepted, true, trial.Accept},
		{"strict accept rejected", Strict, trial.Accept, trial.Rejected, true, trial.Reject},
		{"strict reject accepted", Strict, trial.Reject, trial.Accepted, true, trial.Accept},
		{"strict reject rejected", Strict, trial.Reject, trial.Rejected, true, trial.Reject},
		{"strict fabricate accepted (scenario B)", Strict, trial.Fabricate, trial.Accepted, true, trial.Fabricate},
		{"strict fabricate rejected", Strict, trial.Fabricate, trial.Rejected, true, trial.Fabricate},

		{"meet accept accepted", MeetGoals, trial.Accept, trial.Accepted, true, trial.Accept},
		{"meet accept rejected", MeetGoals, trial.Accept, trial.Rejected, false, ""},
		{"meet reject accepted", MeetGoals, trial.Reject, trial.Accepted, true, trial.Reject},
		{"meet fabricate rejected", MeetGoals, trial.Fabricate, trial.Rejected, true, trial.Fabricate},

		{"loose accept rejected", Loose, trial.Accept, trial.Rejected, true, trial.Accept},
		{"loose reject rejected (scenario D)", Loose, trial.Reject, trial.Rejected, true, trial.Accept},
		{"loose fabricate accepted", Loose, trial.Fabricate, trial.Accepted, true, trial.Accept},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.mode, tt.goal, input(tt.v), false, false)
			assert.Equal(t, tt.decided, res.Decided)
			assert.Equal(t, tt.want, res.Outcome)
			if tt.decided {
				assert.Equal(t, TriggerInput, res.Trigger)
			}
		})
	}
}

// #endregion mode-tests

// #region trigger-tests
func TestResolve_NoInputWaits(t *testing.T) {
	for _, m := range Modes {
		res := Resolve(m, trial.Accept, nil, false, false)
		assert.False(t, res.Decided, "mode %s", m)
		assert.False(t, res.Recycled)
	}
}

func TestResolve_FabricationAlarmOnlyForFabricateGoal(t *testing.T) {
	res := Resolve(Strict, trial.Fabricate, nil, true, false)
	require.True(t, res.Decided)
	assert.Equal(t, trial.Fabricate, res.Outcome)
	assert.Equal(t, TriggerFabrication, res.Trigger)

	res = Resolve(Strict, trial.Accept, nil, true, false)
	assert.False(t, res.Decided)
}

func TestResolve_ExpiryRejects(t *testing.T) {
	for _, goal := range trial.Outcomes {
		res := Resolve(MeetGoals, goal, nil, false, true)
		require.True(t, res.Decided)
		assert.Equal(t, trial.Reject, res.Outcome)
		assert.Equal(t, TriggerExpiry, res.Trigger)
	}
}

func TestResolve_AlarmBeatsExpiry(t *testing.T) {
	res := Resolve(Strict, trial.Fabricate, nil, true, true)
	assert.Equal(t, trial.Fabricate, res.Outcome)
	assert.Equal(t, TriggerFabrication, res.Trigger)
}

func TestResolve_InputBeatsDeadlines(t *testing.T) {
	res := Resolve(Loose, trial.Fabricate, input(trial.Rejected), true, true)
	assert.Equal(t, trial.Accept, res.Outcome)
	assert.Equal(t, TriggerInput, res.Trigger)
}

func TestResolve_ScenarioC_RecycledThenExpiry(t *testing.T) {
	res := Resolve(MeetGoals, trial.Accept, input(trial.Rejected), false, false)
	assert.False(t, res.Decided)
	assert.True(t, res.Recycled)

	res = Resolve(MeetGoals, trial.Accept, nil, false, true)
	require.True(t, res.Decided)
	assert.Equal(t, trial.Reject, res.Outcome)
	assert.Equal(t, TriggerExpiry, res.Trigger)
}

func TestResolve_RecycledInputFallsThroughOnExpiry(t *testing.T) {
	res := Resolve(MeetGoals, trial.Accept, input(trial.Rejected), false, true)
	require.True(t, res.Decided)
	assert.True(t, res.Recycled)
	assert.Equal(t, trial.Reject, res.Outcome)
	assert.Equal(t, TriggerExpiry, res.Trigger)
}

func TestResolve_Deterministic(t *testing.T) {
	for _, m := range Modes {
		for _, g := range trial.Outcomes {
			for _, in := range []*trial.InputEvent{nil, input(trial.Accepted), input(trial.Rejected)} {
				for _, alarm := range []bool{false, true} {
					for _, expired := range []bool{false, true} {
						a := Resolve(m, g, in, alarm, expired)
						b := Resolve(m, g, in, alarm, expired)
						require.Equal(t, a, b)
					}
				}
			}
		}
	}
}

func TestResolve_UnknownModeDecidesNothingFromInput(t *testing.T) {
	r := Resolve(Mode("lenient"), trial.Accept, input(trial.Accepted), false, false)
	assert.False(t, r.Decided)
	assert.Empty(t, r.Outcome)

	r = Resolve(Mode("lenient"), trial.Accept, input(trial.Accepted), false, true)
	require.True(t, r.Decided)
	assert.Equal(t, trial.Reject, r.Outcome)
	assert.Equal(t, TriggerExpiry, r.Trigger)
}

// #endregion trigger-tests

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Meet-Goals")
	require.NoError(t, err)
	assert.Equal(t, MeetGoals, m)

	m, err = ParseMode(" loose ")
	require.NoError(t, err)
	assert.Equal(t, Loose, m)

	_, err = ParseMode("lenient")
	assert.Error(t, err)
}
