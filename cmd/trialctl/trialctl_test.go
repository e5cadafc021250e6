package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-material/HandStrengthener/internal/config"
	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/input"
	"github.com/med-material/HandStrengthener/internal/logging"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/state"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// seedStore writes one finished session with two decisions.
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trials.db")
	store, err := state.NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.CreateSession(state.SessionRecord{ID: "sess-0001", Mode: "strict", TotalTrials: 2, Seed: 11})
	require.NoError(t, err)

	sink := events.Multi{
		state.NewRecorder(store, "sess-0001", nil),
		logging.NewProvenance(store.DB(), "sess-0001", nil),
	}
	sink.Publish(events.DecisionMade{
		Trial: 0, Mode: policy.Strict, DesignedGoal: trial.Accept, RealizedOutcome: trial.Accept,
		Trigger: policy.TriggerInput, WindowElapsed: 0.3,
		Input: &trial.InputEvent{Validity: trial.Accepted, Confidence: 0.8, Sequence: 1, Source: trial.SourceRemote},
	})
	sink.Publish(events.DecisionMade{
		Trial: 1, Mode: policy.Strict, DesignedGoal: trial.Fabricate, RealizedOutcome: trial.Fabricate,
		Trigger: policy.TriggerFabrication, FabricationDeadline: 0.4, WindowElapsed: 0.4,
	})
	sink.Publish(events.SessionEnded{Stats: events.Stats{Index: 2, Total: 2}})
	return path
}

func TestReplayFixture(t *testing.T) {
	var buf bytes.Buffer
	n, err := replayFixture(&buf, filepath.Join("..", "..", "internal", "replay", "testdata", "fabrication_deadline.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, buf.String(), "Summary:")
	assert.NotContains(t, buf.String(), "DIFF")

	_, err = replayFixture(&buf, "missing.json")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	path := seedStore(t)
	store, err := state.NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runListMode(&buf, store, 10, false))
	assert.Contains(t, buf.String(), "sess-000")
	assert.Contains(t, buf.String(), "done")

	buf.Reset()
	require.NoError(t, runDetailMode(&buf, store, "sess-0001", false))
	out := buf.String()
	assert.Contains(t, out, "Decided:    2/2")
	assert.Contains(t, out, "fabrication deadline elapsed")

	buf.Reset()
	require.NoError(t, runDetailMode(&buf, store, "sess-0001", true))
	assert.Contains(t, buf.String(), `"input_source": "remote"`)

	assert.Error(t, runDetailMode(&buf, store, "nope", false))
}

func TestAuditCommand(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Path: seedStore(t)}}
	t.Cleanup(func() { cfg = nil })

	var buf bytes.Buffer
	auditCmd.SetOut(&buf)
	require.NoError(t, auditCmd.RunE(auditCmd, []string{"sess-0001"}))
	assert.Contains(t, buf.String(), "2 total, 2 match, 0 diverge")

	err := auditCmd.RunE(auditCmd, []string{"unknown"})
	assert.Error(t, err)
	assert.False(t, eris.Is(err, errDiverged))
}

func TestProducers(t *testing.T) {
	cls := classifierProducer([]float64{0.2, 0.9, 0.9, 0.1}, input.ClassifierConfig{Mode: input.SingleThreshold, Threshold: 0.7}, nil)
	var got []trial.InputEvent
	for i := 0; i < 4; i++ {
		got = append(got, cls(0.11)...)
	}
	require.Len(t, got, 2)
	assert.Equal(t, trial.Accepted, got[0].Validity)
	assert.Equal(t, trial.Rejected, got[1].Validity)
	assert.Equal(t, []int64{1, 2}, []int64{got[0].Sequence, got[1].Sequence})

	gaze := gazeProducer([]float64{1, 0, 0, 1, 1, 0, 1}, 10, nil)
	got = nil
	for i := 0; i < 7; i++ {
		got = append(got, gaze(0.11)...)
	}
	require.Len(t, got, 2)
	for i, ev := range got {
		assert.Equal(t, trial.SourceBlink, ev.Source)
		assert.Equal(t, int64(i+1), ev.Sequence)
	}
}
