package session

import (
	"math/rand/v2"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region helpers
func only(o trial.Outcome, total int) []allocator.Category {
	return []allocator.Category{{Name: o, Behavior: allocator.Recurring, Quota: total}}
}

func testClock() clock.Config {
	return clock.Config{
		InterTrialSeconds:   0.5,
		WindowSeconds:       1.0,
		FabAlarmBase:        0.5,
		FabAlarmVariability: 0,
	}
}

func newTestController(t *testing.T, mode policy.Mode, total int, cats []allocator.Category, cc clock.Config) (*Controller, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	c, err := New(Config{
		Mode:        mode,
		TotalTrials: total,
		Categories:  cats,
		Clock:       cc,
		Seed:        42,
	}, rec, nil)
	require.NoError(t, err)
	return c, rec
}

// openWindow ticks past the current inter-trial target.
func openWindow(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.OnTick(c.clk.InterTrialTarget()+0.25))
	require.Equal(t, clock.Open, c.clk.Phase())
}

var seq int64

func in(v trial.Validity) trial.InputEvent {
	seq++
	return trial.InputEvent{Validity: v, Confidence: 0.9, Sequence: seq, Source: trial.SourceSimulated}
}

// #endregion helpers

// #region run-tests
func TestRun_EmitsRunningAndBuilds(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 3, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())

	assert.Equal(t, trial.Running, c.State())
	assert.Len(t, c.Sequence(), 3)
	assert.Equal(t, []events.Kind{events.KindSessionStateChanged}, rec.Kinds())

	err := c.Run()
	assert.True(t, eris.Is(err, ErrAlreadyRunning))
}

func TestRun_ConfigErrorBlocksStart(t *testing.T) {
	cats := []allocator.Category{{Name: trial.Reject, Behavior: allocator.Persisting, Quota: 5}}
	c, rec := newTestController(t, policy.Strict, 3, cats, testClock())

	err := c.Run()
	require.Error(t, err)
	assert.True(t, eris.Is(err, allocator.ErrConfig))
	assert.Equal(t, trial.Stopped, c.State())
	assert.Empty(t, rec.Events())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Mode: "lenient", TotalTrials: 1, Categories: only(trial.Accept, 1), Clock: testClock()}, nil, nil)
	assert.True(t, eris.Is(err, allocator.ErrConfig))

	_, err = New(Config{Mode: policy.Strict, TotalTrials: 0, Categories: only(trial.Accept, 1), Clock: testClock()}, nil, nil)
	assert.True(t, eris.Is(err, allocator.ErrConfig))

	bad := testClock()
	bad.WindowSeconds = 0
	_, err = New(Config{Mode: policy.Strict, TotalTrials: 1, Categories: only(trial.Accept, 1), Clock: bad}, nil, nil)
	assert.True(t, eris.Is(err, clock.ErrInvalidDuration))
}

func TestOnTick_NoopUnlessRunning(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.OnTick(10))
	assert.Empty(t, rec.Events())
	assert.Equal(t, clock.Halted, c.clk.Phase())
}

// #endregion run-tests

// #region trial-tests
func TestTrial_EventOrder(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 2, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnInput(in(trial.Accepted)))

	assert.Equal(t, []events.Kind{
		events.KindSessionStateChanged,
		events.KindWindowOpened,
		events.KindDecisionMade,
		events.KindWindowClosed,
		events.KindRatesUpdated,
	}, rec.Kinds())

	d := rec.Decisions()[0]
	assert.Equal(t, 0, d.Trial)
	assert.Equal(t, trial.Accept, d.DesignedGoal)
	assert.Equal(t, trial.Accept, d.RealizedOutcome)
	assert.Equal(t, policy.TriggerInput, d.Trigger)
	require.NotNil(t, d.Input)
	assert.Equal(t, trial.Accepted, d.Input.Validity)
	assert.Equal(t, clock.InterTrial, c.clk.Phase())
}

func TestScenarioB_StrictFabricateOverridesInput(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Fabricate, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnInput(in(trial.Accepted)))

	require.Len(t, rec.Decisions(), 1)
	assert.Equal(t, trial.Fabricate, rec.Decisions()[0].RealizedOutcome)
}

func TestScenarioC_MeetGoalsRecyclesThenExpires(t *testing.T) {
	c, rec := newTestController(t, policy.MeetGoals, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)

	require.NoError(t, c.OnInput(in(trial.Rejected)))
	assert.Empty(t, rec.Decisions())
	assert.Equal(t, clock.Open, c.clk.Phase())
	assert.Contains(t, rec.Kinds(), events.KindInputRecycled)

	require.NoError(t, c.OnTick(0.5))
	assert.Empty(t, rec.Decisions())
	require.NoError(t, c.OnTick(0.5))

	require.Len(t, rec.Decisions(), 1)
	d := rec.Decisions()[0]
	assert.Equal(t, trial.Reject, d.RealizedOutcome)
	assert.Equal(t, policy.TriggerExpiry, d.Trigger)
	assert.Nil(t, d.Input)
}

func TestScenarioD_LooseAcceptsRejectedInput(t *testing.T) {
	c, rec := newTestController(t, policy.Loose, 1, only(trial.Reject, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnInput(in(trial.Rejected)))

	require.Len(t, rec.Decisions(), 1)
	assert.Equal(t, trial.Accept, rec.Decisions()[0].RealizedOutcome)
}

func TestScenarioE_FabricationAtDeadline(t *testing.T) {
	cc := testClock()
	cc.FabAlarmBase = 0.6
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Fabricate, 1), cc)
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.Equal(t, 0.6, c.clk.FabricationDeadline())

	require.NoError(t, c.OnTick(0.3))
	assert.Empty(t, rec.Decisions())
	require.NoError(t, c.OnTick(0.3))

	require.Len(t, rec.Decisions(), 1)
	d := rec.Decisions()[0]
	assert.Equal(t, trial.Fabricate, d.RealizedOutcome)
	assert.Equal(t, policy.TriggerFabrication, d.Trigger)
	assert.InDelta(t, 0.6, d.WindowElapsed, 1e-9)
	assert.Equal(t, 0.6, d.FabricationDeadline)

	require.NoError(t, c.OnTick(0.3))
	assert.Len(t, rec.Decisions(), 1)
}

func TestAlarmIgnoredForNonFabricateGoal(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnTick(0.75))
	assert.Empty(t, rec.Decisions())
}

func TestCompensationCreditCarried(t *testing.T) {
	cc := testClock()
	cc.InterTrialSeconds = 1.0
	c, rec := newTestController(t, policy.Loose, 2, only(trial.Accept, 1), cc)
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnTick(0.25))
	require.NoError(t, c.OnInput(in(trial.Accepted)))

	var closed events.WindowClosed
	for _, ev := range rec.Events() {
		if wc, ok := ev.(events.WindowClosed); ok {
			closed = wc
		}
	}
	assert.Equal(t, 0.75, closed.Credit)
	assert.Equal(t, 1.75, c.clk.InterTrialTarget())
}

func TestInputDroppedOutsideWindow(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.OnInput(in(trial.Accepted)))
	require.NoError(t, c.Run())
	require.NoError(t, c.OnInput(in(trial.Accepted)))
	assert.Empty(t, rec.Decisions())
}

func TestMalformedInputRejected(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)

	err := c.OnInput(trial.InputEvent{Validity: trial.Accepted, Confidence: 1.5, Sequence: 1000})
	assert.True(t, eris.Is(err, trial.ErrMalformedInput))

	good := in(trial.Rejected)
	good.Sequence += 1000
	require.NoError(t, c.OnInput(good))
	require.Len(t, rec.Decisions(), 1)

	stale := trial.InputEvent{Validity: trial.Accepted, Confidence: 1, Sequence: good.Sequence}
	err = c.OnInput(stale)
	assert.True(t, eris.Is(err, trial.ErrMalformedInput))
}

// #endregion trial-tests

// #region lifecycle-tests
func TestPauseResume(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())

	err := c.Pause()
	assert.True(t, eris.Is(err, ErrNotRunning))
	err = c.Resume()
	assert.True(t, eris.Is(err, ErrNotRunning))

	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.Pause())
	assert.Equal(t, trial.Paused, c.State())

	require.NoError(t, c.OnTick(5))
	assert.Empty(t, rec.Decisions())
	assert.Equal(t, 0.0, c.clk.WindowElapsed())
	assert.Equal(t, clock.Open, c.clk.Phase())

	require.NoError(t, c.Resume())
	assert.True(t, eris.Is(c.Resume(), ErrAlreadyRunning))
	require.NoError(t, c.OnTick(1.0))
	require.Len(t, rec.Decisions(), 1)
	assert.Equal(t, policy.TriggerExpiry, rec.Decisions()[0].Trigger)
}

func TestPausedWindowResolvesOnInput(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 2, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)
	require.NoError(t, c.OnTick(0.25))
	require.NoError(t, c.Pause())

	ev := in(trial.Accepted)
	require.NoError(t, c.OnInput(ev))
	assert.Equal(t, trial.Paused, c.State())
	require.Len(t, rec.Decisions(), 1)
	d := rec.Decisions()[0]
	assert.Equal(t, trial.Accept, d.RealizedOutcome)
	assert.Equal(t, policy.TriggerInput, d.Trigger)
	require.NotNil(t, d.Input)
	assert.Equal(t, ev.Sequence, d.Input.Sequence)
	assert.Equal(t, clock.InterTrial, c.clk.Phase())

	// The gap does not advance until resumed.
	require.NoError(t, c.OnTick(10))
	assert.Equal(t, clock.InterTrial, c.clk.Phase())
	assert.Equal(t, 0.0, c.clk.InterTrialElapsed())

	// Nothing is open now, so input is dropped without deciding.
	require.NoError(t, c.OnInput(in(trial.Accepted)))
	assert.Len(t, rec.Decisions(), 1)
}

func TestRatesAndTimersPayloads(t *testing.T) {
	cats := []allocator.Category{
		{Name: trial.Accept, Behavior: allocator.Persisting, Quota: 2},
		{Name: trial.Reject, Behavior: allocator.Persisting, Quota: 2},
	}
	c, rec := newTestController(t, policy.Strict, 4, cats, testClock())
	require.NoError(t, c.Run())

	// Strict reports validity, so Accepted then Rejected gives one of each
	// whatever the goals were.
	openWindow(t, c)
	require.NoError(t, c.OnInput(in(trial.Accepted)))
	openWindow(t, c)
	require.NoError(t, c.OnInput(in(trial.Rejected)))

	var rates []events.RatesUpdated
	for _, ev := range rec.Events() {
		if r, ok := ev.(events.RatesUpdated); ok {
			rates = append(rates, r)
		}
	}
	require.Len(t, rates, 2)
	assert.InDelta(t, 1.0, rates[0].AcceptRate, 1e-9)
	assert.InDelta(t, 0.5, rates[1].AcceptRate, 1e-9)
	assert.InDelta(t, 0.5, rates[1].RejectRate, 1e-9)
	assert.InDelta(t, 0.0, rates[1].FabricateRate, 1e-9)
	remaining := 0
	for _, n := range rates[1].RemainingCounts {
		remaining += n
	}
	assert.Equal(t, 2, remaining)

	rec.Reset()
	require.NoError(t, c.OnTick(0.2))
	evs := rec.Events()
	require.NotEmpty(t, evs)
	timers, ok := evs[len(evs)-1].(events.TimersUpdated)
	require.True(t, ok)
	assert.Equal(t, string(clock.InterTrial), timers.Phase)
	assert.InDelta(t, 0.2, timers.InterTrialElapsed, 1e-9)
	assert.Equal(t, 0.0, timers.WindowElapsed)
}

func TestRunResumesFromPause(t *testing.T) {
	c, _ := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	require.NoError(t, c.Pause())
	require.NoError(t, c.Run())
	assert.Equal(t, trial.Running, c.State())
	assert.False(t, c.clk.Paused())
}

func TestEnd_ForcesRejectAndIsIdempotent(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 3, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)

	require.NoError(t, c.End())
	require.NoError(t, c.End())

	require.Len(t, rec.Decisions(), 1)
	assert.Equal(t, trial.Reject, rec.Decisions()[0].RealizedOutcome)
	assert.Equal(t, policy.TriggerExpiry, rec.Decisions()[0].Trigger)
	assert.Equal(t, trial.Stopped, c.State())
	assert.Equal(t, clock.Closed, c.clk.Phase())

	var ended []events.SessionEnded
	for _, ev := range rec.Events() {
		if e, ok := ev.(events.SessionEnded); ok {
			ended = append(ended, e)
		}
	}
	require.Len(t, ended, 1)
	assert.True(t, ended[0].Forced)
	assert.Equal(t, 1, ended[0].Stats.Index)
	assert.Equal(t, 3, ended[0].Stats.Total)
	assert.Equal(t, 1, ended[0].Stats.ResultCounts[trial.Reject])
	assert.Equal(t, 2, ended[0].Stats.RemainingCounts[trial.Accept])

	assert.True(t, eris.Is(c.Run(), ErrSessionFinished))
}

func TestNaturalExhaustion(t *testing.T) {
	c, rec := newTestController(t, policy.Loose, 2, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	for i := 0; i < 2; i++ {
		openWindow(t, c)
		require.NoError(t, c.OnInput(in(trial.Rejected)))
	}
	require.NoError(t, c.OnTick(c.clk.InterTrialTarget()+0.25))

	assert.True(t, c.Finished())
	assert.Equal(t, trial.Stopped, c.State())
	assert.Equal(t, clock.Halted, c.clk.Phase())

	kinds := rec.Kinds()
	assert.Equal(t, events.KindSessionEnded, kinds[len(kinds)-1])
	assert.Equal(t, 1.0, c.Snapshot().Rates[trial.Accept])
	assert.True(t, eris.Is(c.Run(), ErrSessionFinished))
}

func TestSettersApplyToFutureWindows(t *testing.T) {
	c, rec := newTestController(t, policy.Strict, 2, only(trial.Accept, 1), testClock())
	require.NoError(t, c.Run())
	openWindow(t, c)

	require.NoError(t, c.SetWindowSeconds(2.0))
	assert.Equal(t, 1.0, c.clk.WindowSeconds())
	require.NoError(t, c.OnTick(1.0))
	require.Len(t, rec.Decisions(), 1)

	openWindow(t, c)
	assert.Equal(t, 2.0, c.clk.WindowSeconds())

	assert.Error(t, c.SetInterTrialSeconds(-1))
}

func TestApplyCommands(t *testing.T) {
	c, _ := newTestController(t, policy.Strict, 1, only(trial.Accept, 1), testClock())
	for _, cmd := range []Command{CmdRun, CmdPause, CmdResume, CmdEnd} {
		require.NoError(t, c.Apply(cmd), "command %s", cmd)
	}
	assert.Error(t, c.Apply("jump"))

	cmd, err := ParseCommand(" Pause ")
	require.NoError(t, err)
	assert.Equal(t, CmdPause, cmd)
}

// #endregion lifecycle-tests

// #region property-tests
// Any interleaving of ticks and inputs commits exactly one outcome per
// opened window, with trial indices in order.
func TestExactlyOneOutcomePerWindow(t *testing.T) {
	cats := []allocator.Category{
		{Name: trial.Accept, Behavior: allocator.Recurring, Quota: 1},
		{Name: trial.Reject, Behavior: allocator.Persisting, Quota: 2},
		{Name: trial.Fabricate, Behavior: allocator.Persisting, Quota: 2},
	}
	cc := clock.Config{InterTrialSeconds: 0.25, WindowSeconds: 0.5, FabAlarmBase: 0.25, FabAlarmVariability: 0.2}

	for s := uint64(1); s <= 30; s++ {
		for _, mode := range policy.Modes {
			rec := &events.Recorder{}
			c, err := New(Config{Mode: mode, TotalTrials: 8, Categories: cats, Clock: cc, Seed: s}, rec, nil)
			require.NoError(t, err)
			require.NoError(t, c.Run())

			r := rand.New(rand.NewPCG(s, 99))
			var next int64
			for step := 0; step < 2000 && !c.Finished(); step++ {
				if r.IntN(3) == 0 {
					next++
					v := trial.Accepted
					if r.IntN(2) == 0 {
						v = trial.Rejected
					}
					require.NoError(t, c.OnInput(trial.InputEvent{Validity: v, Confidence: r.Float64(), Sequence: next}))
					continue
				}
				require.NoError(t, c.OnTick(0.05+r.Float64()*0.2))
			}
			require.True(t, c.Finished(), "seed %d mode %s", s, mode)

			opened := 0
			for _, ev := range rec.Events() {
				if ev.Kind() == events.KindWindowOpened {
					opened++
				}
			}
			ds := rec.Decisions()
			require.Len(t, ds, 8)
			assert.Equal(t, 8, opened)
			for i, d := range ds {
				assert.Equal(t, i, d.Trial)
			}
		}
	}
}

// #endregion property-tests
