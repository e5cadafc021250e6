package session

import (
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region controller
// Controller is the session core. It owns the allocator and the clock and is
// the only thing that changes the session state. It is single-threaded; use
// Loop to drive it from several goroutines.
type Controller struct {
	id   string
	cfg  Config
	seed uint64
	log  *zap.Logger
	sink events.Sink

	alloc *allocator.Allocator
	clk   *clock.Clock

	state    trial.SessionState
	started  bool
	finished bool
	goal     trial.Outcome // cached at window open
	lastSeq  int64
}

// New validates cfg and builds a stopped controller. sink and log may be nil.
func New(cfg Config, sink events.Sink, log *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() | 1
	}

	clk, err := clock.New(cfg.Clock, rand.New(rand.NewPCG(seed, 2)))
	if err != nil {
		return nil, err
	}
	alloc := allocator.New(cfg.TotalTrials, rand.New(rand.NewPCG(seed, 1)))
	if err := alloc.Configure(cfg.Categories); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &Controller{
		id:    id,
		cfg:   cfg,
		seed:  seed,
		log:   log.With(zap.String("session", id)),
		sink:  sink,
		alloc: alloc,
		clk:   clk,
		state: trial.Stopped,
	}, nil
}

// #endregion controller

// #region commands
// Run starts or resumes the session. The first Run builds the trial
// sequence; a ConfigError there leaves the session Stopped.
func (c *Controller) Run() error {
	if c.finished {
		c.log.Warn("run ignored", zap.String("reason", "finished"))
		return eris.Wrap(ErrSessionFinished, "run")
	}
	if c.state == trial.Running {
		c.log.Warn("run ignored", zap.String("reason", "already running"))
		return eris.Wrap(ErrAlreadyRunning, "run")
	}

	if !c.started {
		if err := c.alloc.Build(); err != nil {
			c.log.Error("build trial sequence", zap.Error(err))
			return eris.Wrap(err, "run")
		}
		cc := c.clk.Config()
		if err := c.clk.Start(cc.InterTrialSeconds, cc.WindowSeconds); err != nil {
			return eris.Wrap(err, "run")
		}
		c.started = true
		c.log.Info("session started",
			zap.String("mode", string(c.cfg.Mode)),
			zap.Int("trials", c.alloc.Len()),
			zap.Uint64("seed", c.seed),
		)
	} else {
		c.clk.Resume()
	}
	c.setState(trial.Running)
	return nil
}

// Pause freezes the clock. Inputs are ignored while paused.
func (c *Controller) Pause() error {
	if c.state != trial.Running {
		c.log.Warn("pause ignored", zap.String("state", string(c.state)))
		return eris.Wrapf(ErrNotRunning, "pause in state %s", c.state)
	}
	c.clk.Pause()
	c.setState(trial.Paused)
	return nil
}

// Resume continues a paused session.
func (c *Controller) Resume() error {
	switch c.state {
	case trial.Running:
		c.log.Warn("resume ignored", zap.String("reason", "already running"))
		return eris.Wrap(ErrAlreadyRunning, "resume")
	case trial.Stopped:
		c.log.Warn("resume ignored", zap.String("reason", "stopped"))
		return eris.Wrap(ErrNotRunning, "resume")
	}
	c.clk.Resume()
	c.setState(trial.Running)
	return nil
}

// End stops the session for good. An open window is resolved as Reject, as
// if it had expired. Calling End again is a no-op.
func (c *Controller) End() error {
	if c.finished {
		return nil
	}
	if c.clk.Phase() == clock.Open {
		forced := policy.Resolution{
			Decided: true,
			Outcome: trial.Reject,
			Trigger: policy.TriggerExpiry,
			Reason:  "session ended with window open",
		}
		if err := c.commit(forced, nil); err != nil {
			return err
		}
	}
	c.clk.Stop()
	c.finish(true)
	return nil
}

// Apply runs one operator command.
func (c *Controller) Apply(cmd Command) error {
	switch cmd {
	case CmdRun:
		return c.Run()
	case CmdPause:
		return c.Pause()
	case CmdResume:
		return c.Resume()
	case CmdEnd:
		return c.End()
	}
	return eris.Errorf("unknown command %q", cmd)
}

// SetWindowSeconds changes the length of windows opened after this call.
func (c *Controller) SetWindowSeconds(s float64) error {
	if err := c.clk.SetWindowSeconds(s); err != nil {
		c.log.Warn("set window seconds", zap.Float64("seconds", s), zap.Error(err))
		return err
	}
	c.log.Info("window seconds set", zap.Float64("seconds", s))
	return nil
}

// SetInterTrialSeconds changes the gap used by inter-trial phases started
// after this call.
func (c *Controller) SetInterTrialSeconds(s float64) error {
	if err := c.clk.SetInterTrialSeconds(s); err != nil {
		c.log.Warn("set inter-trial seconds", zap.Float64("seconds", s), zap.Error(err))
		return err
	}
	c.log.Info("inter-trial seconds set", zap.Float64("seconds", s))
	return nil
}

// #endregion commands

// #region tick
// OnTick advances the session by dt seconds. It does nothing unless Running.
func (c *Controller) OnTick(dt float64) error {
	if c.state != trial.Running {
		return nil
	}

	switch c.clk.Tick(dt, c.alloc.Remaining() > 0) {
	case clock.SignalWindowOpened:
		goal, err := c.alloc.Peek()
		if err != nil {
			c.log.Error("window opened with no trial left", zap.Error(err))
			return err
		}
		c.goal = goal
		c.sink.Publish(events.WindowOpened{
			Trial:               c.alloc.Index(),
			Goal:                goal,
			WindowSeconds:       c.clk.WindowSeconds(),
			FabricationDeadline: c.clk.FabricationDeadline(),
		})
	case clock.SignalSessionEnded:
		c.publishTimers()
		c.finish(false)
		return nil
	}

	if c.clk.Phase() == clock.Open {
		if err := c.evaluate(nil); err != nil {
			return err
		}
	}
	c.publishTimers()
	return nil
}

func (c *Controller) publishTimers() {
	c.sink.Publish(events.TimersUpdated{
		Phase:             string(c.clk.Phase()),
		InterTrialElapsed: c.clk.InterTrialElapsed(),
		WindowElapsed:     c.clk.WindowElapsed(),
	})
}

// #endregion tick

// #region input
// OnInput delivers one classified input. Malformed events are rejected and
// logged. Valid events arriving while no window is open are dropped. Pausing
// only freezes the timers, so an open window still resolves on input.
func (c *Controller) OnInput(ev trial.InputEvent) error {
	if err := trial.Validate(ev, c.lastSeq); err != nil {
		c.log.Warn("input rejected", zap.Int64("sequence", ev.Sequence), zap.Error(err))
		return err
	}
	c.lastSeq = ev.Sequence

	if c.clk.Phase() != clock.Open {
		c.log.Debug("input dropped",
			zap.String("state", string(c.state)),
			zap.String("phase", string(c.clk.Phase())),
			zap.Int64("sequence", ev.Sequence),
		)
		return nil
	}
	return c.evaluate(&ev)
}

// #endregion input

// #region resolve
// evaluate runs trigger precedence against the open window and commits the
// outcome if one is reached.
func (c *Controller) evaluate(in *trial.InputEvent) error {
	elapsed := c.clk.WindowElapsed()
	alarm := elapsed >= c.clk.FabricationDeadline()
	expired := elapsed >= c.clk.WindowSeconds()

	res := policy.Resolve(c.cfg.Mode, c.goal, in, alarm, expired)
	if res.Recycled {
		c.log.Debug("input recycled", zap.String("goal", string(c.goal)), zap.String("reason", res.Reason))
		c.sink.Publish(events.InputRecycled{Trial: c.alloc.Index(), Goal: c.goal, Input: *in})
	}
	if !res.Decided {
		return nil
	}
	if res.Trigger != policy.TriggerInput {
		in = nil
	}
	return c.commit(res, in)
}

// commit records res for the open window and closes it.
func (c *Controller) commit(res policy.Resolution, in *trial.InputEvent) error {
	idx := c.alloc.Index()
	deadline := c.clk.FabricationDeadline()
	elapsed := c.clk.WindowElapsed()

	if err := c.alloc.Commit(res.Outcome); err != nil {
		c.log.Error("commit outcome", zap.Int("trial", idx), zap.Error(err))
		return err
	}
	if err := c.clk.Close(); err != nil {
		c.log.Error("close window", zap.Int("trial", idx), zap.Error(err))
		return err
	}

	var input *trial.InputEvent
	if in != nil {
		cp := *in
		input = &cp
	}
	c.log.Info("trial decided",
		zap.Int("trial", idx),
		zap.String("goal", string(c.goal)),
		zap.String("outcome", string(res.Outcome)),
		zap.String("trigger", string(res.Trigger)),
		zap.Float64("window_elapsed", elapsed),
	)
	c.sink.Publish(events.DecisionMade{
		Trial:               idx,
		DesignedGoal:        c.goal,
		RealizedOutcome:     res.Outcome,
		FabricationDeadline: deadline,
		WindowElapsed:       elapsed,
		Trigger:             res.Trigger,
		Input:               input,
		Mode:                c.cfg.Mode,
	})
	c.sink.Publish(events.WindowClosed{Trial: idx, Outcome: res.Outcome, Credit: c.clk.Credit()})

	rates := c.alloc.Rates()
	c.sink.Publish(events.RatesUpdated{
		AcceptRate:      rates[trial.Accept],
		RejectRate:      rates[trial.Reject],
		FabricateRate:   rates[trial.Fabricate],
		RemainingCounts: c.alloc.RemainingCounts(),
	})
	c.goal = ""
	return nil
}

// #endregion resolve

// #region state
func (c *Controller) setState(to trial.SessionState) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.log.Info("session state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	c.sink.Publish(events.SessionStateChanged{From: from, To: to})
}

func (c *Controller) finish(forced bool) {
	c.finished = true
	c.goal = ""
	c.setState(trial.Stopped)
	stats := c.Stats()
	c.log.Info("session ended",
		zap.Bool("forced", forced),
		zap.Int("index", stats.Index),
		zap.Int("total", stats.Total),
	)
	c.sink.Publish(events.SessionEnded{Forced: forced, Stats: stats})
}

// Stats returns the statistics snapshot reported at session end.
func (c *Controller) Stats() events.Stats {
	return events.Stats{
		Index:           c.alloc.Index(),
		Total:           c.cfg.TotalTrials,
		RemainingCounts: c.alloc.RemainingCounts(),
		ResultCounts:    c.alloc.ResultCounts(),
		Rates:           c.alloc.Rates(),
	}
}

// Snapshot returns a copy of the controller's observable state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		SessionID:         c.id,
		State:             c.state,
		Mode:              c.cfg.Mode,
		Phase:             c.clk.Phase(),
		Finished:          c.finished,
		Index:             c.alloc.Index(),
		Total:             c.cfg.TotalTrials,
		Goal:              c.goal,
		InterTrialElapsed: c.clk.InterTrialElapsed(),
		WindowElapsed:     c.clk.WindowElapsed(),
		RemainingCounts:   c.alloc.RemainingCounts(),
		ResultCounts:      c.alloc.ResultCounts(),
		Rates:             c.alloc.Rates(),
	}
}

func (c *Controller) ID() string                { return c.id }
func (c *Controller) Seed() uint64              { return c.seed }
func (c *Controller) Config() Config            { return c.cfg }
func (c *Controller) State() trial.SessionState { return c.state }
func (c *Controller) Finished() bool            { return c.finished }

// Sequence returns the designed goal sequence, empty before the first Run.
func (c *Controller) Sequence() []trial.Outcome { return c.alloc.Sequence() }

// #endregion state
