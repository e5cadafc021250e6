package clock

import (
	"math/rand/v2"

	"github.com/rotisserie/eris"
)

// #region clock
// Clock is the two-phase trial timer. It only tracks elapsed time; deciding
// when an open window should close is left to the caller.
type Clock struct {
	cfg Config // targets for phases not yet started
	rng *rand.Rand

	phase  Phase
	paused bool

	interTrialElapsed float64
	interTrialTarget  float64
	windowElapsed     float64
	windowTarget      float64
	fabDeadline       float64
	credit            float64
}

// New creates a halted clock. rng drives the fabrication deadline draw.
func New(cfg Config, rng *rand.Rand) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Clock{cfg: cfg, rng: rng, phase: Halted}, nil
}

// #endregion clock

// #region start
// Start enters InterTrial with both timers at zero.
func (c *Clock) Start(interTrialSeconds, windowSeconds float64) error {
	next := c.cfg
	next.InterTrialSeconds = interTrialSeconds
	next.WindowSeconds = windowSeconds
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	c.phase = InterTrial
	c.paused = false
	c.interTrialElapsed = 0
	c.interTrialTarget = next.InterTrialSeconds
	c.windowElapsed = 0
	c.windowTarget = next.WindowSeconds
	c.fabDeadline = 0
	c.credit = 0
	return nil
}

// #endregion start

// #region tick
// Tick advances the active phase by dt seconds. trialsRemain decides whether
// an expiring inter-trial phase opens a window or ends the session.
func (c *Clock) Tick(dt float64, trialsRemain bool) Signal {
	if c.paused || dt <= 0 {
		return SignalNone
	}
	switch c.phase {
	case InterTrial:
		c.interTrialElapsed += dt
		if c.interTrialElapsed <= c.interTrialTarget {
			return SignalNone
		}
		if !trialsRemain {
			c.phase = Halted
			return SignalSessionEnded
		}
		c.phase = Open
		c.interTrialElapsed = 0
		c.windowElapsed = 0
		c.windowTarget = c.cfg.WindowSeconds
		c.fabDeadline = c.drawDeadline()
		return SignalWindowOpened
	case Open:
		c.windowElapsed += dt
	}
	return SignalNone
}

// drawDeadline samples uniform(base-var, base+var) clamped to [0, window].
func (c *Clock) drawDeadline() float64 {
	lo := c.cfg.FabAlarmBase - c.cfg.FabAlarmVariability
	hi := c.cfg.FabAlarmBase + c.cfg.FabAlarmVariability
	d := lo + c.rng.Float64()*(hi-lo)
	if d < 0 {
		d = 0
	}
	if d > c.windowTarget {
		d = c.windowTarget
	}
	return d
}

// #endregion tick

// #region close
// Close ends the open window and starts the next inter-trial phase. Window
// time left unused is added to that phase's target, so a trial cycle lasts
// inter-trial + window seconds however early the window closed.
func (c *Clock) Close() error {
	if c.phase != Open {
		return eris.Wrapf(ErrNotOpen, "close in phase %s", c.phase)
	}
	c.credit = c.windowTarget - c.windowElapsed
	if c.credit < 0 {
		c.credit = 0
	}
	c.phase = InterTrial
	c.interTrialElapsed = 0
	c.interTrialTarget = c.cfg.InterTrialSeconds + c.credit
	c.windowElapsed = 0
	return nil
}

// Stop moves the clock to Closed from any phase. Further ticks are no-ops
// until Start.
func (c *Clock) Stop() {
	c.phase = Closed
	c.paused = false
}

// #endregion close

// #region pause
// Pause freezes tick accumulation. Timers and phase are untouched.
func (c *Clock) Pause() {
	c.paused = true
}

// Resume lifts a Pause.
func (c *Clock) Resume() {
	c.paused = false
}

// #endregion pause

// #region setters
// SetWindowSeconds changes the length of windows opened from now on.
func (c *Clock) SetWindowSeconds(s float64) error {
	next := c.cfg
	next.WindowSeconds = s
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// SetInterTrialSeconds changes the gap used by inter-trial phases started
// from now on.
func (c *Clock) SetInterTrialSeconds(s float64) error {
	next := c.cfg
	next.InterTrialSeconds = s
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// #endregion setters

// #region accessors
func (c *Clock) Phase() Phase                 { return c.phase }
func (c *Clock) Paused() bool                 { return c.paused }
func (c *Clock) InterTrialElapsed() float64   { return c.interTrialElapsed }
func (c *Clock) InterTrialTarget() float64    { return c.interTrialTarget }
func (c *Clock) WindowElapsed() float64       { return c.windowElapsed }
func (c *Clock) WindowSeconds() float64       { return c.windowTarget }
func (c *Clock) FabricationDeadline() float64 { return c.fabDeadline }
func (c *Clock) Config() Config               { return c.cfg }

// Credit is the compensation carried into the current inter-trial phase.
func (c *Clock) Credit() float64 { return c.credit }

// #endregion accessors
