package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region loop
// Loop owns a Controller on a single goroutine. Ticks come from a ticker,
// everything else is queued through Do, so the controller never sees two
// calls at once.
type Loop struct {
	ctrl   *Controller
	period time.Duration
	log    *zap.Logger

	reqs chan request
	done chan struct{}
}

type request struct {
	fn    func(*Controller) error
	reply chan error
}

// NewLoop wraps ctrl. tickHz sets the ticker rate.
func NewLoop(ctrl *Controller, tickHz float64, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	if tickHz <= 0 {
		tickHz = 60
	}
	return &Loop{
		ctrl:   ctrl,
		period: time.Duration(float64(time.Second) / tickHz),
		log:    log,
		reqs:   make(chan request),
		done:   make(chan struct{}),
	}
}

// #endregion loop

// #region run
// Run serves ticks and queued calls until ctx is cancelled or the session
// finishes. Elapsed time between ticks is measured, not assumed.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("session loop stopped", zap.Error(ctx.Err()))
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if err := l.ctrl.OnTick(dt); err != nil {
				return eris.Wrap(err, "tick")
			}
		case req := <-l.reqs:
			req.reply <- req.fn(l.ctrl)
		}
		if l.ctrl.Finished() {
			l.log.Info("session loop finished")
			return nil
		}
	}
}

// #endregion run

// #region calls
// Do runs fn on the loop goroutine and returns its error.
func (l *Loop) Do(ctx context.Context, fn func(*Controller) error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case l.reqs <- req:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Input queues an input event.
func (l *Loop) Input(ctx context.Context, ev trial.InputEvent) error {
	return l.Do(ctx, func(c *Controller) error { return c.OnInput(ev) })
}

// Command queues an operator command.
func (l *Loop) Command(ctx context.Context, cmd Command) error {
	return l.Do(ctx, func(c *Controller) error { return c.Apply(cmd) })
}

// Snapshot reads the controller state on the loop goroutine.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := l.Do(ctx, func(c *Controller) error {
		snap = c.Snapshot()
		return nil
	})
	return snap, err
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// #endregion calls
