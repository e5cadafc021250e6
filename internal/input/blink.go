package input

import (
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region blink
// Blink describes one completed eyes-closed episode.
type Blink struct {
	Number      int
	OpenSeconds float64 // eyes-open time before the blink
	ClosedAt    float64 // detector time when gaze was lost
	ReopenedAt  float64
}

// BlinkDetector watches a per-tick "gaze is recent" flag. Losing gaze marks
// the eyes closed; regaining it is a blink and yields an Accepted input.
type BlinkDetector struct {
	log *zap.Logger

	started    bool
	closed     bool
	now        float64
	closedAt   float64
	lastReopen float64
	blinks     []Blink
}

// NewBlinkDetector creates a stopped detector. log may be nil.
func NewBlinkDetector(log *zap.Logger) *BlinkDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &BlinkDetector{log: log}
}

// Start enables detection.
func (b *BlinkDetector) Start() { b.started = true }

// Stop disables detection. Eye state is kept.
func (b *BlinkDetector) Stop() { b.started = false }

// #endregion blink

// #region update
// Update advances the detector by dt seconds. ok is true on the tick the eyes
// reopen.
func (b *BlinkDetector) Update(dt float64, gazeRecent bool) (ev trial.InputEvent, ok bool) {
	if !b.started {
		return trial.InputEvent{}, false
	}
	b.now += dt

	if !gazeRecent {
		if !b.closed {
			b.closed = true
			b.closedAt = b.now
			b.log.Debug("eyes closed",
				zap.Float64("open_seconds", b.closedAt-b.lastReopen),
				zap.Int("blinks", len(b.blinks)),
			)
		}
		return trial.InputEvent{}, false
	}
	if !b.closed {
		return trial.InputEvent{}, false
	}

	b.closed = false
	blink := Blink{
		Number:      len(b.blinks) + 1,
		OpenSeconds: b.closedAt - b.lastReopen,
		ClosedAt:    b.closedAt,
		ReopenedAt:  b.now,
	}
	b.blinks = append(b.blinks, blink)
	b.lastReopen = b.now
	return trial.InputEvent{
		Validity:   trial.Accepted,
		Confidence: 1,
		Sequence:   int64(blink.Number),
		Source:     trial.SourceBlink,
	}, true
}

// Blinks returns the completed blinks in order.
func (b *BlinkDetector) Blinks() []Blink {
	return append([]Blink(nil), b.blinks...)
}

// #endregion update
