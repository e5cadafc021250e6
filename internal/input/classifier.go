package input

import (
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region classifier
// Classifier turns a stream of raw motor-imagery confidences into input
// events. It reports only classification changes: Rest to MotorImagery is an
// Accepted input, MotorImagery back to Rest is a Rejected one.
type Classifier struct {
	cfg ClassifierConfig
	log *zap.Logger

	class Class
	seq   int64

	buf  []bool
	next int
}

// NewClassifier creates a classifier at rest. log may be nil.
func NewClassifier(cfg ClassifierConfig, log *zap.Logger) *Classifier {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		cfg:   cfg,
		log:   log,
		class: Rest,
		buf:   make([]bool, cfg.BufferSize),
	}
}

// #endregion classifier

// #region feed
// Feed classifies one raw sample. ok is false when the classification did not
// change. The event's confidence is 1 - raw, matching the acquisition
// software's reporting; every emitted event takes the next sequence number.
func (c *Classifier) Feed(raw float64) (ev trial.InputEvent, ok bool) {
	var next Class
	switch c.cfg.Mode {
	case ConsecutiveThreshold:
		next = c.consecutive(raw)
	default:
		next = c.single(raw)
	}
	if next == c.class {
		return trial.InputEvent{}, false
	}

	c.class = next
	c.seq++
	ev = trial.InputEvent{
		Validity:   trial.Rejected,
		Confidence: clamp(1 - raw),
		Sequence:   c.seq,
		Source:     trial.SourceMotorImagery,
	}
	if next == MotorImagery {
		ev.Validity = trial.Accepted
	}
	c.log.Debug("classification changed",
		zap.String("class", string(next)),
		zap.Float64("raw", raw),
		zap.Int64("sequence", c.seq),
	)
	return ev, true
}

func (c *Classifier) single(raw float64) Class {
	if raw > c.cfg.Threshold {
		return MotorImagery
	}
	return Rest
}

// consecutive records the sample in a ring buffer and reports MotorImagery
// only when every slot is above threshold.
func (c *Classifier) consecutive(raw float64) Class {
	c.buf[c.next] = raw > c.cfg.Threshold
	c.next = (c.next + 1) % len(c.buf)
	for _, hit := range c.buf {
		if !hit {
			return Rest
		}
	}
	return MotorImagery
}

// Class returns the current classification.
func (c *Classifier) Class() Class { return c.class }

// #endregion feed

// clamp restricts v to [0, 1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
