package input

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadConfidences parses one raw confidence per line. Blank lines are
// skipped; anything else that is not a number is an error.
func ReadConfidences(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read confidences")
	}
	return out, nil
}

// #region replayer
// Stream cycles through recorded confidences, one sample per period, the way
// a held trigger key plays back a capture.
type Stream struct {
	samples []float64
	pos     int
	period  float64
	timer   float64
}

// NewStream starts at offset start (wrapped). period is the sample interval;
// non-positive periods fall back to 0.1s.
func NewStream(samples []float64, start int, period float64) *Stream {
	if period <= 0 {
		period = 0.1
	}
	s := &Stream{samples: samples, period: period}
	if len(samples) > 0 {
		s.pos = ((start % len(samples)) + len(samples)) % len(samples)
	}
	return s
}

// Advance moves time forward by dt and returns the samples due, in order.
func (s *Stream) Advance(dt float64) []float64 {
	if len(s.samples) == 0 {
		return nil
	}
	s.timer += dt
	var due []float64
	for s.timer > s.period {
		s.timer -= s.period
		due = append(due, s.samples[s.pos])
		s.pos = (s.pos + 1) % len(s.samples)
	}
	return due
}

// #endregion replayer
