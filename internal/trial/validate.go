package trial

import "github.com/rotisserie/eris"

// ErrMalformedInput is returned for inputs rejected at ingestion.
var ErrMalformedInput = eris.New("malformed input event")

// #region validate
// Validate checks an event's own fields and that its sequence number is
// greater than lastSeq, the last sequence number accepted for the session.
func Validate(ev InputEvent, lastSeq int64) error {
	if ev.Validity != Accepted && ev.Validity != Rejected {
		return eris.Wrapf(ErrMalformedInput, "validity %q", ev.Validity)
	}
	// NaN fails both comparisons, so test for the valid range instead.
	if !(ev.Confidence >= 0 && ev.Confidence <= 1) {
		return eris.Wrapf(ErrMalformedInput, "confidence %v outside [0, 1]", ev.Confidence)
	}
	if ev.Sequence <= lastSeq {
		return eris.Wrapf(ErrMalformedInput, "sequence %d not after %d", ev.Sequence, lastSeq)
	}
	return nil
}

// #endregion validate
