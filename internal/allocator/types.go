package allocator

import (
	"github.com/rotisserie/eris"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region behavior
// Behavior controls how a category's quota is spent across a session.
type Behavior string

const (
	// Persisting categories contribute exactly Quota entries and then stop
	// being offered.
	Persisting Behavior = "persisting"
	// Recurring categories pad out whatever Persisting quotas leave free,
	// weighted by Quota.
	Recurring Behavior = "recurring"
)

// #endregion behavior

// #region category
// Category is one configured trial class.
type Category struct {
	Name     trial.Outcome `json:"name" yaml:"name" mapstructure:"name"`
	Behavior Behavior      `json:"behavior" yaml:"behavior" mapstructure:"behavior"`
	Quota    int           `json:"quota" yaml:"quota" mapstructure:"quota"`
}

// #endregion category

// #region errors
var (
	// ErrConfig marks a category configuration that cannot produce a session.
	ErrConfig = eris.New("invalid trial configuration")
	// ErrExhausted is returned when the sequence has no uncommitted entries left.
	ErrExhausted = eris.New("trial sequence exhausted")
	// ErrUnknownCategory is returned when committing an outcome outside the vocabulary.
	ErrUnknownCategory = eris.New("unknown trial category")
)

// #endregion errors
