package allocator

import (
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region allocator
// Allocator owns the shuffled session sequence of designed goals and the
// tally of realized outcomes. It is not safe for concurrent use.
type Allocator struct {
	total      int
	categories []Category
	rng        *rand.Rand

	seq     []trial.Outcome
	cursor  int
	built   bool
	results map[trial.Outcome]int
}

// New creates an allocator for totalTrials trials. rng drives the shuffle;
// pass a seeded source for reproducible sessions.
func New(totalTrials int, rng *rand.Rand) *Allocator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Allocator{
		total:   totalTrials,
		rng:     rng,
		results: make(map[trial.Outcome]int),
	}
}

// #endregion allocator

// #region configure
// Configure validates and stores the category list. Any previously built
// sequence is discarded.
func (a *Allocator) Configure(categories []Category) error {
	if a.total <= 0 {
		return eris.Wrapf(ErrConfig, "total trials %d must be positive", a.total)
	}
	seen := make(map[trial.Outcome]bool, len(categories))
	for _, c := range categories {
		if !c.Name.Known() {
			return eris.Wrapf(ErrConfig, "category %q is not a known outcome", c.Name)
		}
		if seen[c.Name] {
			return eris.Wrapf(ErrConfig, "category %q configured twice", c.Name)
		}
		seen[c.Name] = true
		if c.Behavior != Persisting && c.Behavior != Recurring {
			return eris.Wrapf(ErrConfig, "category %q has unknown behavior %q", c.Name, c.Behavior)
		}
		if c.Quota < 0 {
			return eris.Wrapf(ErrConfig, "category %q has negative quota %d", c.Name, c.Quota)
		}
	}
	a.categories = append([]Category(nil), categories...)
	a.reset()
	return nil
}

func (a *Allocator) reset() {
	a.seq = nil
	a.cursor = 0
	a.built = false
	a.results = make(map[trial.Outcome]int)
}

// #endregion configure

// #region build
// Build lays out exactly Quota entries per Persisting category, fills the
// rest of the session with Recurring categories in proportion to their
// quotas, and shuffles the result. Calling Build again reshuffles and
// clears all commits.
func (a *Allocator) Build() error {
	if a.categories == nil {
		return eris.Wrap(ErrConfig, "no categories configured")
	}

	var persisting, recurring []Category
	sumPersisting := 0
	for _, c := range a.categories {
		if c.Behavior == Persisting {
			persisting = append(persisting, c)
			sumPersisting += c.Quota
		} else {
			recurring = append(recurring, c)
		}
	}
	if sumPersisting > a.total {
		return eris.Wrapf(ErrConfig, "persisting quotas %d exceed total trials %d", sumPersisting, a.total)
	}
	remaining := a.total - sumPersisting
	if remaining > 0 && len(recurring) == 0 {
		return eris.Wrapf(ErrConfig, "%d trials left unfilled and no recurring category", remaining)
	}

	seq := make([]trial.Outcome, 0, a.total)
	for _, c := range persisting {
		for i := 0; i < c.Quota; i++ {
			seq = append(seq, c.Name)
		}
	}
	for i, n := range fillShares(recurring, remaining) {
		for j := 0; j < n; j++ {
			seq = append(seq, recurring[i].Name)
		}
	}

	a.rng.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })

	a.reset()
	a.seq = seq
	a.built = true
	return nil
}

// fillShares splits slots across categories by quota weight. Each category
// gets the floor of its exact share; the slots left over go to the largest
// fractional remainders, ties broken by configuration order. All-zero quotas
// weigh every category equally.
func fillShares(cats []Category, slots int) []int {
	shares := make([]int, len(cats))
	if slots == 0 || len(cats) == 0 {
		return shares
	}
	weights := make([]int, len(cats))
	sumW := 0
	for i, c := range cats {
		weights[i] = c.Quota
		sumW += c.Quota
	}
	if sumW == 0 {
		for i := range weights {
			weights[i] = 1
		}
		sumW = len(weights)
	}

	// Integer arithmetic keeps the remainders exact.
	rems := make([]int, len(cats))
	assigned := 0
	for i, w := range weights {
		shares[i] = slots * w / sumW
		rems[i] = slots * w % sumW
		assigned += shares[i]
	}

	order := make([]int, len(cats))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return rems[order[x]] > rems[order[y]] })
	for k := 0; assigned < slots; k++ {
		shares[order[k%len(order)]]++
		assigned++
	}
	return shares
}

// #endregion build

// #region peek-commit
// Peek returns the designed goal for the current trial without advancing.
func (a *Allocator) Peek() (trial.Outcome, error) {
	if !a.built || a.cursor >= len(a.seq) {
		return "", eris.Wrapf(ErrExhausted, "peek at %d of %d", a.cursor, len(a.seq))
	}
	return a.seq[a.cursor], nil
}

// Commit records the realized outcome for the current trial and advances
// the cursor. actual may differ from the designed goal returned by Peek.
func (a *Allocator) Commit(actual trial.Outcome) error {
	if !actual.Known() {
		return eris.Wrapf(ErrUnknownCategory, "commit %q", actual)
	}
	if !a.built || a.cursor >= len(a.seq) {
		return eris.Wrapf(ErrExhausted, "commit at %d of %d", a.cursor, len(a.seq))
	}
	a.results[actual]++
	a.cursor++
	return nil
}

// #endregion peek-commit

// #region counts
// Index returns the number of committed trials.
func (a *Allocator) Index() int {
	return a.cursor
}

// Len returns the length of the built sequence (0 before Build).
func (a *Allocator) Len() int {
	return len(a.seq)
}

// Remaining returns the number of uncommitted trials.
func (a *Allocator) Remaining() int {
	return len(a.seq) - a.cursor
}

// Built reports whether Build has produced a sequence.
func (a *Allocator) Built() bool {
	return a.built
}

// Sequence returns a copy of the full designed sequence.
func (a *Allocator) Sequence() []trial.Outcome {
	return append([]trial.Outcome(nil), a.seq...)
}

// RemainingCounts counts designed goals not yet committed, per category.
// Every configured category is present, possibly with zero.
func (a *Allocator) RemainingCounts() map[trial.Outcome]int {
	counts := make(map[trial.Outcome]int, len(a.categories))
	for _, c := range a.categories {
		counts[c.Name] = 0
	}
	for _, o := range a.seq[a.cursor:] {
		counts[o]++
	}
	return counts
}

// ResultCounts counts realized outcomes committed so far.
func (a *Allocator) ResultCounts() map[trial.Outcome]int {
	counts := make(map[trial.Outcome]int, len(trial.Outcomes))
	for _, o := range trial.Outcomes {
		counts[o] = a.results[o]
	}
	return counts
}

// Rates returns the fraction of committed trials per realized outcome.
// All rates are zero before the first commit.
func (a *Allocator) Rates() map[trial.Outcome]float64 {
	rates := make(map[trial.Outcome]float64, len(trial.Outcomes))
	for _, o := range trial.Outcomes {
		if a.cursor == 0 {
			rates[o] = 0
			continue
		}
		rates[o] = float64(a.results[o]) / float64(a.cursor)
	}
	return rates
}

// #endregion counts
