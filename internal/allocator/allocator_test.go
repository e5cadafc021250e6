package allocator

import (
	"math/rand/v2"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region helpers
func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func built(t *testing.T, total int, cats []Category, seed uint64) *Allocator {
	t.Helper()
	a := New(total, seeded(seed))
	require.NoError(t, a.Configure(cats))
	require.NoError(t, a.Build())
	return a
}

func countOf(seq []trial.Outcome, o trial.Outcome) int {
	n := 0
	for _, s := range seq {
		if s == o {
			n++
		}
	}
	return n
}

// #endregion helpers

// #region build-tests
func TestBuild_ScenarioA(t *testing.T) {
	a := built(t, 2, []Category{
		{Name: trial.Accept, Behavior: Persisting, Quota: 1},
		{Name: trial.Reject, Behavior: Persisting, Quota: 1},
	}, 1)

	seq := a.Sequence()
	require.Len(t, seq, 2)
	assert.Equal(t, 1, countOf(seq, trial.Accept))
	assert.Equal(t, 1, countOf(seq, trial.Reject))
}

func TestBuild_PersistingExactAndCoverage(t *testing.T) {
	cats := []Category{
		{Name: trial.Accept, Behavior: Recurring, Quota: 1},
		{Name: trial.Reject, Behavior: Persisting, Quota: 4},
		{Name: trial.Fabricate, Behavior: Persisting, Quota: 3},
	}
	for seed := uint64(0); seed < 50; seed++ {
		total := 7 + int(seed%20)
		a := built(t, total, cats, seed)
		seq := a.Sequence()
		require.Len(t, seq, total, "seed %d", seed)
		assert.Equal(t, 4, countOf(seq, trial.Reject), "seed %d", seed)
		assert.Equal(t, 3, countOf(seq, trial.Fabricate), "seed %d", seed)
		assert.Equal(t, total-7, countOf(seq, trial.Accept), "seed %d", seed)
	}
}

func TestBuild_RecurringLargestRemainder(t *testing.T) {
	// 5 free slots split 2:1 → exact shares 3.33 / 1.67; floors 3 / 1,
	// leftover slot goes to the larger remainder (Reject).
	a := built(t, 5, []Category{
		{Name: trial.Accept, Behavior: Recurring, Quota: 2},
		{Name: trial.Reject, Behavior: Recurring, Quota: 1},
	}, 7)

	seq := a.Sequence()
	assert.Equal(t, 3, countOf(seq, trial.Accept))
	assert.Equal(t, 2, countOf(seq, trial.Reject))
}

func TestFillShares_TiesFollowConfigOrder(t *testing.T) {
	shares := fillShares([]Category{
		{Name: trial.Accept, Quota: 1},
		{Name: trial.Reject, Quota: 1},
		{Name: trial.Fabricate, Quota: 1},
	}, 4)
	assert.Equal(t, []int{2, 1, 1}, shares)
}

func TestFillShares_ZeroQuotasWeighEqually(t *testing.T) {
	shares := fillShares([]Category{
		{Name: trial.Accept, Quota: 0},
		{Name: trial.Reject, Quota: 0},
	}, 6)
	assert.Equal(t, []int{3, 3}, shares)
}

func TestBuild_QuotasExceedTotal(t *testing.T) {
	a := New(3, seeded(1))
	require.NoError(t, a.Configure([]Category{
		{Name: trial.Reject, Behavior: Persisting, Quota: 2},
		{Name: trial.Fabricate, Behavior: Persisting, Quota: 2},
	}))
	err := a.Build()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfig))
	assert.False(t, a.Built())
}

func TestBuild_UnfilledWithoutRecurring(t *testing.T) {
	a := New(4, seeded(1))
	require.NoError(t, a.Configure([]Category{
		{Name: trial.Reject, Behavior: Persisting, Quota: 2},
	}))
	assert.True(t, eris.Is(a.Build(), ErrConfig))
}

func TestBuild_NotConfigured(t *testing.T) {
	a := New(4, seeded(1))
	assert.True(t, eris.Is(a.Build(), ErrConfig))
}

func TestConfigure_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		total int
		cats  []Category
	}{
		{"zero total", 0, []Category{{Name: trial.Accept, Behavior: Recurring, Quota: 1}}},
		{"unknown name", 4, []Category{{Name: "Maybe", Behavior: Recurring, Quota: 1}}},
		{"duplicate", 4, []Category{
			{Name: trial.Accept, Behavior: Recurring, Quota: 1},
			{Name: trial.Accept, Behavior: Persisting, Quota: 1},
		}},
		{"bad behavior", 4, []Category{{Name: trial.Accept, Behavior: "sometimes", Quota: 1}}},
		{"negative quota", 4, []Category{{Name: trial.Reject, Behavior: Persisting, Quota: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.total, seeded(1)).Configure(tt.cats)
			assert.True(t, eris.Is(err, ErrConfig), "got %v", err)
		})
	}
}

func TestBuild_SameSeedSameSequence(t *testing.T) {
	cats := []Category{
		{Name: trial.Accept, Behavior: Recurring, Quota: 1},
		{Name: trial.Reject, Behavior: Persisting, Quota: 5},
		{Name: trial.Fabricate, Behavior: Persisting, Quota: 5},
	}
	a := built(t, 20, cats, 42)
	b := built(t, 20, cats, 42)
	assert.Equal(t, a.Sequence(), b.Sequence())
}

// #endregion build-tests

// #region commit-tests
func TestPeekCommit_RealizedDiffersFromDesigned(t *testing.T) {
	a := built(t, 3, []Category{
		{Name: trial.Accept, Behavior: Persisting, Quota: 3},
	}, 1)

	goal, err := a.Peek()
	require.NoError(t, err)
	assert.Equal(t, trial.Accept, goal)

	// Peek does not advance.
	again, _ := a.Peek()
	assert.Equal(t, goal, again)
	assert.Equal(t, 0, a.Index())

	require.NoError(t, a.Commit(trial.Reject))
	assert.Equal(t, 1, a.Index())
	assert.Equal(t, 2, a.Remaining())

	assert.Equal(t, 2, a.RemainingCounts()[trial.Accept])
	results := a.ResultCounts()
	assert.Equal(t, 0, results[trial.Accept])
	assert.Equal(t, 1, results[trial.Reject])
	assert.InDelta(t, 1.0, a.Rates()[trial.Reject], 1e-9)
}

func TestPeek_Exhausted(t *testing.T) {
	a := built(t, 1, []Category{{Name: trial.Reject, Behavior: Persisting, Quota: 1}}, 1)
	require.NoError(t, a.Commit(trial.Reject))

	_, err := a.Peek()
	assert.True(t, eris.Is(err, ErrExhausted))
	assert.True(t, eris.Is(a.Commit(trial.Reject), ErrExhausted))
}

func TestPeek_BeforeBuild(t *testing.T) {
	a := New(2, seeded(1))
	_, err := a.Peek()
	assert.True(t, eris.Is(err, ErrExhausted))
}

func TestCommit_UnknownCategory(t *testing.T) {
	a := built(t, 1, []Category{{Name: trial.Reject, Behavior: Persisting, Quota: 1}}, 1)
	assert.True(t, eris.Is(a.Commit("Other"), ErrUnknownCategory))
	assert.Equal(t, 0, a.Index())
}

func TestPersistingNeverReappearsAfterQuota(t *testing.T) {
	cats := []Category{
		{Name: trial.Accept, Behavior: Recurring, Quota: 1},
		{Name: trial.Fabricate, Behavior: Persisting, Quota: 2},
	}
	for seed := uint64(0); seed < 30; seed++ {
		a := built(t, 10, cats, seed)
		designedFabricate := 0
		for a.Remaining() > 0 {
			goal, err := a.Peek()
			require.NoError(t, err)
			if goal == trial.Fabricate {
				designedFabricate++
			}
			require.LessOrEqual(t, designedFabricate, 2)
			require.NoError(t, a.Commit(goal))
		}
		assert.Equal(t, 2, designedFabricate)
	}
}

func TestRemainingCountsSumInvariant(t *testing.T) {
	a := built(t, 12, []Category{
		{Name: trial.Accept, Behavior: Recurring, Quota: 1},
		{Name: trial.Reject, Behavior: Persisting, Quota: 3},
		{Name: trial.Fabricate, Behavior: Persisting, Quota: 3},
	}, 9)
	for a.Remaining() > 0 {
		sum := 0
		for _, n := range a.RemainingCounts() {
			sum += n
		}
		require.Equal(t, 12-a.Index(), sum)
		require.NoError(t, a.Commit(trial.Accept))
	}
}

func TestRebuildClearsCommits(t *testing.T) {
	a := built(t, 4, []Category{{Name: trial.Accept, Behavior: Recurring, Quota: 1}}, 3)
	require.NoError(t, a.Commit(trial.Reject))
	require.NoError(t, a.Build())
	assert.Equal(t, 0, a.Index())
	assert.Equal(t, 0, a.ResultCounts()[trial.Reject])
	assert.Equal(t, 0.0, a.Rates()[trial.Reject])
}

// #endregion commit-tests
