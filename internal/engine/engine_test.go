package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func createExperiment(t *testing.T, s *store.SQLiteStore, page string, n int) *store.Experiment {
	t.Helper()

	contents := make([]store.ContentPayload, n)
	for i := range contents {
		contents[i] = store.ContentPayload{Title: store.VariantID(i)}
	}

	exp, err := s.CreateExperiment(context.Background(), page, contents)
	require.NoError(t, err)
	return exp
}

// seedCounters drives the counters to the given values through the
// store's atomic increments, the same path production traffic takes.
func seedCounters(t *testing.T, s *store.SQLiteStore, experimentID, variantID string, impressions, conversions int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < impressions; i++ {
		require.NoError(t, s.IncrementImpression(ctx, experimentID, variantID))
	}
	for i := 0; i < conversions; i++ {
		require.NoError(t, s.IncrementConversion(ctx, experimentID, variantID))
	}
}

// randSeq returns a random source that replays the given values in order.
func randSeq(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestSelectVariant_IncrementsImpressionOnce(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	eng := engine.New(s, engine.DefaultConfig(), engine.WithRandSource(randSeq(0.0)))

	variant, err := eng.SelectVariant(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, variant)
	assert.Equal(t, "variant_0", variant.ID)

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Variants[0].Impressions)
	assert.Equal(t, int64(0), got.Variants[1].Impressions)
}

func TestSelectVariant_NotFound(t *testing.T) {
	s := setupStore(t)
	eng := engine.New(s, engine.DefaultConfig())

	_, err := eng.SelectVariant(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSelectVariant_CompletedReturnsNone(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	require.NoError(t, s.CompleteExperiment(ctx, exp.ID, "variant_0"))

	eng := engine.New(s, engine.DefaultConfig())
	variant, err := eng.SelectVariant(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, variant, "completed experiment must yield no assignment")

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalImpressions(), "no tracking after completion")
}

func TestSelectVariant_ColdStartUniform(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical test in short mode")
	}

	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	eng := engine.New(s, engine.DefaultConfig())

	const trials = 10000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		variant, err := eng.SelectVariant(ctx, exp.ID)
		require.NoError(t, err)
		counts[variant.ID]++
	}

	// With zero conversions every trial stays below the cold-start
	// threshold; expect ~50/50 within a generous tolerance (4 sigma for
	// p=0.5, n=10000 is 200).
	assert.InDelta(t, trials/2, counts["variant_0"], 300)
	assert.InDelta(t, trials/2, counts["variant_1"], 300)
}

func TestSelectVariant_ColdStartIndexClamp(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	// A draw of 1.0 would index past the end without the clamp.
	eng := engine.New(s, engine.DefaultConfig(), engine.WithRandSource(randSeq(1.0)))

	variant, err := eng.SelectVariant(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "variant_1", variant.ID)
}

func TestSelectVariant_WeightedDeterministic(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	// Weights: variant_0 = 11/102 ≈ 0.1078, variant_1 = 3/102 ≈ 0.0294.
	seedCounters(t, s, exp.ID, "variant_0", 100, 10)
	seedCounters(t, s, exp.ID, "variant_1", 100, 2)

	// draw = 0.5 * totalWeight ≈ 0.0686 lands inside variant_0's slice.
	eng := engine.New(s, engine.DefaultConfig(), engine.WithRandSource(randSeq(0.5)))
	variant, err := eng.SelectVariant(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "variant_0", variant.ID)

	// draw = 0.95 * totalWeight ≈ 0.1304 falls past variant_0's
	// cumulative weight, into variant_1.
	eng = engine.New(s, engine.DefaultConfig(), engine.WithRandSource(randSeq(0.95)))
	variant, err = eng.SelectVariant(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "variant_1", variant.ID)
}

func TestSelectVariant_WeightedFavorsConverter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical test in short mode")
	}

	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	// Equal impressions, variant_0 converts five times as often.
	seedCounters(t, s, exp.ID, "variant_0", 100, 10)
	seedCounters(t, s, exp.ID, "variant_1", 100, 2)

	eng := engine.New(s, engine.DefaultConfig())

	const trials = 1000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		variant, err := eng.SelectVariant(ctx, exp.ID)
		require.NoError(t, err)
		counts[variant.ID]++
	}

	assert.Greater(t, counts["variant_0"], counts["variant_1"],
		"better-converting variant must be selected strictly more often")
}

func TestRecordConversion(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	eng := engine.New(s, engine.DefaultConfig())

	require.NoError(t, eng.RecordConversion(ctx, exp.ID, "variant_1"))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Variants[1].Conversions)
}

func TestRecordConversion_AfterCompletionIsNoop(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	require.NoError(t, s.CompleteExperiment(ctx, exp.ID, "variant_0"))

	eng := engine.New(s, engine.DefaultConfig())
	require.NoError(t, eng.RecordConversion(ctx, exp.ID, "variant_0"))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalConversions(), "historical results must not change")
}

func TestDetermineWinner_InsufficientSamples(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	seedCounters(t, s, exp.ID, "variant_0", 99, 40)
	seedCounters(t, s, exp.ID, "variant_1", 50, 30)

	eng := engine.New(s, engine.DefaultConfig())
	winner, err := eng.DetermineWinner(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, winner)

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, got.Status, "experiment must stay active")
}

func TestDetermineWinner_ClearWinner(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	seedCounters(t, s, exp.ID, "variant_0", 150, 10)
	seedCounters(t, s, exp.ID, "variant_1", 150, 30)

	eng := engine.New(s, engine.DefaultConfig())
	winner, err := eng.DetermineWinner(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "variant_1", winner.ID)

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.Equal(t, "variant_1", got.WinningVariantID)
	assert.NotNil(t, got.EndDate)
}

func TestDetermineWinner_IgnoresIneligibleLeader(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	// variant_1 has a far better rate but too few impressions.
	seedCounters(t, s, exp.ID, "variant_0", 150, 10)
	seedCounters(t, s, exp.ID, "variant_1", 20, 15)

	eng := engine.New(s, engine.DefaultConfig())
	winner, err := eng.DetermineWinner(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "variant_0", winner.ID, "ineligible variants are excluded")
}

func TestDetermineWinner_TieBreaksToFirstOrdinal(t *testing.T) {
	for run := 0; run < 3; run++ {
		s := setupStore(t)
		exp := createExperiment(t, s, "lp_1", 2)
		ctx := context.Background()

		seedCounters(t, s, exp.ID, "variant_0", 100, 10)
		seedCounters(t, s, exp.ID, "variant_1", 100, 10)

		eng := engine.New(s, engine.DefaultConfig())
		winner, err := eng.DetermineWinner(ctx, exp.ID)
		require.NoError(t, err)
		require.NotNil(t, winner)
		assert.Equal(t, "variant_0", winner.ID, "exact ties resolve to ordinal 0")
	}
}

func TestDetermineWinner_AlreadyCompleted(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	require.NoError(t, s.CompleteExperiment(ctx, exp.ID, "variant_0"))

	eng := engine.New(s, engine.DefaultConfig())
	_, err := eng.DetermineWinner(ctx, exp.ID)
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)
}

func TestDetermineWinner_CustomThreshold(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	seedCounters(t, s, exp.ID, "variant_0", 10, 1)
	seedCounters(t, s, exp.ID, "variant_1", 10, 5)

	eng := engine.New(s, engine.Config{ColdStartConversions: 10, MinWinnerImpressions: 10})
	winner, err := eng.DetermineWinner(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "variant_1", winner.ID)
}

func TestGetResults_RecomputesRates(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	seedCounters(t, s, exp.ID, "variant_0", 200, 30)

	eng := engine.New(s, engine.DefaultConfig())

	first, err := eng.GetResults(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.15, first.Variants[0].ConversionRate)
	assert.Equal(t, 0.0, first.Variants[1].ConversionRate)

	// No intervening writes: a second read returns identical rates.
	second, err := eng.GetResults(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Variants[0].ConversionRate, second.Variants[0].ConversionRate)
	assert.Equal(t, first.Variants[1].ConversionRate, second.Variants[1].ConversionRate)
}

func TestActiveExperiment(t *testing.T) {
	s := setupStore(t)
	exp := createExperiment(t, s, "lp_1", 2)
	ctx := context.Background()

	eng := engine.New(s, engine.DefaultConfig())

	got, err := eng.ActiveExperiment(ctx, "lp_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, exp.ID, got.ID)

	none, err := eng.ActiveExperiment(ctx, "lp_other")
	require.NoError(t, err)
	assert.Nil(t, none)
}
