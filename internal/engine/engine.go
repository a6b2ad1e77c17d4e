// Package engine implements visitor-to-variant allocation, conversion
// attribution and winner determination on top of the experiment store.
// The engine holds no state of its own; every invocation reads and
// writes through the store, so it is safe under unbounded parallelism.
package engine

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/store"
)

// Config carries the allocation policy thresholds. They encode business
// risk tolerance rather than derived statistics, so they are configurable
// instead of hard-coded.
type Config struct {
	// ColdStartConversions is the total-conversion count below which
	// variants are selected uniformly at random. With too little
	// conversion signal, performance weighting would bias early traffic
	// toward whichever variant got a lucky first conversion.
	ColdStartConversions int64

	// MinWinnerImpressions is the per-variant impression count a variant
	// must reach before it can be declared the winner.
	MinWinnerImpressions int64
}

// DefaultConfig returns the stock thresholds: weighting kicks in after 10
// conversions, winners need 100 impressions.
func DefaultConfig() Config {
	return Config{
		ColdStartConversions: 10,
		MinWinnerImpressions: 100,
	}
}

type Engine struct {
	store     store.Store
	cfg       Config
	randFloat func() float64
	logger    *zap.Logger
}

type Option func(*Engine)

// WithRandSource replaces the engine's random source. Tests inject a
// deterministic sequence to verify exact selection behavior.
func WithRandSource(f func() float64) Option {
	return func(e *Engine) { e.randFloat = f }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(s store.Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		cfg:       cfg,
		randFloat: rand.Float64,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ActiveExperiment returns the active experiment for a landing page, or
// (nil, nil) when the page has none.
func (e *Engine) ActiveExperiment(ctx context.Context, landingPageID string) (*store.Experiment, error) {
	return e.store.GetActiveExperiment(ctx, landingPageID)
}

// SelectVariant assigns a visitor to a variant and increments that
// variant's impression counter exactly once. It returns (nil, nil) when
// the experiment is no longer active, so a completion racing a page view
// degrades to showing untracked control content instead of an error.
//
// Selection is randomized per call; session stickiness is the caller's
// responsibility.
func (e *Engine) SelectVariant(ctx context.Context, experimentID string) (*store.Variant, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusActive {
		return nil, nil
	}

	idx := e.pick(exp.Variants)
	chosen := exp.Variants[idx]

	if err := e.store.IncrementImpression(ctx, experimentID, chosen.ID); err != nil {
		return nil, err
	}

	e.logger.Debug("variant assigned",
		zap.String("experiment_id", experimentID),
		zap.String("variant_id", chosen.ID))

	return &chosen, nil
}

// pick chooses a variant index. Below the cold-start threshold every
// variant is equally likely; after that, selection is weighted by the
// Laplace-smoothed conversion rate (conversions+1)/(impressions+2), with
// 0.5 for variants that have never been shown.
func (e *Engine) pick(variants []store.Variant) int {
	var totalConversions int64
	for i := range variants {
		totalConversions += variants[i].Conversions
	}

	if totalConversions < e.cfg.ColdStartConversions {
		idx := int(e.randFloat() * float64(len(variants)))
		if idx >= len(variants) {
			idx = len(variants) - 1
		}
		return idx
	}

	weights := make([]float64, len(variants))
	totalWeight := 0.0
	for i := range variants {
		v := &variants[i]
		if v.Impressions > 0 {
			weights[i] = float64(v.Conversions+1) / float64(v.Impressions+2)
		} else {
			weights[i] = 0.5
		}
		totalWeight += weights[i]
	}

	draw := e.randFloat() * totalWeight
	sum := 0.0
	for i, w := range weights {
		sum += w
		if draw <= sum {
			return i
		}
	}

	// Rounding can leave the draw unresolved; fall back to the last
	// variant rather than failing the render path.
	return len(variants) - 1
}

// RecordConversion attributes a conversion to a variant. Conversions
// arriving after the experiment has completed are silently dropped so
// they cannot mutate historical results.
func (e *Engine) RecordConversion(ctx context.Context, experimentID, variantID string) error {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp.Status != store.StatusActive {
		return nil
	}

	return e.store.IncrementConversion(ctx, experimentID, variantID)
}

// DetermineWinner evaluates the stopping criteria and, if a winner
// exists, completes the experiment and returns the winning variant.
//
// Variants below MinWinnerImpressions are excluded to avoid declaring a
// winner from noise. If no variant is eligible the experiment stays
// active and (nil, nil) is returned. Exact conversion-rate ties resolve
// to the lowest ordinal position, so repeated runs on identical data are
// deterministic. Calling this on a completed experiment returns
// store.ErrAlreadyCompleted: it indicates a caller bug such as a
// double-submitted admin action.
func (e *Engine) DetermineWinner(ctx context.Context, experimentID string) (*store.Variant, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusActive {
		return nil, store.ErrAlreadyCompleted
	}

	winnerIdx := -1
	bestRate := -1.0
	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.Impressions < e.cfg.MinWinnerImpressions {
			continue
		}
		if v.Rate() > bestRate {
			bestRate = v.Rate()
			winnerIdx = i
		}
	}

	if winnerIdx == -1 {
		return nil, nil
	}

	winner := exp.Variants[winnerIdx]
	if err := e.store.CompleteExperiment(ctx, experimentID, winner.ID); err != nil {
		return nil, err
	}

	e.logger.Info("experiment completed",
		zap.String("experiment_id", experimentID),
		zap.String("winning_variant_id", winner.ID),
		zap.Float64("conversion_rate", winner.Rate()))

	return &winner, nil
}

// GetResults returns the experiment with per-variant conversion rates
// recomputed from the live counters.
func (e *Engine) GetResults(ctx context.Context, experimentID string) (*store.Experiment, error) {
	return e.store.GetExperiment(ctx, experimentID)
}
