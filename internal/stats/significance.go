// Package stats provides display-level statistics for experiment results:
// Wilson confidence intervals per variant and a two-proportion z-test
// between the leading variant and the control. None of this gates winner
// determination; the engine's stopping criteria are plain policy
// thresholds.
package stats

import (
	"math"

	"github.com/pagesplit/pagesplit/internal/store"
)

// Result represents the statistical view of one experiment.
type Result struct {
	Variants        []VariantResult `json:"variants"`
	Confident       bool            `json:"confident"`        // >= 95% confidence
	ConfidenceLevel float64         `json:"confidence_level"` // 0-1
	LeadingVariant  int             `json:"leading_variant"`  // ordinal position
}

// VariantResult contains statistics for a single variant.
type VariantResult struct {
	Ordinal     int     `json:"ordinal"`
	VariantID   string  `json:"variant_id"`
	Title       string  `json:"title"`
	Impressions int64   `json:"impressions"`
	Conversions int64   `json:"conversions"`
	Rate        float64 `json:"rate"`
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
}

// SignificanceTest performs a two-proportion z-test.
// Returns confidence level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aImpr, bConv, bImpr int64) float64 {
	if aImpr == 0 || bImpr == 0 {
		// Need data from both variants
		return 0.5
	}

	pA := float64(aConv) / float64(aImpr)
	pB := float64(bConv) / float64(bImpr)

	// Pooled proportion under the null hypothesis (pA = pB)
	pooledP := float64(aConv+bConv) / float64(aImpr+bImpr)

	// Standard error of the difference
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(aImpr) + 1/float64(bImpr)))

	if se == 0 {
		if pA > pB {
			return 1.0
		} else if pA < pB {
			return 0.0
		}
		return 0.5
	}

	z := (pA - pB) / se

	// P(Z < z) gives the confidence that A > B
	return normalCDF(z)
}

// normalCDF approximates the cumulative distribution function of the
// standard normal distribution (Abramowitz and Stegun 7.1.26).
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// Analyze calculates the full statistical view of an experiment.
func Analyze(exp *store.Experiment) *Result {
	variants := make([]VariantResult, len(exp.Variants))
	maxRate := 0.0
	leadingVariant := 0

	for i := range exp.Variants {
		v := &exp.Variants[i]
		rate := v.Rate()
		ciLower, ciUpper := WilsonInterval(v.Conversions, v.Impressions, 0.95)

		variants[i] = VariantResult{
			Ordinal:     i,
			VariantID:   v.ID,
			Title:       v.Content.Title,
			Impressions: v.Impressions,
			Conversions: v.Conversions,
			Rate:        rate,
			CILower:     ciLower,
			CIUpper:     ciUpper,
		}

		if rate > maxRate {
			maxRate = rate
			leadingVariant = i
		}
	}

	// Significance compares the leading variant against the control
	// (ordinal 0); when the control leads, against its best challenger.
	var confidenceLevel float64
	if len(variants) >= 2 {
		if leadingVariant == 0 {
			bestChallenger := 1
			bestRate := 0.0
			for i := 1; i < len(variants); i++ {
				if variants[i].Rate > bestRate {
					bestRate = variants[i].Rate
					bestChallenger = i
				}
			}
			confidenceLevel = SignificanceTest(
				variants[0].Conversions, variants[0].Impressions,
				variants[bestChallenger].Conversions, variants[bestChallenger].Impressions,
			)
		} else {
			confidenceLevel = SignificanceTest(
				variants[leadingVariant].Conversions, variants[leadingVariant].Impressions,
				variants[0].Conversions, variants[0].Impressions,
			)
		}
	}

	return &Result{
		Variants:        variants,
		Confident:       confidenceLevel >= 0.95,
		ConfidenceLevel: confidenceLevel,
		LeadingVariant:  leadingVariant,
	}
}
