package store

import (
	"fmt"
	"time"
)

type ExperimentStatus string

const (
	StatusActive    ExperimentStatus = "active"
	StatusCompleted ExperimentStatus = "completed"
)

// ContentPayload is the content shown for one variant. The engine treats it
// as an opaque value; only the rendering layer interprets the fields.
type ContentPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CTAText     string   `json:"cta_text,omitempty"`
	Benefits    []string `json:"benefits,omitempty"`
}

type Variant struct {
	ID          string         `json:"id"`
	Content     ContentPayload `json:"content"`
	Impressions int64          `json:"impressions"`
	Conversions int64          `json:"conversions"`

	// ConversionRate is derived from the counters at read time and is
	// never stored authoritatively.
	ConversionRate float64 `json:"conversion_rate"`
}

// Rate returns conversions / impressions, or 0 when the variant has no
// impressions yet.
func (v *Variant) Rate() float64 {
	if v.Impressions == 0 {
		return 0
	}
	return float64(v.Conversions) / float64(v.Impressions)
}

type Experiment struct {
	ID            string           `json:"id"`
	LandingPageID string           `json:"landing_page_id"`
	Status        ExperimentStatus `json:"status"`
	StartDate     time.Time        `json:"start_date"`
	EndDate       *time.Time       `json:"end_date,omitempty"`
	// Variants is fixed at creation time, ordered by ordinal position.
	// The first variant is by convention the control.
	Variants         []Variant `json:"variants"`
	WinningVariantID string    `json:"winning_variant_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Variant returns the variant with the given id, or nil if the id is not
// part of this experiment.
func (e *Experiment) Variant(variantID string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == variantID {
			return &e.Variants[i]
		}
	}
	return nil
}

// TotalImpressions sums impressions across all variants.
func (e *Experiment) TotalImpressions() int64 {
	var total int64
	for i := range e.Variants {
		total += e.Variants[i].Impressions
	}
	return total
}

// TotalConversions sums conversions across all variants.
func (e *Experiment) TotalConversions() int64 {
	var total int64
	for i := range e.Variants {
		total += e.Variants[i].Conversions
	}
	return total
}

// VariantID returns the stable identifier for a variant at the given
// ordinal position, e.g. "variant_0" for the control.
func VariantID(ordinal int) string {
	return fmt.Sprintf("variant_%d", ordinal)
}
