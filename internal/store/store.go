package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the referenced experiment does not exist.
	ErrNotFound = errors.New("experiment not found")

	// ErrTooFewVariants is returned when fewer than two content payloads
	// are supplied at creation time.
	ErrTooFewVariants = errors.New("experiment requires at least 2 variants")

	// ErrActiveExperimentExists is returned when the landing page already
	// has an active experiment.
	ErrActiveExperimentExists = errors.New("landing page already has an active experiment")

	// ErrAlreadyCompleted is returned when completing an experiment that
	// has already been completed.
	ErrAlreadyCompleted = errors.New("experiment already completed")
)

// Store defines durable CRUD for experiments plus the two atomic counter
// operations. It carries no allocation or scoring policy.
type Store interface {
	// CreateExperiment creates an active experiment for a landing page
	// with all counters at zero and variant ids assigned by ordinal.
	CreateExperiment(ctx context.Context, landingPageID string, contents []ContentPayload) (*Experiment, error)

	// GetExperiment returns the experiment or ErrNotFound.
	GetExperiment(ctx context.Context, experimentID string) (*Experiment, error)

	// GetActiveExperiment returns the active experiment for a landing
	// page, or (nil, nil) when there is none. Absence is a normal
	// outcome, not an error.
	GetActiveExperiment(ctx context.Context, landingPageID string) (*Experiment, error)

	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListExperimentsByPage(ctx context.Context, landingPageID string) ([]*Experiment, error)

	// IncrementImpression atomically adds 1 to the variant's impression
	// counter. No-op when the experiment is not active or the variant id
	// is unknown.
	IncrementImpression(ctx context.Context, experimentID, variantID string) error

	// IncrementConversion has the same atomicity and guard semantics as
	// IncrementImpression.
	IncrementConversion(ctx context.Context, experimentID, variantID string) error

	// CompleteExperiment transitions the experiment to completed, sets
	// the end date and, if winningVariantID is non-empty, the winner.
	// Returns ErrAlreadyCompleted on a repeat call.
	CompleteExperiment(ctx context.Context, experimentID, winningVariantID string) error

	Close() error
}
