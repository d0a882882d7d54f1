package blendshape

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTolerances is the merge distance ladder tried during extraction.
var DefaultTolerances = []float64{0, 1e-6, 1e-5, 1e-4, 1e-3}

// ValidateTolerances checks that a ladder is non-empty, non-negative and
// strictly ascending.
func ValidateTolerances(ladder []float64) error {
	if len(ladder) == 0 {
		return errors.Wrap(ErrInvalidTolerances, "empty ladder")
	}
	prev := math.Inf(-1)
	for i, t := range ladder {
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return errors.Wrapf(ErrInvalidTolerances, "tolerance %d is %g", i, t)
		}
		if t <= prev {
			return errors.Wrapf(ErrInvalidTolerances, "tolerance %d (%g) after %g", i, t, prev)
		}
		prev = t
	}
	return nil
}

// Attempt runs one extraction try at the given tolerance and reports whether
// the result matched the origin topology.
type Attempt func(ctx context.Context, tolerance float64) (bool, error)

// Escalation is the outcome of a ladder run.
type Escalation struct {
	OK        bool
	Tolerance float64 // Winning tolerance when OK
	Attempts  int
}

// Controller walks a tolerance ladder until an attempt succeeds.
type Controller struct {
	Tolerances []float64
	Log        *zap.Logger
}

// NewController validates the ladder. A nil ladder selects DefaultTolerances.
func NewController(tolerances []float64, log *zap.Logger) (*Controller, error) {
	if tolerances == nil {
		tolerances = DefaultTolerances
	}
	if err := ValidateTolerances(tolerances); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{Tolerances: tolerances, Log: log}, nil
}

// Run tries each tolerance in ascending order and stops at the first
// success. An attempt error ends the run.
func (c *Controller) Run(ctx context.Context, attempt Attempt) (Escalation, error) {
	var esc Escalation
	for _, tol := range c.Tolerances {
		if err := checkpoint(ctx); err != nil {
			return esc, err
		}

		esc.Attempts++
		ok, err := attempt(ctx, tol)
		if err != nil {
			return esc, asCancelled(err)
		}
		if ok {
			esc.OK = true
			esc.Tolerance = tol
			c.Log.Debug("tolerance accepted",
				zap.Float64("tolerance", tol),
				zap.Int("attempts", esc.Attempts))
			return esc, nil
		}
		c.Log.Debug("tolerance rejected", zap.Float64("tolerance", tol))
	}
	return esc, nil
}
