package perturb

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedDistribution = errors.New("unsupported distribution")
	ErrInvalidScale            = errors.New("invalid scale")
	ErrPerturbationExhausted   = errors.New("perturbation exhausted")
)

// ExhaustedError reports a component for which no non-negative value was
// drawn within the retry budget.
type ExhaustedError struct {
	Trial    int
	Line     int
	Name     string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("trial %d: %s (line %d): %v after %d draws", e.Trial, e.Name, e.Line, ErrPerturbationExhausted, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error { return ErrPerturbationExhausted }
