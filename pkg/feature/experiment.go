package feature

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/bucket"
)

// ExperimentStatus is the lifecycle state of an experiment. Only running
// experiments participate in evaluation; every other status is inert.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "draft"
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
	ExperimentCancelled ExperimentStatus = "cancelled"
)

// Variant is one named alternative payload within an experiment.
type Variant struct {
	Name       string  `json:"name" yaml:"name"`
	Value      any     `json:"value" yaml:"value"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// Experiment is a weighted A/B(/n) test attached to a flag. Variant
// percentages must sum to 100 at creation; evaluation trusts that invariant
// and never re-validates it.
type Experiment struct {
	ID        string           `json:"id" yaml:"id"`
	FlagID    string           `json:"flag_id" yaml:"flag_id"`
	Name      string           `json:"name" yaml:"name"`
	Status    ExperimentStatus `json:"status" yaml:"status"`
	Variants  []Variant        `json:"variants" yaml:"variants"`
	StartDate *time.Time       `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *time.Time       `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// variantSumTolerance absorbs float noise when percentages arrive through
// JSON round-trips.
const variantSumTolerance = 0.01

// Validate checks creation-time invariants of the experiment.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return errors.Join(ErrValidation, errors.New("experiment name is required"))
	}
	if e.FlagID == "" {
		return errors.Join(ErrValidation, errors.New("experiment flag id is required"))
	}
	if len(e.Variants) == 0 {
		return errors.Join(ErrValidation, errors.New("experiment requires at least one variant"))
	}

	var sum float64
	seen := make(map[string]struct{}, len(e.Variants))
	for i, v := range e.Variants {
		if v.Name == "" {
			return errors.Join(ErrValidation, fmt.Errorf("variant %d: name is required", i))
		}
		if _, dup := seen[v.Name]; dup {
			return errors.Join(ErrValidation, fmt.Errorf("duplicate variant name %q", v.Name))
		}
		seen[v.Name] = struct{}{}
		if v.Percentage < 0 || v.Percentage > 100 {
			return errors.Join(ErrValidation,
				fmt.Errorf("variant %q: percentage %v is outside [0,100]", v.Name, v.Percentage))
		}
		sum += v.Percentage
	}
	if math.Abs(sum-100) > variantSumTolerance {
		return errors.Join(ErrValidation, errors.New("Variant percentages must sum to 100"))
	}
	return nil
}

// Variant returns the variant with the given name, or nil.
func (e *Experiment) Variant(name string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].Name == name {
			return &e.Variants[i]
		}
	}
	return nil
}

// IsRunningAt reports whether the experiment participates in evaluation at
// the given instant: status running and, when date bounds are set, now inside
// them.
func (e *Experiment) IsRunningAt(now time.Time) bool {
	if e.Status != ExperimentRunning {
		return false
	}
	if e.StartDate != nil && now.Before(*e.StartDate) {
		return false
	}
	if e.EndDate != nil && now.After(*e.EndDate) {
		return false
	}
	return true
}

// experimentTransitions is the allowed lifecycle graph. Draft experiments
// start running; running experiments pause, complete, or cancel; paused
// experiments resume or cancel. Completed and cancelled are terminal.
var experimentTransitions = map[ExperimentStatus][]ExperimentStatus{
	ExperimentDraft:   {ExperimentRunning, ExperimentCancelled},
	ExperimentRunning: {ExperimentPaused, ExperimentCompleted, ExperimentCancelled},
	ExperimentPaused:  {ExperimentRunning, ExperimentCancelled},
}

func (e *Experiment) transition(to ExperimentStatus) error {
	if slices.Contains(experimentTransitions[e.Status], to) {
		e.Status = to
		return nil
	}
	return errors.Join(ErrInvalidTransition,
		fmt.Errorf("cannot move experiment from %q to %q", e.Status, to))
}

// Start moves the experiment to running, stamping the start date if unset.
func (e *Experiment) Start(now time.Time) error {
	if err := e.transition(ExperimentRunning); err != nil {
		return err
	}
	if e.StartDate == nil {
		e.StartDate = &now
	}
	return nil
}

// Pause suspends a running experiment; assignments stop until it resumes.
func (e *Experiment) Pause() error {
	return e.transition(ExperimentPaused)
}

// Complete finishes the experiment, stamping the end date if unset.
func (e *Experiment) Complete(now time.Time) error {
	if err := e.transition(ExperimentCompleted); err != nil {
		return err
	}
	if e.EndDate == nil {
		e.EndDate = &now
	}
	return nil
}

// Cancel aborts the experiment from any non-terminal status.
func (e *Experiment) Cancel() error {
	return e.transition(ExperimentCancelled)
}

// AssignVariant deterministically assigns the user to one of the experiment's
// variants, or returns nil when the experiment is not running at now, the
// user ID is empty, or no variant carries positive weight.
//
// Assignment is sticky: the same user keeps the same variant for the life of
// the experiment as long as the variant list is unchanged. Adding or removing
// variants may reshuffle assignments for all users; callers editing a running
// experiment accept that.
func AssignVariant(e *Experiment, userID string, now time.Time) *Variant {
	if e == nil || userID == "" || !e.IsRunningAt(now) {
		return nil
	}
	weights := make([]float64, len(e.Variants))
	for i, v := range e.Variants {
		weights[i] = v.Percentage
	}
	idx := bucket.PickWeighted(userID, e.ID, weights)
	if idx < 0 {
		return nil
	}
	return &e.Variants[idx]
}
