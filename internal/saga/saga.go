// Package saga tracks multi-phase workflow executions as persisted state
// machines. Every transition is written to durable storage before it is
// acknowledged, so a coordinator restarted mid-workflow can reconstruct
// exact phase progress from the store.
package saga

import (
	"errors"
	"fmt"
	"time"
)

// State is a saga lifecycle state.
type State string

// Saga states. Transitions are monotonic: completed work never reopens.
const (
	StatePending      State = "PENDING"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
	StateCompensating State = "COMPENSATING"
	StateCompensated  State = "COMPENSATED"
)

// Step statuses.
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Saga errors.
var (
	ErrSagaNotFound      = errors.New("saga not found")
	ErrInvalidTransition = errors.New("invalid saga state transition")
	ErrInvalidSaga       = errors.New("invalid saga")
)

// transitions is the closed transition table.
var transitions = map[State][]State{
	StatePending:      {StateRunning, StateFailed},
	StateRunning:      {StateCompleted, StateFailed},
	StateCompleted:    {},
	StateFailed:       {StateCompensating},
	StateCompensating: {StateCompensated, StateFailed},
	StateCompensated:  {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Step is one unit of saga work.
type Step struct {
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name"`
	StepType   string         `json:"step_type"`
	Status     string         `json:"status"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Saga is one workflow execution. It is persisted as a whole document on
// every transition; partial patches are never written.
type Saga struct {
	SagaID       string         `json:"saga_id"`
	TenantID     string         `json:"tenant_id"`
	SessionID    string         `json:"session_id"`
	SagaName     string         `json:"saga_name"`
	State        State          `json:"state"`
	CurrentPhase Phase          `json:"current_phase,omitempty"`
	Steps        []Step         `json:"steps"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Transition moves the saga to next, enforcing the transition table.
func (s *Saga) Transition(next State) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, next)
	}
	s.State = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// StepByName returns the most recent step with the given name.
func (s *Saga) StepByName(name string) *Step {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if s.Steps[i].StepName == name {
			return &s.Steps[i]
		}
	}
	return nil
}
