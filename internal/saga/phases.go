package saga

import (
	"context"
	"fmt"
)

// Phase is a named stage of a phase-specialized saga.
type Phase string

// Pipeline phases in declared execution order.
const (
	PhaseQuality        Phase = "quality"
	PhaseInterpretation Phase = "interpretation"
	PhaseMapping        Phase = "mapping"
	PhaseRegistration   Phase = "registration"
)

// DefaultPhases is the standard pipeline ordering.
var DefaultPhases = []Phase{
	PhaseQuality,
	PhaseInterpretation,
	PhaseMapping,
	PhaseRegistration,
}

// PhaseHandler executes one phase. Inputs are the saga context; outputs are
// recorded on the step.
type PhaseHandler interface {
	HandlePhase(ctx context.Context, sg *Saga, inputs map[string]any) (map[string]any, error)
}

// PhaseHandlerFunc adapts a function to PhaseHandler.
type PhaseHandlerFunc func(ctx context.Context, sg *Saga, inputs map[string]any) (map[string]any, error)

// HandlePhase implements PhaseHandler.
func (f PhaseHandlerFunc) HandlePhase(ctx context.Context, sg *Saga, inputs map[string]any) (map[string]any, error) {
	return f(ctx, sg, inputs)
}

// phaseIndex returns a phase's position in order, or -1.
func phaseIndex(order []Phase, p Phase) int {
	for i, candidate := range order {
		if candidate == p {
			return i
		}
	}
	return -1
}

// validatePhaseOrder checks that phase is the next phase due given the
// saga's current progress. Phases execute strictly in declared order.
func validatePhaseOrder(order []Phase, current Phase, next Phase) error {
	nextIdx := phaseIndex(order, next)
	if nextIdx < 0 {
		return fmt.Errorf("unknown phase %q", next)
	}
	currentIdx := -1
	if current != "" {
		currentIdx = phaseIndex(order, current)
	}
	if currentIdx+1 >= len(order) {
		return fmt.Errorf("phase %q out of order: all phases completed", next)
	}
	if nextIdx != currentIdx+1 {
		return fmt.Errorf("phase %q out of order: expected %q next", next, order[currentIdx+1])
	}
	return nil
}
