package execution

import "context"

// Result statuses reported by handler invocations.
const (
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusPolicyDenied = "policy_denied"
)

// Artifact is a handler-produced output pointer carried on a Result. Full
// registration and lifecycle tracking live on the state surface; this is the
// summary returned to the submitter.
type Artifact struct {
	ArtifactID   string         `json:"artifact_id"`
	ArtifactType string         `json:"artifact_type"`
	Summary      map[string]any `json:"summary,omitempty"`
}

// Result is the outcome of one intent execution. Success is the explicit
// success flag; Status carries the failure class when it is false.
type Result struct {
	ExecutionID string         `json:"execution_id"`
	IntentID    string         `json:"intent_id"`
	Success     bool           `json:"success"`
	Status      string         `json:"status"`
	Realm       string         `json:"realm,omitempty"`
	Error       string         `json:"error,omitempty"`
	PolicyBasis string         `json:"policy_basis,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	// Events are the WAL event types the handler emitted during execution.
	Events []string       `json:"events,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// Completed reports whether the execution finished successfully. It derives
// from Status; the executor keeps Success in agreement at the boundary.
func (r Result) Completed() bool { return r.Status == StatusCompleted }

// HandlerFunc is the realm handler contract. Parameters are the intent's
// parameters already filtered to the handler's declared field allow-list.
type HandlerFunc func(ctx context.Context, ec *Context, parameters map[string]any) (Result, error)
