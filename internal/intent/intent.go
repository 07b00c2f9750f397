// Package intent defines the immutable request envelope that enters the
// runtime. An Intent is created once per request by the transport layer and
// is never mutated afterwards; everything the runtime does flows from it.
package intent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors for intent validation.
var (
	ErrMissingIntentType = errors.New("intent type is required")
	ErrMissingTenantID   = errors.New("tenant ID is required")
	ErrMissingSessionID  = errors.New("session ID is required")
	ErrMissingSolutionID = errors.New("solution ID is required")
	ErrMissingIntentID   = errors.New("intent ID is required")
)

// Intent is a typed unit of platform work.
//
// Fields are exported for serialization but the struct is immutable by
// contract: New is the only sanctioned constructor, IntentID is generated
// once and never reused, and Parameters is copied at construction so callers
// cannot alias into it.
type Intent struct {
	IntentID   string         `json:"intent_id"`
	IntentType string         `json:"intent_type"`
	TenantID   string         `json:"tenant_id"`
	SessionID  string         `json:"session_id"`
	SolutionID string         `json:"solution_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New creates a validated Intent. It fails with a validation error if any
// identifier is empty; no business rules are applied here.
func New(intentType, tenantID, sessionID, solutionID string, parameters map[string]any) (Intent, error) {
	in := Intent{
		IntentID:   uuid.New().String(),
		IntentType: intentType,
		TenantID:   tenantID,
		SessionID:  sessionID,
		SolutionID: solutionID,
		Parameters: copyParams(parameters),
		CreatedAt:  time.Now().UTC(),
	}
	if err := in.Validate(); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// Validate performs structural checks only.
func (in Intent) Validate() error {
	if in.IntentID == "" {
		return ErrMissingIntentID
	}
	if in.IntentType == "" {
		return ErrMissingIntentType
	}
	if in.TenantID == "" {
		return ErrMissingTenantID
	}
	if in.SessionID == "" {
		return ErrMissingSessionID
	}
	if in.SolutionID == "" {
		return ErrMissingSolutionID
	}
	return nil
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
