// Package execution defines the per-request execution context and the
// handler contract realm handlers implement. A Context is created once per
// intent submission and carries everything a handler may touch: the intent,
// scoping identifiers, the state surface, and the WAL.
package execution

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/state"
	"github.com/fyrsmithlabs/intentd/internal/wal"
)

// ErrIdentifierMismatch is returned when explicitly supplied identifiers
// disagree with the identifiers carried by the intent.
var ErrIdentifierMismatch = errors.New("execution identifiers disagree with intent")

// Context is the per-execution environment handed to realm handlers.
// ExecutionID is unique per submission; the scoping identifiers always match
// the intent's.
type Context struct {
	ExecutionID string
	Intent      intent.Intent
	TenantID    string
	SessionID   string
	SolutionID  string

	State state.Surface
	WAL   *wal.Service

	// Metadata holds per-execution annotations such as the routed realm.
	Metadata map[string]string
}

// Option customizes context construction.
type Option func(*options)

type options struct {
	tenantID   string
	sessionID  string
	solutionID string
	metadata   map[string]string
}

// WithTenantID pins the tenant identifier. Must match the intent's.
func WithTenantID(tenantID string) Option {
	return func(o *options) { o.tenantID = tenantID }
}

// WithSessionID pins the session identifier. Must match the intent's.
func WithSessionID(sessionID string) Option {
	return func(o *options) { o.sessionID = sessionID }
}

// WithSolutionID pins the solution identifier. Must match the intent's.
func WithSolutionID(solutionID string) Option {
	return func(o *options) { o.solutionID = solutionID }
}

// WithMetadata seeds execution metadata.
func WithMetadata(md map[string]string) Option {
	return func(o *options) {
		if o.metadata == nil {
			o.metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v
		}
	}
}

// NewContext builds an execution context from a validated intent. Empty
// identifier options inherit from the intent; divergent ones fail with
// ErrIdentifierMismatch.
func NewContext(in intent.Intent, surface state.Surface, log *wal.Service, opts ...Option) (*Context, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intent: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.tenantID == "" {
		o.tenantID = in.TenantID
	}
	if o.sessionID == "" {
		o.sessionID = in.SessionID
	}
	if o.solutionID == "" {
		o.solutionID = in.SolutionID
	}
	if o.tenantID != in.TenantID {
		return nil, fmt.Errorf("%w: tenant %q vs %q", ErrIdentifierMismatch, o.tenantID, in.TenantID)
	}
	if o.sessionID != in.SessionID {
		return nil, fmt.Errorf("%w: session %q vs %q", ErrIdentifierMismatch, o.sessionID, in.SessionID)
	}
	if o.solutionID != in.SolutionID {
		return nil, fmt.Errorf("%w: solution %q vs %q", ErrIdentifierMismatch, o.solutionID, in.SolutionID)
	}
	if o.metadata == nil {
		o.metadata = make(map[string]string)
	}

	return &Context{
		ExecutionID: uuid.New().String(),
		Intent:      in,
		TenantID:    o.tenantID,
		SessionID:   o.sessionID,
		SolutionID:  o.solutionID,
		State:       surface,
		WAL:         log,
		Metadata:    o.metadata,
	}, nil
}
