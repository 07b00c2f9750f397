// Package state implements the artifact/state surface: a lifecycle-tracked
// artifact registry plus the execution-state documents the saga coordinator
// persists through. The surface sits on a durable store backend; persistence
// failures propagate to callers because masking them would break the
// recoverability guarantee the runtime exists to provide.
package state

import "context"

// Surface is the artifact/state store contract handed to execution contexts.
type Surface interface {
	// RegisterArtifact registers an artifact. Re-registering the same
	// artifact_id is idempotent: no duplicate is created and the lifecycle
	// state never regresses. Returns true when the registry was changed.
	RegisterArtifact(ctx context.Context, reg ArtifactRegistration) (bool, error)

	// AddMaterialization appends a stored representation to an artifact.
	AddMaterialization(ctx context.Context, artifactID, tenantID string, m Materialization) (bool, error)

	// UpdateArtifactLifecycle moves an artifact forward through its
	// lifecycle. Backwards transitions fail with ErrLifecycleRewind.
	UpdateArtifactLifecycle(ctx context.Context, artifactID, tenantID string, newState LifecycleState, reason string) (bool, error)

	// GetArtifact returns a registered artifact or ErrArtifactNotFound.
	GetArtifact(ctx context.Context, artifactID, tenantID string) (*ArtifactRegistration, error)

	// StoreFileReference records a pointer to externally stored bytes.
	StoreFileReference(ctx context.Context, tenantID string, ref FileReference) error

	// SetExecutionState persists an opaque execution-state document,
	// overwriting any previous version in full.
	SetExecutionState(ctx context.Context, executionID, tenantID string, state []byte) error

	// GetExecutionState returns the persisted document or
	// ErrExecutionNotFound.
	GetExecutionState(ctx context.Context, executionID, tenantID string) ([]byte, error)
}
