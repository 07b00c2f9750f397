package state

import (
	"errors"
	"time"
)

// Errors for the artifact/state surface.
var (
	ErrArtifactNotFound  = errors.New("state: artifact not found")
	ErrExecutionNotFound = errors.New("state: execution state not found")
	ErrInvalidArtifact   = errors.New("state: invalid artifact registration")
	ErrLifecycleRewind   = errors.New("state: lifecycle state cannot move backwards")
)

// LifecycleState is the artifact lifecycle. Transitions are monotonic
// forward only.
type LifecycleState string

const (
	LifecyclePending  LifecycleState = "pending"
	LifecycleReady    LifecycleState = "ready"
	LifecycleAccepted LifecycleState = "accepted"
	LifecycleArchived LifecycleState = "archived"
)

// lifecycleRank orders states; a transition to a lower rank is a rewind.
var lifecycleRank = map[LifecycleState]int{
	LifecyclePending:  0,
	LifecycleReady:    1,
	LifecycleAccepted: 2,
	LifecycleArchived: 3,
}

// Rank returns the ordering position of the state, or -1 if unknown.
func (s LifecycleState) Rank() int {
	r, ok := lifecycleRank[s]
	if !ok {
		return -1
	}
	return r
}

// Provenance records which intent and execution attempt produced an
// artifact. Immutable once set.
type Provenance struct {
	IntentID    string `json:"intent_id"`
	ExecutionID string `json:"execution_id"`
}

// Materialization is a concrete stored representation of an artifact.
type Materialization struct {
	StorageType string `json:"storage_type"`
	URI         string `json:"uri"`
	Format      string `json:"format"`
}

// ArtifactRegistration is a lifecycle-tracked, lineage-tracked artifact.
// ParentArtifacts are lineage edges, not ownership: they reference other
// artifact IDs and nothing here deletes or retains the parents.
type ArtifactRegistration struct {
	ArtifactID         string            `json:"artifact_id"`
	ArtifactType       string            `json:"artifact_type"`
	TenantID           string            `json:"tenant_id"`
	ProducedBy         Provenance        `json:"produced_by"`
	SemanticDescriptor string            `json:"semantic_descriptor,omitempty"`
	ParentArtifacts    []string          `json:"parent_artifacts,omitempty"`
	LifecycleState     LifecycleState    `json:"lifecycle_state"`
	Materializations   []Materialization `json:"materializations,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// FileReference points at a file held by external storage.
type FileReference struct {
	ReferenceID string `json:"reference_id"`
	StorageType string `json:"storage_type"`
	URI         string `json:"uri"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}
