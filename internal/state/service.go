package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/intentd/internal/state"

// Document collections in the backing store.
const (
	collectionArtifacts  = "artifacts"
	collectionExecutions = "executions"
	collectionFileRefs   = "filerefs"
)

// Service implements Surface on top of a durable store backend.
type Service struct {
	backend store.Backend
	logger  *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	registerCounter   metric.Int64Counter
	transitionCounter metric.Int64Counter

	// mu serializes read-modify-write cycles on artifacts within this
	// process. The store remains authoritative across processes; artifact
	// ownership is assumed single-writer per artifact lifetime.
	mu sync.Mutex
}

// NewService creates the artifact/state surface.
func NewService(backend store.Backend, logger *zap.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("state: backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		backend: backend,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.registerCounter, err = s.meter.Int64Counter(
		"intentd.artifacts.registrations_total",
		metric.WithDescription("Total artifact registration calls"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		s.logger.Warn("failed to create registration counter", zap.Error(err))
	}

	s.transitionCounter, err = s.meter.Int64Counter(
		"intentd.artifacts.lifecycle_transitions_total",
		metric.WithDescription("Total artifact lifecycle transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		s.logger.Warn("failed to create transition counter", zap.Error(err))
	}
}

// RegisterArtifact implements Surface.
func (s *Service) RegisterArtifact(ctx context.Context, reg ArtifactRegistration) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "state.register_artifact")
	defer span.End()
	span.SetAttributes(
		attribute.String("artifact_id", reg.ArtifactID),
		attribute.String("tenant_id", reg.TenantID),
		attribute.String("artifact_type", reg.ArtifactType),
	)

	if reg.ArtifactID == "" || reg.TenantID == "" || reg.ArtifactType == "" {
		return false, fmt.Errorf("%w: artifact_id, tenant_id and artifact_type are required", ErrInvalidArtifact)
	}
	if reg.LifecycleState == "" {
		reg.LifecycleState = LifecyclePending
	}
	if reg.LifecycleState.Rank() < 0 {
		return false, fmt.Errorf("%w: unknown lifecycle state %q", ErrInvalidArtifact, reg.LifecycleState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadArtifact(ctx, reg.ArtifactID, reg.TenantID)
	if err != nil && !errors.Is(err, ErrArtifactNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	if existing == nil {
		reg.CreatedAt = now
		reg.UpdatedAt = now
		if err := s.putArtifact(ctx, &reg); err != nil {
			return false, err
		}
		if s.registerCounter != nil {
			s.registerCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "created")))
		}
		return true, nil
	}

	// Idempotent re-registration: no duplicate, provenance and creation
	// time stay as first registered, lifecycle never regresses.
	changed := false
	if reg.LifecycleState.Rank() > existing.LifecycleState.Rank() {
		existing.LifecycleState = reg.LifecycleState
		changed = true
	}
	if reg.SemanticDescriptor != "" && reg.SemanticDescriptor != existing.SemanticDescriptor {
		existing.SemanticDescriptor = reg.SemanticDescriptor
		changed = true
	}
	for _, parent := range reg.ParentArtifacts {
		if !containsString(existing.ParentArtifacts, parent) {
			existing.ParentArtifacts = append(existing.ParentArtifacts, parent)
			changed = true
		}
	}
	for _, m := range reg.Materializations {
		if !hasMaterialization(existing.Materializations, m) {
			existing.Materializations = append(existing.Materializations, m)
			changed = true
		}
	}
	if changed {
		existing.UpdatedAt = now
		if err := s.putArtifact(ctx, existing); err != nil {
			return false, err
		}
	}
	if s.registerCounter != nil {
		s.registerCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "idempotent")))
	}
	return changed, nil
}

// AddMaterialization implements Surface.
func (s *Service) AddMaterialization(ctx context.Context, artifactID, tenantID string, m Materialization) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "state.add_materialization")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	art, err := s.loadArtifact(ctx, artifactID, tenantID)
	if err != nil {
		return false, err
	}
	if hasMaterialization(art.Materializations, m) {
		return false, nil
	}
	art.Materializations = append(art.Materializations, m)
	art.UpdatedAt = time.Now().UTC()
	if err := s.putArtifact(ctx, art); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateArtifactLifecycle implements Surface.
func (s *Service) UpdateArtifactLifecycle(ctx context.Context, artifactID, tenantID string, newState LifecycleState, reason string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "state.update_lifecycle")
	defer span.End()
	span.SetAttributes(
		attribute.String("artifact_id", artifactID),
		attribute.String("new_state", string(newState)),
	)

	if newState.Rank() < 0 {
		return false, fmt.Errorf("%w: unknown lifecycle state %q", ErrInvalidArtifact, newState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	art, err := s.loadArtifact(ctx, artifactID, tenantID)
	if err != nil {
		return false, err
	}
	if newState.Rank() < art.LifecycleState.Rank() {
		return false, fmt.Errorf("%w: %s -> %s", ErrLifecycleRewind, art.LifecycleState, newState)
	}
	if newState == art.LifecycleState {
		return false, nil
	}

	from := art.LifecycleState
	art.LifecycleState = newState
	art.UpdatedAt = time.Now().UTC()
	if err := s.putArtifact(ctx, art); err != nil {
		return false, err
	}

	s.logger.Info("artifact lifecycle transition",
		zap.String("artifact_id", artifactID),
		zap.String("tenant_id", tenantID),
		zap.String("from", string(from)),
		zap.String("to", string(newState)),
		zap.String("reason", reason),
	)
	if s.transitionCounter != nil {
		s.transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(newState))))
	}
	return true, nil
}

// GetArtifact implements Surface.
func (s *Service) GetArtifact(ctx context.Context, artifactID, tenantID string) (*ArtifactRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadArtifact(ctx, artifactID, tenantID)
}

// StoreFileReference implements Surface.
func (s *Service) StoreFileReference(ctx context.Context, tenantID string, ref FileReference) error {
	if ref.ReferenceID == "" {
		return errors.New("state: file reference ID is required")
	}
	doc, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal file reference: %w", err)
	}
	if err := s.backend.PutDoc(ctx, tenantID, collectionFileRefs, ref.ReferenceID, doc); err != nil {
		return fmt.Errorf("store file reference: %w", err)
	}
	return nil
}

// SetExecutionState implements Surface.
func (s *Service) SetExecutionState(ctx context.Context, executionID, tenantID string, state []byte) error {
	if err := s.backend.PutDoc(ctx, tenantID, collectionExecutions, executionID, state); err != nil {
		return fmt.Errorf("set execution state: %w", err)
	}
	return nil
}

// GetExecutionState implements Surface.
func (s *Service) GetExecutionState(ctx context.Context, executionID, tenantID string) ([]byte, error) {
	doc, err := s.backend.GetDoc(ctx, tenantID, collectionExecutions, executionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution state: %w", err)
	}
	return doc, nil
}

func (s *Service) loadArtifact(ctx context.Context, artifactID, tenantID string) (*ArtifactRegistration, error) {
	doc, err := s.backend.GetDoc(ctx, tenantID, collectionArtifacts, artifactID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	var art ArtifactRegistration
	if err := json.Unmarshal(doc, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &art, nil
}

func (s *Service) putArtifact(ctx context.Context, art *ArtifactRegistration) error {
	doc, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := s.backend.PutDoc(ctx, art.TenantID, collectionArtifacts, art.ArtifactID, doc); err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func hasMaterialization(list []Materialization, m Materialization) bool {
	for _, existing := range list {
		if existing == m {
			return true
		}
	}
	return false
}
