package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/state"
	"github.com/fyrsmithlabs/intentd/internal/wal"
)

const instrumentationName = "github.com/fyrsmithlabs/intentd/internal/saga"

// Coordinator drives sagas through their phases. Saga documents are
// persisted through the state surface as full-document overwrites; an
// in-process cache accelerates reads but the store stays authoritative.
// Persistence failures always propagate; masking them would make crash
// recovery lie about progress.
type Coordinator struct {
	surface state.Surface
	wal     *wal.Service
	logger  *zap.Logger
	phases  []Phase

	handlersMu sync.RWMutex
	handlers   map[Phase]PhaseHandler

	cacheMu sync.RWMutex
	cache   map[string]*Saga

	tracer            trace.Tracer
	meter             metric.Meter
	sagaCounter       metric.Int64Counter
	transitionCounter metric.Int64Counter
}

// NewCoordinator creates a coordinator. wal may be nil to disable milestone
// events; phases defaults to DefaultPhases when empty.
func NewCoordinator(surface state.Surface, log *wal.Service, phases []Phase, logger *zap.Logger) (*Coordinator, error) {
	if surface == nil {
		return nil, errors.New("saga: state surface is required")
	}
	if len(phases) == 0 {
		phases = DefaultPhases
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		surface:  surface,
		wal:      log,
		logger:   logger,
		phases:   phases,
		handlers: make(map[Phase]PhaseHandler),
		cache:    make(map[string]*Saga),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	c.initMetrics()
	return c, nil
}

func (c *Coordinator) initMetrics() {
	var err error

	c.sagaCounter, err = c.meter.Int64Counter(
		"intentd.sagas.created_total",
		metric.WithDescription("Total sagas created"),
		metric.WithUnit("{saga}"),
	)
	if err != nil {
		c.logger.Warn("failed to create saga counter", zap.Error(err))
	}

	c.transitionCounter, err = c.meter.Int64Counter(
		"intentd.sagas.transitions_total",
		metric.WithDescription("Total saga state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		c.logger.Warn("failed to create transition counter", zap.Error(err))
	}
}

// RegisterPhaseHandler binds a handler to a phase in the dispatch table.
func (c *Coordinator) RegisterPhaseHandler(phase Phase, handler PhaseHandler) error {
	if phaseIndex(c.phases, phase) < 0 {
		return fmt.Errorf("unknown phase %q", phase)
	}
	if handler == nil {
		return errors.New("saga: phase handler is required")
	}
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[phase] = handler
	return nil
}

// CreateSaga creates a PENDING saga and persists it immediately.
func (c *Coordinator) CreateSaga(ctx context.Context, tenantID, sessionID, sagaName string, sagaCtx map[string]any) (*Saga, error) {
	ctx, span := c.tracer.Start(ctx, "saga.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("saga_name", sagaName),
	)

	if tenantID == "" || sessionID == "" || sagaName == "" {
		return nil, fmt.Errorf("%w: tenant_id, session_id and saga_name are required", ErrInvalidSaga)
	}

	now := time.Now().UTC()
	sg := &Saga{
		SagaID:    uuid.New().String(),
		TenantID:  tenantID,
		SessionID: sessionID,
		SagaName:  sagaName,
		State:     StatePending,
		Steps:     []Step{},
		Context:   sagaCtx,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.persist(ctx, sg); err != nil {
		return nil, err
	}
	if c.sagaCounter != nil {
		c.sagaCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("saga_name", sagaName)))
	}
	c.milestone(ctx, sg, "saga.created", nil)
	c.logger.Info("saga created",
		zap.String("saga_id", sg.SagaID),
		zap.String("saga_name", sagaName),
		zap.String("tenant_id", tenantID),
	)
	return c.snapshot(sg), nil
}

// AddStep appends a pending step and persists the saga.
func (c *Coordinator) AddStep(ctx context.Context, sagaID, tenantID, stepName, stepType string, inputs map[string]any) (*Step, error) {
	ctx, span := c.tracer.Start(ctx, "saga.add_step")
	defer span.End()

	if stepName == "" {
		return nil, fmt.Errorf("%w: step name is required", ErrInvalidSaga)
	}

	sg, err := c.load(ctx, sagaID, tenantID)
	if err != nil {
		return nil, err
	}

	step := Step{
		StepID:   uuid.New().String(),
		StepName: stepName,
		StepType: stepType,
		Status:   StepPending,
		Inputs:   inputs,
	}
	sg.Steps = append(sg.Steps, step)
	sg.UpdatedAt = time.Now().UTC()
	if err := c.persist(ctx, sg); err != nil {
		return nil, err
	}
	return &step, nil
}

// UpdateSagaState transitions a saga, enforcing monotonicity, and persists
// before returning.
func (c *Coordinator) UpdateSagaState(ctx context.Context, sagaID, tenantID string, next State) (*Saga, error) {
	ctx, span := c.tracer.Start(ctx, "saga.update_state")
	defer span.End()
	span.SetAttributes(attribute.String("next_state", string(next)))

	sg, err := c.load(ctx, sagaID, tenantID)
	if err != nil {
		return nil, err
	}
	from := sg.State
	if err := sg.Transition(next); err != nil {
		return nil, err
	}
	if err := c.persist(ctx, sg); err != nil {
		return nil, err
	}
	if c.transitionCounter != nil {
		c.transitionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(next)),
		))
	}
	c.milestone(ctx, sg, "saga.transitioned", map[string]any{
		"from": string(from),
		"to":   string(next),
	})
	return c.snapshot(sg), nil
}

// ExecutePhase runs one phase: appends a running step, dispatches to the
// phase handler, then records the outcome. Phases execute strictly in
// declared order; an out-of-order phase fails before any step is written.
func (c *Coordinator) ExecutePhase(ctx context.Context, sagaID, tenantID string, phase Phase) (*Saga, error) {
	ctx, span := c.tracer.Start(ctx, "saga.execute_phase")
	defer span.End()
	span.SetAttributes(attribute.String("phase", string(phase)))

	sg, err := c.load(ctx, sagaID, tenantID)
	if err != nil {
		return nil, err
	}
	if sg.State != StatePending && sg.State != StateRunning {
		return nil, fmt.Errorf("%w: saga is %s", ErrInvalidTransition, sg.State)
	}
	if err := validatePhaseOrder(c.phases, sg.CurrentPhase, phase); err != nil {
		return nil, err
	}

	c.handlersMu.RLock()
	handler, ok := c.handlers[phase]
	c.handlersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for phase %q", phase)
	}

	if sg.State == StatePending {
		if err := sg.Transition(StateRunning); err != nil {
			return nil, err
		}
	}

	// Reuse a pending step pre-added for this phase; append one otherwise.
	started := time.Now().UTC()
	idx := -1
	for i := len(sg.Steps) - 1; i >= 0; i-- {
		if sg.Steps[i].StepName == string(phase) && sg.Steps[i].Status == StepPending {
			idx = i
			break
		}
	}
	if idx < 0 {
		sg.Steps = append(sg.Steps, Step{
			StepID:   uuid.New().String(),
			StepName: string(phase),
			StepType: "phase",
			Inputs:   sg.Context,
		})
		idx = len(sg.Steps) - 1
	}
	sg.Steps[idx].Status = StepRunning
	sg.Steps[idx].StartedAt = &started
	sg.UpdatedAt = started
	if err := c.persist(ctx, sg); err != nil {
		return nil, err
	}

	outputs, handlerErr := handler.HandlePhase(ctx, c.snapshot(sg), sg.Context)
	finished := time.Now().UTC()
	sg.Steps[idx].FinishedAt = &finished
	sg.UpdatedAt = finished

	if handlerErr != nil {
		sg.Steps[idx].Status = StepFailed
		sg.Steps[idx].Error = handlerErr.Error()
		sg.State = StateFailed
		if err := c.persist(ctx, sg); err != nil {
			return nil, err
		}
		c.milestone(ctx, sg, "saga.phase_failed", map[string]any{
			"phase": string(phase),
			"error": handlerErr.Error(),
		})
		c.logger.Warn("saga phase failed",
			zap.String("saga_id", sg.SagaID),
			zap.String("phase", string(phase)),
			zap.Error(handlerErr),
		)
		return c.snapshot(sg), handlerErr
	}

	sg.Steps[idx].Status = StepCompleted
	sg.Steps[idx].Outputs = outputs
	sg.CurrentPhase = phase
	if phaseIndex(c.phases, phase) == len(c.phases)-1 {
		sg.State = StateCompleted
	}
	if err := c.persist(ctx, sg); err != nil {
		return nil, err
	}
	c.milestone(ctx, sg, "saga.phase_completed", map[string]any{
		"phase": string(phase),
	})
	return c.snapshot(sg), nil
}

// GetSaga returns a saga, cache first, store authoritative on miss. The
// returned copy is the caller's to keep.
func (c *Coordinator) GetSaga(ctx context.Context, tenantID, sagaID string) (*Saga, error) {
	return c.load(ctx, sagaID, tenantID)
}

// load returns a private copy of the saga for the caller to mutate. The
// cache only ever holds the last durably written document, so a mutation
// that fails to persist leaves reads unchanged.
func (c *Coordinator) load(ctx context.Context, sagaID, tenantID string) (*Saga, error) {
	c.cacheMu.RLock()
	cached, ok := c.cache[sagaID]
	c.cacheMu.RUnlock()
	if ok && cached.TenantID == tenantID {
		return c.snapshot(cached), nil
	}

	doc, err := c.surface.GetExecutionState(ctx, sagaID, tenantID)
	if errors.Is(err, state.ErrExecutionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
	}
	if err != nil {
		return nil, fmt.Errorf("load saga: %w", err)
	}
	var sg Saga
	if err := json.Unmarshal(doc, &sg); err != nil {
		return nil, fmt.Errorf("decode saga: %w", err)
	}
	c.cacheMu.Lock()
	c.cache[sagaID] = &sg
	c.cacheMu.Unlock()
	return c.snapshot(&sg), nil
}

// persist writes the whole saga document and refreshes the cache only on
// success, keeping the store authoritative. Errors propagate to the caller.
func (c *Coordinator) persist(ctx context.Context, sg *Saga) error {
	doc, err := json.Marshal(sg)
	if err != nil {
		return fmt.Errorf("marshal saga: %w", err)
	}
	if err := c.surface.SetExecutionState(ctx, sg.SagaID, sg.TenantID, doc); err != nil {
		return fmt.Errorf("persist saga: %w", err)
	}
	c.cacheMu.Lock()
	c.cache[sg.SagaID] = c.snapshot(sg)
	c.cacheMu.Unlock()
	return nil
}

// milestone records a saga event on the WAL. Best effort; the WAL absorbs
// its own failures.
func (c *Coordinator) milestone(ctx context.Context, sg *Saga, eventType string, extra map[string]any) {
	if c.wal == nil {
		return
	}
	payload := map[string]any{
		"saga_id":    sg.SagaID,
		"saga_name":  sg.SagaName,
		"session_id": sg.SessionID,
		"state":      string(sg.State),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := c.wal.Append(ctx, eventType, sg.TenantID, payload); err != nil {
		c.logger.Warn("failed to record saga milestone",
			zap.String("saga_id", sg.SagaID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// snapshot deep-copies a saga so callers cannot mutate coordinator state.
func (c *Coordinator) snapshot(sg *Saga) *Saga {
	out := *sg
	out.Steps = make([]Step, len(sg.Steps))
	copy(out.Steps, sg.Steps)
	if sg.Context != nil {
		out.Context = make(map[string]any, len(sg.Context))
		for k, v := range sg.Context {
			out.Context[k] = v
		}
	}
	return &out
}
