// Package executor is the single entry point that turns a submitted intent
// into a handler invocation. It consults the curator for capability policy,
// resolves the realm handler through the registry, filters the payload to
// the handler's declared field allow-list, and converts every handler
// failure into an explicit result. Exactly one handler invocation happens
// per submission; retries are a saga-level concern.
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/curator"
	"github.com/fyrsmithlabs/intentd/internal/execution"
	"github.com/fyrsmithlabs/intentd/internal/registry"
)

const instrumentationName = "github.com/fyrsmithlabs/intentd/internal/executor"

// RulesProvider supplies the current policy rules on every submission. The
// executor never caches rules; freshness is the provider's responsibility.
type RulesProvider func() curator.Rules

// Executor routes intents to realm handlers.
type Executor struct {
	registry *registry.Registry
	rules    RulesProvider
	logger   *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	submitCounter metric.Int64Counter
	deniedCounter metric.Int64Counter
}

// New creates an executor. rules may be nil when no policy source is
// configured; every capability then routes unchecked.
func New(reg *registry.Registry, rules RulesProvider, logger *zap.Logger) (*Executor, error) {
	if reg == nil {
		return nil, errors.New("executor: registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		registry: reg,
		rules:    rules,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Executor) initMetrics() {
	var err error

	e.submitCounter, err = e.meter.Int64Counter(
		"intentd.executor.submissions_total",
		metric.WithDescription("Intent submissions by outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		e.logger.Warn("failed to create submission counter", zap.Error(err))
	}

	e.deniedCounter, err = e.meter.Int64Counter(
		"intentd.executor.policy_denials_total",
		metric.WithDescription("Submissions denied by capability policy"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		e.logger.Warn("failed to create denial counter", zap.Error(err))
	}
}

// SubmitIntent routes one intent to the handler registered for the target
// realm. Handler failures never propagate past this boundary; they come
// back as a failed result.
func (e *Executor) SubmitIntent(ctx context.Context, intentType, realm string, payload map[string]any, ec *execution.Context) execution.Result {
	ctx, span := e.tracer.Start(ctx, "executor.submit_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent_type", intentType),
		attribute.String("realm", realm),
	)

	result := e.submit(ctx, intentType, realm, payload, ec)
	result.Success = result.Completed()
	if e.submitCounter != nil {
		e.submitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("intent_type", intentType),
			attribute.String("status", result.Status),
		))
	}
	e.record(ctx, ec, intentType, realm, result)
	return result
}

func (e *Executor) submit(ctx context.Context, intentType, realm string, payload map[string]any, ec *execution.Context) execution.Result {
	if ec == nil {
		return execution.Result{
			Status: execution.StatusFailed,
			Error:  "execution context is required",
		}
	}
	base := execution.Result{
		ExecutionID: ec.ExecutionID,
		IntentID:    ec.Intent.IntentID,
		Realm:       realm,
	}
	if err := ec.Intent.Validate(); err != nil {
		base.Status = execution.StatusFailed
		base.Error = fmt.Sprintf("invalid intent: %s", err)
		return base
	}
	if intentType == "" || realm == "" {
		base.Status = execution.StatusFailed
		base.Error = "intent type and realm are required"
		return base
	}

	// Capability policy. A missing rule degrades gracefully: routing
	// continues, the miss is logged. An explicit denial stops the call.
	if e.rules != nil {
		decision := curator.ValidateCapability(intentType, ec.TenantID, curator.SecurityContext{}, e.rules())
		if !decision.Allowed {
			if decision.PolicyBasis == curator.BasisCapabilityPolicy && !e.hasCapabilityRule(intentType) {
				e.logger.Warn("capability lookup miss, routing anyway",
					zap.String("intent_type", intentType),
					zap.String("tenant_id", ec.TenantID),
					zap.String("reason", decision.Reason),
				)
			} else {
				if e.deniedCounter != nil {
					e.deniedCounter.Add(ctx, 1, metric.WithAttributes(
						attribute.String("policy_basis", decision.PolicyBasis),
					))
				}
				base.Status = execution.StatusPolicyDenied
				base.Error = decision.Reason
				base.PolicyBasis = decision.PolicyBasis
				return base
			}
		}
	}

	handler, found := e.resolveHandler(intentType, realm)
	if !found {
		base.Status = execution.StatusFailed
		base.Error = fmt.Sprintf("Realm handler not found: %s", realm)
		return base
	}

	filtered := filterPayload(payload, handler.Fields)
	result, err := e.invoke(ctx, handler, ec, filtered)
	result.ExecutionID = ec.ExecutionID
	result.IntentID = ec.Intent.IntentID
	result.Realm = realm
	if err != nil {
		result.Status = execution.StatusFailed
		result.Error = err.Error()
	}
	if result.Status == "" {
		result.Status = execution.StatusCompleted
	}
	return result
}

func (e *Executor) hasCapabilityRule(intentType string) bool {
	_, ok := e.rules().Capabilities[intentType]
	return ok
}

func (e *Executor) resolveHandler(intentType, realm string) (registry.Registration, bool) {
	for _, reg := range e.registry.Lookup(intentType) {
		if reg.HandlerName == realm {
			return reg, true
		}
	}
	return registry.Registration{}, false
}

// invoke runs the handler exactly once, recovering panics so programmer
// errors in realm code surface as handler failures.
func (e *Executor) invoke(ctx context.Context, reg registry.Registration, ec *execution.Context, params map[string]any) (result execution.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("realm handler panicked",
				zap.String("intent_type", reg.IntentType),
				zap.String("handler", reg.HandlerName),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return reg.Fn(ctx, ec, params)
}

// record appends the submission outcome to the WAL when one is attached.
// WAL absence or failure never affects the result.
func (e *Executor) record(ctx context.Context, ec *execution.Context, intentType, realm string, result execution.Result) {
	if ec == nil || ec.WAL == nil || ec.TenantID == "" {
		return
	}
	eventType := "intent.completed"
	if !result.Completed() {
		eventType = "intent.failed"
	}
	_, err := ec.WAL.Append(ctx, eventType, ec.TenantID, map[string]any{
		"intent_id":    ec.Intent.IntentID,
		"intent_type":  intentType,
		"realm":        realm,
		"execution_id": ec.ExecutionID,
		"session_id":   ec.SessionID,
		"status":       result.Status,
	})
	if err != nil {
		e.logger.Warn("failed to record submission event", zap.Error(err))
	}
}

// filterPayload copies only the allow-listed fields. A nil allow-list means
// the handler declared no parameters and receives an empty map.
func filterPayload(payload map[string]any, fields []string) map[string]any {
	filtered := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			filtered[f] = v
		}
	}
	return filtered
}
