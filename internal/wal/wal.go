// Package wal implements the append-only, tenant-partitioned write-ahead
// log used for audit, replay, and crash recovery.
//
// Append never fails from the caller's perspective: when the durable
// backend is unreachable the event is parked in a bounded in-process buffer
// and drained opportunistically on later appends. Reads are served from the
// durable backend only; buffered events become visible once drained.
package wal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/bus"
	"github.com/fyrsmithlabs/intentd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/intentd/internal/wal"

// listName is the backend list each tenant's events live in.
const listName = "wal"

// Event is one immutable WAL record. Ordering is append order per tenant
// partition.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	TenantID  string         `json:"tenant_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// SessionID returns the session the event belongs to, if session-scoped.
func (e Event) SessionID() string {
	if e.Payload == nil {
		return ""
	}
	if s, ok := e.Payload["session_id"].(string); ok {
		return s
	}
	return ""
}

// Config configures the WAL service.
type Config struct {
	// RetentionPerTenant caps events kept per tenant; oldest trimmed first.
	RetentionPerTenant int
	// BufferSize bounds the in-process fallback buffer.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetentionPerTenant: 1000,
		BufferSize:         256,
	}
}

// Service is the write-ahead log.
type Service struct {
	config  Config
	backend store.Backend
	mirror  bus.Publisher
	logger  *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	appendCounter   metric.Int64Counter
	bufferedCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter

	buffer *fallbackBuffer
}

// NewService creates a WAL over a durable backend. mirror may be nil to
// disable live event mirroring.
func NewService(cfg Config, backend store.Backend, mirror bus.Publisher, logger *zap.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("wal: backend is required")
	}
	if cfg.RetentionPerTenant <= 0 {
		cfg.RetentionPerTenant = DefaultConfig().RetentionPerTenant
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:  cfg,
		backend: backend,
		mirror:  mirror,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
		buffer:  newFallbackBuffer(cfg.BufferSize),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.appendCounter, err = s.meter.Int64Counter(
		"intentd.wal.appends_total",
		metric.WithDescription("Total WAL append calls"),
		metric.WithUnit("{append}"),
	)
	if err != nil {
		s.logger.Warn("failed to create append counter", zap.Error(err))
	}

	s.bufferedCounter, err = s.meter.Int64Counter(
		"intentd.wal.buffered_total",
		metric.WithDescription("WAL events diverted to the in-process buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		s.logger.Warn("failed to create buffered counter", zap.Error(err))
	}

	s.droppedCounter, err = s.meter.Int64Counter(
		"intentd.wal.dropped_total",
		metric.WithDescription("WAL events dropped from a full fallback buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		s.logger.Warn("failed to create dropped counter", zap.Error(err))
	}
}

// Append records an event. It always succeeds from the caller's
// perspective: a backend failure diverts the event to the bounded buffer
// instead of dropping it.
func (s *Service) Append(ctx context.Context, eventType, tenantID string, payload map[string]any) (Event, error) {
	ctx, span := s.tracer.Start(ctx, "wal.append")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type", eventType),
		attribute.String("tenant_id", tenantID),
	)

	if eventType == "" || tenantID == "" {
		return Event{}, errors.New("wal: event type and tenant ID are required")
	}

	event := Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	entry, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("wal: encode event: %w", err)
	}

	s.drainBuffer(ctx)

	// Older events for this tenant may still be parked after a partial
	// drain. Appending directly would put this event ahead of them, so it
	// queues behind them instead.
	if s.buffer.pendingFor(tenantID) {
		dropped := s.buffer.push(tenantID, entry)
		s.logger.Debug("wal event queued behind buffered predecessors",
			zap.String("event_type", eventType),
			zap.String("tenant_id", tenantID),
		)
		if s.bufferedCounter != nil {
			s.bufferedCounter.Add(ctx, 1)
		}
		if dropped > 0 && s.droppedCounter != nil {
			s.droppedCounter.Add(ctx, int64(dropped))
		}
		return event, nil
	}

	if err := s.backend.ListAppend(ctx, tenantID, listName, entry); err != nil {
		dropped := s.buffer.push(tenantID, entry)
		s.logger.Warn("wal backend unreachable, event buffered",
			zap.String("event_type", eventType),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		if s.bufferedCounter != nil {
			s.bufferedCounter.Add(ctx, 1)
		}
		if dropped > 0 && s.droppedCounter != nil {
			s.droppedCounter.Add(ctx, int64(dropped))
		}
		return event, nil
	}

	if err := s.backend.ListTrim(ctx, tenantID, listName, s.config.RetentionPerTenant); err != nil {
		s.logger.Warn("wal retention trim failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	if s.appendCounter != nil {
		s.appendCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
	s.publish(event, entry)
	return event, nil
}

// GetEvents returns up to limit events for a tenant, most recent first.
// eventType filters when non-empty; limit <= 0 returns everything retained.
func (s *Service) GetEvents(ctx context.Context, tenantID, eventType string, limit int) ([]Event, error) {
	ctx, span := s.tracer.Start(ctx, "wal.get_events")
	defer span.End()

	// Filtering needs the full window; the retention cap bounds the read.
	fetchLimit := limit
	if eventType != "" {
		fetchLimit = 0
	}
	events, err := s.readAll(ctx, tenantID, fetchLimit)
	if err != nil {
		return nil, err
	}
	if eventType != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.EventType == eventType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	reverse(events)
	return events, nil
}

// GetSessionEvents returns a session's events in append order.
func (s *Service) GetSessionEvents(ctx context.Context, sessionID, tenantID string) ([]Event, error) {
	ctx, span := s.tracer.Start(ctx, "wal.get_session_events")
	defer span.End()

	events, err := s.readAll(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	filtered := events[:0]
	for _, e := range events {
		if e.SessionID() == sessionID {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// ReplaySession returns a session's events sorted ascending by timestamp,
// regardless of append interleaving. Replay is read-only.
func (s *Service) ReplaySession(ctx context.Context, sessionID, tenantID string) ([]Event, error) {
	events, err := s.GetSessionEvents(ctx, sessionID, tenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// BufferedEvents reports how many events await drain to the backend.
func (s *Service) BufferedEvents() int {
	return s.buffer.len()
}

func (s *Service) readAll(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	entries, err := s.backend.ListRange(ctx, tenantID, listName, limit)
	if err != nil {
		return nil, fmt.Errorf("wal: read events: %w", err)
	}
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		var e Event
		if err := json.Unmarshal(entry, &e); err != nil {
			s.logger.Warn("wal: skipping undecodable event", zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// drainBuffer retries buffered events against the backend. Events that
// still fail go back to the buffer in their original order.
func (s *Service) drainBuffer(ctx context.Context) {
	pending := s.buffer.takeAll()
	if len(pending) == 0 {
		return
	}
	drained := 0
	for i, item := range pending {
		if err := s.backend.ListAppend(ctx, item.tenantID, listName, item.entry); err != nil {
			s.buffer.restore(pending[i:])
			break
		}
		drained++
	}
	if drained > 0 {
		s.logger.Info("wal buffer drained", zap.Int("events", drained))
		if s.appendCounter != nil {
			s.appendCounter.Add(ctx, int64(drained), metric.WithAttributes(attribute.Bool("drained", true)))
		}
	}
}

func (s *Service) publish(event Event, entry []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Publish(bus.EventSubject(event.TenantID), entry); err != nil {
		s.logger.Debug("wal mirror publish failed",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func reverse(events []Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
