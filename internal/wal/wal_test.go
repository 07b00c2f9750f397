package wal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/store"
)

// flakyBackend fails list appends on demand so buffering can be exercised.
// failNext fails that many further appends before recovering.
type flakyBackend struct {
	store.Backend
	failAppends bool
	failNext    int
}

func (f *flakyBackend) ListAppend(ctx context.Context, tenantID, list string, entry []byte) error {
	if f.failAppends {
		return errors.New("backend down")
	}
	if f.failNext > 0 {
		f.failNext--
		return errors.New("backend down")
	}
	return f.Backend.ListAppend(ctx, tenantID, list, entry)
}

type capturedPublish struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	published []capturedPublish
	err       error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, capturedPublish{subject: subject, data: data})
	return nil
}

func newTestWAL(t *testing.T, cfg Config) (*Service, *flakyBackend) {
	t.Helper()
	backend := &flakyBackend{Backend: store.NewMemory()}
	svc, err := NewService(cfg, backend, nil, zap.NewNop())
	require.NoError(t, err)
	return svc, backend
}

func TestAppend_AssignsIdentityAndTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	before := time.Now().UTC()
	event, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"session_id": "s1"})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "intent.submitted", event.EventType)
	assert.Equal(t, "t1", event.TenantID)
	assert.False(t, event.Timestamp.Before(before))
	assert.Equal(t, "s1", event.SessionID())
}

func TestAppend_RequiresTypeAndTenant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	_, err := svc.Append(ctx, "", "t1", nil)
	assert.Error(t, err)
	_, err = svc.Append(ctx, "intent.submitted", "", nil)
	assert.Error(t, err)
}

func TestGetEvents_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"seq": fmt.Sprintf("%d", i)})
		require.NoError(t, err)
	}

	events, err := svc.GetEvents(ctx, "t1", "", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "4", events[0].Payload["seq"])
	assert.Equal(t, "2", events[2].Payload["seq"])
}

func TestGetEvents_FilterByType(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	_, err := svc.Append(ctx, "intent.submitted", "t1", nil)
	require.NoError(t, err)
	_, err = svc.Append(ctx, "saga.created", "t1", nil)
	require.NoError(t, err)
	_, err = svc.Append(ctx, "intent.submitted", "t1", nil)
	require.NoError(t, err)

	events, err := svc.GetEvents(ctx, "t1", "saga.created", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "saga.created", events[0].EventType)
}

func TestGetEvents_TenantsArePartitioned(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	_, err := svc.Append(ctx, "intent.submitted", "t1", nil)
	require.NoError(t, err)
	_, err = svc.Append(ctx, "intent.submitted", "t2", nil)
	require.NoError(t, err)

	events, err := svc.GetEvents(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "t1", events[0].TenantID)
}

func TestRetention_TrimsOldestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{RetentionPerTenant: 3})

	// Append one past the cap; the oldest event must go.
	for i := 0; i < 4; i++ {
		_, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"seq": fmt.Sprintf("%d", i)})
		require.NoError(t, err)
	}

	events, err := svc.GetEvents(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Most recent first: 3, 2, 1. Event 0 was trimmed.
	assert.Equal(t, "3", events[0].Payload["seq"])
	assert.Equal(t, "1", events[2].Payload["seq"])
}

func TestGetSessionEvents_FiltersBySession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	_, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, "intent.submitted", "t1", map[string]any{"session_id": "s2"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, "saga.created", "t1", map[string]any{"session_id": "s1"})
	require.NoError(t, err)

	events, err := svc.GetSessionEvents(ctx, "s1", "t1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "intent.submitted", events[0].EventType)
	assert.Equal(t, "saga.created", events[1].EventType)
}

func TestReplaySession_AscendingByTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWAL(t, Config{})

	for i := 0; i < 3; i++ {
		_, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{
			"session_id": "s1",
			"seq":        fmt.Sprintf("%d", i),
		})
		require.NoError(t, err)
	}

	events, err := svc.ReplaySession(ctx, "s1", "t1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp),
			"replay must be ordered ascending by timestamp")
	}
	assert.Equal(t, "0", events[0].Payload["seq"])
}

func TestAppend_BuffersOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestWAL(t, Config{})
	backend.failAppends = true

	event, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"session_id": "s1"})
	require.NoError(t, err, "append must not fail the caller when the backend is down")
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, svc.BufferedEvents())

	// Backend recovers; the next append drains the buffer first.
	backend.failAppends = false
	_, err = svc.Append(ctx, "intent.submitted", "t1", map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	assert.Equal(t, 0, svc.BufferedEvents())

	events, err := svc.GetEvents(ctx, "t1", "", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2, "buffered event must be durable after drain")
}

func TestAppend_PreservesTenantOrderAcrossOutage(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestWAL(t, Config{})

	backend.failAppends = true
	_, err := svc.Append(ctx, "intent.submitted", "t1", map[string]any{"seq": "0"})
	require.NoError(t, err)

	// The backend is back up for direct writes, but the drain of the parked
	// event fails once more. The new event must queue behind it rather than
	// land in the log first.
	backend.failAppends = false
	backend.failNext = 1
	_, err = svc.Append(ctx, "intent.submitted", "t1", map[string]any{"seq": "1"})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.BufferedEvents())

	_, err = svc.Append(ctx, "intent.submitted", "t1", map[string]any{"seq": "2"})
	require.NoError(t, err)
	assert.Equal(t, 0, svc.BufferedEvents())

	events, err := svc.GetEvents(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Most recent first: submission order is preserved in the durable log.
	assert.Equal(t, "2", events[0].Payload["seq"])
	assert.Equal(t, "1", events[1].Payload["seq"])
	assert.Equal(t, "0", events[2].Payload["seq"])
}

func TestAppend_BufferEvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestWAL(t, Config{BufferSize: 2})
	backend.failAppends = true

	for i := 0; i < 3; i++ {
		_, err := svc.Append(ctx, "intent.submitted", "t1", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, svc.BufferedEvents())
}

func TestAppend_MirrorsToPublisher(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, err := NewService(Config{}, store.NewMemory(), pub, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Append(ctx, "intent.submitted", "t1", nil)
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "wal.events.t1", pub.published[0].subject)
}

func TestAppend_MirrorFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("nats down")}
	svc, err := NewService(Config{}, store.NewMemory(), pub, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Append(ctx, "intent.submitted", "t1", nil)
	require.NoError(t, err)

	events, err := svc.GetEvents(ctx, "t1", "", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
