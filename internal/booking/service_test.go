package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/clock"
	"github.com/example/emergency-dispatch/internal/models"
	"github.com/example/emergency-dispatch/internal/observability"
	"github.com/example/emergency-dispatch/internal/storage"
)

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, ev models.StatusEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type captureSink struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (c *captureSink) Publish(ctx context.Context, ev models.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) states() []models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Status, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Snapshot.State)
	}
	return out
}

func newService(t *testing.T) (*Service, *clock.Fake, *storage.MemoryStore) {
	t.Helper()
	c := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore()
	return New(Config{Clock: c, Store: store}), c, store
}

func TestService_SubmitAssignsIDAndTracks(t *testing.T) {
	svc, c, _ := newService(t)

	req, snap, err := svc.Submit(context.Background(), models.EmergencyRequest{PatientName: "Anita", Kind: "cardiac"})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, c.Now(), req.CreatedAt)
	assert.Equal(t, models.StatusRequesting, snap.State)
	assert.Equal(t, []string{req.ID}, svc.Active())

	c.Advance(5 * time.Second)
	snap, err = svc.Snapshot(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnRoute, snap.State)
	require.NotNil(t, snap.ETAMinutes)
	assert.Equal(t, 8, *snap.ETAMinutes)
}

func TestService_DuplicateID(t *testing.T) {
	svc, _, _ := newService(t)
	_, _, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	_, _, err = svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestService_CancelDiscards(t *testing.T) {
	svc, c, _ := newService(t)
	req, _, _ := svc.Submit(context.Background(), models.EmergencyRequest{})
	c.Advance(3 * time.Second)

	snap, err := svc.Cancel(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Snapshot{State: models.StatusIdle}, snap)
	assert.Empty(t, svc.Active())

	_, err = svc.Snapshot(req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Cancel(req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeliversEventsInOrderToSinksAndJournal(t *testing.T) {
	svc, c, store := newService(t)
	capture := &captureSink{}
	svc.AddSink("capture", capture)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	req, _, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	c.Advance(5*time.Second + time.Minute)
	_, err = svc.Cancel(req.ID)
	require.NoError(t, err)

	cancel()
	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	want := []models.Status{
		models.StatusRequesting, models.StatusConfirmed, models.StatusEnRoute, models.StatusEnRoute, models.StatusIdle,
	}
	assert.Equal(t, want, capture.states())

	journal, err := svc.Events(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, journal, len(want))
	for i, ev := range journal {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	require.NotNil(t, journal[3].Snapshot.ETAMinutes)
	assert.Equal(t, 7, *journal[3].Snapshot.ETAMinutes)

	fromStore, _ := store.List(context.Background(), "r1")
	assert.Len(t, fromStore, len(want))
}

func TestService_FailingSinkDoesNotBlockOthers(t *testing.T) {
	svc, _, store := newService(t)
	failing := &MockSink{}
	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc.AddSink("kafka", failing)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	_, _, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	cancel()
	<-svc.Done()

	failing.AssertNumberOfCalls(t, "Publish", 1)
	events, _ := store.List(context.Background(), "r1")
	assert.Len(t, events, 1)
}

func TestService_DropsWhenQueueFull(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	svc := New(Config{Clock: c, Buffer: 1})
	_, _, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	// worker not started: the second event has nowhere to go
	c.Advance(3 * time.Second)

	snap, err := svc.Snapshot("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, snap.State)
	assert.Len(t, svc.events, 1)
}

func TestService_CloseCancelsAll(t *testing.T) {
	svc, c, _ := newService(t)
	_, _, _ = svc.Submit(context.Background(), models.EmergencyRequest{ID: "a"})
	_, _, _ = svc.Submit(context.Background(), models.EmergencyRequest{ID: "b"})

	svc.Close()
	assert.Empty(t, svc.Active())
	assert.Zero(t, c.Pending())
}

type noAmbulance struct{}

func (noAmbulance) Assign(ctx context.Context, req models.EmergencyRequest) (models.Assignment, error) {
	return models.Assignment{}, errors.New("no ambulances available")
}

func TestService_DispatchFailureDropsRequest(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore()
	svc := New(Config{Clock: c, Store: store, Provider: noAmbulance{}})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	active := testutil.ToFloat64(observability.ActiveRequests)
	req, _, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, active+1, testutil.ToFloat64(observability.ActiveRequests))

	c.Advance(3 * time.Second)
	assert.Empty(t, svc.Active())
	assert.Equal(t, active, testutil.ToFloat64(observability.ActiveRequests))
	_, err = svc.Snapshot(req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	cancel()
	<-svc.Done()
	evs, err := store.List(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, models.StatusIdle, evs[1].Snapshot.State)
	assert.Equal(t, "no ambulances available", evs[1].Snapshot.Err)

	// the same id can be submitted again
	_, snap, err := svc.Submit(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequesting, snap.State)
}

func TestService_SubmitHonoursCancelledContext(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.Submit(ctx, models.EmergencyRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, svc.Active())
}
