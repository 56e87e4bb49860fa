package booking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/emergency-dispatch/internal/clock"
	"github.com/example/emergency-dispatch/internal/models"
	"github.com/example/emergency-dispatch/internal/observability"
	"github.com/example/emergency-dispatch/internal/storage"
	"github.com/example/emergency-dispatch/internal/tracker"
)

// Sink receives every status event, in order, from the service worker.
type Sink interface {
	Publish(ctx context.Context, ev models.StatusEvent) error
}

type Config struct {
	Provider tracker.Provider     // nil uses the mock dispatch
	ETA      tracker.ETAEstimator // optional
	Clock    clock.Clock
	Timings  tracker.Timings
	Store    storage.EventStore // defaults to an in-memory journal
	Logger   *slog.Logger
	Buffer   int // event queue size
}

// Service owns one tracker per submitted request.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	events  chan models.StatusEvent
	sinks   []namedSink
	started sync.Once
	done    chan struct{}
}

type session struct {
	tr  *tracker.Tracker
	mu  sync.Mutex
	seq int64
}

type namedSink struct {
	name string
	sink Sink
}

func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	s := &Service{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "booking"),
		sessions: make(map[string]*session),
		events:   make(chan models.StatusEvent, cfg.Buffer),
		done:     make(chan struct{}),
	}
	s.AddSink("journal", journalSink{cfg.Store})
	return s
}

// AddSink registers a sink. Call before Start.
func (s *Service) AddSink(name string, sink Sink) {
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
}

// Start runs the delivery worker until ctx is done. Events already queued
// are still delivered on shutdown.
func (s *Service) Start(ctx context.Context) {
	s.started.Do(func() { go s.run(ctx) })
}

// Done is closed once the worker has drained and exited.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) Submit(ctx context.Context, req models.EmergencyRequest) (models.EmergencyRequest, models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return req, models.Snapshot{}, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = s.cfg.Clock.Now()

	s.mu.Lock()
	if _, exists := s.sessions[req.ID]; exists {
		s.mu.Unlock()
		return req, models.Snapshot{}, ErrDuplicate
	}
	sess := &session{}
	sess.tr = tracker.New(tracker.Config{
		Request:  req,
		Provider: s.cfg.Provider,
		ETA:      s.cfg.ETA,
		Clock:    s.cfg.Clock,
		Timings:  s.cfg.Timings,
		Logger:   s.logger,
		OnChange: func(snap models.Snapshot) { s.emit(req.ID, sess, snap) },
	})
	s.sessions[req.ID] = sess
	s.mu.Unlock()

	sess.tr.Submit()
	observability.RequestsSubmitted.Inc()
	observability.ActiveRequests.Inc()
	s.logger.InfoContext(ctx, "request_submitted", "request_id", req.ID, "kind", req.Kind)
	return req, sess.tr.Snapshot(), nil
}

// Cancel stops the request's tracker and discards it.
func (s *Service) Cancel(id string) (models.Snapshot, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	sess.tr.Cancel()
	observability.RequestsCancelled.Inc()
	observability.ActiveRequests.Dec()
	s.logger.Info("request_cancelled", "request_id", id)
	return sess.tr.Snapshot(), nil
}

func (s *Service) Snapshot(id string) (models.Snapshot, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	return sess.tr.Snapshot(), nil
}

// Events returns the journal for a request, including cancelled ones.
func (s *Service) Events(ctx context.Context, id string) ([]models.StatusEvent, error) {
	return s.cfg.Store.List(ctx, id)
}

func (s *Service) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every tracked request.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.tr.Cancel()
		observability.ActiveRequests.Dec()
	}
}

func (s *Service) emit(id string, sess *session, snap models.Snapshot) {
	observability.Transitions.WithLabelValues(snap.State.String()).Inc()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.seq++
	ev := models.StatusEvent{RequestID: id, Seq: sess.seq, Snapshot: snap, At: s.cfg.Clock.Now()}
	select {
	case s.events <- ev:
	default:
		observability.EventsDropped.Inc()
		s.logger.Warn("event_dropped", "request_id", id, "seq", ev.Seq)
	}

	if snap.State == models.StatusIdle && snap.Err != "" {
		s.dropFailed(id, sess)
	}
}

// dropFailed forgets a request whose dispatch failed. The failure stays in
// the journal and was already pushed to the sinks; the client submits anew.
func (s *Service) dropFailed(id string, sess *session) {
	s.mu.Lock()
	cur, ok := s.sessions[id]
	if ok && cur == sess {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok && cur == sess {
		observability.ActiveRequests.Dec()
		s.logger.Info("request_dropped", "request_id", id, "reason", "dispatch_failed")
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.events:
					s.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) deliver(ev models.StatusEvent) {
	for _, ns := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := ns.sink.Publish(ctx, ev)
		cancel()
		if err != nil {
			observability.SinkErrors.WithLabelValues(ns.name).Inc()
			s.logger.Warn("sink_publish_failed", "sink", ns.name, "request_id", ev.RequestID, "seq", ev.Seq, "error", err)
		}
	}
}

type journalSink struct{ store storage.EventStore }

func (j journalSink) Publish(ctx context.Context, ev models.StatusEvent) error {
	return j.store.Append(ctx, ev)
}
