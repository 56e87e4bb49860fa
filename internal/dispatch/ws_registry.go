package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/emergency-dispatch/internal/models"
)

const writeWait = 5 * time.Second

// WSSession is one view subscribed to a request's status.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WSRegistry holds viewer sessions keyed by request id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{}), logger: logger}
}

func (r *WSRegistry) Add(requestID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[requestID]
	if !ok {
		set = make(map[*WSSession]struct{})
		r.sessions[requestID] = set
	}
	set[s] = struct{}{}
	r.logger.Info("ws_registered", "request_id", requestID, "viewers", len(set))
	return s
}

// Remove drops and closes a session.
func (r *WSRegistry) Remove(requestID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[requestID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	_ = s.conn.Close()
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, requestID)
	}
	r.logger.Info("ws_removed", "request_id", requestID)
}

func (r *WSRegistry) Count(requestID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[requestID])
}

// Publish pushes the event to every viewer of its request. Viewers that
// fail the write are dropped.
func (r *WSRegistry) Publish(ctx context.Context, ev models.StatusEvent) error {
	r.mu.RLock()
	set := r.sessions[ev.RequestID]
	targets := make([]*WSSession, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			r.logger.Warn("ws_send_failed", "request_id", ev.RequestID, "error", err)
			r.Remove(ev.RequestID, s)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
