package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/emergency-dispatch/internal/booking"
	"github.com/example/emergency-dispatch/internal/dispatch"
	"github.com/example/emergency-dispatch/internal/geo"
	"github.com/example/emergency-dispatch/internal/models"
	"github.com/example/emergency-dispatch/internal/observability"
)

// LocationPublisher forwards fleet positions to the location stream.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, v models.Vehicle) error
}

type Deps struct {
	Booking   *booking.Service
	Fleet     geo.Fleet
	Locations LocationPublisher // optional
	WSReg     *dispatch.WSRegistry
	Logger    *slog.Logger
}

type Server struct {
	booking   *booking.Service
	fleet     geo.Fleet
	locations LocationPublisher
	wsReg     *dispatch.WSRegistry
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.WSReg == nil {
		d.WSReg = dispatch.NewWSRegistry(d.Logger)
	}
	s := &Server{
		booking:   d.Booking,
		fleet:     d.Fleet,
		locations: d.Locations,
		wsReg:     d.WSReg,
		logger:    d.Logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/emergency/requests", s.handleSubmit).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/v1/emergency/requests/{id}", s.handleGet).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/v1/emergency/requests/{id}", s.handleCancel).Methods(http.MethodDelete)
	s.mux.HandleFunc("/api/v1/emergency/requests/{id}/events", s.handleEvents).Methods(http.MethodGet)
	s.mux.HandleFunc("/ws/requests/{id}", s.handleWS)
	s.mux.HandleFunc("/internal/fleet/locations", s.handleVehicleLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type submitRequest struct {
	PatientName string       `json:"patient_name"`
	Contact     string       `json:"contact"`
	Pickup      models.Coord `json:"pickup"`
	Kind        string       `json:"kind"`
}

// requestView is the snapshot as rendered for the emergency screen.
type requestView struct {
	RequestID  string               `json:"request_id"`
	State      models.Status        `json:"state"`
	Label      string               `json:"label"`
	Dispatch   *models.DispatchInfo `json:"dispatch"`
	ETAMinutes *int                 `json:"eta_minutes"`
	Error      string               `json:"error,omitempty"`
}

func viewOf(id string, snap models.Snapshot) requestView {
	return requestView{
		RequestID:  id,
		State:      snap.State,
		Label:      snap.State.Label(),
		Dispatch:   snap.Dispatch,
		ETAMinutes: snap.ETAMinutes,
		Error:      snap.Err,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in submitRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, snap, err := s.booking.Submit(r.Context(), models.EmergencyRequest{
		PatientName: in.PatientName,
		Contact:     in.Contact,
		Pickup:      in.Pickup,
		Kind:        in.Kind,
	})
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(req.ID, snap))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.booking.Snapshot(id)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, snap))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.booking.Cancel(id)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, snap))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	evs, err := s.booking.Events(r.Context(), id)
	if err != nil {
		s.logger.Error("events_list_failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if evs == nil {
		evs = []models.StatusEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "events": evs})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.booking.Snapshot(id)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("ws_upgrade_failed", "request_id", id, "error", err)
		return
	}
	sess := s.wsReg.Add(id, conn)
	if err := sess.Send(models.StatusEvent{RequestID: id, Snapshot: snap, At: time.Now()}); err != nil {
		s.wsReg.Remove(id, sess)
		return
	}
	// viewers only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.wsReg.Remove(id, sess)
			return
		}
	}
}

func (s *Server) handleVehicleLocation(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v.ID == "" {
		writeError(w, http.StatusBadRequest, "vehicle id required")
		return
	}
	if s.locations != nil {
		if err := s.locations.PublishLocation(r.Context(), v); err != nil {
			s.logger.Warn("location_publish_failed", "vehicle_id", v.ID, "error", err)
		}
	}
	if err := s.fleet.Upsert(r.Context(), v); err != nil {
		s.logger.Error("fleet_upsert_failed", "vehicle_id", v.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "fleet index unavailable")
		return
	}
	observability.VehicleUpdates.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("booking_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
