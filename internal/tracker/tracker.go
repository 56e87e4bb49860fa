package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/emergency-dispatch/internal/clock"
	"github.com/example/emergency-dispatch/internal/dispatch"
	"github.com/example/emergency-dispatch/internal/models"
)

// Provider assigns a vehicle and operator to a request when it is confirmed.
type Provider interface {
	Assign(ctx context.Context, req models.EmergencyRequest) (models.Assignment, error)
}

// Releaser is implemented by providers that hold a vehicle for the request
// and must get it back when the request is cancelled.
type Releaser interface {
	Release(ctx context.Context, info models.DispatchInfo) error
}

// ETAEstimator seeds the countdown from the assigned vehicle's position.
type ETAEstimator interface {
	EstimateMinutes(from, to models.Coord) int
}

type Timings struct {
	ConfirmDelay time.Duration
	EnRouteDelay time.Duration
	ETAInterval  time.Duration
	InitialETA   int // minutes; <= 0 takes the default, a dispatch always starts counting down
}

func DefaultTimings() Timings {
	return Timings{
		ConfirmDelay: 3 * time.Second,
		EnRouteDelay: 2 * time.Second,
		ETAInterval:  time.Minute,
		InitialETA:   8,
	}
}

type Config struct {
	Request  models.EmergencyRequest
	Provider Provider     // defaults to dispatch.MockProvider
	ETA      ETAEstimator // optional
	Clock    clock.Clock  // defaults to clock.Real
	Timings  Timings      // zero fields take DefaultTimings values
	OnChange func(models.Snapshot)
	Logger   *slog.Logger
}

// Tracker walks a single request through idle -> requesting -> confirmed ->
// en_route on timers and counts the ETA down once en route.
//
// Every scheduled callback carries the generation it was armed in; Cancel
// bumps the generation so a callback that races with it is a no-op.
type Tracker struct {
	cfg Config

	mu         sync.Mutex
	gen        uint64
	state      models.Status
	dispatch   *models.DispatchInfo
	vehicleLoc *models.Coord
	eta        *int
	lastErr    string
	timer      clock.Timer
	cancelCtx  context.CancelFunc
	version    uint64

	// notifications leave the lock; lastSent drops any that arrive late
	notifyMu sync.Mutex
	lastSent uint64
}

func New(cfg Config) *Tracker {
	if cfg.Provider == nil {
		cfg.Provider = dispatch.MockProvider{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	def := DefaultTimings()
	if cfg.Timings.ConfirmDelay <= 0 {
		cfg.Timings.ConfirmDelay = def.ConfirmDelay
	}
	if cfg.Timings.EnRouteDelay <= 0 {
		cfg.Timings.EnRouteDelay = def.EnRouteDelay
	}
	if cfg.Timings.ETAInterval <= 0 {
		cfg.Timings.ETAInterval = def.ETAInterval
	}
	if cfg.Timings.InitialETA <= 0 {
		cfg.Timings.InitialETA = def.InitialETA
	}
	return &Tracker{cfg: cfg, state: models.StatusIdle}
}

func (t *Tracker) Request() models.EmergencyRequest { return t.cfg.Request }

// Submit starts the request. It only has an effect from idle and reports
// whether it did.
func (t *Tracker) Submit() bool {
	t.mu.Lock()
	if !t.state.CanAdvanceTo(models.StatusRequesting) {
		t.mu.Unlock()
		return false
	}
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelCtx = cancel
	t.lastErr = ""
	t.state = models.StatusRequesting
	t.timer = t.cfg.Clock.AfterFunc(t.cfg.Timings.ConfirmDelay, func() { t.confirm(ctx, gen) })
	snap, v := t.changedLocked()
	t.mu.Unlock()

	t.notify(snap, v)
	return true
}

// Cancel returns the tracker to idle from any state and stops all pending
// timers. Calling it again is a no-op.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	if t.state == models.StatusIdle {
		t.lastErr = ""
		t.mu.Unlock()
		return
	}
	held := t.dispatch
	t.resetLocked()
	snap, v := t.changedLocked()
	t.mu.Unlock()

	if held != nil {
		t.release(*held)
	}
	t.notify(snap, v)
}

func (t *Tracker) Snapshot() models.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) confirm(ctx context.Context, gen uint64) {
	if !t.canAdvance(gen, models.StatusConfirmed) {
		return
	}
	a, err := t.cfg.Provider.Assign(ctx, t.cfg.Request)

	t.mu.Lock()
	if !t.canAdvanceLocked(gen, models.StatusConfirmed) {
		t.mu.Unlock()
		if err == nil {
			t.release(a.Info)
		}
		return
	}
	if err != nil {
		t.resetLocked()
		t.lastErr = err.Error()
		snap, v := t.changedLocked()
		t.mu.Unlock()
		t.cfg.Logger.Warn("dispatch_failed", "request_id", t.cfg.Request.ID, "error", err)
		t.notify(snap, v)
		return
	}
	info := a.Info
	t.dispatch = &info
	t.vehicleLoc = a.VehicleLoc
	t.state = models.StatusConfirmed
	t.timer = t.cfg.Clock.AfterFunc(t.cfg.Timings.EnRouteDelay, func() { t.enRoute(gen) })
	snap, v := t.changedLocked()
	t.mu.Unlock()

	t.notify(snap, v)
}

func (t *Tracker) enRoute(gen uint64) {
	t.mu.Lock()
	if !t.canAdvanceLocked(gen, models.StatusEnRoute) {
		t.mu.Unlock()
		return
	}
	loc := t.vehicleLoc
	t.mu.Unlock()

	minutes := t.cfg.Timings.InitialETA
	if t.cfg.ETA != nil && loc != nil {
		minutes = t.cfg.ETA.EstimateMinutes(*loc, t.cfg.Request.Pickup)
	}
	if minutes < 0 {
		minutes = 0
	}

	t.mu.Lock()
	if !t.canAdvanceLocked(gen, models.StatusEnRoute) {
		t.mu.Unlock()
		return
	}
	t.state = models.StatusEnRoute
	t.eta = &minutes
	t.armTickLocked(gen)
	snap, v := t.changedLocked()
	t.mu.Unlock()

	t.notify(snap, v)
}

func (t *Tracker) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != models.StatusEnRoute || t.eta == nil {
		t.mu.Unlock()
		return
	}
	next := *t.eta - 1
	if next < 0 {
		next = 0
	}
	t.eta = &next
	t.armTickLocked(gen)
	snap, v := t.changedLocked()
	t.mu.Unlock()

	t.notify(snap, v)
}

// armTickLocked schedules the next decrement; the countdown stops at 0.
func (t *Tracker) armTickLocked(gen uint64) {
	if t.eta == nil || *t.eta <= 0 {
		t.timer = nil
		return
	}
	t.timer = t.cfg.Clock.AfterFunc(t.cfg.Timings.ETAInterval, func() { t.tick(gen) })
}

// canAdvanceLocked reports whether a callback armed in gen may still move
// the tracker forward to next.
func (t *Tracker) canAdvanceLocked(gen uint64, next models.Status) bool {
	return gen == t.gen && t.state.CanAdvanceTo(next)
}

func (t *Tracker) canAdvance(gen uint64, next models.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canAdvanceLocked(gen, next)
}

func (t *Tracker) resetLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.cancelCtx != nil {
		t.cancelCtx()
		t.cancelCtx = nil
	}
	t.state = models.StatusIdle
	t.dispatch = nil
	t.vehicleLoc = nil
	t.eta = nil
}

func (t *Tracker) changedLocked() (models.Snapshot, uint64) {
	t.version++
	return t.snapshotLocked(), t.version
}

func (t *Tracker) snapshotLocked() models.Snapshot {
	s := models.Snapshot{State: t.state, Err: t.lastErr}
	if t.dispatch != nil {
		d := *t.dispatch
		s.Dispatch = &d
	}
	if t.eta != nil {
		e := *t.eta
		s.ETAMinutes = &e
	}
	return s
}

func (t *Tracker) release(info models.DispatchInfo) {
	r, ok := t.cfg.Provider.(Releaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Release(ctx, info); err != nil {
		t.cfg.Logger.Warn("vehicle_release_failed", "request_id", t.cfg.Request.ID, "vehicle_id", info.VehicleID, "error", err)
	}
}

func (t *Tracker) notify(s models.Snapshot, v uint64) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if v <= t.lastSent {
		return
	}
	t.lastSent = v
	t.cfg.Logger.Debug("status_changed", "request_id", t.cfg.Request.ID, "state", s.State.String())
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(s)
	}
}
