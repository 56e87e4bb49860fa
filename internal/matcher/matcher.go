package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/emergency-dispatch/internal/models"
	"github.com/example/emergency-dispatch/internal/observability"
)

var ErrNoVehicles = errors.New("no ambulances available")

type Fleet interface {
	Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Vehicle, error)
	SetAvailable(ctx context.Context, id string, available bool) error
}

type Estimator interface {
	EstimateSeconds(from, to models.Coord) float64
}

// Service assigns the best nearby ambulance to a request. It satisfies the
// tracker's Provider and Releaser.
type Service struct {
	Fleet Fleet
	ETA   Estimator
	TopN  int

	// serializes pick+reserve so two requests can't take the same vehicle
	mu sync.Mutex
}

func (s *Service) Assign(ctx context.Context, req models.EmergencyRequest) (models.Assignment, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cands, err := s.Fleet.Nearby(ctx, req.Pickup.Lat, req.Pickup.Lon, topN)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("fleet lookup: %w", err)
	}
	if len(cands) == 0 {
		return models.Assignment{}, ErrNoVehicles
	}
	type scored struct {
		v      models.Vehicle
		etaSec float64
		cost   float64
	}
	scoredList := make([]scored, 0, len(cands))
	for _, v := range cands {
		etaSec := s.ETA.EstimateSeconds(v.Loc, req.Pickup)
		cost := etaSec + 30.0*(5.0-v.Rating) // cost = w1*eta + w2*(5 - rating)
		scoredList = append(scoredList, scored{v, etaSec, cost})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].cost < scoredList[j].cost })

	best := scoredList[0].v
	if err := s.Fleet.SetAvailable(ctx, best.ID, false); err != nil {
		return models.Assignment{}, fmt.Errorf("reserve %s: %w", best.ID, err)
	}
	observability.MatchesTotal.Inc()
	loc := best.Loc
	return models.Assignment{
		Info: models.DispatchInfo{
			VehicleID:       best.ID,
			OperatorName:    best.OperatorName,
			OperatorContact: best.OperatorContact,
			OperatorRating:  best.Rating,
		},
		VehicleLoc: &loc,
	}, nil
}

// Release makes the vehicle available again after a cancel.
func (s *Service) Release(ctx context.Context, info models.DispatchInfo) error {
	return s.Fleet.SetAvailable(ctx, info.VehicleID, true)
}
