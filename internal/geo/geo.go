package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/emergency-dispatch/internal/models"
)

// Fleet is the vehicle index used by the matcher and the fleet handlers.
type Fleet interface {
	Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Vehicle, error)
	Upsert(ctx context.Context, v models.Vehicle) error
	SetAvailable(ctx context.Context, id string, available bool) error
}

// Index is an in-memory Fleet.
type Index struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
}

func NewIndex() *Index {
	return &Index{vehicles: make(map[string]models.Vehicle)}
}

// Upsert records a position report. A known vehicle keeps its availability;
// only SetAvailable reserves or releases it.
func (g *Index) Upsert(ctx context.Context, v models.Vehicle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.vehicles[v.ID]; ok {
		v.Available = prev.Available
	}
	v.Updated = time.Now()
	g.vehicles[v.ID] = v
	return nil
}

func (g *Index) SetAvailable(ctx context.Context, id string, available bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vehicles[id]
	if !ok {
		return ErrUnknownVehicle
	}
	v.Available = available
	v.Updated = time.Now()
	g.vehicles[id] = v
	return nil
}

// Nearby returns available vehicles, nearest first. Naive scan; the Redis
// index is the one to use for a real fleet.
func (g *Index) Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Vehicle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		v    models.Vehicle
		dist float64
	}
	arr := make([]pair, 0, len(g.vehicles))
	for _, v := range g.vehicles {
		if !v.Available {
			continue
		}
		arr = append(arr, pair{v, Haversine(lat, lon, v.Loc.Lat, v.Loc.Lon)})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	out := make([]models.Vehicle, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.v)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
