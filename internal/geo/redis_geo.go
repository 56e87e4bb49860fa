package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/emergency-dispatch/internal/models"
)

// RedisGeo implements Fleet using Redis GEO commands. Operator details and
// availability live in a hash per vehicle.
type RedisGeo struct {
	client  *redis.Client
	key     string
	radiusM float64
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key, radiusM: 20000}
}

func (r *RedisGeo) Upsert(ctx context.Context, v models.Vehicle) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: v.Loc.Lon, Latitude: v.Loc.Lat, Name: v.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", v.ID, err)
	}
	if err := r.client.HSet(ctx, MetaKey(v.ID), MetaFields(v)).Err(); err != nil {
		return err
	}
	// availability is only seeded here; reservations own it afterwards
	return r.client.HSetNX(ctx, MetaKey(v.ID), "available", strconv.FormatBool(v.Available)).Err()
}

func (r *RedisGeo) SetAvailable(ctx context.Context, id string, available bool) error {
	n, err := r.client.Exists(ctx, MetaKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownVehicle
	}
	return r.client.HSet(ctx, MetaKey(id), "available", strconv.FormatBool(available), "updated", time.Now().Format(time.RFC3339)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Vehicle, error) {
	// over-fetch since unavailable vehicles are filtered after the query
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{Radius: r.radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit * 3, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			return nil, err
		}
		v := vehicleFromMeta(g.Name, m)
		if !v.Available {
			continue
		}
		v.Loc = models.Coord{Lat: g.Latitude, Lon: g.Longitude}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func MetaKey(id string) string { return "vehicle:meta:" + id }

// MetaFields is the hash layout shared with the location consumer. It leaves
// out "available" so a position report never undoes a reservation.
func MetaFields(v models.Vehicle) map[string]any {
	return map[string]any{
		"operator_name":    v.OperatorName,
		"operator_contact": v.OperatorContact,
		"rating":           strconv.FormatFloat(v.Rating, 'f', -1, 64),
		"updated":          time.Now().Format(time.RFC3339),
	}
}

func vehicleFromMeta(id string, m map[string]string) models.Vehicle {
	v := models.Vehicle{ID: id, OperatorName: m["operator_name"], OperatorContact: m["operator_contact"]}
	if f, err := strconv.ParseFloat(m["rating"], 64); err == nil {
		v.Rating = f
	}
	v.Available = m["available"] == "true"
	if ts, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
		v.Updated = ts
	}
	return v
}
