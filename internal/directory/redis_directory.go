package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/instant-dispatch/internal/models"
)

// RedisDirectory implements Directory using Redis GEO commands. Transporter
// positions live in a single GEO key; per-transporter metadata (vehicle,
// phone, availability) lives in a hash next to it.
type RedisDirectory struct {
	client *redis.Client
	key    string
}

func NewRedisDirectory(addr, password, key string) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, key: key}
}

func (r *RedisDirectory) Upsert(ctx context.Context, t models.Transporter) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: t.Loc.Lon,
		Latitude:  t.Loc.Lat,
		Name:      t.ID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(t.ID), map[string]interface{}{
		"name":        t.Name,
		"phone":       t.Phone,
		"vehicle":     t.Vehicle.Type,
		"plate":       t.Vehicle.Plate,
		"capacity_kg": strconv.FormatFloat(t.Vehicle.CapacityKg, 'f', -1, 64),
		"available":   strconv.FormatBool(t.Available),
		"updated":     time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisDirectory) Nearby(ctx context.Context, center models.Coordinate, radiusKm float64, limit int) ([]models.Transporter, error) {
	res, err := r.client.GeoRadius(ctx, r.key, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Transporter, 0, len(res))
	for _, g := range res {
		t := models.Transporter{ID: g.Name}
		t.Loc.Lat = g.Latitude
		t.Loc.Lon = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			t.Name = m["name"]
			t.Phone = m["phone"]
			t.Vehicle.Type = m["vehicle"]
			t.Vehicle.Plate = m["plate"]
			if v, ok := m["capacity_kg"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					t.Vehicle.CapacityKg = f
				}
			}
			t.Available = m["available"] == "true"
		}
		if !t.Available {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisDirectory) Close() error { return r.client.Close() }

func metaKey(id string) string { return "transporter:meta:" + id }
