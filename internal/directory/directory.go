package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/instant-dispatch/internal/geomath"
	"github.com/example/instant-dispatch/internal/models"
)

// Directory is the external registry of available transporters, queried by
// geographic radius.
type Directory interface {
	Nearby(ctx context.Context, center models.Coordinate, radiusKm float64, limit int) ([]models.Transporter, error)
	Upsert(ctx context.Context, t models.Transporter) error
}

// MemoryIndex is an in-process Directory for tests and single-node runs.
type MemoryIndex struct {
	mu           sync.RWMutex
	transporters map[string]models.Transporter
	order        []string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{transporters: make(map[string]models.Transporter)}
}

func (m *MemoryIndex) Upsert(_ context.Context, t models.Transporter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Updated = time.Now()
	if _, seen := m.transporters[t.ID]; !seen {
		m.order = append(m.order, t.ID)
	}
	m.transporters[t.ID] = t
	return nil
}

// Naive linear scan; the real deployment uses the Redis GEO directory.
// Results are sorted ascending by distance; equal distances keep insertion
// order, matching what the GEO backend reports.
func (m *MemoryIndex) Nearby(_ context.Context, center models.Coordinate, radiusKm float64, limit int) ([]models.Transporter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		t    models.Transporter
		dist float64
	}
	arr := make([]scored, 0, len(m.order))
	for _, id := range m.order {
		t := m.transporters[id]
		if !t.Available {
			continue
		}
		d := geomath.DistanceKm(center, t.Loc)
		if d > radiusKm {
			continue
		}
		arr = append(arr, scored{t, d})
	}
	sort.SliceStable(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	out := make([]models.Transporter, 0, len(arr))
	for _, s := range arr {
		out = append(out, s.t)
	}
	return out, nil
}
