package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/example/instant-dispatch/internal/directory"
	"github.com/example/instant-dispatch/internal/geomath"
	"github.com/example/instant-dispatch/internal/models"
	"github.com/example/instant-dispatch/internal/observability"
)

var ErrBadQuery = errors.New("matcher: radius must be > 0 and pickup/delivery need coordinates")

type Service struct {
	Directory directory.Directory
	Logger    *slog.Logger
	Profile   geomath.SpeedProfile
	TopN      int
}

// FindCandidates ranks available transporters within maxDistanceKm of the
// pickup, ascending by distance. Ties keep the order the directory reported
// them in; there is deliberately no secondary tie-break.
//
// A directory outage yields an empty slice, not an error: no candidates is
// a valid business outcome.
func (s *Service) FindCandidates(ctx context.Context, pickup, delivery models.Location, cargo models.Cargo, maxDistanceKm float64) ([]models.TransporterCandidate, error) {
	if maxDistanceKm <= 0 || pickup.Coord.Zero() || delivery.Coord.Zero() {
		return nil, ErrBadQuery
	}
	limit := s.TopN
	if limit <= 0 {
		limit = 10
	}
	transporters, err := s.Directory.Nearby(ctx, pickup.Coord, maxDistanceKm, limit)
	if err != nil {
		s.Logger.Warn("transporter directory unreachable", "error", err)
		observability.CandidatesReturned.Observe(0)
		return []models.TransporterCandidate{}, nil
	}

	speed := geomath.SpeedFor(s.Profile)
	out := make([]models.TransporterCandidate, 0, len(transporters))
	for _, t := range transporters {
		// a vehicle that declares a capacity must be able to carry the load;
		// no declared capacity means no screen
		if t.Vehicle.CapacityKg > 0 && t.Vehicle.CapacityKg < cargo.WeightKg {
			continue
		}
		d := geomath.DistanceKm(t.Loc, pickup.Coord)
		out = append(out, models.TransporterCandidate{
			Transporter:             t,
			DistanceToPickupKm:      d,
			EstimatedArrivalMinutes: geomath.ETAMinutes(d, speed),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceToPickupKm < out[j].DistanceToPickupKm
	})
	observability.CandidatesReturned.Observe(float64(len(out)))
	return out, nil
}
