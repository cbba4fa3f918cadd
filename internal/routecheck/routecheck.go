package routecheck

import (
	"fmt"
	"strings"

	"github.com/example/instant-dispatch/internal/geomath"
	"github.com/example/instant-dispatch/internal/models"
)

// MaxPickupGapKm is the policy ceiling on how far apart two pickups may be
// while still counting as the same route. Fixed constant, not derived.
const MaxPickupGapKm = 50.0

// Validate decides whether a transporter's current trip conflicts with a
// newly proposed route. Pure decision function, no side effects.
//
// Rules, in order:
//  1. No active trip: anything goes.
//  2. Different destination names (trimmed, case-insensitive): always a
//     conflict, regardless of distance. Consolidating unrelated
//     destinations is not this validator's job.
//  3. Same destination, both pickups located: compatible iff the pickups
//     are within MaxPickupGapKm of each other.
//  4. Same destination, coordinates missing: compatible. Deliberately
//     permissive; we prefer not to block a transporter on absent data.
func Validate(current *models.ActiveTrip, candidate models.RouteInfo) models.ConflictDecision {
	if current == nil {
		return models.ConflictDecision{
			Conflict: models.ConflictNone,
			Message:  "transporter has no active trip",
		}
	}

	if normalize(current.Route.To.Name) != normalize(candidate.To.Name) {
		return models.ConflictDecision{
			Conflict: models.ConflictDifferentDestination,
			Message: fmt.Sprintf("active trip ends at %q but the new job ends at %q",
				strings.TrimSpace(current.Route.To.Name), strings.TrimSpace(candidate.To.Name)),
			SuggestedAction: "offer the job to a transporter heading the same way, or wait for this trip to finish",
		}
	}

	a, b := current.Route.From.Coord, candidate.From.Coord
	if a.Zero() || b.Zero() {
		// permissive fallback: without coordinates we cannot measure the
		// gap, and name-matched destinations are assumed close enough
		return models.ConflictDecision{
			Conflict: models.ConflictNone,
			Message:  "destinations match; pickup coordinates unavailable, treated as compatible",
		}
	}

	gap := geomath.DistanceKm(a, b)
	if gap <= MaxPickupGapKm {
		return models.ConflictDecision{
			Conflict: models.ConflictNone,
			Message:  fmt.Sprintf("destinations match and pickups are %.1f km apart", gap),
		}
	}
	return models.ConflictDecision{
		Conflict: models.ConflictRouteMismatch,
		Message: fmt.Sprintf("destinations match but pickups are %.1f km apart (limit %.0f km)",
			gap, MaxPickupGapKm),
		SuggestedAction: "decline the job or renegotiate the pickup point",
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
