package resolver

import (
	"strings"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// Match is the facility closest to an origin.
type Match struct {
	Facility   domain.Facility `json:"facility"`
	Distance   float64         `json:"distance"`    // planar, in degrees; used for ranking
	DistanceKm float64         `json:"distance_km"` // great-circle, for display
}

// Nearest returns the facility closest to origin by planar distance,
// optionally restricted to category. Ties go to the earlier row. It fails with
// ErrNoFacilityAvailable when nothing matches the filter.
func Nearest(facilities []domain.Facility, origin domain.Coordinate, category *domain.FacilityCategory) (Match, error) {
	best := -1
	bestDist := 0.0
	for i, f := range facilities {
		if category != nil && f.Category != *category {
			continue
		}
		d := domain.PlanarDistance(origin, f.Location)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Match{}, domain.ErrNoFacilityAvailable
	}
	f := facilities[best]
	return Match{
		Facility:   f,
		Distance:   bestDist,
		DistanceKm: domain.HaversineMeters(origin, f.Location) / 1000,
	}, nil
}

var categoryKeywords = []struct {
	words    []string
	category domain.FacilityCategory
}{
	{[]string{"hospital", "medical", "doctor", "injur", "emergency room", "ambulance"}, domain.CategoryHospital},
	{[]string{"clinic", "health center", "pharmacy"}, domain.CategoryClinic},
	{[]string{"relief", "supplies", "food", "water", "distribution"}, domain.CategoryReliefCenter},
	{[]string{"stadium", "arena"}, domain.CategoryStadium},
	{[]string{"shelter", "evacuat", "refuge", "safe place"}, domain.CategoryShelter},
}

// CategoryForQuery maps free text such as "nearest medical facility" to a
// facility category. ok is false when no keyword matches.
func CategoryForQuery(text string) (category domain.FacilityCategory, ok bool) {
	text = strings.ToLower(text)
	for _, k := range categoryKeywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.category, true
			}
		}
	}
	return "", false
}
