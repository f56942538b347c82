package synthesis

import (
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/state"
)

// DecayPolicy describes one "time passing" step applied to facilities.
type DecayPolicy struct {
	Factor       float64 // multiplier for water and food
	OccupancyMin int     // inclusive lower bound of the occupancy delta
	OccupancyMax int     // inclusive upper bound of the occupancy delta
}

// DefaultDecay multiplies supplies by 0.8 and adds 50..200 occupants.
var DefaultDecay = DecayPolicy{Factor: 0.8, OccupancyMin: 50, OccupancyMax: 200}

// Func returns the state.DecayFunc for this policy. rnd must not be shared
// with other goroutines; the store calls the returned func under its lock.
func (p DecayPolicy) Func(rnd *rand.Rand) state.DecayFunc {
	return func(now time.Time, f *domain.Facility, r *domain.ResourceStatus) {
		if r != nil {
			r.WaterSupply *= p.Factor
			r.FoodSupply *= p.Factor
			r.LastUpdated = now
		}
		f.CurrentOccupancy += p.delta(rnd)
		f.ClampOccupancy()
	}
}

func (p DecayPolicy) delta(rnd *rand.Rand) int {
	if p.OccupancyMax <= p.OccupancyMin {
		return p.OccupancyMin
	}
	return p.OccupancyMin + rnd.IntN(p.OccupancyMax-p.OccupancyMin+1)
}
