package domain

import "time"

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within latitude/longitude ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Alert is one active hazard warning.
type Alert struct {
	Type        AlertType `json:"type"`
	Severity    Severity  `json:"severity"`
	Location    string    `json:"location"`
	Time        time.Time `json:"time"`
	Description string    `json:"description"`

	// Geo is filled by forward geocoding of Location when a geocoder is configured.
	Geo *Coordinate `json:"geo,omitempty"`
}

// Facility is a shelter, hospital or other site that takes in people.
type Facility struct {
	Name             string           `json:"name"`
	Category         FacilityCategory `json:"category"`
	Capacity         int              `json:"capacity"`
	CurrentOccupancy int              `json:"current_occupancy"`
	Location         Coordinate       `json:"location"`
	Contact          string           `json:"contact"`
}

// ClampOccupancy enforces 0 ≤ CurrentOccupancy ≤ Capacity.
func (f *Facility) ClampOccupancy() {
	if f.CurrentOccupancy < 0 {
		f.CurrentOccupancy = 0
	}
	if f.CurrentOccupancy > f.Capacity {
		f.CurrentOccupancy = f.Capacity
	}
}

// ResourceStatus carries the supply levels of the facility named by Facility.
type ResourceStatus struct {
	Facility        string    `json:"facility"`
	WaterSupply     float64   `json:"water_supply"`
	FoodSupply      float64   `json:"food_supply"`
	MedicalSupplies float64   `json:"medical_supplies"` // percent
	Beds            int       `json:"beds"`
	LastUpdated     time.Time `json:"last_updated"`
}

// SocialUpdate is one synthesized social-media post.
type SocialUpdate struct {
	Timestamp  time.Time  `json:"timestamp"`
	SourceType SourceType `json:"source_type"`
	Username   string     `json:"username"`
	Message    string     `json:"message"`
	Location   string     `json:"location"`
	Verified   bool       `json:"verified"`
	TrustScore float64    `json:"trust_score"`
	Engagement int        `json:"engagement"`
}

// Dataset names one of the three synthesized tables.
type Dataset string

const (
	DatasetAlerts    Dataset = "alerts"
	DatasetResources Dataset = "resources"
	DatasetSocial    Dataset = "social"
)

// Datasets lists every dataset in commit order.
var Datasets = []Dataset{DatasetAlerts, DatasetResources, DatasetSocial}

// TableSnapshot is a copy of one table after a change, published downstream.
type TableSnapshot struct {
	Dataset    Dataset          `json:"dataset"`
	Version    uint64           `json:"version"`
	Reason     string           `json:"reason"` // "synthesis", "decay", "reset"
	Alerts     []Alert          `json:"alerts,omitempty"`
	Facilities []Facility       `json:"facilities,omitempty"`
	Resources  []ResourceStatus `json:"resources,omitempty"`
	Social     []SocialUpdate   `json:"social,omitempty"`
	TakenAt    time.Time        `json:"taken_at"`
}
