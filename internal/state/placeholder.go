package state

import (
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// PlaceholderAlert is the single row shown before any scenario is synthesized.
func PlaceholderAlert(now time.Time) domain.Alert {
	return domain.Alert{
		Type:        domain.AlertNone,
		Severity:    domain.SeverityLow,
		Location:    "N/A",
		Time:        now,
		Description: "No active disasters or emergencies at this time.",
	}
}

// PlaceholderFacility is the default facility and its resource row.
func PlaceholderFacility(now time.Time) (domain.Facility, domain.ResourceStatus) {
	const name = "Hamad General Hospital"
	f := domain.Facility{
		Name:             name,
		Category:         domain.CategoryHospital,
		Capacity:         500,
		CurrentOccupancy: 200,
		Location:         domain.Coordinate{Lat: 25.2921, Lon: 51.5028},
		Contact:          "+974 4439 5777",
	}
	r := domain.ResourceStatus{
		Facility:        name,
		WaterSupply:     5000,
		FoodSupply:      2500,
		MedicalSupplies: 80,
		Beds:            500,
		LastUpdated:     now,
	}
	return f, r
}

// PlaceholderUpdate is the default social-feed row.
func PlaceholderUpdate(now time.Time) domain.SocialUpdate {
	return domain.SocialUpdate{
		Timestamp:  now,
		SourceType: domain.SourceOfficial,
		Username:   "@QatarAlert",
		Message:    "Systems operational. Monitoring for emergencies.",
		Location:   "Doha",
		Verified:   true,
		TrustScore: 1.0,
		Engagement: 100,
	}
}
