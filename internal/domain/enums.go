package domain

import (
	"fmt"
	"strings"
)

// AlertType is the closed set of hazards an alert can describe.
type AlertType string

const (
	AlertSandstorm    AlertType = "Sandstorm"
	AlertHeatWave     AlertType = "Heat Wave"
	AlertFlashFlood   AlertType = "Flash Flood"
	AlertDustStorm    AlertType = "Dust Storm"
	AlertStrongWinds  AlertType = "Strong Winds"
	AlertThunderstorm AlertType = "Thunderstorm"
	AlertEarthquake   AlertType = "Earthquake"
	AlertAftershock   AlertType = "Aftershock"

	// AlertNone marks the placeholder row. It is never accepted from a model.
	AlertNone AlertType = "No Active Disasters"
)

// AlertTypes lists the values a model may emit, in prompt order.
var AlertTypes = []AlertType{
	AlertSandstorm, AlertHeatWave, AlertFlashFlood, AlertDustStorm,
	AlertStrongWinds, AlertThunderstorm, AlertEarthquake, AlertAftershock,
}

// Severity grades an alert.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// FacilityCategory classifies a facility for nearest-facility filtering.
type FacilityCategory string

const (
	CategoryShelter      FacilityCategory = "Shelter"
	CategoryHospital     FacilityCategory = "Hospital"
	CategoryStadium      FacilityCategory = "Stadium"
	CategoryClinic       FacilityCategory = "Clinic"
	CategoryReliefCenter FacilityCategory = "Relief Center"
)

var FacilityCategories = []FacilityCategory{
	CategoryShelter, CategoryHospital, CategoryStadium, CategoryClinic, CategoryReliefCenter,
}

// SourceType identifies who posted a social update.
type SourceType string

const (
	SourceOfficial   SourceType = "Official"
	SourceHealthcare SourceType = "Healthcare"
	SourceEmergency  SourceType = "Emergency"
	SourceMedia      SourceType = "Media"
	SourceCitizen    SourceType = "Citizen"
)

var SourceTypes = []SourceType{
	SourceOfficial, SourceHealthcare, SourceEmergency, SourceMedia, SourceCitizen,
}

// ParseAlertType matches s against AlertTypes.
func ParseAlertType(s string) (AlertType, error) { return parseEnum(s, AlertTypes, "alert type") }

// ParseSeverity matches s against Severities.
func ParseSeverity(s string) (Severity, error) { return parseEnum(s, Severities, "severity") }

// ParseFacilityCategory matches s against FacilityCategories.
func ParseFacilityCategory(s string) (FacilityCategory, error) {
	return parseEnum(s, FacilityCategories, "facility category")
}

// ParseSourceType matches s against SourceTypes.
func ParseSourceType(s string) (SourceType, error) { return parseEnum(s, SourceTypes, "source type") }

func (t *AlertType) UnmarshalText(b []byte) error {
	if AlertType(b) == AlertNone {
		*t = AlertNone
		return nil
	}
	v, err := ParseAlertType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (c *FacilityCategory) UnmarshalText(b []byte) error {
	v, err := ParseFacilityCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (s *SourceType) UnmarshalText(b []byte) error {
	v, err := ParseSourceType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func parseEnum[T ~string](s string, allowed []T, kind string) (T, error) {
	key := enumKey(s)
	for _, v := range allowed {
		if enumKey(string(v)) == key {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}

// enumKey folds case and separators: "heat_wave", "Heat-Wave" and "HEAT WAVE"
// all compare equal to "Heat Wave".
func enumKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
