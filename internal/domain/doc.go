// Package domain models the crisis simulation datasets and the rules that
// turn untrusted language-model output into them.
//
// # Data Source
//
// Every dataset is synthesized by a generative model from a free-text scenario
// prompt ("A severe sandstorm is approaching Doha..."). The model is asked for
// a JSON array of a fixed batch size per dataset. Nothing it returns is trusted:
// each element is decoded and validated on its own, and only records that pass
// every check reach the shared state.
//
// # Datasets
//
//	Alerts:     type, severity, location, time, description
//	Resources:  one facility report per facility, split into a Facility and
//	            its ResourceStatus (keyed by facility name)
//	Social:     timestamp, source_type, username, message, location,
//	            verified, trust_score, engagement
//
// # Enumerations
//
// Alert type, severity, facility category and social source type are closed
// sets. Matching is case-insensitive and tolerant of "_"/"-" separators, but an
// unrecognized value rejects the whole record rather than being substituted:
//
//	AlertType:        Sandstorm | Heat Wave | Flash Flood | Dust Storm |
//	                  Strong Winds | Thunderstorm | Earthquake | Aftershock
//	Severity:         Low | Medium | High
//	FacilityCategory: Shelter | Hospital | Stadium | Clinic | Relief Center
//	SourceType:       Official | Healthcare | Emergency | Media | Citizen
//
// # Time format
//
// The prompts ask for "YYYY-MM-DD HH:MM". Models drift, so ISO 8601 variants
// with a "T" separator and RFC 3339 are accepted too. All times are stored in
// UTC at minute precision.
//
// # Ranges
//
//	capacity           > 0
//	current_occupancy  0 ≤ x ≤ capacity
//	latitude           -90 ≤ x ≤ 90
//	longitude          -180 ≤ x ≤ 180
//	water/food supply  ≥ 0
//	medical_supplies   0 ≤ x ≤ 100 (percent)
//	trust_score        0 ≤ x ≤ 1
//	engagement         ≥ 0
//
// # Distances
//
// Nearest-facility ranking uses planar Euclidean distance in degrees, which is
// adequate at city scale. Distances shown to people and the straight-line
// route fallback use the haversine formula in metres. See [PlanarDistance] and
// [HaversineMeters].
package domain
