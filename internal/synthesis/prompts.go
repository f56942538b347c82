package synthesis

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// SystemRole returns the system message describing the schema, batch size and
// domain constraints for a dataset. The field names match what
// domain.Validate reads.
func SystemRole(d domain.Dataset, batchSize int) string {
	switch d {
	case domain.DatasetAlerts:
		return fmt.Sprintf(`You are a disaster data generator for Qatar's emergency management system.
Generate exactly %[1]d emergency alerts as a JSON array. Each alert must have these exact fields:
{
  "type": "one of [%[2]s]",
  "severity": "one of [%[3]s]",
  "location": "specific Qatar location like Doha, Al Wakrah, Al Khor",
  "time": "current time in format YYYY-MM-DD HH:MM",
  "description": "detailed 20-word description of the specific alert"
}
Rules:
- Generate exactly %[1]d alerts
- Mix different types and severities
- Use realistic Qatar locations
- All alerts should be related to the main scenario
Respond with the JSON array only.`, batchSize, joinEnum(domain.AlertTypes), joinEnum(domain.Severities))

	case domain.DatasetResources:
		return fmt.Sprintf(`You are a facility resource manager for Qatar's emergency management system.
Generate exactly %[1]d facility status reports as a JSON array. Each report must have these exact fields:
{
  "facility": "unique name of a hospital, stadium or shelter in Qatar",
  "category": "one of [%[2]s]",
  "capacity": "total capacity, integer 100-1000",
  "current_occupancy": "current occupants, integer, never above capacity",
  "latitude": "decimal latitude inside Qatar",
  "longitude": "decimal longitude inside Qatar",
  "contact": "phone number",
  "water_supply": "water supply units (1000-10000)",
  "food_supply": "food supply units (500-5000)",
  "medical_supplies": "medical supplies percentage (0-100)",
  "beds": "available beds, integer",
  "last_updated": "current time in format YYYY-MM-DD HH:MM"
}
Rules:
- Generate exactly %[1]d facilities with distinct names
- Include a mix of categories
- Numbers must be within the specified ranges
- Resource levels should reflect the scenario impact
Respond with the JSON array only.`, batchSize, joinEnum(domain.FacilityCategories))

	case domain.DatasetSocial:
		return fmt.Sprintf(`You are a social media feed generator for Qatar's emergency management system.
Generate exactly %[1]d social media updates as a JSON array. Each update must have these exact fields:
{
  "source_type": "one of [%[2]s]",
  "username": "handle starting with @",
  "message": "the social media update content",
  "location": "specific Qatar location",
  "verified": "boolean true/false",
  "trust_score": "number between 0.0 and 1.0",
  "timestamp": "current time in format YYYY-MM-DD HH:MM",
  "engagement": "integer between 100 and 5000"
}
Rules:
- Generate exactly %[1]d updates
- Mix different source types
- Official, Healthcare and Emergency sources should have higher trust scores than Media and Citizen
- Include both verified and unverified accounts
- All updates should relate to the scenario
Respond with the JSON array only.`, batchSize, joinEnum(domain.SourceTypes))
	}
	return ""
}

// UserPrompt wraps the scenario text for a dataset.
func UserPrompt(d domain.Dataset, batchSize int, scenario string) string {
	noun := map[domain.Dataset]string{
		domain.DatasetAlerts:    "alerts",
		domain.DatasetResources: "facility reports",
		domain.DatasetSocial:    "social media updates",
	}[d]
	return fmt.Sprintf("Generate %d structured %s based on this scenario: %s", batchSize, noun, scenario)
}

func joinEnum[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
