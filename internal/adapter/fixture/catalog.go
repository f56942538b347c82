package fixture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// Variant selects the quality of a built response.
type Variant string

const (
	VariantValid     Variant = "valid"
	VariantPartial   Variant = "partial"   // the last 30% of records fail validation
	VariantMalformed Variant = "malformed" // not a JSON array
)

// Variants lists every variant in generation order.
var Variants = []Variant{VariantValid, VariantPartial, VariantMalformed}

var locations = []string{"Doha", "Al Wakrah", "Al Khor", "Al Rayyan", "Lusail", "Mesaieed", "Dukhan", "Al Shamal"}

type site struct {
	name     string
	category domain.FacilityCategory
	capacity int
	lat, lon float64
}

var sites = []site{
	{"Lusail Sports Arena", domain.CategoryStadium, 800, 25.430560, 51.488970},
	{"Al Thumama Stadium", domain.CategoryStadium, 600, 25.230844, 51.532197},
	{"Education City Stadium", domain.CategoryStadium, 500, 25.311667, 51.424722},
	{"Al Bayt Stadium Complex", domain.CategoryShelter, 1000, 25.652222, 51.487778},
	{"Khalifa International Stadium", domain.CategoryShelter, 700, 25.263889, 51.448333},
	{"Hamad General Hospital", domain.CategoryHospital, 600, 25.292100, 51.502800},
	{"Al Wakrah Hospital", domain.CategoryHospital, 400, 25.176900, 51.598700},
	{"Al Khor Hospital", domain.CategoryHospital, 300, 25.683900, 51.505600},
	{"Rawdat Al Khail Health Center", domain.CategoryClinic, 150, 25.266700, 51.520000},
	{"QRCS Relief Center Al Rayyan", domain.CategoryReliefCenter, 450, 25.291900, 51.424400},
}

var handles = []struct {
	user     string
	source   domain.SourceType
	verified bool
	trust    float64
}{
	{"@QatarWeather", domain.SourceOfficial, true, 0.95},
	{"@QatarResident1", domain.SourceCitizen, false, 0.68},
	{"@QatarRedCrescent", domain.SourceEmergency, true, 0.98},
	{"@QatarMOI", domain.SourceOfficial, true, 0.97},
	{"@HamadMedical", domain.SourceHealthcare, true, 0.96},
	{"@DohaResident", domain.SourceCitizen, false, 0.65},
	{"@QatarMet", domain.SourceOfficial, true, 0.99},
	{"@CivilDefenceQA", domain.SourceEmergency, true, 0.97},
	{"@MunicipalityQA", domain.SourceOfficial, true, 0.94},
	{"@QatarNews", domain.SourceMedia, true, 0.93},
}

const timeLayout = "2006-01-02 15:04"

// AlertRecords builds n alert objects in wire form, cycling types and severities.
func AlertRecords(n int, now time.Time) []map[string]any {
	out := make([]map[string]any, n)
	for i := range n {
		typ := domain.AlertTypes[i%len(domain.AlertTypes)]
		loc := locations[i%len(locations)]
		out[i] = map[string]any{
			"type":        string(typ),
			"severity":    string(domain.Severities[i%len(domain.Severities)]),
			"location":    loc,
			"time":        now.Add(-time.Duration(i) * 30 * time.Minute).Format(timeLayout),
			"description": fmt.Sprintf("%s conditions reported around %s; residents should follow official guidance.", typ, loc),
		}
	}
	return out
}

// FacilityReports builds n combined facility/resource objects in wire form.
// Names stay unique past the catalog size.
func FacilityReports(n int, now time.Time) []map[string]any {
	out := make([]map[string]any, n)
	for i := range n {
		s := sites[i%len(sites)]
		name := s.name
		if i >= len(sites) {
			name = fmt.Sprintf("%s %d", s.name, i/len(sites)+1)
		}
		out[i] = map[string]any{
			"facility":          name,
			"category":          string(s.category),
			"capacity":          s.capacity,
			"current_occupancy": s.capacity * (20 + 7*(i%10)) / 100,
			"latitude":          s.lat,
			"longitude":         s.lon,
			"contact":           fmt.Sprintf("+974-4000-%d111", i%10),
			"water_supply":      1000 + 200*(i%10),
			"food_supply":       500 + 100*(i%10),
			"medical_supplies":  40 + 5*(i%10),
			"beds":              s.capacity / 2,
			"last_updated":      now.Format(timeLayout),
		}
	}
	return out
}

// SocialRecords builds n social-update objects in wire form.
func SocialRecords(n int, now time.Time) []map[string]any {
	out := make([]map[string]any, n)
	for i := range n {
		h := handles[i%len(handles)]
		loc := locations[i%len(locations)]
		out[i] = map[string]any{
			"timestamp":   now.Add(-time.Duration(i) * 15 * time.Minute).Format(timeLayout),
			"source_type": string(h.source),
			"username":    h.user,
			"message":     fmt.Sprintf("Update from %s: conditions are changing, stay tuned for guidance.", loc),
			"location":    loc,
			"verified":    h.verified,
			"trust_score": h.trust,
			"engagement":  100 + 173*i%4900,
		}
	}
	return out
}

// Records builds n wire objects for a dataset.
func Records(d domain.Dataset, n int, now time.Time) []map[string]any {
	switch d {
	case domain.DatasetAlerts:
		return AlertRecords(n, now)
	case domain.DatasetResources:
		return FacilityReports(n, now)
	case domain.DatasetSocial:
		return SocialRecords(n, now)
	}
	return nil
}

// Response renders a model-style response for a dataset and variant.
func Response(d domain.Dataset, v Variant, n int, now time.Time) (string, error) {
	if v == VariantMalformed {
		return fmt.Sprintf("I'm sorry, I could not produce %d %s records for this scenario.", n, d), nil
	}

	recs := Records(d, n, now)
	if v == VariantPartial {
		bad := n * 3 / 10
		for i := n - bad; i < n; i++ {
			corrupt(d, recs[i])
		}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s fixture: %w", d, err)
	}
	return string(b), nil
}

// corrupt breaks exactly one field so the record fails validation.
func corrupt(d domain.Dataset, rec map[string]any) {
	switch d {
	case domain.DatasetAlerts:
		rec["severity"] = "Catastrophic"
	case domain.DatasetResources:
		rec["current_occupancy"] = rec["capacity"].(int) + 1
	case domain.DatasetSocial:
		rec["trust_score"] = 1.7
	}
}
