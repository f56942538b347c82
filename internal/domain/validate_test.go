package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facilityJSON(name string, capacity, occupancy int, medical string) string {
	return fmt.Sprintf(`{"facility":%q,"category":"Shelter","capacity":%d,"current_occupancy":%d,`+
		`"latitude":25.2854,"longitude":51.5310,"contact":"+974 4000 0000",`+
		`"water_supply":1200,"food_supply":800,"medical_supplies":%s,"beds":40,"last_updated":"2024-06-01 14:30"}`,
		name, capacity, occupancy, medical)
}

func TestValidate_Alerts(t *testing.T) {
	raw := `[
		{"type":"Sandstorm","severity":"High","location":"Doha","time":"2024-06-01 14:30","description":"Visibility  under 100m"},
		{"type":"heat_wave","severity":"medium","location":"Al Khor","time":"2024-06-01T15:00:00Z","description":"48C expected"}
	]`

	batch := Validate(raw, DatasetAlerts, 10)

	require.Empty(t, batch.Errors)
	require.Len(t, batch.Alerts, 2)
	assert.Equal(t, 2, batch.Valid())
	assert.Equal(t, AlertSandstorm, batch.Alerts[0].Type)
	assert.Equal(t, SeverityHigh, batch.Alerts[0].Severity)
	assert.Equal(t, "Visibility under 100m", batch.Alerts[0].Description)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC), batch.Alerts[0].Time)
	assert.Equal(t, AlertHeatWave, batch.Alerts[1].Type)
	assert.Equal(t, SeverityMedium, batch.Alerts[1].Severity)
}

func TestValidate_AlertRejections(t *testing.T) {
	tests := []struct {
		name  string
		el    string
		field string
	}{
		{"unknown type", `{"type":"Volcano","severity":"High","location":"Doha","time":"2024-06-01 14:30","description":"x"}`, "type"},
		{"placeholder type", `{"type":"No Active Disasters","severity":"Low","location":"Doha","time":"2024-06-01 14:30","description":"x"}`, "type"},
		{"bad severity", `{"type":"Sandstorm","severity":"Extreme","location":"Doha","time":"2024-06-01 14:30","description":"x"}`, "severity"},
		{"missing location", `{"type":"Sandstorm","severity":"High","time":"2024-06-01 14:30","description":"x"}`, "location"},
		{"bad time", `{"type":"Sandstorm","severity":"High","location":"Doha","time":"tomorrow","description":"x"}`, "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := Validate("["+tt.el+"]", DatasetAlerts, 10)

			assert.Empty(t, batch.Alerts)
			require.Len(t, batch.Errors, 1)
			var recErr *RecordError
			require.ErrorAs(t, batch.Errors[0], &recErr)
			assert.Equal(t, 0, recErr.Index)
			assert.Equal(t, tt.field, recErr.Field)
			assert.ErrorIs(t, batch.Errors[0], ErrSchemaViolation)
			assert.False(t, batch.Malformed())
		})
	}
}

func TestValidate_PartialResourcesBatch(t *testing.T) {
	els := make([]string, 0, 10)
	for i := range 7 {
		els = append(els, facilityJSON(fmt.Sprintf("Shelter %d", i), 500, 120, "85"))
	}
	els = append(els,
		facilityJSON("Over Capacity", 100, 150, "50"),
		facilityJSON("Bad Medical", 100, 10, "140"),
		`{"facility":"Missing Fields","category":"Hospital"}`,
	)

	batch := Validate("["+strings.Join(els, ",")+"]", DatasetResources, 10)

	assert.Equal(t, 10, batch.Seen)
	assert.Len(t, batch.Facilities, 7)
	assert.Len(t, batch.Resources, 7)
	assert.Len(t, batch.Errors, 3)
	assert.Equal(t, 7, batch.Valid())

	for i, f := range batch.Facilities {
		assert.Equal(t, f.Name, batch.Resources[i].Facility)
	}

	var recErr *RecordError
	require.ErrorAs(t, batch.Errors[0], &recErr)
	assert.Equal(t, 7, recErr.Index)
	assert.Equal(t, "current_occupancy", recErr.Field)
	require.ErrorAs(t, batch.Errors[1], &recErr)
	assert.Equal(t, 8, recErr.Index)
	assert.Equal(t, "medical_supplies", recErr.Field)
	assert.Contains(t, recErr.Reason, "<= 100")
	require.ErrorAs(t, batch.Errors[2], &recErr)
	assert.Equal(t, 9, recErr.Index)
}

func TestValidate_ResourceFieldsAndCoercion(t *testing.T) {
	el := `{"facility":"Aspire Dome","category":"stadium","capacity":"2000","current_occupancy":2000,
		"latitude":"25.2637","longitude":51.4482,"contact":"","water_supply":0,"food_supply":10.5,
		"medical_supplies":"60%","beds":0,"last_updated":"2024-06-01T09:05"}`

	batch := Validate("["+el+"]", DatasetResources, 10)

	require.Empty(t, batch.Errors)
	require.Len(t, batch.Facilities, 1)
	f := batch.Facilities[0]
	assert.Equal(t, CategoryStadium, f.Category)
	assert.Equal(t, 2000, f.Capacity)
	assert.Equal(t, 2000, f.CurrentOccupancy)
	assert.Equal(t, Coordinate{Lat: 25.2637, Lon: 51.4482}, f.Location)

	r := batch.Resources[0]
	assert.Equal(t, 60.0, r.MedicalSupplies)
	assert.Equal(t, 0.0, r.WaterSupply)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC), r.LastUpdated)
}

func TestValidate_ResourceRejections(t *testing.T) {
	tests := []struct {
		name  string
		el    string
		field string
	}{
		{"zero capacity", facilityJSON("A", 0, 0, "50"), "capacity"},
		{"negative occupancy", facilityJSON("A", 10, -1, "50"), "current_occupancy"},
		{"fractional capacity", strings.Replace(facilityJSON("A", 10, 1, "50"), `"capacity":10`, `"capacity":10.5`, 1), "capacity"},
		{"non-numeric water", strings.Replace(facilityJSON("A", 10, 1, "50"), `"water_supply":1200`, `"water_supply":"plenty"`, 1), "water_supply"},
		{"latitude out of range", strings.Replace(facilityJSON("A", 10, 1, "50"), `"latitude":25.2854`, `"latitude":95`, 1), "latitude"},
		{"unknown category", strings.Replace(facilityJSON("A", 10, 1, "50"), `"Shelter"`, `"Mall"`, 1), "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := Validate("["+tt.el+"]", DatasetResources, 10)

			assert.Empty(t, batch.Facilities)
			require.Len(t, batch.Errors, 1)
			var recErr *RecordError
			require.ErrorAs(t, batch.Errors[0], &recErr)
			assert.Equal(t, tt.field, recErr.Field)
		})
	}
}

func TestValidate_DuplicateFacility(t *testing.T) {
	raw := "[" + facilityJSON("Doha Shelter", 100, 10, "50") + "," + facilityJSON("doha shelter", 200, 20, "50") + "]"

	batch := Validate(raw, DatasetResources, 10)

	require.Len(t, batch.Facilities, 1)
	assert.Equal(t, 100, batch.Facilities[0].Capacity)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0].Error(), "duplicate")
}

func TestValidate_Social(t *testing.T) {
	raw := `[
		{"timestamp":"2024-06-01 14:30","source_type":"Official","username":"QatarAlert","message":"Stay indoors",
		 "location":"Doha","verified":true,"trust_score":0.95,"engagement":1200},
		{"timestamp":"2024-06-01 14:35","source_type":"citizen","username":"@resident1","message":"Roads blocked",
		 "location":"Lusail","verified":"false","trust_score":"0.4","engagement":"12"},
		{"timestamp":"2024-06-01 14:40","source_type":"Media","username":"@news","message":"Update",
		 "location":"Doha","verified":true,"trust_score":1.5,"engagement":10}
	]`

	batch := Validate(raw, DatasetSocial, 10)

	require.Len(t, batch.Social, 2)
	assert.Equal(t, "@QatarAlert", batch.Social[0].Username)
	assert.True(t, batch.Social[0].Verified)
	assert.Equal(t, SourceCitizen, batch.Social[1].SourceType)
	assert.False(t, batch.Social[1].Verified)
	assert.Equal(t, 0.4, batch.Social[1].TrustScore)
	assert.Equal(t, 12, batch.Social[1].Engagement)

	require.Len(t, batch.Errors, 1)
	var recErr *RecordError
	require.ErrorAs(t, batch.Errors[0], &recErr)
	assert.Equal(t, 2, recErr.Index)
	assert.Equal(t, "trust_score", recErr.Field)
}

func TestValidate_MissingVerifiedIsRejected(t *testing.T) {
	raw := `[{"timestamp":"2024-06-01 14:30","source_type":"Official","username":"@a","message":"m",
		"location":"Doha","trust_score":0.5,"engagement":1}]`

	batch := Validate(raw, DatasetSocial, 10)

	assert.Empty(t, batch.Social)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0].Error(), "verified: is required")
}

func TestValidate_Envelope(t *testing.T) {
	el := `{"type":"Sandstorm","severity":"High","location":"Doha","time":"2024-06-01 14:30","description":"x"}`

	tests := []struct {
		name string
		raw  string
	}{
		{"bare array", "[" + el + "]"},
		{"fenced", "```json\n[" + el + "]\n```"},
		{"fenced no tag", "```\n[" + el + "]\n```"},
		{"prose around", "Here are the alerts:\n[" + el + "]\nStay safe."},
		{"object wrapper", `{"alerts":[` + el + `]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := Validate(tt.raw, DatasetAlerts, 10)
			assert.Empty(t, batch.Errors)
			assert.Len(t, batch.Alerts, 1)
		})
	}
}

func TestValidate_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", "[]", `{"alerts":"none"}`, "[{broken"} {
		t.Run(raw, func(t *testing.T) {
			batch := Validate(raw, DatasetAlerts, 10)

			assert.True(t, batch.Malformed())
			assert.Equal(t, 0, batch.Valid())
			require.Len(t, batch.Errors, 1)
			assert.True(t, errors.Is(batch.Errors[0], ErrMalformedResponse))
		})
	}
}

func TestValidate_NonObjectElement(t *testing.T) {
	batch := Validate(`["oops", 3]`, DatasetAlerts, 10)

	assert.Len(t, batch.Errors, 2)
	assert.False(t, batch.Malformed())
}

func TestValidate_BatchSizeLimit(t *testing.T) {
	el := `{"type":"Sandstorm","severity":"High","location":"Doha","time":"2024-06-01 14:30","description":"x"}`

	batch := Validate("["+el+","+el+","+el+"]", DatasetAlerts, 2)

	assert.Len(t, batch.Alerts, 2)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0].Error(), "exceeds batch size 2")
}

func TestAcceptancePolicy(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		valid    int
		want     bool
	}{
		{"default needs one", 0, 1, true},
		{"default rejects zero", 0, 0, false},
		{"half of ten", 0.5, 5, true},
		{"below half", 0.5, 4, false},
		{"rounds up", 0.75, 8, true},
		{"rounds up rejects", 0.75, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AcceptancePolicy{MinFraction: tt.fraction}.Accepts(tt.valid, 10))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	for _, s := range []string{"2024-06-01 14:30", "2024-06-01T14:30", "2024-06-01T14:30:45", "2024-06-01T17:30:00+03:00"} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseTimestamp("June 1st")
	assert.Error(t, err)
}
