package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// timeLayouts are tried in order when parsing model timestamps.
var timeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report the model-facing JSON key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Batch is the outcome of validating one generated response.
type Batch struct {
	Dataset    Dataset
	Alerts     []Alert
	Facilities []Facility
	Resources  []ResourceStatus // Resources[i] belongs to Facilities[i]
	Social     []SocialUpdate

	// Seen counts the array elements found in the response.
	Seen int
	// Errors holds one *RecordError per rejected element, or a single error
	// wrapping ErrMalformedResponse when no array could be read.
	Errors []error
}

// Valid returns the number of accepted records.
func (b Batch) Valid() int {
	switch b.Dataset {
	case DatasetAlerts:
		return len(b.Alerts)
	case DatasetResources:
		return len(b.Facilities)
	case DatasetSocial:
		return len(b.Social)
	default:
		return 0
	}
}

// Malformed reports whether the response contained no readable array at all.
func (b Batch) Malformed() bool {
	for _, err := range b.Errors {
		if errors.Is(err, ErrMalformedResponse) {
			return true
		}
	}
	return false
}

// AcceptancePolicy decides whether a partially valid batch is usable.
type AcceptancePolicy struct {
	// MinFraction is the share of the batch size that must be valid. Zero
	// means a single valid record is enough.
	MinFraction float64
}

// Accepts reports whether valid records out of batchSize meet the policy.
func (p AcceptancePolicy) Accepts(valid, batchSize int) bool {
	need := 1
	if p.MinFraction > 0 && batchSize > 0 {
		if n := int(math.Ceil(p.MinFraction * float64(batchSize))); n > need {
			need = n
		}
	}
	return valid >= need
}

// Validate parses raw model output for dataset into typed records. Elements are
// checked independently: an invalid element is rejected with a RecordError and
// its siblings are kept. Elements beyond batchSize are rejected; batchSize <= 0
// disables the limit. Validate has no side effects.
func Validate(raw string, dataset Dataset, batchSize int) Batch {
	batch := Batch{Dataset: dataset}

	arr, err := locateArray(raw)
	if err != nil {
		batch.Errors = append(batch.Errors, err)
		return batch
	}

	seen := make(map[string]bool)
	arr.ForEach(func(_, el gjson.Result) bool {
		idx := batch.Seen
		batch.Seen++

		if batchSize > 0 && idx >= batchSize {
			batch.Errors = append(batch.Errors, &RecordError{
				Index: idx, Reason: fmt.Sprintf("exceeds batch size %d", batchSize),
			})
			return true
		}
		if !el.IsObject() {
			batch.Errors = append(batch.Errors, &RecordError{Index: idx, Reason: "not a JSON object"})
			return true
		}

		var recErr *RecordError
		switch dataset {
		case DatasetAlerts:
			var a Alert
			if a, recErr = parseAlert(el); recErr == nil {
				batch.Alerts = append(batch.Alerts, a)
			}
		case DatasetResources:
			var f Facility
			var r ResourceStatus
			if f, r, recErr = parseFacilityReport(el); recErr == nil {
				key := strings.ToLower(f.Name)
				if seen[key] {
					recErr = &RecordError{Field: "facility", Reason: fmt.Sprintf("duplicate facility %q", f.Name)}
				} else {
					seen[key] = true
					batch.Facilities = append(batch.Facilities, f)
					batch.Resources = append(batch.Resources, r)
				}
			}
		case DatasetSocial:
			var u SocialUpdate
			if u, recErr = parseSocialUpdate(el); recErr == nil {
				batch.Social = append(batch.Social, u)
			}
		default:
			recErr = &RecordError{Reason: fmt.Sprintf("unknown dataset %q", dataset)}
		}
		if recErr != nil {
			recErr.Index = idx
			batch.Errors = append(batch.Errors, recErr)
		}
		return true
	})

	if batch.Seen == 0 {
		batch.Errors = append(batch.Errors, fmt.Errorf("%w: empty array", ErrMalformedResponse))
	}
	return batch
}

// locateArray finds the record array in model text. Models wrap output in
// markdown fences, prose, or a single-key object; all three are tolerated.
func locateArray(raw string) (gjson.Result, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return gjson.Result{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	if !gjson.Valid(text) {
		start := strings.IndexByte(text, '[')
		end := strings.LastIndexByte(text, ']')
		if start < 0 || end <= start || !gjson.Valid(text[start:end+1]) {
			return gjson.Result{}, fmt.Errorf("%w: no parseable JSON", ErrMalformedResponse)
		}
		text = text[start : end+1]
	}

	res := gjson.Parse(text)
	if res.IsArray() {
		return res, nil
	}
	if res.IsObject() {
		var found gjson.Result
		res.ForEach(func(_, v gjson.Result) bool {
			if v.IsArray() {
				found = v
				return false
			}
			return true
		})
		if found.IsArray() {
			return found, nil
		}
	}
	return gjson.Result{}, fmt.Errorf("%w: no JSON array", ErrMalformedResponse)
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// --- alerts ---

type alertWire struct {
	Type        string `json:"type" validate:"required"`
	Severity    string `json:"severity" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Time        string `json:"time" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func parseAlert(el gjson.Result) (Alert, *RecordError) {
	w := alertWire{
		Type:        str(el, "type"),
		Severity:    str(el, "severity"),
		Location:    str(el, "location"),
		Time:        str(el, "time"),
		Description: str(el, "description"),
	}
	if recErr := checkStruct(w); recErr != nil {
		return Alert{}, recErr
	}

	typ, err := ParseAlertType(w.Type)
	if err != nil {
		return Alert{}, &RecordError{Field: "type", Reason: err.Error()}
	}
	sev, err := ParseSeverity(w.Severity)
	if err != nil {
		return Alert{}, &RecordError{Field: "severity", Reason: err.Error()}
	}
	ts, err := ParseTimestamp(w.Time)
	if err != nil {
		return Alert{}, &RecordError{Field: "time", Reason: err.Error()}
	}

	return Alert{
		Type:        typ,
		Severity:    sev,
		Location:    w.Location,
		Time:        ts,
		Description: strings.Join(strings.Fields(w.Description), " "),
	}, nil
}

// --- facility reports ---

type facilityWire struct {
	Name             string   `json:"facility" validate:"required"`
	Category         string   `json:"category" validate:"required"`
	Capacity         *int     `json:"capacity" validate:"required,gt=0"`
	CurrentOccupancy *int     `json:"current_occupancy" validate:"required,gte=0"`
	Latitude         *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Contact          string   `json:"contact"`
	WaterSupply      *float64 `json:"water_supply" validate:"required,gte=0"`
	FoodSupply       *float64 `json:"food_supply" validate:"required,gte=0"`
	MedicalSupplies  *float64 `json:"medical_supplies" validate:"required,gte=0,lte=100"`
	Beds             *int     `json:"beds" validate:"required,gte=0"`
	LastUpdated      string   `json:"last_updated" validate:"required"`
}

func parseFacilityReport(el gjson.Result) (Facility, ResourceStatus, *RecordError) {
	w := facilityWire{
		Name:        str(el, "facility"),
		Category:    str(el, "category"),
		Contact:     str(el, "contact"),
		LastUpdated: str(el, "last_updated"),
	}
	var recErr *RecordError
	w.Capacity, recErr = integer(el, "capacity", recErr)
	w.CurrentOccupancy, recErr = integer(el, "current_occupancy", recErr)
	w.Latitude, recErr = number(el, "latitude", recErr)
	w.Longitude, recErr = number(el, "longitude", recErr)
	w.WaterSupply, recErr = number(el, "water_supply", recErr)
	w.FoodSupply, recErr = number(el, "food_supply", recErr)
	w.MedicalSupplies, recErr = number(el, "medical_supplies", recErr)
	w.Beds, recErr = integer(el, "beds", recErr)
	if recErr != nil {
		return Facility{}, ResourceStatus{}, recErr
	}
	if recErr := checkStruct(w); recErr != nil {
		return Facility{}, ResourceStatus{}, recErr
	}

	if *w.CurrentOccupancy > *w.Capacity {
		return Facility{}, ResourceStatus{}, &RecordError{
			Field:  "current_occupancy",
			Reason: fmt.Sprintf("%d exceeds capacity %d", *w.CurrentOccupancy, *w.Capacity),
		}
	}
	cat, err := ParseFacilityCategory(w.Category)
	if err != nil {
		return Facility{}, ResourceStatus{}, &RecordError{Field: "category", Reason: err.Error()}
	}
	updated, err := ParseTimestamp(w.LastUpdated)
	if err != nil {
		return Facility{}, ResourceStatus{}, &RecordError{Field: "last_updated", Reason: err.Error()}
	}

	f := Facility{
		Name:             w.Name,
		Category:         cat,
		Capacity:         *w.Capacity,
		CurrentOccupancy: *w.CurrentOccupancy,
		Location:         Coordinate{Lat: *w.Latitude, Lon: *w.Longitude},
		Contact:          w.Contact,
	}
	r := ResourceStatus{
		Facility:        w.Name,
		WaterSupply:     *w.WaterSupply,
		FoodSupply:      *w.FoodSupply,
		MedicalSupplies: *w.MedicalSupplies,
		Beds:            *w.Beds,
		LastUpdated:     updated,
	}
	return f, r, nil
}

// --- social updates ---

type socialWire struct {
	Timestamp  string   `json:"timestamp" validate:"required"`
	SourceType string   `json:"source_type" validate:"required"`
	Username   string   `json:"username" validate:"required"`
	Message    string   `json:"message" validate:"required"`
	Location   string   `json:"location" validate:"required"`
	Verified   *bool    `json:"verified" validate:"required"`
	TrustScore *float64 `json:"trust_score" validate:"required,gte=0,lte=1"`
	Engagement *int     `json:"engagement" validate:"required,gte=0"`
}

func parseSocialUpdate(el gjson.Result) (SocialUpdate, *RecordError) {
	w := socialWire{
		Timestamp:  str(el, "timestamp"),
		SourceType: str(el, "source_type"),
		Username:   str(el, "username"),
		Message:    str(el, "message"),
		Location:   str(el, "location"),
	}
	var recErr *RecordError
	w.Verified, recErr = boolean(el, "verified", recErr)
	w.TrustScore, recErr = number(el, "trust_score", recErr)
	w.Engagement, recErr = integer(el, "engagement", recErr)
	if recErr != nil {
		return SocialUpdate{}, recErr
	}
	if recErr := checkStruct(w); recErr != nil {
		return SocialUpdate{}, recErr
	}

	src, err := ParseSourceType(w.SourceType)
	if err != nil {
		return SocialUpdate{}, &RecordError{Field: "source_type", Reason: err.Error()}
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return SocialUpdate{}, &RecordError{Field: "timestamp", Reason: err.Error()}
	}

	return SocialUpdate{
		Timestamp:  ts,
		SourceType: src,
		Username:   normalizeUsername(w.Username),
		Message:    strings.TrimSpace(w.Message),
		Location:   w.Location,
		Verified:   *w.Verified,
		TrustScore: *w.TrustScore,
		Engagement: *w.Engagement,
	}, nil
}

// normalizeUsername enforces the "@handle" convention.
func normalizeUsername(s string) string {
	s = strings.Join(strings.Fields(s), "")
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return s
}

// ParseTimestamp parses a model timestamp into UTC at minute precision.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q, want YYYY-MM-DD HH:MM", s)
}

// --- field extraction ---

// checkStruct runs tag validation and converts the first failure.
func checkStruct(w any) *RecordError {
	err := validate.Struct(w)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &RecordError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &RecordError{Field: fe.Field(), Reason: describeTag(fe.Tag(), fe.Param())}
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be > " + param
	case "gte":
		return "must be >= " + param
	case "lt":
		return "must be < " + param
	case "lte":
		return "must be <= " + param
	default:
		return "failed " + tag
	}
}

// str returns the trimmed string form of a scalar field; objects and arrays
// read as empty so the required check rejects them.
func str(el gjson.Result, key string) string {
	v := el.Get(key)
	if !v.Exists() || v.IsObject() || v.IsArray() {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// number reads a numeric field, accepting numeric strings. A missing field
// yields nil for the required check. prev short-circuits after the first error.
func number(el gjson.Result, key string, prev *RecordError) (*float64, *RecordError) {
	if prev != nil {
		return nil, prev
	}
	v := el.Get(key)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		f := v.Float()
		return &f, nil
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Str), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &RecordError{Field: key, Reason: fmt.Sprintf("%q is not a number", v.Str)}
		}
		return &f, nil
	default:
		return nil, &RecordError{Field: key, Reason: "is not a number"}
	}
}

func integer(el gjson.Result, key string, prev *RecordError) (*int, *RecordError) {
	f, recErr := number(el, key, prev)
	if recErr != nil || f == nil {
		return nil, recErr
	}
	if *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil, &RecordError{Field: key, Reason: fmt.Sprintf("%v is not an integer", *f)}
	}
	n := int(*f)
	return &n, nil
}

func boolean(el gjson.Result, key string, prev *RecordError) (*bool, *RecordError) {
	if prev != nil {
		return nil, prev
	}
	v := el.Get(key)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.True, gjson.False:
		b := v.Bool()
		return &b, nil
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		if err != nil {
			return nil, &RecordError{Field: key, Reason: fmt.Sprintf("%q is not a boolean", v.Str)}
		}
		return &b, nil
	default:
		return nil, &RecordError{Field: key, Reason: "is not a boolean"}
	}
}
