package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the synthesis, resolver and HTTP layers. Callers
// classify with errors.Is.
var (
	// ErrGenerationUnavailable means the model service was unreachable, timed
	// out or answered with an error status.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrMalformedResponse means the model answered but no JSON array of
	// records could be found in the text.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrSchemaViolation means a record was parseable but failed a field check.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrNoFacilityAvailable means no facility matched a nearest-facility query.
	ErrNoFacilityAvailable = errors.New("no facility available")

	// ErrRoutingUnavailable means the routing service could not produce a
	// route. The resolver always recovers from it with a straight-line path.
	ErrRoutingUnavailable = errors.New("routing unavailable")

	// ErrTranscriptionUnavailable means the speech-to-text service failed.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")

	// ErrEmptyPrompt rejects a synthesis request without a scenario.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// RecordError describes why a single element of a generated batch was rejected.
type RecordError struct {
	Index  int
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrSchemaViolation }
