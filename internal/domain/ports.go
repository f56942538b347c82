package domain

import (
	"context"
	"io"
	"time"
)

// GenerationRequest is one structured-generation call.
type GenerationRequest struct {
	Dataset    Dataset // which schema the system role describes
	SystemRole string  // schema fields, batch size and domain constraints
	UserPrompt string
	BatchSize  int

	// MaxTokens and TopP override the client defaults when non-zero.
	MaxTokens int
	TopP      float32
}

// Generator wraps a generative language model. Implementations return the raw
// model text, which is expected but not guaranteed to be a JSON array of
// BatchSize objects. Transport and service failures wrap
// ErrGenerationUnavailable. Implementations do not retry.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Route is a path returned by a routing provider.
type Route struct {
	Path           []Coordinate
	DistanceMeters float64
	Duration       time.Duration
}

// Router requests a route between two points for a travel profile such as
// "driving". Failures, including "no route found", wrap ErrRoutingUnavailable.
type Router interface {
	Directions(ctx context.Context, origin, destination Coordinate, profile string) (Route, error)
}

// Transcriber turns recorded speech into text. filename carries the audio
// format by its extension (e.g. "question.wav"). Failures wrap
// ErrTranscriptionUnavailable.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}
