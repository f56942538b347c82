// Package fixture provides an offline domain.Generator backed by canned
// responses, and the builders used to produce them.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// Generator serves <dir>/<dataset>.json for each request. When a file is
// missing it builds a valid response of the requested batch size instead.
type Generator struct {
	dir   string
	clock clockwork.Clock
}

// NewGenerator creates a fixture generator. dir may be empty to always use
// built responses.
func NewGenerator(dir string, clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{dir: dir, clock: clock}
}

// OfflineAnswer is returned for free-text requests that name no dataset.
const OfflineAnswer = "Offline mode: no language model is configured. Follow official guidance from @QatarAlert and go to the nearest open shelter if instructed."

// FileName is the fixture file read for a dataset.
func FileName(d domain.Dataset) string { return string(d) + ".json" }

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}

	if req.Dataset == "" {
		return OfflineAnswer, nil
	}

	if g.dir != "" {
		b, err := os.ReadFile(filepath.Join(g.dir, FileName(req.Dataset)))
		switch {
		case err == nil:
			return string(b), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("%w: read fixture: %w", domain.ErrGenerationUnavailable, err)
		}
	}

	n := req.BatchSize
	if n <= 0 {
		n = 10
	}
	return Response(req.Dataset, VariantValid, n, g.clock.Now().UTC())
}
