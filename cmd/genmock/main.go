// Command genmock writes deterministic model responses used by the fixture
// generator and by tests. Valid responses go to <out>/<dataset>.json, which is
// what the fixture generator serves; the other variants go to
// <out>/<variant>/<dataset>.json.
//
// Usage:
//
//	go run ./cmd/genmock -out data/fixtures -batch-size 10
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crisis-sim/internal/adapter/fixture"
	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// fixedClock keeps timestamps in the generated responses reproducible.
var fixedClock = clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/fixtures", "output directory")
	batchSize := flag.Int("batch-size", 10, "records per response")
	flag.Parse()

	if *batchSize < 1 {
		flag.Usage()
		return fmt.Errorf("-batch-size must be positive")
	}

	written, err := generate(*out, *batchSize, fixedClock.Now())
	if err != nil {
		return err
	}
	for _, path := range written {
		log.Printf("wrote %s", path)
	}
	log.Printf("total: %d files", len(written))
	return nil
}

// generate writes every dataset and variant under dir and returns the paths
// written, in order.
func generate(dir string, batchSize int, now time.Time) ([]string, error) {
	var written []string
	for _, v := range fixture.Variants {
		vdir := dir
		if v != fixture.VariantValid {
			vdir = filepath.Join(dir, string(v))
		}
		if err := os.MkdirAll(vdir, 0o755); err != nil {
			return written, fmt.Errorf("create %s: %w", vdir, err)
		}

		for _, d := range domain.Datasets {
			raw, err := fixture.Response(d, v, batchSize, now)
			if err != nil {
				return written, err
			}
			path := filepath.Join(vdir, fixture.FileName(d))
			if err := os.WriteFile(path, []byte(raw+"\n"), 0o644); err != nil { //nolint:gosec // fixtures are not secret
				return written, fmt.Errorf("write %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}
