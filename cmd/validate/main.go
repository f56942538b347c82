// Command validate checks raw model responses against the dataset schemas the
// synthesis engine enforces. It prints a PASS/FAIL line per file followed by
// the per-record errors, and exits 1 when any batch would not be applied.
//
// Usage:
//
//	go run ./cmd/validate -dataset alerts -file response.json
//	go run ./cmd/validate -dir data/fixtures
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/crisis-sim/internal/adapter/fixture"
	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// target is one response file to check.
type target struct {
	dataset domain.Dataset
	path    string
}

// result tracks pass/fail for one file.
type result struct {
	target
	batch  domain.Batch
	usable bool
	err    error
}

func main() {
	file := flag.String("file", "", "path to a raw model response")
	dataset := flag.String("dataset", "", "dataset of -file: alerts, resources or social")
	dir := flag.String("dir", "", "directory of <dataset>.json responses to check instead of -file")
	batchSize := flag.Int("batch-size", 10, "requested batch size; elements past it are rejected")
	minFraction := flag.Float64("min-fraction", 0, "share of the batch that must be valid (0 means at least one)")
	flag.Parse()

	targets, err := resolveTargets(*file, *dataset, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	policy := domain.AcceptancePolicy{MinFraction: *minFraction}
	os.Exit(run(os.Stdout, targets, *batchSize, policy))
}

func resolveTargets(file, dataset, dir string) ([]target, error) {
	switch {
	case dir != "" && file != "":
		return nil, errors.New("use either -file or -dir, not both")
	case dir != "":
		var out []target
		for _, d := range domain.Datasets {
			path := filepath.Join(dir, fixture.FileName(d))
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			out = append(out, target{dataset: d, path: path})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no <dataset>.json files in %s", dir)
		}
		return out, nil
	case file != "":
		d, err := parseDataset(dataset)
		if err != nil {
			return nil, err
		}
		return []target{{dataset: d, path: file}}, nil
	default:
		return nil, errors.New("-file or -dir is required")
	}
}

func parseDataset(s string) (domain.Dataset, error) {
	for _, d := range domain.Datasets {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("-dataset %q is not one of alerts, resources, social", s)
}

// run validates every target and returns the process exit code.
func run(w io.Writer, targets []target, batchSize int, policy domain.AcceptancePolicy) int {
	fmt.Fprintln(w, "=== Model Response Validation ===")
	fmt.Fprintln(w)

	results := make([]result, 0, len(targets))
	for _, t := range targets {
		results = append(results, check(t, batchSize, policy))
	}

	allPassed := true
	for _, r := range results {
		status := "\033[32mPASS\033[0m"
		switch {
		case r.err != nil:
			status = "\033[31mFAIL (unreadable)\033[0m"
			allPassed = false
		case !r.usable:
			status = fmt.Sprintf("\033[31mFAIL (%d/%d valid)\033[0m", r.batch.Valid(), batchSize)
			allPassed = false
		case len(r.batch.Errors) > 0:
			status = fmt.Sprintf("\033[33mPASS (%d rejected)\033[0m", len(r.batch.Errors))
		}
		fmt.Fprintf(w, "  %-10s %-40s %s\n", r.dataset, r.path, status)
	}

	for _, r := range results {
		if r.err == nil && len(r.batch.Errors) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s (%s) ---\n", r.dataset, r.path)
		if r.err != nil {
			fmt.Fprintf(w, "  %v\n", r.err)
			continue
		}
		fmt.Fprintf(w, "  %d elements, %d valid\n", r.batch.Seen, r.batch.Valid())
		for i, e := range r.batch.Errors {
			fmt.Fprintf(w, "  [%d] %v\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll responses usable.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func check(t target, batchSize int, policy domain.AcceptancePolicy) result {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return result{target: t, err: err}
	}
	batch := domain.Validate(string(raw), t.dataset, batchSize)
	usable := !batch.Malformed() && policy.Accepts(batch.Valid(), batchSize)
	return result{target: t, batch: batch, usable: usable}
}
