// Package synthesis turns a free-text scenario into the three simulation
// tables and owns every write to the shared state.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
	"github.com/couchcryptid/crisis-sim/internal/state"
)

// Publisher receives a copy of every table after it changes.
type Publisher interface {
	Publish(ctx context.Context, snap domain.TableSnapshot) error
}

// Options tunes an Orchestrator. Zero values fall back to defaults.
type Options struct {
	BatchSize int
	// Retries is the number of extra attempts after a GenerationUnavailable failure.
	Retries int
	// Timeout bounds each generation attempt.
	Timeout time.Duration
	// Backoff is the first pause between attempts; it doubles up to 5s.
	Backoff time.Duration
	Policy  domain.AcceptancePolicy
	// Decay is the "time passing" step. Nil selects DefaultDecay.
	Decay *DecayPolicy
	// PublishTimeout bounds each snapshot publish.
	PublishTimeout time.Duration
	// Region biases alert geocoding, e.g. "Qatar".
	Region string
	// Rand drives the occupancy delta. Defaults to a randomly seeded PCG.
	Rand *rand.Rand
}

const defaultPublishTimeout = 5 * time.Second

// Orchestrator runs scenario synthesis, decay and reset against a Store.
type Orchestrator struct {
	gen       domain.Generator
	store     *state.Store
	geocoder  domain.Geocoder
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
	opts      Options

	// writeMu serializes writers so that Synthesize, Tick and Reset each run
	// to completion before the next one commits.
	writeMu sync.Mutex
	rnd     *rand.Rand

	// lastUnavailable is set when every dataset of the last synthesis failed
	// to reach the generator.
	lastUnavailable atomic.Bool
}

// New creates an Orchestrator. geocoder and publisher may be nil.
func New(gen domain.Generator, store *state.Store, geocoder domain.Geocoder, publisher Publisher,
	logger *slog.Logger, metrics *observability.Metrics, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = backoffStart
	}
	if opts.Decay == nil {
		d := DefaultDecay
		opts.Decay = &d
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Orchestrator{
		gen:       gen,
		store:     store,
		geocoder:  geocoder,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/couchcryptid/crisis-sim/internal/synthesis"),
		opts:      opts,
		rnd:       rnd,
	}
}

// CheckReadiness fails while the generator was unreachable for every dataset
// of the most recent synthesis.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if o.lastUnavailable.Load() {
		return errors.New("generation backend unavailable on last synthesis")
	}
	return nil
}

// pipelineResult is what one dataset pipeline hands to the commit step.
type pipelineResult struct {
	outcome DatasetOutcome
	batch   domain.Batch
}

// Synthesize generates, validates and commits all three datasets for prompt.
// Datasets fail independently; the only error returned is ErrEmptyPrompt.
func (o *Orchestrator) Synthesize(ctx context.Context, prompt string) (Report, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Report{}, domain.ErrEmptyPrompt
	}

	ctx, span := o.tracer.Start(ctx, "synthesis.Synthesize")
	defer span.End()

	report := Report{
		ID:        uuid.New(),
		Prompt:    prompt,
		StartedAt: o.store.Clock().Now().UTC(),
	}
	span.SetAttributes(attribute.String("synthesis.id", report.ID.String()))
	o.logger.Info("synthesis started", "report_id", report.ID, "batch_size", o.opts.BatchSize)

	o.metrics.SynthesisInFlight.Inc()
	defer o.metrics.SynthesisInFlight.Dec()
	start := time.Now()

	// The three pipelines share nothing until commit, so they run concurrently.
	// Each records its own failure; none returns an error to the group.
	results := make([]pipelineResult, len(domain.Datasets))
	var g errgroup.Group
	for i, d := range domain.Datasets {
		g.Go(func() error {
			results[i] = o.runPipeline(ctx, d, prompt)
			return nil
		})
	}
	_ = g.Wait()

	o.writeMu.Lock()
	unavailable := 0
	for _, res := range results {
		out := res.outcome
		if out.Failure == FailureUnavailable {
			unavailable++
		}
		if out.Failure == FailureNone {
			o.commit(ctx, res.batch)
			out.Applied = true
			if out.Dataset == domain.DatasetResources {
				o.decayLocked(ctx)
				report.Decayed = true
			}
		}
		o.metrics.DatasetCommits.WithLabelValues(string(out.Dataset), commitLabel(out.Applied)).Inc()
		report.set(out)
	}
	o.writeMu.Unlock()
	o.lastUnavailable.Store(unavailable == len(domain.Datasets))

	report.FinishedAt = o.store.Clock().Now().UTC()
	o.metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("synthesis.applied", report.Applied()))
	if report.Applied() == 0 {
		span.SetStatus(codes.Error, "no dataset applied")
	}

	o.logger.Info("synthesis finished",
		"report_id", report.ID,
		"applied", report.Applied(),
		"alerts", report.Alerts.Records,
		"resources", report.Resources.Records,
		"social", report.Social.Records,
		"duration", time.Since(start),
	)
	return report, nil
}

// runPipeline generates and validates one dataset. It never commits.
func (o *Orchestrator) runPipeline(ctx context.Context, d domain.Dataset, prompt string) pipelineResult {
	ctx, span := o.tracer.Start(ctx, "synthesis.dataset", trace.WithAttributes(attribute.String("dataset", string(d))))
	defer span.End()

	out := DatasetOutcome{Dataset: d}
	req := domain.GenerationRequest{
		Dataset:    d,
		SystemRole: SystemRole(d, o.opts.BatchSize),
		UserPrompt: UserPrompt(d, o.opts.BatchSize, prompt),
		BatchSize:  o.opts.BatchSize,
	}

	raw, attempts, err := o.generate(ctx, req)
	out.Attempts = attempts
	if err != nil {
		out.Failure = FailureUnavailable
		out.Errors = []string{err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(out.Failure))
		o.logger.Warn("dataset generation failed", "dataset", d, "attempts", attempts, "error", err)
		return pipelineResult{outcome: out}
	}

	batch := domain.Validate(raw, d, o.opts.BatchSize)
	out.Records = batch.Valid()
	out.Rejected = len(batch.Errors)
	if batch.Malformed() {
		out.Rejected = 0
	}
	for _, e := range batch.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	o.metrics.RecordsAccepted.WithLabelValues(string(d)).Add(float64(out.Records))
	o.metrics.RecordsRejected.WithLabelValues(string(d)).Add(float64(out.Rejected))

	switch {
	case batch.Malformed():
		out.Failure = FailureMalformed
		o.metrics.GenerationRequests.WithLabelValues(string(d), "malformed").Inc()
	case !o.opts.Policy.Accepts(out.Records, o.opts.BatchSize):
		out.Failure = FailureSchema
	}
	if out.Failure != FailureNone {
		span.SetStatus(codes.Error, string(out.Failure))
		o.logger.Warn("dataset rejected",
			"dataset", d, "failure", out.Failure, "valid", out.Records, "rejected", out.Rejected)
		return pipelineResult{outcome: out, batch: batch}
	}
	if out.Rejected > 0 {
		o.logger.Warn("dataset partially accepted", "dataset", d, "valid", out.Records, "rejected", out.Rejected)
	}

	if d == domain.DatasetAlerts {
		batch.Alerts = domain.EnrichAlerts(ctx, batch.Alerts, o.geocoder, o.opts.Region, o.logger)
	}
	span.SetAttributes(attribute.Int("records", out.Records), attribute.Int("rejected", out.Rejected))
	return pipelineResult{outcome: out, batch: batch}
}

// generate calls the generator with a per-attempt timeout, retrying
// GenerationUnavailable failures with exponential backoff.
func (o *Orchestrator) generate(ctx context.Context, req domain.GenerationRequest) (string, int, error) {
	backoff := o.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= o.opts.Retries+1; attempt++ {
		raw, err := o.generateOnce(ctx, req)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrGenerationUnavailable) || attempt > o.opts.Retries {
			return "", attempt, lastErr
		}
		o.logger.Warn("generation attempt failed, retrying",
			"dataset", req.Dataset, "attempt", attempt, "backoff", backoff, "error", err)
		if !sleepWithContext(ctx, backoff) {
			return "", attempt, fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, ctx.Err())
		}
		backoff = nextBackoff(backoff, backoffCap)
	}
	return "", o.opts.Retries + 1, lastErr
}

func (o *Orchestrator) generateOnce(ctx context.Context, req domain.GenerationRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := o.gen.Generate(attemptCtx, req)
	o.metrics.GenerationDuration.WithLabelValues(string(req.Dataset)).Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.GenerationRequests.WithLabelValues(string(req.Dataset), "unavailable").Inc()
		if !errors.Is(err, domain.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		return "", err
	}
	o.metrics.GenerationRequests.WithLabelValues(string(req.Dataset), "success").Inc()
	return raw, nil
}

// commit swaps one table. Must be called with writeMu held.
func (o *Orchestrator) commit(ctx context.Context, batch domain.Batch) {
	var snap domain.TableSnapshot
	switch batch.Dataset {
	case domain.DatasetAlerts:
		snap = o.store.ReplaceAlerts(batch.Alerts)
	case domain.DatasetResources:
		snap = o.store.ReplaceResources(batch.Facilities, batch.Resources)
	case domain.DatasetSocial:
		snap = o.store.ReplaceSocial(batch.Social)
	default:
		return
	}
	o.logger.Info("dataset committed", "dataset", batch.Dataset, "records", batch.Valid(), "version", snap.Version)
	o.publish(ctx, snap)
}

// Tick applies one decay step on demand ("simulate time passing").
func (o *Orchestrator) Tick(ctx context.Context) domain.TableSnapshot {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	return o.decayLocked(ctx)
}

func (o *Orchestrator) decayLocked(ctx context.Context) domain.TableSnapshot {
	snap := o.store.Decay(o.opts.Decay.Func(o.rnd))
	o.metrics.DecayRuns.Inc()
	o.logger.Info("resource decay applied", "factor", o.opts.Decay.Factor, "facilities", len(snap.Facilities), "version", snap.Version)
	o.publish(ctx, snap)
	return snap
}

// Reset restores every table to its placeholder row.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	for _, snap := range o.store.Reset() {
		o.publish(ctx, snap)
	}
	o.lastUnavailable.Store(false)
	o.logger.Info("simulation state reset")
}

// publish is best effort: failures are logged and counted only. It runs
// under writeMu, so each call is bounded by PublishTimeout.
func (o *Orchestrator) publish(ctx context.Context, snap domain.TableSnapshot) {
	if o.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.PublishTimeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, snap); err != nil {
		o.metrics.SnapshotsPublished.WithLabelValues("error").Inc()
		o.logger.Warn("snapshot publish failed", "dataset", snap.Dataset, "version", snap.Version, "error", err)
		return
	}
	o.metrics.SnapshotsPublished.WithLabelValues("success").Inc()
}

func commitLabel(applied bool) string {
	if applied {
		return "applied"
	}
	return "retained"
}
