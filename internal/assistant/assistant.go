// Package assistant answers free-text questions about the running scenario,
// grounded on the social updates currently in the store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
)

// metricsLabel is the dataset label used for assistant generation metrics.
const metricsLabel = "assistant"

// Sampling for free-text answers.
const (
	answerMaxTokens = 500
	answerTopP      = 0.9
)

// minKeywordLen drops articles and prepositions ("the", "is", "at") from
// query matching.
const minKeywordLen = 4

const systemRole = `You are an assistant for emergency management during a crisis in Qatar.
Provide clear, accurate information based on the available data and social media updates.
Answer in plain text, in at most a few short paragraphs.`

// UpdateSource supplies a copy of the current social updates.
type UpdateSource interface {
	Social() []domain.SocialUpdate
}

// Answer is the assistant's reply and the updates it was grounded on.
type Answer struct {
	Query   string                `json:"query"`
	Answer  string                `json:"answer"`
	Sources []domain.SocialUpdate `json:"sources"`
}

// Assistant is safe for concurrent use.
type Assistant struct {
	gen     domain.Generator
	updates UpdateSource
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Assistant. timeout bounds each generation call.
func New(gen domain.Generator, updates UpdateSource, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Assistant {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Assistant{gen: gen, updates: updates, timeout: timeout, logger: logger, metrics: metrics}
}

// Ask answers query. It returns domain.ErrEmptyPrompt for a blank query and
// an error wrapping domain.ErrGenerationUnavailable when the model fails.
func (a *Assistant) Ask(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, domain.ErrEmptyPrompt
	}

	sources := Relevant(a.updates.Social(), query)
	req := domain.GenerationRequest{
		SystemRole: systemRole,
		UserPrompt: userPrompt(sources, query),
		MaxTokens:  answerMaxTokens,
		TopP:       answerTopP,
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.gen.Generate(ctx, req)
	a.metrics.GenerationDuration.WithLabelValues(metricsLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.GenerationRequests.WithLabelValues(metricsLabel, "unavailable").Inc()
		a.logger.Warn("assistant generation failed", "error", err)
		if !errors.Is(err, domain.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		return Answer{}, err
	}
	a.metrics.GenerationRequests.WithLabelValues(metricsLabel, "success").Inc()

	a.logger.Info("assistant answered", "sources", len(sources), "duration", time.Since(start))
	return Answer{Query: query, Answer: strings.TrimSpace(text), Sources: sources}, nil
}

// Relevant returns the updates whose message contains any keyword of query,
// ignoring case, in their original order.
func Relevant(updates []domain.SocialUpdate, query string) []domain.SocialUpdate {
	words := keywords(query)
	out := make([]domain.SocialUpdate, 0, len(updates))
	for _, u := range updates {
		msg := strings.ToLower(u.Message)
		for _, w := range words {
			if strings.Contains(msg, w) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// keywords splits query into lower-case words of at least minKeywordLen
// letters, trimmed of punctuation. A query made only of short words keeps
// all of them.
func keywords(query string) []string {
	all := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	long := make([]string, 0, len(all))
	for _, w := range all {
		if utf8.RuneCountInString(w) >= minKeywordLen {
			long = append(long, w)
		}
	}
	if len(long) == 0 {
		return all
	}
	return long
}

func userPrompt(sources []domain.SocialUpdate, query string) string {
	var b strings.Builder
	b.WriteString("Context from social media:\n")
	if len(sources) == 0 {
		b.WriteString("(no matching updates)\n")
	}
	for _, u := range sources {
		verified := ""
		if u.Verified {
			verified = ", verified"
		}
		fmt.Fprintf(&b, "- %s (%s%s): %s\n", u.Username, u.Location, verified, u.Message)
	}
	fmt.Fprintf(&b, "\nUser question: %s", query)
	return b.String()
}
