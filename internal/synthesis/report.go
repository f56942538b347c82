package synthesis

import (
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// FailureKind classifies why a dataset was not applied.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureUnavailable FailureKind = "generation_unavailable"
	FailureMalformed   FailureKind = "malformed_response"
	FailureSchema      FailureKind = "schema_violation"
)

// DatasetOutcome is the per-dataset part of a Report.
type DatasetOutcome struct {
	Dataset  domain.Dataset `json:"dataset"`
	Applied  bool           `json:"applied"`
	Records  int            `json:"records"`  // valid records; committed when Applied
	Rejected int            `json:"rejected"` // records that failed validation
	Attempts int            `json:"attempts"`
	Failure  FailureKind    `json:"failure,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

// Report enumerates the outcome of one synthesis, dataset by dataset.
type Report struct {
	ID         uuid.UUID      `json:"id"`
	Prompt     string         `json:"prompt"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Alerts     DatasetOutcome `json:"alerts"`
	Resources  DatasetOutcome `json:"resources"`
	Social     DatasetOutcome `json:"social"`
	Decayed    bool           `json:"decayed"`
}

// Outcomes returns the three dataset outcomes in commit order.
func (r Report) Outcomes() []DatasetOutcome {
	return []DatasetOutcome{r.Alerts, r.Resources, r.Social}
}

// Applied counts datasets whose tables were replaced.
func (r Report) Applied() int {
	n := 0
	for _, o := range r.Outcomes() {
		if o.Applied {
			n++
		}
	}
	return n
}

func (r *Report) set(o DatasetOutcome) {
	switch o.Dataset {
	case domain.DatasetAlerts:
		r.Alerts = o
	case domain.DatasetResources:
		r.Resources = o
	case domain.DatasetSocial:
		r.Social = o
	}
}
