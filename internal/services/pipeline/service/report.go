package service

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"muckrake/internal/services/pipeline/domain"
)

// Report is the operator-facing summary of one run
type Report struct {
	Metadata         Metadata          `json:"metadata"`
	Summary          domain.RunOutcome `json:"summary"`
	ErrorsByCategory map[string]int    `json:"errors_by_category"`
	Performance      Performance       `json:"performance"`
}

// Metadata captures the parameters the run executed with
type Metadata struct {
	RunID         string    `json:"run_id"`
	Input         string    `json:"input,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	DryRun        bool      `json:"dry_run"`
	Concurrency   int       `json:"concurrency"`
	MinConfidence float64   `json:"min_confidence"`
	SkipExisting  bool      `json:"skip_existing"`
}

// Performance carries run throughput figures
type Performance struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ItemsPerSecond float64 `json:"items_per_second"`
}

// NewRunID mints the identifier stamped into reports and logs
func NewRunID() string { return uuid.NewString() }

// BuildReport assembles the summary for a finished run
func BuildReport(runID, input string, cfg Config, out *domain.RunOutcome, startedAt time.Time, elapsed time.Duration) Report {
	perf := Performance{ElapsedSeconds: elapsed.Seconds()}
	if perf.ElapsedSeconds > 0 {
		perf.ItemsPerSecond = float64(out.Total) / perf.ElapsedSeconds
	}
	return Report{
		Metadata: Metadata{
			RunID:         runID,
			Input:         input,
			StartedAt:     startedAt.UTC(),
			DryRun:        cfg.DryRun,
			Concurrency:   cfg.Concurrency,
			MinConfidence: cfg.MinConfidence,
			SkipExisting:  cfg.SkipExisting,
		},
		Summary:          *out,
		ErrorsByCategory: out.ErrorsByCategory(),
		Performance:      perf,
	}
}

// Write emits the report as indented JSON
func (r Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteErrorLog emits one failure record per line
func WriteErrorLog(w io.Writer, errs []domain.ErrorRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, e := range errs {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return bw.Flush()
}
