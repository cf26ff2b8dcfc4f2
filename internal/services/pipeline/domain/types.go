// Package domain holds the core data structures and ports for the
// processing pipeline
package domain

import (
	"time"

	"muckrake/internal/core/labelcache"
	perr "muckrake/internal/platform/errors"
)

// ExtractedContent is the usable article body pulled from a page
type ExtractedContent struct {
	URL         string
	Title       string
	FullText    string
	Author      string
	PublishedAt *time.Time
}

// ClassificationInput is everything a classifier sees for one item
type ClassificationInput struct {
	URL         string
	Section     string
	Title       string
	FullText    string
	PublishedAt *time.Time
}

// Verdict is one classifier's judgement of one item
type Verdict struct {
	IsRelevant  bool     `json:"is_relevant"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	KeyEntities []string `json:"key_entities"`
	Classifier  string   `json:"classifier"`
	Model       string   `json:"model"`
}

// Passes reports whether the verdict clears the relevance bar
func (v Verdict) Passes(minConfidence float64) bool {
	return v.IsRelevant && v.Confidence >= minConfidence
}

// Article is the stored record for a relevant item
type Article struct {
	URL          string
	SourceID     int64
	Section      string
	Title        string
	Author       string
	FullText     string
	PublishedAt  *time.Time
	DiscoveredAt time.Time
}

// Entity is a canonicalized label linked to stored articles
type Entity = labelcache.Entry

// ErrorRecord is one per-item failure, appended to the run's error log
type ErrorRecord struct {
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RunOutcome aggregates what happened to every item in a run
type RunOutcome struct {
	Total           int `json:"total"`
	SkippedExisting int `json:"skipped_existing"`
	Extracted       int `json:"extracted"`
	Classified      int `json:"classified"`
	Relevant        int `json:"relevant"`
	Filtered        int `json:"filtered"`
	Stored          int `json:"stored"`
	Duplicates      int `json:"duplicates"`
	Failed          int `json:"failed"`

	Errors []ErrorRecord `json:"-"`
}

// Record appends a failure for url under the category of err
func (o *RunOutcome) Record(url string, err error, at time.Time) {
	o.Failed++
	o.Errors = append(o.Errors, ErrorRecord{
		URL:       url,
		Category:  perr.CategoryOf(err),
		Message:   err.Error(),
		Timestamp: at,
	})
}

// ErrorsByCategory buckets the recorded failures for the run summary
func (o *RunOutcome) ErrorsByCategory() map[string]int {
	m := make(map[string]int, 4)
	for _, e := range o.Errors {
		m[e.Category]++
	}
	return m
}
