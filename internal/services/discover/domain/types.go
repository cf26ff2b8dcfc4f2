// Package domain holds the core data structures and ports for article discovery
package domain

import "time"

// FeedSource configures a single RSS feed and the section label its items inherit
type FeedSource struct {
	URL     string `validate:"required,url"`
	Section string `validate:"required"`
}

// Item is an article surfaced by discovery. URL is the unique identifier at
// this stage; full content is fetched later by the processing pipeline.
type Item struct {
	URL          string     `json:"url"            validate:"required,startswith=http"`
	SourceID     int64      `json:"source_id"      validate:"required,gt=0"`
	Section      string     `json:"section"        validate:"required"`
	DiscoveredAt time.Time  `json:"discovered_at"  validate:"required"`
	Title        string     `json:"title,omitempty"`
	PublishedAt  *time.Time `json:"published_date,omitempty"`
}
