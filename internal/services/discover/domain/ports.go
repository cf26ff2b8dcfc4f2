package domain

import "context"

// Discoverer is the public port exposed by every discovery strategy
type Discoverer interface {
	// Discover returns the items found for the given news source,
	// deduplicated by URL with the first occurrence winning
	Discover(ctx context.Context, sourceID int64) ([]Item, error)
}
