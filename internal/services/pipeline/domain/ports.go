package domain

import (
	"context"

	"muckrake/internal/core/labelcache"
)

// Extractor fetches and parses the full content behind an item URL
type Extractor interface {
	Extract(ctx context.Context, url string) (ExtractedContent, error)
}

// Classifier judges one item's relevance. Name identifies the classifier
// so fan-out results stay traceable when several run against one input.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, in ClassificationInput) (Verdict, error)
}

// LabelNormalizer canonicalizes raw entity labels, keyed by the raw label
type LabelNormalizer interface {
	NormalizeLabels(ctx context.Context, labels []string) (map[string]labelcache.Entry, error)
}

// StorageRepo is the storage surface for one run. Insert methods operate on
// whatever Queryer the repo was bound to, so the orchestrator decides the
// transaction boundary. InsertArticle signals duplicates with a
// duplicate-key coded error the caller must special-case.
type StorageRepo interface {
	// ExistingURLs returns the subset of urls already stored
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)

	// InsertArticle stores the article row and returns its id
	InsertArticle(ctx context.Context, a Article) (int64, error)

	// InsertClassification stores one verdict linked to the article
	InsertClassification(ctx context.Context, articleID int64, v Verdict) error

	// UpsertEntity stores or refreshes a canonical entity and returns its id
	UpsertEntity(ctx context.Context, e Entity) (int64, error)

	// LinkEntity ties an entity to an article
	LinkEntity(ctx context.Context, articleID, entityID int64) error
}
