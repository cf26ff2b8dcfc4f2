// Package repo provides postgres access for pipeline writes
package repo

import (
	"context"

	"muckrake/internal/modkit/repokit"
	perr "muckrake/internal/platform/errors"
	"muckrake/internal/services/pipeline/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// ExistingURLs returns the subset of urls already present in articles
func (r *queries) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT url FROM articles WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, perr.FromPostgresf(err, "select existing urls")
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, perr.FromPostgresf(err, "scan existing url")
		}
		out[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgresf(err, "iterate existing urls")
	}
	return out, nil
}

// InsertArticle stores the article row and returns its id. A unique
// violation on url surfaces as a duplicate-key coded error.
func (r *queries) InsertArticle(ctx context.Context, a domain.Article) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO articles (
			url, news_source_id, section, title, author,
			full_text, published_date, discovered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		a.URL, a.SourceID, a.Section, a.Title, a.Author,
		a.FullText, a.PublishedAt, a.DiscoveredAt,
	).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgresf(err, "insert article %s", a.URL)
	}
	return id, nil
}

// InsertClassification stores one verdict linked to the article
func (r *queries) InsertClassification(ctx context.Context, articleID int64, v domain.Verdict) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO article_classifications (
			article_id, classifier, model, is_relevant, confidence, reasoning
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, articleID, v.Classifier, v.Model, v.IsRelevant, v.Confidence, v.Reasoning)
	if err != nil {
		return perr.FromPostgresf(err, "insert classification %s for article %d", v.Classifier, articleID)
	}
	return nil
}

// UpsertEntity stores or refreshes a canonical entity and returns its id
func (r *queries) UpsertEntity(ctx context.Context, e domain.Entity) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO entities (canonical_label, original_label, confidence, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (canonical_label) DO UPDATE
		SET original_label = EXCLUDED.original_label,
			confidence = EXCLUDED.confidence,
			reason = EXCLUDED.reason,
			updated_at = now()
		RETURNING id
	`, e.NormalizedValue, e.OriginalValue, e.Confidence, e.Reason).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgresf(err, "upsert entity %q", e.NormalizedValue)
	}
	return id, nil
}

// LinkEntity ties an entity to an article (idempotent)
func (r *queries) LinkEntity(ctx context.Context, articleID, entityID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO article_entities (article_id, entity_id)
		VALUES ($1, $2)
		ON CONFLICT (article_id, entity_id) DO NOTHING
	`, articleID, entityID)
	if err != nil {
		return perr.FromPostgresf(err, "link entity %d to article %d", entityID, articleID)
	}
	return nil
}
