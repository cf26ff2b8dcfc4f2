// Package service orchestrates the article processing pipeline: extract,
// classify, filter, store
package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"muckrake/internal/core/labelcache"
	"muckrake/internal/modkit/repokit"
	perr "muckrake/internal/platform/errors"
	"muckrake/internal/platform/logger"
	discdom "muckrake/internal/services/discover/domain"
	"muckrake/internal/services/pipeline/domain"
)

// LabelCache is the slice of the canonicalization cache the orchestrator
// uses. Results are keyed by the raw input label.
type LabelCache interface {
	GetMany(labels []string) map[string]labelcache.Entry
	SetMany(entries map[string]labelcache.Entry)
}

// Config tunes one pipeline run
type Config struct {
	// Concurrency caps items in flight, defaults to 4
	Concurrency int

	// MinConfidence is the relevance bar, defaults to 0.7
	MinConfidence float64

	// MaxAttempts per extract/classify/store call, defaults to 3
	MaxAttempts int

	// RetryBase is the first backoff step, defaults to 2s
	RetryBase time.Duration

	// SkipExisting prechecks the batch against storage before processing
	SkipExisting bool

	// DryRun runs every step but rolls the storage transaction back
	DryRun bool
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.7
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
}

// Service runs discovered items through the pipeline
type Service struct {
	DB          repokit.TxRunner
	Binder      repokit.Binder[domain.StorageRepo]
	Extractor   domain.Extractor
	Classifiers []domain.Classifier
	Normalizer  domain.LabelNormalizer
	Cache       LabelCache
	Cfg         Config
}

// Deps wires the service
type Deps struct {
	DB          repokit.TxRunner
	Binder      repokit.Binder[domain.StorageRepo]
	Extractor   domain.Extractor
	Classifiers []domain.Classifier
	Normalizer  domain.LabelNormalizer
	Cache       LabelCache
	Cfg         Config
}

// New builds the pipeline service and panics on missing hard deps.
// Cache and Normalizer may be nil, entity labels then pass through
// uncanonicalized or uncached respectively.
func New(d Deps) *Service {
	if d.DB == nil {
		panic("pipeline: nil DB")
	}
	if d.Binder == nil {
		panic("pipeline: nil Binder")
	}
	if d.Extractor == nil {
		panic("pipeline: nil Extractor")
	}
	if len(d.Classifiers) == 0 {
		panic("pipeline: at least one classifier is required")
	}
	d.Cfg.defaults()
	return &Service{
		DB:          d.DB,
		Binder:      d.Binder,
		Extractor:   d.Extractor,
		Classifiers: d.Classifiers,
		Normalizer:  d.Normalizer,
		Cache:       d.Cache,
		Cfg:         d.Cfg,
	}
}

// sentinel forcing rollback of otherwise-successful dry-run transactions
var errDryRun = errors.New("pipeline: dry run rollback")

// Run processes the batch and always returns an outcome, even when every
// single item failed. The returned error is reserved for context
// cancellation.
func (s *Service) Run(ctx context.Context, items []discdom.Item) (*domain.RunOutcome, error) {
	log := logger.C(ctx)
	out := &domain.RunOutcome{Total: len(items)}

	if s.Cfg.SkipExisting && len(items) > 0 {
		items = s.filterExisting(ctx, items, out)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.Cfg.Concurrency)
	)
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(it discdom.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processItem(ctx, it, &mu, out)
		}(it)
	}
	wg.Wait()

	log.Info().
		Int("total", out.Total).
		Int("stored", out.Stored).
		Int("filtered", out.Filtered).
		Int("duplicates", out.Duplicates).
		Int("failed", out.Failed).
		Msg("pipeline run complete")

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// filterExisting drops items already in storage with one batched query.
// A precheck failure only disables the optimization, every item then runs.
func (s *Service) filterExisting(ctx context.Context, items []discdom.Item, out *domain.RunOutcome) []discdom.Item {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	existing, err := s.Binder.Bind(s.DB).ExistingURLs(ctx, urls)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("existing-url precheck failed, processing full batch")
		return items
	}
	kept := items[:0:0]
	for _, it := range items {
		if _, ok := existing[it.URL]; ok {
			out.SkippedExisting++
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

func (s *Service) processItem(ctx context.Context, it discdom.Item, mu *sync.Mutex, out *domain.RunOutcome) {
	log := logger.C(ctx)

	content, err := s.extractWithRetry(ctx, it.URL)
	if err != nil {
		mu.Lock()
		out.Record(it.URL, err, time.Now().UTC())
		mu.Unlock()
		return
	}
	mu.Lock()
	out.Extracted++
	mu.Unlock()

	in := domain.ClassificationInput{
		URL:         it.URL,
		Section:     it.Section,
		Title:       content.Title,
		FullText:    content.FullText,
		PublishedAt: firstNonNil(content.PublishedAt, it.PublishedAt),
	}
	verdicts, lastErr := s.classifyAll(ctx, in)
	if len(verdicts) == 0 {
		mu.Lock()
		out.Record(it.URL, lastErr, time.Now().UTC())
		mu.Unlock()
		return
	}
	mu.Lock()
	out.Classified++
	mu.Unlock()

	passing := make([]domain.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Passes(s.Cfg.MinConfidence) {
			passing = append(passing, v)
		}
	}
	if len(passing) == 0 {
		mu.Lock()
		out.Filtered++
		mu.Unlock()
		return
	}
	mu.Lock()
	out.Relevant++
	mu.Unlock()

	art := domain.Article{
		URL:          it.URL,
		SourceID:     it.SourceID,
		Section:      it.Section,
		Title:        content.Title,
		Author:       content.Author,
		FullText:     content.FullText,
		PublishedAt:  in.PublishedAt,
		DiscoveredAt: it.DiscoveredAt,
	}
	entities := s.resolveEntities(ctx, passing)

	err = s.storeWithRetry(ctx, art, passing, entities)
	switch {
	case err == nil:
		mu.Lock()
		if !s.Cfg.DryRun {
			out.Stored++
		}
		mu.Unlock()
	case perr.IsDuplicateKey(err):
		// expected on re-runs, counted but never logged as a failure
		mu.Lock()
		out.Duplicates++
		mu.Unlock()
	default:
		log.Warn().Err(err).Str("url", it.URL).Msg("store failed")
		mu.Lock()
		out.Record(it.URL, err, time.Now().UTC())
		mu.Unlock()
	}
}

func (s *Service) extractWithRetry(ctx context.Context, url string) (domain.ExtractedContent, error) {
	var (
		content domain.ExtractedContent
		last    error
	)
	for i := range s.Cfg.MaxAttempts {
		c, err := s.Extractor.Extract(ctx, url)
		if err == nil {
			return c, nil
		}
		last = err
		if i == s.Cfg.MaxAttempts-1 {
			break
		}
		if se := s.backoff(ctx, i); se != nil {
			return content, last
		}
	}
	return content, last
}

// classifyAll fans out to every configured classifier concurrently.
// Verdicts come back keyed by classifier name; one classifier's exhaustion
// never blocks the others.
func (s *Service) classifyAll(ctx context.Context, in domain.ClassificationInput) (map[string]domain.Verdict, error) {
	type keyed struct {
		name string
		v    domain.Verdict
		err  error
	}
	ch := make(chan keyed, len(s.Classifiers))

	var wg sync.WaitGroup
	for _, c := range s.Classifiers {
		wg.Add(1)
		go func(c domain.Classifier) {
			defer wg.Done()
			v, err := s.classifyWithRetry(ctx, c, in)
			ch <- keyed{name: c.Name(), v: v, err: err}
		}(c)
	}
	wg.Wait()
	close(ch)

	log := logger.C(ctx)
	verdicts := make(map[string]domain.Verdict, len(s.Classifiers))
	var last error
	for k := range ch {
		if k.err != nil {
			log.Warn().Err(k.err).Str("classifier", k.name).Str("url", in.URL).Msg("classifier exhausted retries")
			last = k.err
			continue
		}
		verdicts[k.name] = k.v
	}
	if len(verdicts) == 0 && last == nil {
		last = perr.Classificationf("no classifier produced a verdict for %s", in.URL)
	}
	return verdicts, last
}

func (s *Service) classifyWithRetry(ctx context.Context, c domain.Classifier, in domain.ClassificationInput) (domain.Verdict, error) {
	var last error
	for i := range s.Cfg.MaxAttempts {
		v, err := c.Classify(ctx, in)
		if err == nil {
			v.Classifier = c.Name()
			return v, nil
		}
		last = err
		if i == s.Cfg.MaxAttempts-1 {
			break
		}
		if se := s.backoff(ctx, i); se != nil {
			return domain.Verdict{}, last
		}
	}
	return domain.Verdict{}, perr.WrapIf(last, perr.ErrorCodeClassification, "classify")
}

// resolveEntities canonicalizes the passing verdicts' entity labels through
// the cache. Only misses reach the normalizer; when labels collide on the
// same canonical form within one item, the last write wins. The cache and
// normalizer are both optional, labels degrade to identity entries.
func (s *Service) resolveEntities(ctx context.Context, verdicts []domain.Verdict) []domain.Entity {
	var labels []string
	seen := make(map[string]struct{})
	for _, v := range verdicts {
		for _, l := range v.KeyEntities {
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return nil
	}

	entries := make(map[string]labelcache.Entry, len(labels))
	if s.Cache != nil {
		for l, e := range s.Cache.GetMany(labels) {
			entries[l] = e
		}
	}

	var misses []string
	for _, l := range labels {
		if _, ok := entries[l]; !ok {
			misses = append(misses, l)
		}
	}
	if len(misses) > 0 {
		fresh := s.normalizeLabels(ctx, misses)
		if s.Cache != nil && len(fresh) > 0 {
			s.Cache.SetMany(fresh)
		}
		for l, e := range fresh {
			entries[l] = e
		}
	}

	// Last write wins when two labels share a canonical form
	byCanonical := make(map[string]int, len(labels))
	var ents []domain.Entity
	for _, l := range labels {
		e, ok := entries[l]
		if !ok {
			continue
		}
		if i, dup := byCanonical[e.NormalizedValue]; dup {
			ents[i] = e
			continue
		}
		byCanonical[e.NormalizedValue] = len(ents)
		ents = append(ents, e)
	}
	return ents
}

func (s *Service) normalizeLabels(ctx context.Context, labels []string) map[string]labelcache.Entry {
	if s.Normalizer == nil {
		out := make(map[string]labelcache.Entry, len(labels))
		for _, l := range labels {
			out[l] = labelcache.Entry{OriginalValue: l, NormalizedValue: l, Confidence: 1}
		}
		return out
	}
	var (
		fresh map[string]labelcache.Entry
		last  error
	)
	for i := range s.Cfg.MaxAttempts {
		m, err := s.Normalizer.NormalizeLabels(ctx, labels)
		if err == nil {
			fresh = m
			break
		}
		last = err
		if i == s.Cfg.MaxAttempts-1 {
			break
		}
		if se := s.backoff(ctx, i); se != nil {
			break
		}
	}
	if fresh == nil {
		// labels stay unlinked for this item rather than failing the store
		logger.C(ctx).Warn().Err(last).Int("labels", len(labels)).Msg("label normalization failed, skipping entity links")
		return nil
	}
	return fresh
}

// storeWithRetry commits one transaction per item. Duplicates bubble up
// unretried, retryable storage errors get the shared backoff treatment.
func (s *Service) storeWithRetry(ctx context.Context, art domain.Article, verdicts []domain.Verdict, ents []domain.Entity) error {
	var last error
	for i := range s.Cfg.MaxAttempts {
		err := s.storeTx(ctx, art, verdicts, ents)
		if err == nil || perr.IsDuplicateKey(err) {
			return err
		}
		last = err
		if !perr.Retryable(err) || i == s.Cfg.MaxAttempts-1 {
			break
		}
		if se := s.backoff(ctx, i); se != nil {
			return last
		}
	}
	return last
}

func (s *Service) storeTx(ctx context.Context, art domain.Article, verdicts []domain.Verdict, ents []domain.Entity) error {
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		r := s.Binder.Bind(q)

		id, err := r.InsertArticle(ctx, art)
		if err != nil {
			return err
		}
		for _, v := range verdicts {
			if err := r.InsertClassification(ctx, id, v); err != nil {
				return err
			}
		}
		for _, e := range ents {
			eid, err := r.UpsertEntity(ctx, e)
			if err != nil {
				return err
			}
			if err := r.LinkEntity(ctx, id, eid); err != nil {
				return err
			}
		}
		if s.Cfg.DryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

func (s *Service) backoff(ctx context.Context, attempt int) error {
	d := min(s.Cfg.RetryBase<<attempt, 30*time.Second)
	j := d/2 + time.Duration(rand.Int63n(int64(d/2)))
	return sleepCtx(ctx, j)
}

func firstNonNil(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
