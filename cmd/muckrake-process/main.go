// Command muckrake-process runs a discovered-item batch through the
// extraction, classification and storage pipeline and writes a run report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"muckrake/internal/adapters/classify"
	"muckrake/internal/adapters/extract"
	"muckrake/internal/core/labelcache"
	"muckrake/internal/modkit/repokit"
	"muckrake/internal/platform/config"
	"muckrake/internal/platform/logger"
	"muckrake/internal/platform/store"
	"muckrake/internal/services/discover/batch"
	"muckrake/internal/services/pipeline/domain"
	"muckrake/internal/services/pipeline/repo"
	"muckrake/internal/services/pipeline/service"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Get()

	root := config.New().Prefix("MUCKRAKE_")
	pgCfg := root.Prefix("PGSQL_")

	var (
		fIn            = flag.String("in", "discovered.jsonl", "input NDJSON batch path")
		fReport        = flag.String("report", "run-report.json", "run summary output path")
		fErrLog        = flag.String("errors", "run-errors.jsonl", "error log output path")
		fDryRun        = flag.Bool("dry-run", false, "classify everything, commit nothing")
		fConcurrency   = flag.Int("concurrency", 4, "items in flight at once")
		fMinConfidence = flag.Float64("min-confidence", 0.7, "relevance confidence threshold")
		fSkipExisting  = flag.Bool("skip-existing", true, "skip urls already in storage")
	)
	flag.Parse()

	items, err := batch.ReadFile(*fIn)
	if err != nil {
		l.Panic().Err(err).Str("in", *fIn).Msg("reading batch failed")
	}

	st, err := store.Open(context.Background(), store.Config{
		AppName: "muckrake-process",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", *fConcurrency*2)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	repokit.MustGuard(context.Background(), st)

	db := repokit.TxRunner(st.PG)
	if ms := pgCfg.MayInt("TX_TIMEOUT_MS", 0); ms > 0 {
		db = repokit.WithBeginHooks(db, func(ctx context.Context, q repokit.Queryer) error {
			_, err := q.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms))
			return err
		})
	}

	aiCfg := classify.Config{
		APIKey: root.MustString("ANTHROPIC_API_KEY"),
		Model:  root.MayString("MODEL", ""),
	}
	cache := labelcache.New(
		root.MayInt("CACHE_MAX_SIZE", labelcache.DefaultMaxSize),
		root.MayDuration("CACHE_TTL", labelcache.DefaultTTL),
	)

	cfg := service.Config{
		Concurrency:   *fConcurrency,
		MinConfidence: *fMinConfidence,
		SkipExisting:  *fSkipExisting,
		DryRun:        *fDryRun,
	}
	svc := service.New(service.Deps{
		DB:          db,
		Binder:      repo.NewPG(),
		Extractor:   extract.New(extract.Config{}),
		Classifiers: []domain.Classifier{classify.NewCorruption(aiCfg)},
		Normalizer:  classify.NewNormalizer(aiCfg),
		Cache:       cache,
		Cfg:         cfg,
	})

	runID := service.NewRunID()
	ctx := logger.WithRun(context.Background(), runID, "process")

	started := time.Now()
	out, err := svc.Run(ctx, items)
	elapsed := time.Since(started)
	if err != nil {
		l.Error().Err(err).Msg("run interrupted")
	}

	rep := service.BuildReport(runID, *fIn, cfg, out, started, elapsed)
	if err := writeReport(rep, *fReport, *fErrLog, out.Errors); err != nil {
		l.Panic().Err(err).Msg("writing report failed")
	}

	stats := cache.Stats()
	l.Info().
		Int("stored", out.Stored).
		Int("failed", out.Failed).
		Float64("cache_hit_rate", stats.HitRate).
		Str("report", *fReport).
		Msg("run complete")
}

func writeReport(rep service.Report, reportPath, errPath string, errs []domain.ErrorRecord) error {
	rf, err := os.Create(reportPath)
	if err != nil {
		return err
	}
	if err := rep.Write(rf); err != nil {
		_ = rf.Close()
		return err
	}
	if err := rf.Close(); err != nil {
		return err
	}

	ef, err := os.Create(errPath)
	if err != nil {
		return err
	}
	if err := service.WriteErrorLog(ef, errs); err != nil {
		_ = ef.Close()
		return err
	}
	return ef.Close()
}
