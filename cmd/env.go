package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/directory"
	"github.com/azar84/business-directory-cli/internal/enrich"
	"github.com/azar84/business-directory-cli/internal/job"
	"github.com/azar84/business-directory-cli/internal/store"
	"github.com/azar84/business-directory-cli/internal/trace"
	"github.com/azar84/business-directory-cli/pkg/classifier"
)

// initStore opens the configured job store.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// initManager wires the classification source client and the job store.
func initManager(st store.Store) *job.Manager {
	client := classifier.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.Key,
		classifier.WithRateLimit(cfg.Classifier.RequestsPerSec),
	)
	return job.NewManager(client, st,
		job.WithPollInterval(cfg.Classifier.PollInterval()),
		job.WithPollTimeout(cfg.Classifier.PollTimeout()),
	)
}

// pipelineEnv bundles everything the enrichment commands need. The directory
// and trace tables live in postgres; the full pipeline therefore requires the
// postgres driver, while the job commands run on either driver.
type pipelineEnv struct {
	Store    store.Store
	Manager  *job.Manager
	Enricher *enrich.Enricher
	Dir      *directory.PostgresStore
	Recorder *trace.Recorder

	pool *pgxpool.Pool
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver != "postgres" {
		return nil, eris.New("the enrichment pipeline requires store.driver=postgres; the sqlite driver only tracks jobs")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "open directory pool")
	}

	env := &pipelineEnv{Store: st, pool: pool}
	env.Dir = directory.NewPostgres(pool)
	if err := env.Dir.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}
	env.Recorder = trace.NewRecorder(pool)
	if err := env.Recorder.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	env.Manager = initManager(st)
	env.Enricher = enrich.New(enrich.Config{
		Jobs:     env.Manager,
		Resolver: directory.NewResolver(env.Dir),
		Store:    st,
		Recorder: env.Recorder,
		ResolveOpts: directory.Options{
			MinConfidence:  cfg.Enrich.MinConfidence,
			DryRun:         cfg.Enrich.DryRun,
			DefaultCountry: cfg.Enrich.DefaultCountry,
		},
		MaxConcurrent: cfg.Enrich.MaxConcurrent,
	})
	return env, nil
}
