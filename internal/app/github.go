package app

import (
	"context"
	"errors"

	"github.com/bull/rag-server/internal/config"
	"github.com/bull/rag-server/internal/schedule"
	ghsource "github.com/bull/rag-server/internal/source/github"
)

// scheduleGitHubSync registers a cron task that re-ingests the configured
// repository directory.
func (a *App) scheduleGitHubSync(cfg *config.Config) error {
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return errors.New("github.owner and github.repo are required when github.schedule is set")
	}
	client, err := ghsource.NewClient(cfg.GitHub.Token)
	if err != nil {
		return err
	}
	fetcher := ghsource.NewFetcher(client, cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Path, a.logger)
	batch := cfg.Ingest.MaxDocuments

	a.scheduler = schedule.New(a.logger)
	return a.scheduler.Add(cfg.GitHub.Schedule, schedule.TaskFunc{
		TaskName: "github-sync",
		Fn: func(ctx context.Context) error {
			_, err := ghsource.Sync(ctx, fetcher, a.Ingestion, batch)
			return err
		},
	})
}
