package github

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/go-github/v81/github"

	"github.com/bull/rag-server/internal/domain"
)

// Fetcher reads every ingestible file below a repository directory.
type Fetcher struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher for owner/repo at basePath.
func NewFetcher(client *github.Client, owner, repo, basePath string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
		logger:   logger.With("component", "github-source", "repo", owner+"/"+repo),
	}
}

// Snapshot is the set of documents found at one commit.
type Snapshot struct {
	CommitSHA string
	Documents []domain.Document
}

// Fetch lists the directory recursively and downloads every file with a
// supported text format. PDFs are skipped. Source names are
// "owner/repo/path" so re-fetching unchanged files yields the same
// document ids.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	sha, err := f.latestCommitSHA(ctx)
	if err != nil {
		return nil, err
	}

	paths, err := f.list(ctx, f.basePath)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Found documents", "commit", sha, "count", len(paths))

	snap := &Snapshot{CommitSHA: sha, Documents: make([]domain.Document, 0, len(paths))}
	for _, p := range paths {
		content, err := f.fetchFile(ctx, p)
		if err != nil {
			return nil, err
		}
		snap.Documents = append(snap.Documents, domain.Document{
			SourceName: path.Join(f.owner, f.repo, p),
			Format:     domain.FormatFromName(p),
			Content:    content,
		})
	}
	return snap, nil
}

func (f *Fetcher) list(ctx context.Context, dir string) ([]string, error) {
	_, entries, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}

	var out []string
	for _, item := range entries {
		full := path.Join(dir, item.GetName())
		switch item.GetType() {
		case "file":
			if ingestible(item.GetName()) {
				out = append(out, full)
			}
		case "dir":
			sub, err := f.list(ctx, full)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

func ingestible(name string) bool {
	return domain.FormatFromName(name).Valid()
}

func (f *Fetcher) fetchFile(ctx context.Context, p string) (string, error) {
	file, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, p, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", p, err)
	}
	if file == nil {
		return "", fmt.Errorf("no file content returned for %s", p)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode content of %s: %w", p, err)
	}
	return content, nil
}

func (f *Fetcher) latestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return commits[0].GetSHA(), nil
}
