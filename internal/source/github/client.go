// Package github pulls documents from a directory of a GitHub repository so
// they can be submitted for ingestion.
package github

import (
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// NewClient creates a GitHub API client that waits out primary and secondary
// rate limits. An empty token gives anonymous access (60 requests/hour).
func NewClient(token string) (*github.Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}
	client := github.NewClient(rateLimiter)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client, nil
}
