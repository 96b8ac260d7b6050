package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
)

func fileJSON(name, content string) string {
	return fmt.Sprintf(`{"type":"file","name":%q,"encoding":"base64","content":%q,"sha":"blob"}`,
		name, base64.StdEncoding.EncodeToString([]byte(content)))
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docs", r.URL.Query().Get("path"))
		fmt.Fprint(w, `[{"sha":"abc123"}]`)
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"type":"file","name":"intro.md"},
			{"type":"file","name":"logo.png"},
			{"type":"file","name":"scan.pdf"},
			{"type":"dir","name":"policies"}
		]`)
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/policies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"rates.csv"}]`)
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/intro.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fileJSON("intro.md", "# Intro\n\nWelcome."))
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/policies/rates.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fileJSON("rates.csv", "name,rate\na,1\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewFetcher(client, "acme", "handbook", "docs", nil)
}

func TestFetcher_Fetch(t *testing.T) {
	f := newTestFetcher(t)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", snap.CommitSHA)
	require.Len(t, snap.Documents, 2)

	intro := snap.Documents[0]
	assert.Equal(t, "acme/handbook/docs/intro.md", intro.SourceName)
	assert.Equal(t, domain.FormatMarkdown, intro.Format)
	assert.Equal(t, "# Intro\n\nWelcome.", intro.Content)

	rates := snap.Documents[1]
	assert.Equal(t, "acme/handbook/docs/policies/rates.csv", rates.SourceName)
	assert.Equal(t, domain.FormatCSV, rates.Format)
}

func TestIngestible(t *testing.T) {
	tests := map[string]bool{
		"a.md":       true,
		"b.markdown": true,
		"c.txt":      true,
		"d.tsv":      true,
		"e.pdf":      false,
		"f.png":      false,
		"Makefile":   false,
	}
	for name, want := range tests {
		if got := ingestible(name); got != want {
			t.Errorf("ingestible(%q) = %v, want %v", name, got, want)
		}
	}
}
