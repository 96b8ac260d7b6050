// Package main provides ragctl, a command-line client for rag-server.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
	"github.com/bull/rag-server/internal/logger"
	ghsource "github.com/bull/rag-server/internal/source/github"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Client for the RAG ingestion and question-answering server",
	Long:  "CLI tool for submitting documents to rag-server, tracking ingestion jobs and asking questions",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Submit local files for ingestion",
	Long: `Reads each file, infers its format from the extension and submits them
as one ingestion job. Supported formats: .txt, .md, .csv, .tsv.

With --wait the command polls until the job finishes and prints the
per-document outcome.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the status of an ingestion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var ingestGitHubCmd = &cobra.Command{
	Use:   "ingest-github OWNER/REPO [PATH]",
	Short: "Fetch a GitHub directory and submit its documents",
	Long: `Lists the repository directory recursively, downloads every text,
markdown, CSV and TSV file and submits them in batches.

Environment variables:
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngestGitHub,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RAG_SERVER_URL", "http://localhost:8080"), "rag-server base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-request timeout")

	ingestCmd.Flags().Bool("wait", false, "wait for the job to finish")
	askCmd.Flags().Int("top-k", 0, "number of chunks to retrieve (server default when 0)")
	ingestGitHubCmd.Flags().Int("batch", 20, "documents per ingestion job")

	rootCmd.AddCommand(ingestCmd, statusCmd, askCmd, ingestGitHubCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newClient(serverURL, timeout)

	docs := make([]domain.Document, 0, len(args))
	for _, p := range args {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		name := filepath.Base(p)
		format := domain.FormatFromName(name)
		if err := domain.CheckFormat(format, name); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		docs = append(docs, domain.Document{SourceName: name, Format: format, Content: string(data)})
	}

	job, err := c.Submit(ctx, docs)
	if err != nil {
		return err
	}
	fmt.Printf("Submitted %d documents as job %s\n", len(docs), job.ID)

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		return nil
	}
	job, err = c.Wait(ctx, job.ID, time.Second)
	if err != nil {
		return err
	}
	printJob(job)
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	job, err := newClient(serverURL, timeout).Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	ans, err := newClient(serverURL, timeout).Ask(cmd.Context(), strings.Join(args, " "), topK)
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if ans.Degraded {
		fmt.Println("\n(reranking unavailable for some sources; ordered by similarity)")
	}
	if len(ans.Citations) == 0 {
		return nil
	}
	fmt.Println("\nSources:")
	for _, c := range ans.Citations {
		marker := " "
		if c.Cited {
			marker = "*"
		}
		fmt.Printf(" %s %v %s [%d-%d]\n", marker, c.SourceIDs, c.SourceName, c.Offsets.Start, c.Offsets.End)
	}
	return nil
}

func runIngestGitHub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()
	log := logger.Setup("info", "text")

	owner, repo, ok := strings.Cut(args[0], "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("expected OWNER/REPO, got %q", args[0])
	}
	var dir string
	if len(args) == 2 {
		dir = args[1]
	}

	gh, err := ghsource.NewClient(os.Getenv("GITHUB_TOKEN"))
	if err != nil {
		return fmt.Errorf("Failed to create GitHub client: %w", err)
	}
	fetcher := ghsource.NewFetcher(gh, owner, repo, dir, log)
	batch, _ := cmd.Flags().GetInt("batch")

	res, err := ghsource.Sync(ctx, fetcher, newClient(serverURL, timeout), batch)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Submitted!")
	fmt.Printf("  Commit: %s\n", res.CommitSHA)
	fmt.Printf("  Documents: %d\n", res.Documents)
	fmt.Printf("  Jobs: %s\n", strings.Join(res.JobIDs, ", "))
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printJob(job *jobs.Job) {
	fmt.Printf("Job %s: %s\n", job.ID, job.Status)
	for _, id := range job.Documents {
		st := job.DocumentStatus[id]
		line := fmt.Sprintf("  - %s (%s): %s", st.SourceName, id, st.Status)
		if st.Chunks > 0 {
			line += fmt.Sprintf(", %d chunks", st.Chunks)
		}
		if st.Error != "" {
			line += ": " + st.Error
		}
		fmt.Println(line)
	}
	if job.ErrorDetail != "" {
		fmt.Printf("  error: %s\n", job.ErrorDetail)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

