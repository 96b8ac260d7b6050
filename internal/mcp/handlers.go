package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-server/internal/domain"
)

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(answerer Answerer) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		answer, err := answerer.Answer(ctx, domain.ChatQuery{
			Text:             input.Query,
			TopK:             input.TopK,
			MaxContextTokens: input.MaxContextTokens,
		})
		if err != nil {
			return nil, AskQuestionOutput{}, fmt.Errorf("failed to answer: %w", err)
		}

		citations := answer.Citations
		if citations == nil {
			citations = []domain.Citation{}
		}
		used := answer.UsedChunkIDs
		if used == nil {
			used = []string{}
		}
		return nil, AskQuestionOutput{
			Answer:        answer.Text,
			Citations:     citations,
			UsedChunkIDs:  used,
			Confidence:    answer.Confidence,
			Degraded:      answer.Degraded,
			NoInformation: answer.NoInformation,
		}, nil
	}
}

// makeIngestHandler creates the ingest_text tool handler. The tool returns
// as soon as the job is queued; progress is read with get_ingest_status.
func makeIngestHandler(ingester Ingester) func(
	context.Context, *mcp.CallToolRequest, IngestTextInput,
) (*mcp.CallToolResult, IngestTextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestTextInput) (
		*mcp.CallToolResult, IngestTextOutput, error,
	) {
		format := domain.Format(input.Format)
		if format == "" {
			format = domain.FormatFromName(input.SourceName)
		}
		if err := domain.CheckFormat(format, input.SourceName); err != nil {
			return nil, IngestTextOutput{}, err
		}

		job, err := ingester.Submit(ctx, []domain.Document{{
			SourceName: input.SourceName,
			Format:     format,
			Content:    input.Content,
		}})
		if err != nil {
			return nil, IngestTextOutput{}, fmt.Errorf("failed to submit: %w", err)
		}

		out := IngestTextOutput{JobID: job.ID, Status: string(job.Status)}
		if len(job.Documents) > 0 {
			out.DocumentID = job.Documents[0]
		}
		return nil, out, nil
	}
}

// makeStatusHandler creates the get_ingest_status tool handler. Unknown job
// ids report Found=false rather than failing the tool call.
func makeStatusHandler(ingester Ingester) func(
	context.Context, *mcp.CallToolRequest, IngestStatusInput,
) (*mcp.CallToolResult, IngestStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestStatusInput) (
		*mcp.CallToolResult, IngestStatusOutput, error,
	) {
		job, err := ingester.Get(ctx, input.JobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, IngestStatusOutput{Found: false, JobID: input.JobID}, nil
			}
			return nil, IngestStatusOutput{}, fmt.Errorf("failed to get job: %w", err)
		}

		docs := make([]DocumentStatus, 0, len(job.Documents))
		for _, id := range job.Documents {
			st := job.DocumentStatus[id]
			docs = append(docs, DocumentStatus{
				DocumentID: id,
				SourceName: st.SourceName,
				Status:     string(st.Status),
				Chunks:     st.Chunks,
				Error:      st.Error,
			})
		}
		return nil, IngestStatusOutput{
			Found:       true,
			JobID:       job.ID,
			Status:      string(job.Status),
			Documents:   docs,
			ErrorDetail: job.ErrorDetail,
			UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
		}, nil
	}
}
