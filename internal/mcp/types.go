// Package mcp exposes question answering and ingestion as Model Context
// Protocol tools.
package mcp

import "github.com/bull/rag-server/internal/domain"

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"the question to answer from the indexed documents"`
	// TopK is how many chunks to retrieve.
	TopK int `json:"top_k,omitempty" jsonschema:"number of chunks to retrieve (1-50, default 5)"`
	// MaxContextTokens bounds the context handed to the model.
	MaxContextTokens int `json:"max_context_tokens,omitempty" jsonschema:"token budget for the assembled context"`
}

// AskQuestionOutput is the grounded answer.
type AskQuestionOutput struct {
	Answer        string            `json:"answer"`
	Citations     []domain.Citation `json:"citations"`
	UsedChunkIDs  []string          `json:"used_chunk_ids"`
	Confidence    string            `json:"confidence,omitempty"`
	Degraded      bool              `json:"degraded"`
	NoInformation bool              `json:"no_information"`
}

// IngestTextInput defines the input parameters for the ingest_text tool.
type IngestTextInput struct {
	// SourceName names the document; its extension selects the format.
	SourceName string `json:"source_name" jsonschema:"document name such as faq.md or rates.csv; pdf is not supported"`
	// Content is the document body.
	Content string `json:"content" jsonschema:"full document text"`
	// Format overrides the format inferred from SourceName.
	Format string `json:"format,omitempty" jsonschema:"text, markdown, csv or tsv"`
}

// IngestTextOutput identifies the queued job.
type IngestTextOutput struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
}

// IngestStatusInput defines the input parameters for the get_ingest_status tool.
type IngestStatusInput struct {
	JobID string `json:"job_id" jsonschema:"job id returned by ingest_text"`
}

// DocumentStatus is one document's progress inside a job.
type DocumentStatus struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source_name"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// IngestStatusOutput is a job snapshot.
type IngestStatusOutput struct {
	Found       bool             `json:"found"`
	JobID       string           `json:"job_id"`
	Status      string           `json:"status,omitempty"`
	Documents   []DocumentStatus `json:"documents,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}
