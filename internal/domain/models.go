// Package domain holds the types shared by the ingestion and query paths and
// the narrow interfaces used to reach external collaborators.
package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Format identifies how a document's content is laid out.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatTSV      Format = "tsv"
	FormatPDF      Format = "pdf"
)

// Valid reports whether f is a format the pipeline can chunk. PDF is
// recognised by FormatFromName but has no text extractor, so it is not valid.
func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatMarkdown, FormatCSV, FormatTSV:
		return true
	}
	return false
}

// CheckFormat returns a validation error when f cannot be ingested.
func CheckFormat(f Format, sourceName string) error {
	switch {
	case f == FormatPDF:
		return Invalid("format", "%q: pdf extraction is not enabled", sourceName)
	case !f.Valid():
		return Invalid("format", "unsupported format for %q", sourceName)
	}
	return nil
}

// Tabular reports whether f is a delimited table.
func (f Format) Tabular() bool {
	return f == FormatCSV || f == FormatTSV
}

// FormatFromName infers a format from a file name's extension.
// Returns "" for unknown extensions.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".pdf":
		return FormatPDF
	}
	return ""
}

// Document is one unit of raw input handed to the ingestion pipeline.
// Content is owned by the pipeline until the document has been chunked.
type Document struct {
	ID         string // Stable identifier, derived from source and content when not supplied
	SourceName string // File name or path the content came from
	Format     Format
	Content    string
}

// Offsets is a half-open [Start, End) character range into a document.
type Offsets struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two ranges share at least one character.
func (o Offsets) Overlaps(other Offsets) bool {
	return o.Start < other.End && other.Start < o.End
}

// Len returns the number of characters covered.
func (o Offsets) Len() int {
	return o.End - o.Start
}

// Chunk is a bounded, contiguous span of a document.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int    // 0-based position within the document
	Text          string // Exact document text in [StartOffset, EndOffset)
	StartOffset   int
	EndOffset     int
	HeaderPath    string // Markdown heading hierarchy: "# Doc > ## Section"
	Oversized     bool   // Set when a single token forced the chunk past the size limit
}

// Offsets returns the chunk's character range.
func (c Chunk) Offsets() Offsets {
	return Offsets{Start: c.StartOffset, End: c.EndOffset}
}

// ChunkMetadata is stored next to each vector and returned on search.
type ChunkMetadata struct {
	DocumentID    string
	SourceName    string
	Format        Format
	JobID         string
	SequenceIndex int
	Text          string
	HeaderPath    string
	Offsets       Offsets
	IndexedAt     time.Time
}

// SearchHit is one raw nearest-neighbour match from a vector store.
// Score is in the store's native metric; see Metric.
type SearchHit struct {
	ChunkID  string
	Score    float64
	Metric   Metric
	Metadata ChunkMetadata
}

// RetrievedCandidate is a search hit with its score converted to a similarity.
type RetrievedCandidate struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	SourceName    string  `json:"source_name"`
	Text          string  `json:"text"`
	SequenceIndex int     `json:"sequence_index"`
	Offsets       Offsets `json:"source_offsets"`
	Similarity    float64 `json:"similarity_score"`
}

// RankedResult is a candidate after reranking.
type RankedResult struct {
	RetrievedCandidate
	RerankScore float64 `json:"rerank_score"`
	// Degraded marks candidates whose rerank call failed; RerankScore then
	// holds the retrieval similarity.
	Degraded bool `json:"degraded"`
}

// Message is one turn of prior conversation supplied with a chat query.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatQuery is a question plus its retrieval and context budget.
type ChatQuery struct {
	Text             string
	TopK             int
	MaxContextTokens int
	History          []Message
}

// Citation points from an answer back to a span of a source document.
type Citation struct {
	DocumentID string  `json:"document_id"`
	SourceName string  `json:"source_name"`
	Offsets    Offsets `json:"source_offsets"`
	SourceIDs  []int   `json:"source_ids"`
	Cited      bool    `json:"cited"`
}

// Answer is the result of one chat query.
type Answer struct {
	Text          string     `json:"answer"`
	Citations     []Citation `json:"citations"`
	UsedChunkIDs  []string   `json:"used_chunk_ids"`
	Confidence    string     `json:"confidence,omitempty"`
	Degraded      bool       `json:"degraded"`
	NoInformation bool       `json:"no_information"`
}
