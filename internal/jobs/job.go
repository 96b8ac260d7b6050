// Package jobs tracks ingestion jobs from submission to a terminal outcome.
package jobs

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Status is the aggregate state of a job.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusPartiallyFailed Status = "partially_failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartiallyFailed
}

// DocumentStatus is the state of one document within a job.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentSucceeded  DocumentStatus = "succeeded"
	DocumentFailed     DocumentStatus = "failed"
)

// Resolved reports whether the document has a final outcome.
func (s DocumentStatus) Resolved() bool {
	return s == DocumentSucceeded || s == DocumentFailed
}

// DocumentRef names a document at submission time.
type DocumentRef struct {
	ID         string
	SourceName string
}

// DocumentState is the per-document record inside a job.
type DocumentState struct {
	Status     DocumentStatus `json:"status"`
	SourceName string         `json:"source_name,omitempty"`
	Chunks     int            `json:"chunks,omitempty"`
	Error      string         `json:"error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Job is a snapshot of one ingestion request.
type Job struct {
	ID             string                   `json:"job_id"`
	Status         Status                   `json:"status"`
	Documents      []string                 `json:"submitted_documents"`
	DocumentStatus map[string]DocumentState `json:"per_document_status"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	ErrorDetail    string                   `json:"error_detail,omitempty"`
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Documents = slices.Clone(j.Documents)
	c.DocumentStatus = maps.Clone(j.DocumentStatus)
	return &c
}

// Counts returns how many documents are in each state.
func (j *Job) Counts() map[DocumentStatus]int {
	counts := make(map[DocumentStatus]int, 4)
	for _, st := range j.DocumentStatus {
		counts[st.Status]++
	}
	return counts
}

// Outcome is the terminal result of processing one document.
type Outcome struct {
	Succeeded bool
	Chunks    int
	Reason    string
}

// Succeeded reports a document stored with the given number of chunks.
func Succeeded(chunks int) Outcome {
	return Outcome{Succeeded: true, Chunks: chunks}
}

// Failed reports a document that could not be ingested.
func Failed(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Aggregate derives a job's status from its documents:
// all pending is queued, anything unresolved is processing, and once every
// document is resolved the job is completed, failed or partially failed.
func Aggregate(docs map[string]DocumentState) Status {
	var pending, succeeded, failed int
	for _, st := range docs {
		switch st.Status {
		case DocumentPending:
			pending++
		case DocumentSucceeded:
			succeeded++
		case DocumentFailed:
			failed++
		}
	}

	total := len(docs)
	switch {
	case total == 0 || pending == total:
		return StatusQueued
	case succeeded+failed < total:
		return StatusProcessing
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartiallyFailed
	}
}

// errorDetail summarises failures; empty unless the status is a failure state.
func errorDetail(status Status, docs map[string]DocumentState) string {
	if status != StatusFailed && status != StatusPartiallyFailed {
		return ""
	}
	var failed int
	for _, st := range docs {
		if st.Status == DocumentFailed {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d documents failed", failed, len(docs))
}
