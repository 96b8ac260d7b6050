package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

// multipartMemory is how much of a multipart upload is held in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

type ingestDocument struct {
	ID         string `json:"id,omitempty"`
	SourceName string `json:"source_name"`
	Format     string `json:"format,omitempty"`
	Content    string `json:"content"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents"`
}

type ingestResponse struct {
	JobID          string      `json:"job_id"`
	Status         jobs.Status `json:"status"`
	FilesSubmitted int         `json:"files_submitted"`
}

// handleIngest accepts a multipart upload ("files" fields) or a JSON body
// and answers 202 with the queued job.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var (
		docs []domain.Document
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		docs, err = readMultipart(r)
	} else {
		docs, err = readJSONDocuments(r)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.ingester.Submit(r.Context(), docs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.requestLogger(r).Info("Ingestion job accepted", "job_id", job.ID, "documents", len(docs))
	s.writeJSON(w, http.StatusAccepted, ingestResponse{
		JobID:          job.ID,
		Status:         job.Status,
		FilesSubmitted: len(docs),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingester.Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func readMultipart(r *http.Request) ([]domain.Document, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, domain.Invalid("files", "no files uploaded")
	}

	docs := make([]domain.Document, 0, len(files))
	for _, fh := range files {
		format := domain.FormatFromName(fh.Filename)
		if err := domain.CheckFormat(format, fh.Filename); err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, bodyError(err)
		}
		docs = append(docs, domain.Document{
			SourceName: fh.Filename,
			Format:     format,
			Content:    string(data),
		})
	}
	return docs, nil
}

func readJSONDocuments(r *http.Request) ([]domain.Document, error) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, bodyError(err)
	}

	docs := make([]domain.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		format := domain.Format(d.Format)
		if format == "" {
			format = domain.FormatFromName(d.SourceName)
		}
		if err := domain.CheckFormat(format, d.SourceName); err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{
			ID:         d.ID,
			SourceName: d.SourceName,
			Format:     format,
			Content:    d.Content,
		})
	}
	return docs, nil
}

// bodyError turns an unreadable or oversized body into a validation error.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.Invalid("body", "request exceeds %d bytes", tooLarge.Limit)
	}
	return domain.Invalid("body", "malformed request: %v", err)
}
