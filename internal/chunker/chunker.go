// Package chunker splits documents into overlapping, size-bounded chunks.
package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"github.com/bull/rag-server/internal/domain"
)

const (
	// DefaultMaxChunkSize is the chunk length limit in characters.
	DefaultMaxChunkSize = 1000

	// DefaultOverlapSize is how many characters each chunk repeats from its predecessor.
	DefaultOverlapSize = 100

	// DefaultBoundaryTolerance is the fraction of MaxChunkSize, measured back
	// from the limit, searched for a natural cut point.
	DefaultBoundaryTolerance = 0.2
)

// Config controls chunk sizing.
type Config struct {
	MaxChunkSize      int
	OverlapSize       int
	BoundaryTolerance float64
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:      DefaultMaxChunkSize,
		OverlapSize:       DefaultOverlapSize,
		BoundaryTolerance: DefaultBoundaryTolerance,
	}
}

// Validate checks the sizes are usable.
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("max chunk size must be positive, got %d", c.MaxChunkSize)
	}
	if c.OverlapSize < 0 || c.OverlapSize >= c.MaxChunkSize {
		return fmt.Errorf("overlap size must be in [0, %d), got %d", c.MaxChunkSize, c.OverlapSize)
	}
	if c.BoundaryTolerance < 0 || c.BoundaryTolerance >= 1 {
		return fmt.Errorf("boundary tolerance must be in [0, 1), got %g", c.BoundaryTolerance)
	}
	return nil
}

// Chunker splits documents at natural boundaries near the size limit.
// It does no I/O and produces identical output for identical input.
type Chunker struct {
	cfg    Config
	parser goldmark.Markdown
}

// New creates a Chunker with the given configuration.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{cfg: cfg, parser: md}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits doc into ordered chunks.
//
// Empty or unparseable content is a validation error. A single token longer
// than MaxChunkSize produces one chunk that exceeds the limit, marked Oversized.
func (c *Chunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, domain.Invalid("content", "document %q is empty", doc.SourceName)
	}
	if !utf8.ValidString(doc.Content) {
		return nil, domain.Invalid("content", "document %q is not valid UTF-8", doc.SourceName)
	}

	layout, err := c.inspect(doc)
	if err != nil {
		return nil, err
	}

	runes := []rune(doc.Content)
	n := len(runes)

	var chunks []domain.Chunk
	start := 0
	for start < n {
		end, oversized := c.nextCut(layout.levels, start, n)

		chunks = append(chunks, domain.Chunk{
			ID:            ChunkID(doc.ID, len(chunks)),
			DocumentID:    doc.ID,
			SequenceIndex: len(chunks),
			Text:          string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			HeaderPath:    layout.headerPathAt(start),
			Oversized:     oversized,
		})

		if end >= n {
			break
		}

		next := end - c.cfg.OverlapSize
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// nextCut picks the exclusive end of the chunk beginning at start.
func (c *Chunker) nextCut(levels []level, start, n int) (int, bool) {
	limit := start + c.cfg.MaxChunkSize
	if limit >= n {
		return n, false
	}

	// A chunk must outrun the overlap, or the next chunk would not start
	// after this one.
	floor := start + c.cfg.OverlapSize + 1
	windowStart := limit - int(float64(c.cfg.MaxChunkSize)*c.cfg.BoundaryTolerance)
	if windowStart < floor {
		windowStart = floor
	}

	// Highest level wins; among equals the position nearest the limit.
	best, bestLevel := -1, levelNone
	for i := limit; i >= windowStart; i-- {
		if levels[i] > bestLevel {
			best, bestLevel = i, levels[i]
		}
	}
	if best > start {
		return best, false
	}

	for i := windowStart - 1; i >= floor; i-- {
		if levels[i] >= levelWord {
			return i, false
		}
	}

	// One token fills the whole span: run to its end.
	for i := limit + 1; i < n; i++ {
		if levels[i] >= levelWord {
			return i, true
		}
	}
	return n, true
}

// EmbeddingText is the text sent to the embedding model for a chunk.
// The heading path, or a table's header row, is prepended so the chunk
// keeps its context.
func EmbeddingText(chunk domain.Chunk) string {
	if chunk.HeaderPath == "" {
		return chunk.Text
	}
	return chunk.HeaderPath + "\n\n" + chunk.Text
}

// ChunkID derives a stable UUID for the chunk at seq within documentID.
func ChunkID(documentID string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("rag-server/chunk/"+documentID+"/"+strconv.Itoa(seq))).String()
}

// DocumentID derives a stable UUID from a document's source name and content.
func DocumentID(sourceName, content string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("rag-server/document/"+sourceName+"\x00"+content)).String()
}
