// Package assembler packs ranked chunks into a token-bounded context of
// numbered source blocks and derives the citations that point back to them.
package assembler

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bull/rag-server/internal/domain"
)

// CharsPerToken is the rough characters-per-token ratio used for budgeting.
const CharsPerToken = 4

// EstimateTokens approximates the token count of s as ceil(runes/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Source is one numbered block of the assembled context.
type Source struct {
	ID          int            `json:"source_id"`
	ChunkID     string         `json:"chunk_id"`
	DocumentID  string         `json:"document_id"`
	SourceName  string         `json:"source_name"`
	Text        string         `json:"text"`
	Offsets     domain.Offsets `json:"source_offsets"`
	RerankScore float64        `json:"rerank_score"`
	Truncated   bool           `json:"truncated,omitempty"`
}

// Assembly is the packed context and what went into it.
type Assembly struct {
	Context      string
	Sources      []Source
	UsedChunkIDs []string
	Citations    []domain.Citation
	Tokens       int
	// Truncated is set when any result was cut or left out for budget.
	Truncated bool
}

// HasSource reports whether id names a source in the assembly.
func (a *Assembly) HasSource(id int) bool {
	return id >= 1 && id <= len(a.Sources)
}

// Assemble accepts results greedily in rank order until the next block would
// exceed maxTokens. A first block that does not fit on its own is truncated
// to fit and its citation narrowed to the text kept, so any non-blank input
// yields at least one source. Blank results are skipped.
func Assemble(results []domain.RankedResult, maxTokens int) Assembly {
	var (
		a      Assembly
		blocks []string
	)

	for _, r := range results {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		id := len(a.Sources) + 1
		text := r.Text
		offsets := r.Offsets
		truncated := false

		block := renderBlock(id, text)
		cost := EstimateTokens(block)
		if a.Tokens+cost > maxTokens {
			if len(a.Sources) > 0 {
				a.Truncated = true
				break
			}
			// The first source always survives. When the framing alone
			// exceeds the budget only the text is charged against it.
			keep := maxTokens*CharsPerToken - utf8.RuneCountInString(renderBlock(id, ""))
			if keep <= 0 {
				keep = max(maxTokens*CharsPerToken, 1)
			}
			text = truncateRunes(text, keep)
			offsets.End = offsets.Start + utf8.RuneCountInString(text)
			truncated = true
			a.Truncated = true
			block = renderBlock(id, text)
			cost = EstimateTokens(block)
		}

		blocks = append(blocks, block)
		a.Tokens += cost
		a.UsedChunkIDs = append(a.UsedChunkIDs, r.ChunkID)
		a.Sources = append(a.Sources, Source{
			ID:          id,
			ChunkID:     r.ChunkID,
			DocumentID:  r.DocumentID,
			SourceName:  r.SourceName,
			Text:        text,
			Offsets:     offsets,
			RerankScore: r.RerankScore,
			Truncated:   truncated,
		})
	}

	a.Context = strings.Join(blocks, "")
	a.Citations = citations(a.Sources)
	return a
}

// renderBlock formats one source. Blocks end in a blank line so they can be
// concatenated without separators.
func renderBlock(id int, text string) string {
	return fmt.Sprintf("[source_id: %d]\n[source_content_start]\n%s\n[source_content_end]\n\n", id, text)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// citations groups sources by document in first-appearance order and merges
// spans of the same document that overlap. Adjacent spans stay separate.
func citations(sources []Source) []domain.Citation {
	var (
		order []string
		byDoc = make(map[string][]domain.Citation)
	)
	for _, s := range sources {
		if _, ok := byDoc[s.DocumentID]; !ok {
			order = append(order, s.DocumentID)
			byDoc[s.DocumentID] = nil
		}
		byDoc[s.DocumentID] = mergeSpan(byDoc[s.DocumentID], domain.Citation{
			DocumentID: s.DocumentID,
			SourceName: s.SourceName,
			Offsets:    s.Offsets,
			SourceIDs:  []int{s.ID},
		})
	}

	var out []domain.Citation
	for _, doc := range order {
		out = append(out, byDoc[doc]...)
	}
	return out
}

// mergeSpan folds c into spans. When c overlaps one or more existing spans
// they collapse into the earliest of them; otherwise c is appended.
func mergeSpan(spans []domain.Citation, c domain.Citation) []domain.Citation {
	target := -1
	kept := spans[:0:0]
	for _, s := range spans {
		if !s.Offsets.Overlaps(c.Offsets) {
			kept = append(kept, s)
			continue
		}
		c.Offsets.Start = min(c.Offsets.Start, s.Offsets.Start)
		c.Offsets.End = max(c.Offsets.End, s.Offsets.End)
		c.SourceIDs = append(append([]int(nil), s.SourceIDs...), c.SourceIDs...)
		if target < 0 {
			target = len(kept)
			kept = append(kept, domain.Citation{})
		}
	}
	if target < 0 {
		return append(kept, c)
	}
	slices.Sort(c.SourceIDs)
	kept[target] = c
	return kept
}
