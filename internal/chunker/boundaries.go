package chunker

import (
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bull/rag-server/internal/domain"
)

// level ranks a cut point. Cutting at position i ends a chunk just before rune i.
type level uint8

const (
	levelNone level = iota
	levelWord
	levelSentence
	levelLine
	levelParagraph
	levelSection
)

// section is a markdown heading's start offset and hierarchy.
type section struct {
	start int
	path  string
}

// layout is the cut-point map of a document plus its heading sections. For
// tables the single section is the header row.
type layout struct {
	levels   []level // len(runes)+1
	sections []section
}

func (l layout) headerPathAt(offset int) string {
	i := sort.Search(len(l.sections), func(i int) bool {
		return l.sections[i].start > offset
	})
	if i == 0 {
		return ""
	}
	return l.sections[i-1].path
}

func (l layout) mark(pos int, lv level) {
	if pos <= 0 || pos >= len(l.levels) {
		return
	}
	if lv > l.levels[pos] {
		l.levels[pos] = lv
	}
}

// inspect computes cut points for the document's format.
func (c *Chunker) inspect(doc domain.Document) (layout, error) {
	l := textLayout(doc.Content)

	switch doc.Format {
	case domain.FormatText, "":
	case domain.FormatMarkdown:
		sections, err := c.markdownSections([]byte(doc.Content))
		if err != nil {
			return layout{}, domain.Invalid("content", "document %q: %v", doc.SourceName, err)
		}
		for _, s := range sections {
			l.mark(s.start, levelSection)
		}
		l.sections = sections
	case domain.FormatCSV, domain.FormatTSV:
		ends, err := recordEnds(doc.Content, doc.Format)
		if err != nil {
			return layout{}, domain.Invalid("content", "document %q: %v", doc.SourceName, err)
		}
		for _, end := range ends {
			l.mark(end, levelSection)
		}
		// Chunks past the header row carry it as their path so their
		// embedding text still names the columns.
		header := strings.TrimRight(string([]rune(doc.Content)[:ends[0]]), "\r\n")
		l.sections = []section{{start: ends[0], path: header}}
	case domain.FormatPDF:
		return layout{}, domain.Invalid("format", "pdf extraction is not enabled")
	default:
		return layout{}, domain.Invalid("format", "unsupported format %q", doc.Format)
	}

	return l, nil
}

// textLayout marks whitespace, sentence, line and paragraph cut points.
func textLayout(content string) layout {
	runes := []rune(content)
	levels := make([]level, len(runes)+1)

	for i := 1; i < len(runes); i++ {
		prev := runes[i-1]
		if !unicode.IsSpace(prev) {
			continue
		}
		lv := levelWord
		if i >= 2 && strings.ContainsRune(".!?", runes[i-2]) {
			lv = levelSentence
		}
		if prev == '\n' {
			lv = levelLine
			j := i - 2
			if j >= 0 && runes[j] == '\r' {
				j--
			}
			if j >= 0 && runes[j] == '\n' {
				lv = levelParagraph
			}
		}
		levels[i] = lv
	}

	return layout{levels: levels}
}

// recordEnds parses a delimited table and returns the rune offset after each
// record. A table needs a header row and at least one data row.
func recordEnds(content string, format domain.Format) ([]int, error) {
	r := csv.NewReader(strings.NewReader(content))
	if format == domain.FormatTSV {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1

	var ends []int
	var consumed, runeOffset int
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		next := int(r.InputOffset())
		runeOffset += utf8.RuneCountInString(content[consumed:next])
		consumed = next
		ends = append(ends, runeOffset)
	}

	if len(ends) < 2 {
		return nil, errors.New("table needs a header row and at least one data row")
	}
	return ends, nil
}
