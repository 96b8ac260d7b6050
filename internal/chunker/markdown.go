package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdownSections returns the H1 and H2 headings of source with their
// hierarchy, keyed by the rune offset of the heading line.
func (c *Chunker) markdownSections(source []byte) ([]section, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var sections []section
	collectSections(doc, source, tree.Items, nil, &sections)

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].start < sections[j].start
	})
	return sections, nil
}

// collectSections walks TOC items depth-first, recording each heading's
// line start and header path.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, out *[]section) {
	for _, item := range items {
		current := append(append([]string(nil), ancestors...), string(item.Title))

		heading := findHeaderByID(doc, string(item.ID))
		if heading != nil && heading.Lines().Len() > 0 {
			pos := lineStart(source, heading.Lines().At(0).Start)
			*out = append(*out, section{
				start: utf8.RuneCount(source[:pos]),
				path:  formatHeaderPath(current),
			})
		}

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, current, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart moves pos back to the first byte of its line, so ATX markers stay
// with their heading text.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
