package indexer

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section marks where an H1/H2 heading starts in the extracted plain text.
type Section struct {
	Offset int
	Title  string
}

// PlainText flattens markdown into blank-line separated blocks.
func PlainText(markdown string) (string, []Section) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	var sections []Section
	appendBlock := func(block string) {
		block = strings.TrimSpace(block)
		if block == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
	}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			title := inlineText(n, source)
			if title == "" {
				continue
			}
			if n.Level <= 2 {
				offset := sb.Len()
				if offset > 0 {
					offset += 2
				}
				sections = append(sections, Section{Offset: offset, Title: title})
			}
			appendBlock(title)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			appendBlock(codeLines(n, source))
		case *ast.List:
			var items []string
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if t := inlineText(item, source); t != "" {
					items = append(items, t)
				}
			}
			appendBlock(strings.Join(items, "\n"))
		case *ast.HTMLBlock, *ast.ThematicBreak:
		default:
			appendBlock(inlineText(n, source))
		}
	}
	return sb.String(), sections
}

// SectionAt returns the title of the last section starting at or before offset.
func SectionAt(sections []Section, offset int) string {
	idx := sort.Search(len(sections), func(i int) bool { return sections[i].Offset > offset })
	if idx == 0 {
		return ""
	}
	return sections[idx-1].Title
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.HardLineBreak() {
				sb.WriteByte('\n')
			} else if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.Paragraph, *ast.TextBlock:
			if sb.Len() > 0 && node.PreviousSibling() != nil {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func codeLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}
