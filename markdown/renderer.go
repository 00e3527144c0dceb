package markdown

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/loomlabs/loom"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// renderer walks the goldmark AST and emits ANSI-styled text. Chat replies
// use a narrow markdown subset; blockquotes, tables and raw HTML are
// passed through as their inline text.
type renderer struct {
	bold      lipgloss.Style
	italic    lipgloss.Style
	heading   lipgloss.Style
	muted     lipgloss.Style
	underline lipgloss.Style
}

func newRenderer(theme loom.Theme) *renderer {
	return &renderer{
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		heading:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		underline: lipgloss.NewStyle().Underline(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

func (r *renderer) render(source []byte, width int) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var sb strings.Builder
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(&sb, c, source, width)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *renderer) block(sb *strings.Builder, node ast.Node, source []byte, width int) {
	switch n := node.(type) {
	case *ast.Paragraph:
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(r.inline(n, source)))
		r.endBlock(sb, n)

	case *ast.Heading:
		styled := r.heading.Render(r.inline(n, source))
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(styled))
		r.endBlock(sb, n)

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(source)); lang != "" {
			sb.WriteString(r.muted.Render(lang))
			sb.WriteString("\n")
		}
		r.codeLines(sb, n.Lines(), source)
		r.endBlock(sb, n)

	case *ast.CodeBlock:
		r.codeLines(sb, n.Lines(), source)
		r.endBlock(sb, n)

	case *ast.List:
		r.list(sb, n, source, width, 0)
		r.endBlock(sb, n)

	case *ast.ThematicBreak:
		sb.WriteString("---\n")
		r.endBlock(sb, n)

	default:
		// Blockquotes and other unrecognized blocks: recurse into children.
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.block(sb, c, source, width)
		}
	}
}

// endBlock writes the blank line separating sibling blocks.
func (r *renderer) endBlock(sb *strings.Builder, node ast.Node) {
	sb.WriteString("\n")
	if node.NextSibling() != nil {
		sb.WriteString("\n")
	}
}

// codeLines renders code block content behind a muted gutter, without reflow.
func (r *renderer) codeLines(sb *strings.Builder, lines *text.Segments, source []byte) {
	gutter := r.muted.Render("│") + " "
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		content := strings.TrimRight(string(seg.Value(source)), "\n")
		sb.WriteString(gutter + content)
		if i < lines.Len()-1 {
			sb.WriteString("\n")
		}
	}
}

func (r *renderer) list(sb *strings.Builder, node *ast.List, source []byte, width, depth int) {
	itemNum := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", itemNum)
			itemNum++
		}
		indent := strings.Repeat("  ", depth)

		var itemText strings.Builder
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				itemText.WriteString(r.inline(in, source))
			case *ast.List:
				if itemText.Len() > 0 {
					r.listItem(sb, indent, marker, itemText.String(), width)
					itemText.Reset()
				}
				r.list(sb, in, source, width, depth+1)
				marker = strings.Repeat(" ", len(marker))
			default:
				r.block(&itemText, ic, source, width)
			}
		}
		if itemText.Len() > 0 {
			r.listItem(sb, indent, marker, itemText.String(), width)
		}
	}
}

// listItem writes one list item with continuation-line indentation.
func (r *renderer) listItem(sb *strings.Builder, indent, marker, content string, width int) {
	prefix := indent + marker
	itemWidth := width - len(prefix)
	if itemWidth < 10 {
		itemWidth = 10
	}
	wrapped := lipgloss.NewStyle().Width(itemWidth).Render(content)
	continuation := strings.Repeat(" ", len(prefix))
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			sb.WriteString(prefix + line + "\n")
		} else {
			sb.WriteString(continuation + line + "\n")
		}
	}
}

// inline collects styled inline text from a node's children.
func (r *renderer) inline(node ast.Node, source []byte) string {
	var sb strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.inlineNode(&sb, c, source)
	}
	return sb.String()
}

func (r *renderer) inlineNode(sb *strings.Builder, node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.Text:
		sb.Write(n.Segment.Value(source))
		if n.SoftLineBreak() {
			sb.WriteByte(' ')
		}
		if n.HardLineBreak() {
			sb.WriteByte('\n')
		}

	case *ast.String:
		sb.Write(n.Value)

	case *ast.Emphasis:
		inner := r.inline(n, source)
		if n.Level == 1 {
			sb.WriteString(r.italic.Render(inner))
		} else {
			sb.WriteString(r.bold.Render(inner))
		}

	case *ast.CodeSpan:
		sb.WriteString(r.bold.Render(r.inline(n, source)))

	case *ast.Link:
		sb.WriteString(r.underline.Render(r.inline(n, source)))
		sb.WriteString(" ")
		sb.WriteString(r.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		sb.WriteString(r.underline.Render(string(n.URL(source))))

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.inlineNode(sb, c, source)
		}
	}
}
