package content

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"cvrag/internal/domain"
)

// sectionBuilder accumulates the body of the section under the current heading.
type sectionBuilder struct {
	src      []byte
	fallback string
	title    string
	body     strings.Builder
	sections []domain.Section
}

// parseMarkdown turns a Markdown CV into sections, one per heading.
// Text before the first heading is titled with fallback.
func parseMarkdown(src []byte, fallback string) []domain.Section {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	b := &sectionBuilder{src: src, fallback: fallback}
	_ = ast.Walk(doc, b.walk)
	b.flush()
	return b.sections
}

func (b *sectionBuilder) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		if entering {
			b.flush()
			b.title = strings.TrimSpace(inlineText(n, b.src))
		}
		return ast.WalkSkipChildren, nil
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.body.Write(seg.Value(b.src))
			}
			b.body.WriteString("\n")
		}
		return ast.WalkSkipChildren, nil
	case ast.KindListItem:
		if entering {
			b.body.WriteString("- ")
		}
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			b.body.Write(t.Segment.Value(b.src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.body.WriteString("\n")
			}
		}
	case ast.KindParagraph, ast.KindTextBlock:
		if !entering {
			b.body.WriteString("\n")
		}
	}
	return ast.WalkContinue, nil
}

func (b *sectionBuilder) flush() {
	body := strings.TrimSpace(b.body.String())
	b.body.Reset()
	if body == "" {
		return
	}
	title := b.title
	if title == "" {
		title = b.fallback
	}
	b.sections = append(b.sections, domain.Section{Title: title, Content: body})
}

// inlineText concatenates the text leaves below n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && c.Kind() == ast.KindText {
			sb.Write(c.(*ast.Text).Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
