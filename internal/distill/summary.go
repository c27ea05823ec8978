package distill

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"oh2webui/internal/grouper"
)

var markdown = goldmark.New()

// summarizeGroup returns a one-line summary for a group: the first content
// line that is not blank and not inside a code fence, with markdown list
// and heading markers stripped, whitespace collapsed, and truncated to 200
// columns with an ellipsis.
func summarizeGroup(group *grouper.EventGroup) string {
	for _, ev := range group.Events {
		if s := summarizeContent(ev.Content); s != "" {
			return s
		}
	}
	return ""
}

func summarizeContent(content string) string {
	source := []byte(content)
	doc := markdown.Parser().Parse(text.NewReader(source))
	block := firstProseBlock(doc)
	if block == nil {
		return ""
	}
	lines := block.Lines()
	if lines.Len() == 0 {
		return ""
	}
	seg := lines.At(0)
	line := string(seg.Value(source))
	collapsed := strings.Join(strings.Fields(line), " ")
	if collapsed == "" {
		return ""
	}
	return runewidth.Truncate(collapsed, 200, "…")
}

// firstProseBlock walks the parsed document in order and returns the first
// text-bearing block that is not code.
func firstProseBlock(n ast.Node) ast.Node {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			continue
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			return child
		default:
			if inner := firstProseBlock(child); inner != nil {
				return inner
			}
		}
	}
	return nil
}
