// Package markdown implements the two pure conversions the engine needs
// between a wiki document's block tree and its Markdown rendering:
// blocksToMarkdown for downloads, markdownToBlocks for uploads.
package markdown

import "github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"

// Feishu docx block type discriminants (block_type field).
const (
	typeText       = 2
	typeHeadingMin = 3  // heading1
	typeHeadingMax = 11 // heading9
	typeBullet     = 12
	typeOrdered    = 13
	typeCode       = 14
	typeQuote      = 15
	typeDivider    = 17
	typeTable      = 31
	typeTableCell  = 32
)

// headingLevel returns the Markdown heading level (1-9) for a heading
// block type, or 0 if blockType isn't a heading.
func headingLevel(blockType int) int {
	if blockType < typeHeadingMin || blockType > typeHeadingMax {
		return 0
	}
	return blockType - typeHeadingMin + 1
}

// Metadata carries document-level fields the renderer needs but which
// don't live in the block tree itself.
type Metadata struct {
	Title string
}

// textRun is one inline run within a text-bearing block: a content
// string plus the style flags that round-trip through bold/italic/code
// markdown syntax, or a link destination.
type textRun struct {
	Content string
	Bold    bool
	Italic  bool
	Code    bool
	Strike  bool
	LinkURL string
}

func elementsOf(b wikiapi.Block, field string) []textRun {
	container, ok := b[field].(map[string]any)
	if !ok {
		return nil
	}
	var elements []any
	switch raw := container["elements"].(type) {
	case []any:
		elements = raw
	case []map[string]any:
		for _, el := range raw {
			elements = append(elements, el)
		}
	default:
		return nil
	}

	runs := make([]textRun, 0, len(elements))
	for _, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		runs = append(runs, parseElement(el))
	}
	return runs
}

func parseElement(el map[string]any) textRun {
	if link, ok := el["link"].(map[string]any); ok {
		run := textRun{LinkURL: stringAt(link, "url")}
		if tr, ok := el["text_run"].(map[string]any); ok {
			run.Content = stringAt(tr, "content")
		} else {
			run.Content = stringAt(link, "text")
		}
		return run
	}

	tr, _ := el["text_run"].(map[string]any)
	run := textRun{Content: stringAt(tr, "content")}
	style, _ := tr["text_element_style"].(map[string]any)
	run.Bold = boolAt(style, "bold")
	run.Italic = boolAt(style, "italic")
	run.Code = boolAt(style, "inline_code")
	run.Strike = boolAt(style, "strikethrough")
	return run
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolAt(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// textField is the block payload key carrying inline elements, keyed by
// block type.
func textField(blockType int) string {
	switch {
	case blockType == typeText:
		return "text"
	case headingLevel(blockType) > 0:
		return headingFieldName(headingLevel(blockType))
	case blockType == typeBullet:
		return "bullet"
	case blockType == typeOrdered:
		return "ordered"
	case blockType == typeCode:
		return "code"
	case blockType == typeQuote:
		return "quote"
	default:
		return ""
	}
}

// codeLanguageName maps the docx code-block language enum to a fenced
// code-block info string. Unlisted values render as a bare fence.
func codeLanguageName(lang int) string {
	names := map[int]string{
		1: "plaintext", 2: "bash", 7: "c", 8: "cpp", 11: "css",
		19: "go", 22: "html", 24: "java", 27: "javascript", 30: "json",
		43: "python", 50: "sql", 54: "typescript", 56: "yaml",
	}
	return names[lang]
}

func headingFieldName(level int) string {
	names := [...]string{"heading1", "heading2", "heading3", "heading4", "heading5", "heading6", "heading7", "heading8", "heading9"}
	if level < 1 || level > len(names) {
		return ""
	}
	return names[level-1]
}
