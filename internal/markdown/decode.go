package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

var parser = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParsedDocument is the result of parsing local Markdown for upload. The
// blocks carry no ids yet (the server assigns those on creation);
// "_children" holds nested list items and "_table" holds a table's
// cell rows, which the uploader walks to append after the parent block
// exists.
type ParsedDocument struct {
	Title  string
	Blocks []wikiapi.Block
}

const childrenKey = "_children"

// MarkdownToBlocks extracts the first top-level heading as the
// document's title (and omits it from the body blocks); everything
// else becomes a flat list of upload-ready blocks.
func MarkdownToBlocks(src string) ParsedDocument {
	reader := text.NewReader([]byte(src))
	root := parser.Parser().Parse(reader)

	var doc ParsedDocument
	source := []byte(src)

	first := true
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if first {
			if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
				doc.Title = inlineText(h, source)
				first = false
				continue
			}
		}
		first = false

		if list, ok := n.(*ast.List); ok {
			doc.Blocks = append(doc.Blocks, listItemBlocks(list, source)...)
			continue
		}
		if b := convertBlock(n, source); b != nil {
			doc.Blocks = append(doc.Blocks, b)
		}
	}

	return doc
}

func convertBlock(n ast.Node, source []byte) wikiapi.Block {
	switch node := n.(type) {
	case *ast.Heading:
		return headingBlock(node.Level, inlineRuns(node, source))
	case *ast.Paragraph:
		return textBlock(typeText, "text", inlineRuns(node, source))
	case *ast.TextBlock:
		return textBlock(typeText, "text", inlineRuns(node, source))
	case *ast.FencedCodeBlock:
		return codeBlock(string(node.Language(source)), codeLinesText(node, source))
	case *ast.CodeBlock:
		return codeBlock("", codeLinesText(node, source))
	case *ast.Blockquote:
		return quoteBlock(n, source)
	case *ast.ThematicBreak:
		return wikiapi.Block{"block_type": float64(typeDivider)}
	case *east.Table:
		return tableBlock(node, source)
	default:
		return nil
	}
}

// listItemBlocks expands a Markdown list into a flat sequence of
// bullet/ordered blocks, one per item, with any nested sub-list stored
// under childrenKey for the uploader to append beneath the item once
// its block id is known.
func listItemBlocks(list *ast.List, source []byte) []wikiapi.Block {
	var out []wikiapi.Block
	blockType := typeBullet
	field := "bullet"
	if list.IsOrdered() {
		blockType = typeOrdered
		field = "ordered"
	}

	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var runs []map[string]any
		var nested []wikiapi.Block

		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, listItemBlocks(sub, source)...)
				continue
			}
			runs = append(runs, inlineRuns(c, source)...)
		}

		b := textBlock(blockType, field, runs)
		if len(nested) > 0 {
			b[childrenKey] = nested
		}
		out = append(out, b)
	}

	return out
}

// TitleHeadingBlock builds a level-1 heading block carrying title as
// its sole text run, for callers that must fall back to a heading
// block when the server rejects a titled document creation.
func TitleHeadingBlock(title string) wikiapi.Block {
	return headingBlock(1, []map[string]any{textRunElement(title, false, false, false)})
}

func headingBlock(level int, runs []map[string]any) wikiapi.Block {
	field := headingFieldName(level)
	if field == "" {
		field = "heading9"
	}
	return wikiapi.Block{
		"block_type": float64(typeHeadingMin + level - 1),
		field:        map[string]any{"elements": runs},
	}
}

func textBlock(blockType int, field string, runs []map[string]any) wikiapi.Block {
	return wikiapi.Block{
		"block_type": float64(blockType),
		field:        map[string]any{"elements": runs},
	}
}

func codeBlock(language string, content string) wikiapi.Block {
	return wikiapi.Block{
		"block_type": float64(typeCode),
		"code": map[string]any{
			"elements": []map[string]any{{"text_run": map[string]any{"content": content}}},
			"style":    map[string]any{"language": float64(codeLanguageID(language))},
		},
	}
}

func quoteBlock(n ast.Node, source []byte) wikiapi.Block {
	var runs []map[string]any
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		runs = append(runs, inlineRuns(c, source)...)
	}
	return textBlock(typeQuote, "quote", runs)
}

func tableBlock(t *east.Table, source []byte) wikiapi.Block {
	var rows [][]wikiapi.Block
	cols := 0

	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []wikiapi.Block
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			runs := inlineRuns(cell, source)
			cells = append(cells, textBlock(typeText, "text", runs))
		}
		if len(cells) > cols {
			cols = len(cells)
		}
		rows = append(rows, cells)
	}

	headerRow := len(rows) > 0
	return wikiapi.Block{
		"block_type": float64(typeTable),
		"_table": map[string]any{
			"rows":       rows,
			"headerRow":  headerRow,
			"rowCount":   len(rows),
			"columnSize": cols,
		},
	}
}

// linesNode is satisfied by ast.BaseBlock-derived nodes (FencedCodeBlock,
// CodeBlock) that expose their raw source lines.
type linesNode interface {
	Lines() *text.Segments
}

func codeLinesText(n ast.Node, source []byte) string {
	ln, ok := n.(linesNode)
	if !ok {
		return ""
	}
	lines := ln.Lines()
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return sb.String()
}

// inlineRuns walks n's inline children into Feishu text-run elements,
// preserving bold/italic/code/link markup.
func inlineRuns(n ast.Node, source []byte) []map[string]any {
	var runs []map[string]any
	var walk func(ast.Node, bool, bool, bool)
	walk = func(node ast.Node, bold, italic, code bool) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				runs = append(runs, textRunElement(string(t.Segment.Value(source)), bold, italic, code))
			case *ast.CodeSpan:
				walk(t, bold, italic, true)
			case *ast.Emphasis:
				if t.Level == 2 {
					walk(t, true, italic, code)
				} else {
					walk(t, bold, true, code)
				}
			case *ast.Link:
				runs = append(runs, linkRunElement(inlineText(t, source), string(t.Destination)))
			case *ast.AutoLink:
				url := string(t.URL(source))
				runs = append(runs, linkRunElement(url, url))
			default:
				walk(c, bold, italic, code)
			}
		}
	}
	walk(n, false, false, false)
	return runs
}

func textRunElement(content string, bold, italic, code bool) map[string]any {
	return map[string]any{
		"text_run": map[string]any{
			"content": content,
			"text_element_style": map[string]any{
				"bold":        bold,
				"italic":      italic,
				"inline_code": code,
			},
		},
	}
}

func linkRunElement(text, url string) map[string]any {
	return map[string]any{
		"text_run": map[string]any{"content": text},
		"link":     map[string]any{"url": url},
	}
}

func codeLanguageID(name string) int {
	for id, n := range map[int]string{
		1: "plaintext", 2: "bash", 7: "c", 8: "cpp", 11: "css",
		19: "go", 22: "html", 24: "java", 27: "javascript", 30: "json",
		43: "python", 50: "sql", 54: "typescript", 56: "yaml",
	} {
		if n == name {
			return id
		}
	}
	return 1
}
