package markdown

import (
	"strconv"
	"strings"

	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

// BlocksToMarkdown renders a document's block tree to Markdown text.
// The conversion is deterministic: the same metadata and blocks always
// produce byte-identical output. A leading "# <title>" is emitted when
// metadata carries one and the first block isn't already a matching
// level-1 heading.
func BlocksToMarkdown(meta Metadata, blocks []wikiapi.Block) string {
	children := indexChildren(blocks)
	byID := indexByID(blocks)

	root := rootID(blocks)
	order := children[root]

	var buf strings.Builder

	if meta.Title != "" && !firstBlockIsMatchingTitle(order, byID, meta.Title) {
		buf.WriteString("# ")
		buf.WriteString(meta.Title)
		buf.WriteString("\n\n")
	}

	renderSiblings(&buf, order, byID, children, 0)

	return strings.TrimRight(buf.String(), "\n") + "\n"
}

func indexByID(blocks []wikiapi.Block) map[string]wikiapi.Block {
	m := make(map[string]wikiapi.Block, len(blocks))
	for _, b := range blocks {
		m[b.BlockID()] = b
	}
	return m
}

// indexChildren groups blocks by parent id, preserving each block's
// position in the input order (the API returns blocks in document
// order, which callers must preserve across pagination).
func indexChildren(blocks []wikiapi.Block) map[string][]string {
	m := make(map[string][]string)
	for _, b := range blocks {
		m[b.ParentID()] = append(m[b.ParentID()], b.BlockID())
	}
	return m
}

// rootID finds the page/document root: the one block with no parent
// among the listed blocks (its parent_id refers to the document itself,
// not to any block in the list).
func rootID(blocks []wikiapi.Block) string {
	ids := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		ids[b.BlockID()] = true
	}
	for _, b := range blocks {
		if !ids[b.ParentID()] {
			return b.ParentID()
		}
	}
	return ""
}

func firstBlockIsMatchingTitle(order []string, byID map[string]wikiapi.Block, title string) bool {
	if len(order) == 0 {
		return false
	}
	first := byID[order[0]]
	if headingLevel(first.BlockType()) != 1 {
		return false
	}
	return renderInline(elementsOf(first, textField(first.BlockType()))) == title
}

func renderSiblings(buf *strings.Builder, order []string, byID map[string]wikiapi.Block, children map[string][]string, listDepth int) {
	orderedIdx := 1
	for _, id := range order {
		b, ok := byID[id]
		if !ok {
			continue
		}
		renderBlock(buf, b, byID, children, listDepth, orderedIdx)
		if b.BlockType() == typeOrdered {
			orderedIdx++
		} else {
			orderedIdx = 1
		}
	}
}

func renderBlock(buf *strings.Builder, b wikiapi.Block, byID map[string]wikiapi.Block, children map[string][]string, listDepth, orderedIdx int) {
	indent := strings.Repeat("  ", listDepth)

	level := headingLevel(b.BlockType())

	switch {
	case level > 0:
		buf.WriteString(strings.Repeat("#", level))
		buf.WriteString(" ")
		buf.WriteString(renderInline(elementsOf(b, textField(b.BlockType()))))
		buf.WriteString("\n\n")

	case b.BlockType() == typeText:
		buf.WriteString(renderInline(elementsOf(b, "text")))
		buf.WriteString("\n\n")

	case b.BlockType() == typeBullet:
		buf.WriteString(indent)
		buf.WriteString("- ")
		buf.WriteString(renderInline(elementsOf(b, "bullet")))
		buf.WriteString("\n")
		renderSiblings(buf, children[b.BlockID()], byID, children, listDepth+1)

	case b.BlockType() == typeOrdered:
		buf.WriteString(indent)
		buf.WriteString(strconv.Itoa(orderedIdx))
		buf.WriteString(". ")
		buf.WriteString(renderInline(elementsOf(b, "ordered")))
		buf.WriteString("\n")
		renderSiblings(buf, children[b.BlockID()], byID, children, listDepth+1)

	case b.BlockType() == typeCode:
		lang := languageOf(b)
		buf.WriteString("```")
		buf.WriteString(lang)
		buf.WriteString("\n")
		buf.WriteString(renderInline(elementsOf(b, "code")))
		buf.WriteString("\n```\n\n")

	case b.BlockType() == typeQuote:
		buf.WriteString("> ")
		buf.WriteString(renderInline(elementsOf(b, "quote")))
		buf.WriteString("\n\n")

	case b.BlockType() == typeDivider:
		buf.WriteString("---\n\n")

	case b.BlockType() == typeTable:
		renderTable(buf, b, byID, children)

	default:
		// Unrecognized block types are skipped rather than failing the
		// whole conversion; the manifest still records the document as
		// synced.
	}
}

func languageOf(b wikiapi.Block) string {
	code, _ := b["code"].(map[string]any)
	style, _ := code["style"].(map[string]any)
	lang, _ := style["language"].(float64)
	return codeLanguageName(int(lang))
}

// renderInline concatenates a block's text runs, applying Markdown
// emphasis syntax. Conversion is injective on this subset: bold,
// italic, inline code, and links each have a distinct, unambiguous
// wrapper.
func renderInline(runs []textRun) string {
	var sb strings.Builder
	for _, r := range runs {
		text := r.Content
		switch {
		case r.Code:
			sb.WriteString("`")
			sb.WriteString(text)
			sb.WriteString("`")
			continue
		case r.LinkURL != "":
			sb.WriteString("[")
			sb.WriteString(text)
			sb.WriteString("](")
			sb.WriteString(r.LinkURL)
			sb.WriteString(")")
			continue
		}
		if r.Bold {
			text = "**" + text + "**"
		}
		if r.Italic {
			text = "*" + text + "*"
		}
		if r.Strike {
			text = "~~" + text + "~~"
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func renderTable(buf *strings.Builder, table wikiapi.Block, byID map[string]wikiapi.Block, children map[string][]string) {
	prop, _ := table["table"].(map[string]any)
	p, _ := prop["property"].(map[string]any)
	cols := intAt(p, "column_size")
	if cols == 0 {
		return
	}

	cellIDs := children[table.BlockID()]
	rows := make([][]string, 0, len(cellIDs)/cols+1)
	var row []string
	for _, cellID := range cellIDs {
		cell := byID[cellID]
		row = append(row, renderCellText(cell, byID, children))
		if len(row) == cols {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}

	writeTableRow(buf, rows[0])
	buf.WriteString("|")
	for range rows[0] {
		buf.WriteString(" --- |")
	}
	buf.WriteString("\n")
	for _, r := range rows[1:] {
		writeTableRow(buf, r)
	}
	buf.WriteString("\n")
}

func writeTableRow(buf *strings.Builder, cells []string) {
	buf.WriteString("|")
	for _, c := range cells {
		buf.WriteString(" ")
		buf.WriteString(strings.ReplaceAll(c, "|", "\\|"))
		buf.WriteString(" |")
	}
	buf.WriteString("\n")
}

func renderCellText(cell wikiapi.Block, byID map[string]wikiapi.Block, children map[string][]string) string {
	var parts []string
	for _, childID := range children[cell.BlockID()] {
		child, ok := byID[childID]
		if !ok {
			continue
		}
		field := textField(child.BlockType())
		if field == "" {
			continue
		}
		parts = append(parts, renderInline(elementsOf(child, field)))
	}
	return strings.Join(parts, " ")
}

func intAt(m map[string]any, key string) int {
	v, _ := m[key].(float64)
	return int(v)
}
