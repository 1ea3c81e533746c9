package reconciler

import (
	"context"
	"fmt"

	"github.com/tmbmode/feishu-wiki-sync/internal/markdown"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

// replaceContent deletes every existing top-level child of documentID
// and appends parsed's blocks in its place, per §4.6: uploading a
// document replaces content wholesale rather than diffing in place.
// Table blocks are expanded into a skeleton-then-cells sequence because
// the API only allocates cell ids once the skeleton exists.
func replaceContent(ctx context.Context, client *wikiapi.Client, documentID string, parsed markdown.ParsedDocument) error {
	existing, err := client.GetDocumentBlocks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch existing blocks: %w", err)
	}

	rootChildren := 0
	for _, b := range existing {
		if b.ParentID() == documentID {
			rootChildren++
		}
	}
	if rootChildren > 0 {
		if err := client.BatchDeleteBlockChildren(ctx, documentID, documentID, rootChildren); err != nil {
			return fmt.Errorf("clear existing content: %w", err)
		}
	}

	return appendBlocks(ctx, client, documentID, documentID, 0, parsed.Blocks)
}

// appendBlocks inserts blocks under parentID starting at index,
// recursing into each block's nested "_children" (list sub-items) and
// "_table" (table cells) payloads once the server has assigned the
// parent's own id.
func appendBlocks(ctx context.Context, client *wikiapi.Client, documentID, parentID string, index int, blocks []wikiapi.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	plain := make([]wikiapi.Block, len(blocks))
	for i, b := range blocks {
		if table, ok := b["_table"].(map[string]any); ok {
			rows, _ := table["rowCount"].(int)
			cols, _ := table["columnSize"].(int)
			headerRow, _ := table["headerRow"].(bool)
			plain[i] = wikiapi.NewTableBlock(rows, cols, headerRow)
			continue
		}
		plain[i] = stripAuxFields(b)
	}

	created, err := client.AppendBlockChildren(ctx, documentID, parentID, index, plain)
	if err != nil {
		return err
	}

	for i, b := range blocks {
		if i >= len(created) {
			break
		}
		if err := appendAux(ctx, client, documentID, created[i], b); err != nil {
			return err
		}
	}

	return nil
}

func appendAux(ctx context.Context, client *wikiapi.Client, documentID string, created, original wikiapi.Block) error {
	if nested, ok := original["_children"].([]wikiapi.Block); ok {
		if err := appendBlocks(ctx, client, documentID, created.BlockID(), 0, nested); err != nil {
			return err
		}
	}

	if table, ok := original["_table"].(map[string]any); ok {
		rows, _ := table["rows"].([][]wikiapi.Block)
		cellIDs := created.Children()
		cols, _ := table["columnSize"].(int)
		for r, row := range rows {
			for col, cell := range row {
				idx := r*cols + col
				if idx >= len(cellIDs) {
					continue
				}
				if err := appendBlocks(ctx, client, documentID, cellIDs[idx], 0, []wikiapi.Block{cell}); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func stripAuxFields(b wikiapi.Block) wikiapi.Block {
	out := make(wikiapi.Block, len(b))
	for k, v := range b {
		if k == "_children" || k == "_table" {
			continue
		}
		out[k] = v
	}
	return out
}
