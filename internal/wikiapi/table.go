package wikiapi

import "context"

const blockTypeTable = 31

// NewTableBlock builds the table skeleton block the markdown codec's
// "_table.rows" representation maps onto: row/column counts and a
// header flag. The server allocates one table_cell child per cell only
// once this skeleton is appended, which is why cell population is a
// separate follow-up call.
func NewTableBlock(rows, cols int, headerRow bool) Block {
	return Block{
		"block_type": float64(blockTypeTable),
		"table": map[string]any{
			"property": map[string]any{
				"row_size":    float64(rows),
				"column_size": float64(cols),
				"header_row":  headerRow,
			},
		},
	}
}

// CreateTableWithCells appends a table skeleton under parentID, then
// populates every non-empty cell with text children, using the
// server-assigned cell block ids returned by the skeleton insert. This
// two-step sequence is required by the API: cell ids don't exist until
// the table itself has been created.
func (c *Client) CreateTableWithCells(ctx context.Context, documentID, parentID string, index, rows, cols int, headerRow bool, cellContents [][]Block) (Block, error) {
	created, err := c.AppendBlockChildren(ctx, documentID, parentID, index, []Block{NewTableBlock(rows, cols, headerRow)})
	if err != nil || len(created) == 0 {
		return nil, err
	}
	table := created[0]

	cellIDs := table.Children()
	for r := 0; r < rows && r < len(cellContents); r++ {
		for col := 0; col < cols && col < len(cellContents[r]); col++ {
			cellIdx := r*cols + col
			if cellIdx >= len(cellIDs) {
				continue
			}
			content := cellContents[r][col]
			if content == nil {
				continue
			}
			if _, err := c.AppendBlockChildren(ctx, documentID, cellIDs[cellIdx], 0, []Block{content}); err != nil {
				return table, err
			}
		}
	}

	return table, nil
}
