package wikiapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/imroc/req/v3"
)

// ListChildNodes returns every child node of parentToken within spaceId,
// following page_token/has_more until the listing is exhausted.
func (c *Client) ListChildNodes(ctx context.Context, spaceID, parentToken string) ([]Node, error) {
	var nodes []Node
	pageToken := ""

	for {
		var data listNodesData
		err := c.request(ctx, func(r *req.Request) *req.Request {
			r = r.SetPathParam("space_id", spaceID).
				SetQueryParam("page_size", strconv.Itoa(defaultNodePageSize))
			if parentToken != "" {
				r = r.SetQueryParam("parent_node_token", parentToken)
			}
			if pageToken != "" {
				r = r.SetQueryParam("page_token", pageToken)
			}
			return r
		}, http.MethodGet, "/wiki/v2/spaces/{space_id}/nodes", &data)
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, data.Items...)
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}

	return nodes, nil
}

// MoveDocToWiki attaches an existing docx/doc object to a wiki space,
// used when uploading a brand-new local file as a fresh remote document.
func (c *Client) MoveDocToWiki(ctx context.Context, spaceID, objType, objToken, parentToken string) error {
	body := map[string]string{
		"obj_type":  objType,
		"obj_token": objToken,
	}
	if parentToken != "" {
		body["parent_node_token"] = parentToken
	}

	return c.request(ctx, func(r *req.Request) *req.Request {
		return r.SetPathParam("space_id", spaceID).SetBody(body)
	}, http.MethodPost, "/wiki/v2/spaces/{space_id}/nodes/move_docs_to_wiki", nil)
}
