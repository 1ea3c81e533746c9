package wikiapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/imroc/req/v3"
)

// GetDocumentMeta fetches a docx document's title and current revision.
func (c *Client) GetDocumentMeta(ctx context.Context, documentID string) (*DocumentMeta, error) {
	var data getDocumentData
	err := c.request(ctx, func(r *req.Request) *req.Request {
		return r.SetPathParam("document_id", documentID)
	}, http.MethodGet, "/docx/v1/documents/{document_id}", &data)
	if err != nil {
		return nil, err
	}
	return &data.Document, nil
}

// GetDocumentBlocks fetches every block of a document, following
// page_token/has_more at the configured block page size.
func (c *Client) GetDocumentBlocks(ctx context.Context, documentID string) ([]Block, error) {
	var blocks []Block
	pageToken := ""

	for {
		var data listBlocksData
		err := c.request(ctx, func(r *req.Request) *req.Request {
			r = r.SetPathParam("document_id", documentID).
				SetQueryParam("page_size", strconv.Itoa(defaultBlockPageSize)).
				SetQueryParam("document_revision_id", "-1")
			if pageToken != "" {
				r = r.SetQueryParam("page_token", pageToken)
			}
			return r
		}, http.MethodGet, "/docx/v1/documents/{document_id}/blocks", &data)
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, data.Items...)
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}

	return blocks, nil
}

// CreateDocument creates a brand-new docx document, optionally titled.
// If a titled creation is rejected, the caller should retry with an
// empty title and prepend a heading block instead.
func (c *Client) CreateDocument(ctx context.Context, title string) (*DocumentMeta, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}

	var data createDocumentData
	err := c.request(ctx, func(r *req.Request) *req.Request {
		return r.SetBody(body)
	}, http.MethodPost, "/docx/v1/documents", &data)
	if err != nil {
		return nil, err
	}
	return &data.Document, nil
}

// AppendBlockChildren inserts children under parentID starting at
// index, splitting the call into batches of at most 100 children as
// the API requires. It returns the server-assigned blocks for every
// batch, in submission order, so callers (table cell population) can
// recover ids the server allocated.
func (c *Client) AppendBlockChildren(ctx context.Context, documentID, parentID string, index int, children []Block) ([]Block, error) {
	const batchSize = 100

	var created []Block
	for start := 0; start < len(children); start += batchSize {
		end := start + batchSize
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]

		body := map[string]any{
			"index":    index + start,
			"children": batch,
		}

		var data createBlockChildrenData
		err := c.request(ctx, func(r *req.Request) *req.Request {
			return r.SetPathParam("document_id", documentID).
				SetPathParam("parent_id", parentID).
				SetBody(body)
		}, http.MethodPost, "/docx/v1/documents/{document_id}/blocks/{parent_id}/children", &data)
		if err != nil {
			return created, err
		}
		created = append(created, data.Children...)
	}

	return created, nil
}

// BatchDeleteBlockChildren deletes every existing child of parentID in
// batches of at most 100, used to clear a document before a wholesale
// re-upload.
func (c *Client) BatchDeleteBlockChildren(ctx context.Context, documentID, parentID string, count int) error {
	const batchSize = 100

	for count > 0 {
		n := count
		if n > batchSize {
			n = batchSize
		}
		body := map[string]int{"start_index": 0, "end_index": n}

		err := c.request(ctx, func(r *req.Request) *req.Request {
			return r.SetPathParam("document_id", documentID).
				SetPathParam("parent_id", parentID).
				SetQueryParam("document_revision_id", "-1").
				SetBody(body)
		}, http.MethodDelete, "/docx/v1/documents/{document_id}/blocks/{parent_id}/children/batch_delete", nil)
		if err != nil {
			return err
		}
		count -= n
	}

	return nil
}

// SubscribeDocument registers the process for event-stream notifications
// about a single document. Each documentId should be subscribed at most
// once per process lifetime.
func (c *Client) SubscribeDocument(ctx context.Context, fileType, documentID string) error {
	return c.request(ctx, func(r *req.Request) *req.Request {
		return r.SetPathParam("file_type", fileType).SetPathParam("file_token", documentID)
	}, http.MethodPost, "/drive/v1/files/{file_token}/subscribe", nil)
}

// DeleteDocument removes a remote document through the drive file
// delete endpoint, passing fileType ("doc" or "docx") as its type
// parameter.
func (c *Client) DeleteDocument(ctx context.Context, fileType, documentID string) error {
	return c.request(ctx, func(r *req.Request) *req.Request {
		return r.SetPathParam("file_token", documentID).SetQueryParam("type", fileType)
	}, http.MethodDelete, "/drive/v1/files/{file_token}", nil)
}
