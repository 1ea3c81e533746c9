// Package wikiwalker enumerates every doc/docx descendant of a wiki
// space, caching node listings for the duration of one walk.
package wikiwalker

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

// Document is one doc/docx node reachable from the space root.
type Document struct {
	NodeToken  string
	DocumentID string
	Title      string
	ObjType    string
}

const nodePageCacheSize = 256

// Walker enumerates a wiki space's document tree.
type Walker struct {
	client *wikiapi.Client
	cache  *lru.Cache[string, []wikiapi.Node]
}

// New builds a Walker backed by client, with an LRU cache over
// parent-node listings. Each Walker has its own cache, and Walk clears
// it before it starts, so every walk sees the space's current tree.
func New(client *wikiapi.Client) *Walker {
	cache, _ := lru.New[string, []wikiapi.Node](nodePageCacheSize)
	return &Walker{client: client, cache: cache}
}

// Walk returns the flat list of every doc/docx descendant of spaceId,
// depth-first, fetching children only for nodes with HasChild set.
// Order is not meaningful to callers.
func (w *Walker) Walk(ctx context.Context, spaceID string) ([]Document, error) {
	w.cache.Purge()
	var docs []Document
	if err := w.walkNode(ctx, spaceID, "", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// InvalidateCache drops every cached node listing; call this after a
// structural change (move, create, delete) so the next walk sees fresh
// data.
func (w *Walker) InvalidateCache() {
	w.cache.Purge()
}

func (w *Walker) walkNode(ctx context.Context, spaceID, parentToken string, out *[]Document) error {
	nodes, err := w.listNodesCached(ctx, spaceID, parentToken)
	if err != nil {
		return fmt.Errorf("list nodes (parent=%q): %w", parentToken, err)
	}

	for _, n := range nodes {
		if n.ObjType == "doc" || n.ObjType == "docx" {
			*out = append(*out, Document{
				NodeToken:  n.NodeToken,
				DocumentID: n.ObjToken,
				Title:      n.Title,
				ObjType:    n.ObjType,
			})
		}
		if n.HasChild {
			if err := w.walkNode(ctx, spaceID, n.NodeToken, out); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Walker) listNodesCached(ctx context.Context, spaceID, parentToken string) ([]wikiapi.Node, error) {
	key := spaceID + "/" + parentToken
	if cached, ok := w.cache.Get(key); ok {
		return cached, nil
	}

	nodes, err := w.client.ListChildNodes(ctx, spaceID, parentToken)
	if err != nil {
		return nil, err
	}
	w.cache.Add(key, nodes)
	return nodes, nil
}
