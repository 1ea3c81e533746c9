package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListChildNodes_FollowsPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page_token") == "" {
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[{"node_token":"n1","obj_token":"d1","obj_type":"docx","title":"A"}],"page_token":"tok2","has_more":true}}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[{"node_token":"n2","obj_token":"d2","obj_type":"docx","title":"B"}],"page_token":"","has_more":false}}`)
	}))
	defer srv.Close()

	c := NewClient("tok")
	c.SetBaseURL(srv.URL)

	nodes, err := c.ListChildNodes(context.Background(), "space1", "")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n1", nodes[0].NodeToken)
	assert.Equal(t, "n2", nodes[1].NodeToken)
	assert.Equal(t, 2, calls)
}

func TestRequest_NonZeroCode_FailsImmediately(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":99999,"msg":"boom","data":{}}`)
	}))
	defer srv.Close()

	c := NewClient("tok")
	c.SetBaseURL(srv.URL)

	_, err := c.GetDocumentMeta(context.Background(), "doc1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRequest_NotFoundCode_WrapsErrNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":1254005,"msg":"no such document","data":{}}`)
	}))
	defer srv.Close()

	c := NewClient("tok")
	c.SetBaseURL(srv.URL)

	_, err := c.GetDocumentMeta(context.Background(), "doc1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequest_429_RetriesThenSucceeds(t *testing.T) {
	attempts := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"document":{"document_id":"d1","title":"Hello","revision_id":3}}}`)
	}))
	defer srv.Close()

	c := NewClient("tok")
	c.SetBaseURL(srv.URL)

	start := time.Now()
	meta, err := c.GetDocumentMeta(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", meta.Title)
	assert.Equal(t, int64(3), meta.RevisionID)
	assert.GreaterOrEqual(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBlock_Accessors(t *testing.T) {
	var b Block
	require.NoError(t, json.Unmarshal([]byte(`{"block_id":"b1","parent_id":"p1","block_type":2,"children":["c1","c2"]}`), &b))
	assert.Equal(t, "b1", b.BlockID())
	assert.Equal(t, "p1", b.ParentID())
	assert.Equal(t, 2, b.BlockType())
	assert.Equal(t, []string{"c1", "c2"}, b.Children())
}
