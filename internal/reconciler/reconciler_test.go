package reconciler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmbmode/feishu-wiki-sync/internal/manifest"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// fixtureServer serves a single docx document "d1" titled "Hello" at
// revision 1 with one paragraph block, and accepts deletes.
func fixtureServer(t *testing.T, deleted *bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/wiki/v2/spaces/space1/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deleted != nil && *deleted {
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[],"page_token":"","has_more":false}}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[{"node_token":"n1","obj_token":"d1","obj_type":"docx","title":"Hello"}],"page_token":"","has_more":false}}`)
	})

	mux.HandleFunc("/docx/v1/documents/d1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"document":{"document_id":"d1","title":"Hello","revision_id":1}}}`)
	})

	mux.HandleFunc("/docx/v1/documents/d1/blocks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[
			{"block_id":"b1","parent_id":"d1","block_type":2,"text":{"elements":[{"text_run":{"content":"hello world","text_element_style":{}}}]}}
		],"page_token":"","has_more":false}}`)
	})

	mux.HandleFunc("/drive/v1/files/d1", func(w http.ResponseWriter, r *http.Request) {
		if deleted != nil {
			*deleted = true
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
	})

	return httptest.NewServer(mux)
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })
	return ws
}

func TestReconciler_FreshPairing_DownloadsNewDocument(t *testing.T) {
	srv := fixtureServer(t, nil)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newTestWorkspace(t)
	rec := New(client, ws, Options{DeleteRemoteOnLocalMissing: true})

	result, err := rec.Run(t.Context(), "space1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)

	content, err := os.ReadFile(filepath.Join(ws.Root, "Hello.md"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "hello world"))

	m := manifest.Read(ws.ManifestPath)
	require.Contains(t, m.Docs, "d1")
	assert.Equal(t, "Hello.md", m.Docs["d1"].File)
	assert.Equal(t, "1", *m.Docs["d1"].RevisionID)
}

func TestReconciler_LocalDeleteTriggersRemoteDelete(t *testing.T) {
	deleted := false
	srv := fixtureServer(t, &deleted)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newTestWorkspace(t)

	rev := "1"
	m := &manifest.Manifest{SpaceID: "space1", Docs: map[string]*manifest.Entry{
		"d1": {File: "notes.md", RevisionID: &rev, Title: "Hello", FileType: "docx", Hash: "abc"},
	}}
	require.NoError(t, manifest.Write(ws.ManifestPath, m))

	rec := New(client, ws, Options{DeleteRemoteOnLocalMissing: true})
	result, err := rec.Run(t.Context(), "space1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeletedRemote)
	assert.True(t, deleted)

	after := manifest.Read(ws.ManifestPath)
	assert.NotContains(t, after.Docs, "d1")
}

// titledCreateFailsServer has no existing wiki nodes, rejects the first
// (titled) document creation, accepts a retried untitled creation, and
// records the children posted under the new document so the test can
// assert a fallback heading block was prepended.
func titledCreateFailsServer(t *testing.T, posted *[]map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/wiki/v2/spaces/space1/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[],"page_token":"","has_more":false}}`)
	})

	mux.HandleFunc("/docx/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if _, titled := body["title"]; titled {
			fmt.Fprint(w, `{"code":99999,"msg":"titled creation rejected","data":{}}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"document":{"document_id":"d2","title":"","revision_id":1}}}`)
	})

	mux.HandleFunc("/wiki/v2/spaces/space1/nodes/move_docs_to_wiki", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
	})

	mux.HandleFunc("/docx/v1/documents/d2/blocks/d2/children", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if children, ok := body["children"].([]any); ok {
			for _, c := range children {
				if m, ok := c.(map[string]any); ok {
					*posted = append(*posted, m)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"children":[]}}`)
	})

	mux.HandleFunc("/docx/v1/documents/d2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"document":{"document_id":"d2","title":"My Title","revision_id":2}}}`)
	})

	return httptest.NewServer(mux)
}

func TestReconciler_NewLocalFile_TitledCreateFailureFallsBackToHeadingBlock(t *testing.T) {
	var posted []map[string]any
	srv := titledCreateFailsServer(t, &posted)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root, "new.md"), []byte("# My Title\n\nbody text\n"), 0o644))

	rec := New(client, ws, Options{DeleteRemoteOnLocalMissing: true})
	result, err := rec.Run(t.Context(), "space1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)

	require.NotEmpty(t, posted)
	first := posted[0]
	assert.Equal(t, float64(3), first["block_type"], "fallback must prepend a level-1 heading block")
	heading, ok := first["heading1"].(map[string]any)
	require.True(t, ok)
	elements, ok := heading["elements"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, elements)
	el := elements[0].(map[string]any)
	run := el["text_run"].(map[string]any)
	assert.Equal(t, "My Title", run["content"])
}

func TestReconciler_Idempotent_SecondRunIsAllSkipped(t *testing.T) {
	srv := fixtureServer(t, nil)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newTestWorkspace(t)
	rec := New(client, ws, Options{DeleteRemoteOnLocalMissing: true})

	_, err := rec.Run(t.Context(), "space1")
	require.NoError(t, err)

	result2, err := rec.Run(t.Context(), "space1")
	require.NoError(t, err)
	assert.Equal(t, 1, result2.Skipped)
	assert.Equal(t, 0, result2.Downloaded)
	assert.Equal(t, 0, result2.Uploaded)
	assert.Equal(t, 0, result2.Conflicts)
}
