package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmbmode/feishu-wiki-sync/internal/manifest"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

func singleDocServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/wiki/v2/spaces/space1/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[{"node_token":"n1","obj_token":"d1","obj_type":"docx","title":"Hello"}],"page_token":"","has_more":false}}`)
	})
	mux.HandleFunc("/docx/v1/documents/d1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"document":{"document_id":"d1","title":"Hello","revision_id":1}}}`)
	})
	mux.HandleFunc("/docx/v1/documents/d1/blocks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"items":[
			{"block_id":"b1","parent_id":"d1","block_type":2,"text":{"elements":[{"text_run":{"content":"hello","text_element_style":{}}}]}}
		],"page_token":"","has_more":false}}`)
	})
	mux.HandleFunc("/drive/v1/files/d1/subscribe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
	})

	return httptest.NewServer(mux)
}

// Start runs the initial reconciliation pass before any background
// component (poller, watcher, websocket) starts; this exercises that
// sequencing by confirming the fresh document is already on disk and
// manifested by the time the context is cancelled and Start returns.
func TestOrchestrator_Start_RunsInitialSyncBeforeBackgroundComponents(t *testing.T) {
	srv := singleDocServer(t)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })

	o := New(Config{
		SpaceID:             "space1",
		WebSocketURL:        "ws://127.0.0.1:1/nonexistent",
		Token:               "tok",
		InitialSync:         true,
		PollIntervalSeconds: 0,
	}, client, ws)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = o.Start(ctx)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(ws.Root, "Hello.md"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")

	m := manifest.Read(ws.ManifestPath)
	assert.Contains(t, m.Docs, "d1")
}
