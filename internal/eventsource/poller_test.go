package eventsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmbmode/feishu-wiki-sync/internal/manifest"
	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// oneDocServer exposes a single new docx "d1" in space1 and counts
// subscribe calls.
func oneDocServer(t *testing.T, subscribes *int32) *httptest.Server {
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
		if subscribes != nil {
			atomic.AddInt32(subscribes, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
	})

	return httptest.NewServer(mux)
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })
	return ws
}

type noopScope struct{ begins, ends int32 }

func (s *noopScope) BeginWrite() { atomic.AddInt32(&s.begins, 1) }
func (s *noopScope) EndWrite()   { atomic.AddInt32(&s.ends, 1) }

func TestPoller_Tick_SeedsNewDocumentAndSubscribes(t *testing.T) {
	var subscribes int32
	srv := oneDocServer(t, &subscribes)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newWorkspace(t)
	rec := reconciler.New(client, ws, reconciler.Options{})
	scope := &noopScope{}

	p := NewPoller(client, rec, "space1", time.Second, scope)
	p.tick(context.Background())

	assert.Equal(t, []string{"d1"}, rec.ManifestedDocuments())
	assert.Equal(t, int32(1), atomic.LoadInt32(&subscribes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&scope.begins))
	assert.Equal(t, int32(1), atomic.LoadInt32(&scope.ends))
}

func TestPoller_Tick_SkipsAlreadyKnownDocuments(t *testing.T) {
	var subscribes int32
	srv := oneDocServer(t, &subscribes)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newWorkspace(t)
	rev := "1"
	m := &manifest.Manifest{SpaceID: "space1", Docs: map[string]*manifest.Entry{
		"d1": {File: "Hello.md", RevisionID: &rev, Title: "Hello", FileType: "docx", Hash: "x"},
	}}
	require.NoError(t, manifest.Write(ws.ManifestPath, m))

	rec := reconciler.New(client, ws, reconciler.Options{})
	p := NewPoller(client, rec, "space1", time.Second, nil)
	p.tick(context.Background())

	assert.Equal(t, int32(0), atomic.LoadInt32(&subscribes))
}

func TestPoller_Tick_SkipsWhenPreviousPassStillRunning(t *testing.T) {
	var subscribes int32
	srv := oneDocServer(t, &subscribes)
	defer srv.Close()

	client := wikiapi.NewClient("tok")
	client.SetBaseURL(srv.URL)

	ws := newWorkspace(t)
	rec := reconciler.New(client, ws, reconciler.Options{})
	p := NewPoller(client, rec, "space1", time.Second, nil)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.tick(context.Background())

	assert.Equal(t, int32(0), atomic.LoadInt32(&subscribes))
}

func TestPoller_Run_DoesNothingWhenIntervalDisabled(t *testing.T) {
	p := NewPoller(nil, nil, "space1", 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)
}
