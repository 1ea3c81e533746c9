package eventsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEventType_RecognizedKinds(t *testing.T) {
	cases := map[string]string{
		"drive.file.created_in_folder_v1": "created_in_folder",
		"drive.file.edit_v1":              "edit",
		"drive.file.title_updated_v1":     "title_updated",
		"drive.file.trashed_v1":           "trashed",
		"drive.file.permission_member_added_v1": "",
		"something.unrelated_v1":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeEventType(in), in)
	}
}

func TestDispatch_PrefersDocumentIdOverFileToken(t *testing.T) {
	var gotKind, gotDoc, gotType string
	s := NewWebSocketStream("wss://example", "tok", func(kind, documentID, fileType string) {
		gotKind, gotDoc, gotType = kind, documentID, fileType
	})

	s.dispatch([]byte(`{"event_type":"drive.file.edit_v1","document_id":"d1","file_token":"ft1","file_type":"docx"}`))

	assert.Equal(t, "edit", gotKind)
	assert.Equal(t, "d1", gotDoc)
	assert.Equal(t, "docx", gotType)
}

func TestDispatch_FallsBackToFileToken(t *testing.T) {
	var gotDoc string
	s := NewWebSocketStream("wss://example", "tok", func(kind, documentID, fileType string) {
		gotDoc = documentID
	})

	s.dispatch([]byte(`{"event_type":"drive.file.trashed_v1","file_token":"ft1"}`))

	assert.Equal(t, "ft1", gotDoc)
}

func TestDispatch_UnparsableOrUnrecognizedIsDropped(t *testing.T) {
	called := false
	s := NewWebSocketStream("wss://example", "tok", func(kind, documentID, fileType string) {
		called = true
	})

	s.dispatch([]byte(`not json`))
	s.dispatch([]byte(`{"event_type":"drive.file.comment_added_v1","document_id":"d1"}`))

	assert.False(t, called)
}

func TestNextBackoff_DoublesAndCapsWithJitter(t *testing.T) {
	delay := reconnectInitialDelay
	for i := 0; i < 10; i++ {
		delay = nextBackoff(delay)
		assert.LessOrEqual(t, delay, reconnectMaxDelay+reconnectMaxDelay/4)
		assert.Greater(t, delay, time.Duration(0))
	}
}
