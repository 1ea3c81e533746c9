// Package manifest persists the paired-state map between the local
// Markdown directory and the remote wiki space: one entry per documentId,
// recording the file it lives in, its last-observed revision, and the
// content hash the engine last wrote or read.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
)

// Entry is the last-known pairing state for one remote document.
type Entry struct {
	File       string  `json:"file"`
	RevisionID *string `json:"revisionId"`
	Title      string  `json:"title"`
	FileType   string  `json:"fileType"`
	Hash       string  `json:"hash"`
}

// Manifest is the full persisted pairing state for one wiki space.
type Manifest struct {
	SpaceID   string            `json:"spaceId"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Docs      map[string]*Entry `json:"docs"`
}

func empty() *Manifest {
	return &Manifest{Docs: map[string]*Entry{}}
}

// Read loads the manifest at path. A missing or malformed file yields an
// empty manifest rather than an error: the caller is expected to rebuild
// pairings from a fresh reconciliation pass.
func Read(path string) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		return empty()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return empty()
	}
	if m.Docs == nil {
		m.Docs = map[string]*Entry{}
	}
	return &m
}

// Write persists m to path as pretty-printed JSON, refreshing UpdatedAt,
// via an atomic write-then-rename so readers never observe a partial file.
func Write(path string, m *Manifest) error {
	if m.Docs == nil {
		m.Docs = map[string]*Entry{}
	}
	m.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	return utils.WriteFileAtomic(path, data, 0o644)
}

// Get returns the entry for documentId, or nil if unpaired.
func (m *Manifest) Get(documentID string) *Entry {
	return m.Docs[documentID]
}

// Set records or replaces the entry for documentId.
func (m *Manifest) Set(documentID string, e *Entry) {
	if m.Docs == nil {
		m.Docs = map[string]*Entry{}
	}
	m.Docs[documentID] = e
}

// Delete removes the entry for documentId, if any.
func (m *Manifest) Delete(documentID string) {
	delete(m.Docs, documentID)
}

// UsedPaths returns the set of relative file paths already claimed by a
// manifest entry, for O(1) membership checks against generated
// filenames.
func (m *Manifest) UsedPaths() mapset.Set[string] {
	used := mapset.NewThreadUnsafeSet[string]()
	for _, e := range m.Docs {
		used.Add(e.File)
	}
	return used
}
