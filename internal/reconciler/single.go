package reconciler

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/tmbmode/feishu-wiki-sync/internal/manifest"
	"github.com/tmbmode/feishu-wiki-sync/internal/markdown"
	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

// RefreshResult reports whether a single-document refresh actually
// rewrote the local file, so callers can skip redundant echo-suppression
// bookkeeping when nothing changed.
type RefreshResult struct {
	Changed bool
}

// RefreshDocument re-fetches one document's metadata and blocks,
// compares the rendered hash against the manifest, and rewrites the
// local file only on a mismatch — §4.7's "single-doc refresh". A
// missing pairing surfaces as wikiapi.ErrNotFound so the caller can
// fall back to a full sync.
func (r *Reconciler) RefreshDocument(ctx context.Context, documentID string) (RefreshResult, error) {
	m := manifest.Read(r.ws.ManifestPath)
	entry := m.Get(documentID)
	if entry == nil {
		return RefreshResult{}, fmt.Errorf("refresh %s: %w", documentID, wikiapi.ErrNotFound)
	}

	meta, err := r.client.GetDocumentMeta(ctx, documentID)
	if err != nil {
		return RefreshResult{}, err
	}

	doc := remoteDoc{
		documentID: documentID,
		fileType:   entry.FileType,
		title:      meta.Title,
		revisionID: strconv.FormatInt(meta.RevisionID, 10),
	}
	content, hash, err := r.renderDocument(ctx, doc)
	if err != nil {
		return RefreshResult{}, err
	}

	rev := doc.revisionID
	entry.RevisionID = &rev
	entry.Title = doc.title

	if hash == entry.Hash {
		return RefreshResult{Changed: false}, manifest.Write(r.ws.ManifestPath, m)
	}

	if err := utils.WriteFileAtomic(r.ws.AbsPath(entry.File), []byte(content), 0o644); err != nil {
		return RefreshResult{}, fmt.Errorf("write %s: %w", entry.File, err)
	}
	entry.Hash = hash

	return RefreshResult{Changed: true}, manifest.Write(r.ws.ManifestPath, m)
}

// UploadDocument pushes the local file paired with documentID to the
// remote side — the single-document equivalent of uploadLocal, triggered
// by a filesystem event rather than a full pass. A no-op if the local
// hash already matches the manifest (the event was an echo or a touch
// with no content change).
func (r *Reconciler) UploadDocument(ctx context.Context, documentID string) error {
	m := manifest.Read(r.ws.ManifestPath)
	entry := m.Get(documentID)
	if entry == nil {
		return fmt.Errorf("upload %s: %w", documentID, wikiapi.ErrNotFound)
	}

	abs := r.ws.AbsPath(entry.File)
	body, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.File, err)
	}
	hash := utils.HashBytes(body)
	if hash == entry.Hash {
		return nil
	}

	parsed := markdown.MarkdownToBlocks(string(body))
	if err := replaceContent(ctx, r.client, documentID, parsed); err != nil {
		return fmt.Errorf("upload %s: %w", entry.File, err)
	}

	meta, err := r.client.GetDocumentMeta(ctx, documentID)
	if err != nil {
		return fmt.Errorf("refetch metadata after upload: %w", err)
	}

	rev := strconv.FormatInt(meta.RevisionID, 10)
	entry.RevisionID = &rev
	entry.Title = meta.Title
	entry.Hash = hash

	return manifest.Write(r.ws.ManifestPath, m)
}

// LookupDocumentByFile finds the documentId paired with a
// manifest-relative path, letting handleLocalChange map a filesystem
// event back to a document.
func (r *Reconciler) LookupDocumentByFile(relPath string) (string, bool) {
	m := manifest.Read(r.ws.ManifestPath)
	for id, e := range m.Docs {
		if e.File == relPath {
			return id, true
		}
	}
	return "", false
}

// ManifestedDocuments lists every documentId currently paired, used at
// startup to build the initial event subscription set (§4.9 step 3).
func (r *Reconciler) ManifestedDocuments() []string {
	m := manifest.Read(r.ws.ManifestPath)
	ids := make([]string, 0, len(m.Docs))
	for id := range m.Docs {
		ids = append(ids, id)
	}
	return ids
}

// FileTypeOf returns the manifest's recorded fileType for documentId,
// used by the orchestrator to call SubscribeDocument with the right
// type for each manifested document.
func (r *Reconciler) FileTypeOf(documentID string) (string, bool) {
	m := manifest.Read(r.ws.ManifestPath)
	entry := m.Get(documentID)
	if entry == nil {
		return "", false
	}
	return entry.FileType, true
}

// SeedDocument downloads a document the poller discovered that has no
// manifest pairing yet, writing its rendered file and a fresh manifest
// entry — the single-document equivalent of downloadFresh. A no-op if
// the document already has a pairing by the time this runs (e.g. a
// concurrent full sync beat the poller to it).
func (r *Reconciler) SeedDocument(ctx context.Context, documentID, fileType, title string) error {
	m := manifest.Read(r.ws.ManifestPath)
	if m.Get(documentID) != nil {
		return nil
	}

	meta, err := r.client.GetDocumentMeta(ctx, documentID)
	if err != nil {
		return err
	}

	doc := remoteDoc{
		documentID: documentID,
		fileType:   fileType,
		title:      meta.Title,
		revisionID: strconv.FormatInt(meta.RevisionID, 10),
	}
	content, hash, err := r.renderDocument(ctx, doc)
	if err != nil {
		return err
	}

	usedPaths := m.UsedPaths()
	desired := desiredFilename(doc.title, documentID, usedPaths)

	if err := utils.WriteFileAtomic(r.ws.AbsPath(desired), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", desired, err)
	}

	rev := doc.revisionID
	m.Set(documentID, &manifest.Entry{
		File:       desired,
		RevisionID: &rev,
		Title:      doc.title,
		FileType:   doc.fileType,
		Hash:       hash,
	})

	return manifest.Write(r.ws.ManifestPath, m)
}
