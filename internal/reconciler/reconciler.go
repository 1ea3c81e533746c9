// Package reconciler implements the one-shot bidirectional sync state
// machine (C6): it diffs the local file set and the remote document
// tree against the manifest and decides, per document, whether to
// download, upload, conflict-save, delete, or create.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"

	"github.com/tmbmode/feishu-wiki-sync/internal/localfs"
	"github.com/tmbmode/feishu-wiki-sync/internal/manifest"
	"github.com/tmbmode/feishu-wiki-sync/internal/markdown"
	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiwalker"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// Result tallies what a reconciliation pass did, per §7's user-visible
// counters.
type Result struct {
	Downloaded    int
	Uploaded      int
	DeletedLocal  int
	DeletedRemote int
	Conflicts     int
	Skipped       int
}

func (r Result) HasChanges() bool {
	return r.Downloaded+r.Uploaded+r.DeletedLocal+r.DeletedRemote+r.Conflicts > 0
}

// Options configures reconciliation behavior with more than one
// defensible default.
type Options struct {
	// DeleteRemoteOnLocalMissing resolves an explicit Open Question:
	// when true (default), a manifest-paired local file that has
	// disappeared deletes the remote document. When false, the local
	// file is instead restored by downloading the remote document over
	// it, so an accidental local delete can't destroy remote content.
	DeleteRemoteOnLocalMissing bool
}

// Reconciler runs one full bidirectional sync pass.
type Reconciler struct {
	client *wikiapi.Client
	walker *wikiwalker.Walker
	ws     *workspace.Workspace
	opts   Options
}

func New(client *wikiapi.Client, ws *workspace.Workspace, opts Options) *Reconciler {
	return &Reconciler{
		client: client,
		walker: wikiwalker.New(client),
		ws:     ws,
		opts:   opts,
	}
}

type remoteDoc struct {
	documentID string
	fileType   string
	title      string
	revisionID string
}

// Run performs one reconciliation pass for spaceId and persists the
// updated manifest at the end. The manifest is only written after every
// document decision has executed, so a crash mid-pass leaves the prior
// manifest, which remains correct (§7 rule 8, P6).
func (r *Reconciler) Run(ctx context.Context, spaceID string) (Result, error) {
	var result Result

	m := manifest.Read(r.ws.ManifestPath)
	m.SpaceID = spaceID

	ignore := localfs.NewIgnoreList(r.ws.Root, r.ws.IgnoreFile)
	localMap, err := localfs.Walk(r.ws.Root, ignore)
	if err != nil {
		return result, fmt.Errorf("walk local files: %w", err)
	}

	remoteMap, err := r.fetchRemoteState(ctx, spaceID)
	if err != nil {
		return result, fmt.Errorf("fetch remote state: %w", err)
	}

	usedPaths := m.UsedPaths()
	for rel := range localMap {
		usedPaths.Add(rel)
	}

	paired := make(map[string]bool, len(localMap))

	for _, doc := range remoteMap {
		if err := r.reconcileDocument(ctx, m, localMap, usedPaths, paired, doc, &result); err != nil {
			slog.Error("reconcile document failed", "documentId", doc.documentID, "error", err)
		}
	}

	if err := r.reconcileDeletedRemote(ctx, m, remoteMap, &result); err != nil {
		slog.Error("reconcile remote deletions failed", "error", err)
	}

	if err := r.reconcileNewLocalFiles(ctx, spaceID, m, localMap, paired, &result); err != nil {
		slog.Error("reconcile new local files failed", "error", err)
	}

	if err := manifest.Write(r.ws.ManifestPath, m); err != nil {
		return result, fmt.Errorf("write manifest: %w", err)
	}

	slog.Info("reconciliation complete",
		"downloaded", result.Downloaded,
		"uploaded", result.Uploaded,
		"deletedLocal", result.DeletedLocal,
		"deletedRemote", result.DeletedRemote,
		"conflicts", result.Conflicts,
		"skipped", result.Skipped,
	)

	return result, nil
}

func (r *Reconciler) fetchRemoteState(ctx context.Context, spaceID string) (map[string]remoteDoc, error) {
	nodes, err := r.walker.Walk(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]remoteDoc, len(nodes))
	for _, n := range nodes {
		meta, err := r.client.GetDocumentMeta(ctx, n.DocumentID)
		if err != nil {
			slog.Warn("fetch document metadata failed, using node listing title", "documentId", n.DocumentID, "error", err)
			out[n.DocumentID] = remoteDoc{documentID: n.DocumentID, fileType: n.ObjType, title: n.Title}
			continue
		}
		out[n.DocumentID] = remoteDoc{
			documentID: n.DocumentID,
			fileType:   n.ObjType,
			title:      meta.Title,
			revisionID: strconv.FormatInt(meta.RevisionID, 10),
		}
	}
	return out, nil
}

func (r *Reconciler) reconcileDocument(ctx context.Context, m *manifest.Manifest, localMap map[string]localfs.FileInfo, usedPaths mapset.Set[string], paired map[string]bool, doc remoteDoc, result *Result) error {
	existing := m.Get(doc.documentID)

	candidates := withoutOwnFile(usedPaths, existing)
	desired := desiredFilename(doc.title, doc.documentID, candidates)

	if existing == nil {
		return r.downloadFresh(ctx, m, usedPaths, paired, doc, desired, result)
	}

	if existing.File != desired {
		oldAbs := r.ws.AbsPath(existing.File)
		newAbs := r.ws.AbsPath(desired)
		if utils.FileExists(oldAbs) {
			if err := utils.EnsureParent(newAbs); err != nil {
				return err
			}
			if err := os.Rename(oldAbs, newAbs); err != nil {
				return fmt.Errorf("rename %s -> %s: %w", existing.File, desired, err)
			}
			delete(localMap, existing.File)
			if hash, err := utils.HashFile(newAbs); err == nil {
				localMap[desired] = localfs.FileInfo{FullPath: newAbs, RelPath: desired, Hash: hash}
			}
		}
		usedPaths.Remove(existing.File)
		usedPaths.Add(desired)
		existing.File = desired
	}

	fileRel := existing.File
	paired[fileRel] = true
	localInfo, haveLocal := localMap[fileRel]

	if !haveLocal {
		return r.handleLocalMissing(ctx, m, doc, existing, result)
	}

	localChanged := existing.Hash != "" && localInfo.Hash != "" && existing.Hash != localInfo.Hash
	remoteChanged := existing.RevisionID != nil && doc.revisionID != "" && *existing.RevisionID != doc.revisionID

	switch {
	case localChanged && remoteChanged:
		return r.saveConflict(ctx, doc, fileRel, result)
	case remoteChanged:
		return r.downloadOver(ctx, m, doc, existing, fileRel, result)
	case localChanged:
		return r.uploadLocal(ctx, m, doc, existing, localInfo, result)
	default:
		existing.Title = doc.title
		existing.FileType = doc.fileType
		if doc.revisionID != "" {
			rev := doc.revisionID
			existing.RevisionID = &rev
		}
		result.Skipped++
		return nil
	}
}

func withoutOwnFile(usedPaths mapset.Set[string], existing *manifest.Entry) mapset.Set[string] {
	if existing == nil {
		return usedPaths
	}
	return usedPaths.Difference(mapset.NewThreadUnsafeSet(existing.File))
}

func (r *Reconciler) downloadFresh(ctx context.Context, m *manifest.Manifest, usedPaths mapset.Set[string], paired map[string]bool, doc remoteDoc, desired string, result *Result) error {
	content, hash, err := r.renderDocument(ctx, doc)
	if err != nil {
		return err
	}

	if err := utils.WriteFileAtomic(r.ws.AbsPath(desired), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", desired, err)
	}

	rev := doc.revisionID
	m.Set(doc.documentID, &manifest.Entry{
		File:       desired,
		RevisionID: &rev,
		Title:      doc.title,
		FileType:   doc.fileType,
		Hash:       hash,
	})
	usedPaths.Add(desired)
	paired[desired] = true
	result.Downloaded++
	return nil
}

func (r *Reconciler) downloadOver(ctx context.Context, m *manifest.Manifest, doc remoteDoc, existing *manifest.Entry, fileRel string, result *Result) error {
	content, hash, err := r.renderDocument(ctx, doc)
	if err != nil {
		return err
	}

	if err := utils.WriteFileAtomic(r.ws.AbsPath(fileRel), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fileRel, err)
	}

	rev := doc.revisionID
	existing.RevisionID = &rev
	existing.Title = doc.title
	existing.FileType = doc.fileType
	existing.Hash = hash
	result.Downloaded++
	return nil
}

func (r *Reconciler) saveConflict(ctx context.Context, doc remoteDoc, fileRel string, result *Result) error {
	content, _, err := r.renderDocument(ctx, doc)
	if err != nil {
		return err
	}

	conflictRel := conflictFilename(fileRel)
	if err := utils.WriteFileAtomic(r.ws.AbsPath(conflictRel), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write conflict artifact %s: %w", conflictRel, err)
	}
	slog.Warn("conflict detected, wrote remote copy alongside local", "local", fileRel, "remote", conflictRel)
	result.Conflicts++
	return nil
}

func (r *Reconciler) uploadLocal(ctx context.Context, m *manifest.Manifest, doc remoteDoc, existing *manifest.Entry, localInfo localfs.FileInfo, result *Result) error {
	body, err := os.ReadFile(localInfo.FullPath)
	if err != nil {
		return err
	}
	parsed := markdown.MarkdownToBlocks(string(body))

	if err := replaceContent(ctx, r.client, doc.documentID, parsed); err != nil {
		return fmt.Errorf("upload %s: %w", localInfo.RelPath, err)
	}

	meta, err := r.client.GetDocumentMeta(ctx, doc.documentID)
	if err != nil {
		return fmt.Errorf("refetch metadata after upload: %w", err)
	}

	rev := strconv.FormatInt(meta.RevisionID, 10)
	existing.RevisionID = &rev
	existing.Title = meta.Title
	existing.Hash = localInfo.Hash
	result.Uploaded++
	return nil
}

func (r *Reconciler) handleLocalMissing(ctx context.Context, m *manifest.Manifest, doc remoteDoc, existing *manifest.Entry, result *Result) error {
	if !r.opts.DeleteRemoteOnLocalMissing {
		return r.downloadOver(ctx, m, doc, existing, existing.File, result)
	}
	if err := r.client.DeleteDocument(ctx, doc.fileType, doc.documentID); err != nil {
		return fmt.Errorf("delete remote doc %s: %w", doc.documentID, err)
	}
	m.Delete(doc.documentID)
	result.DeletedRemote++
	return nil
}

func (r *Reconciler) reconcileDeletedRemote(ctx context.Context, m *manifest.Manifest, remoteMap map[string]remoteDoc, result *Result) error {
	var gone []string
	for docID, entry := range m.Docs {
		if _, ok := remoteMap[docID]; ok {
			continue
		}
		abs := r.ws.AbsPath(entry.File)
		if utils.FileExists(abs) {
			if err := os.Remove(abs); err != nil {
				slog.Error("remove local file for deleted remote doc failed", "file", entry.File, "error", err)
			}
		}
		gone = append(gone, docID)
		result.DeletedLocal++
	}
	for _, docID := range gone {
		m.Delete(docID)
	}
	return nil
}

func (r *Reconciler) reconcileNewLocalFiles(ctx context.Context, spaceID string, m *manifest.Manifest, localMap map[string]localfs.FileInfo, paired map[string]bool, result *Result) error {
	for rel, info := range localMap {
		if paired[rel] {
			continue
		}

		body, err := os.ReadFile(info.FullPath)
		if err != nil {
			slog.Error("read new local file failed", "file", rel, "error", err)
			continue
		}
		parsed := markdown.MarkdownToBlocks(string(body))

		blocks := parsed.Blocks
		docMeta, err := r.client.CreateDocument(ctx, parsed.Title)
		if err != nil {
			docMeta, err = r.client.CreateDocument(ctx, "")
			if err != nil {
				slog.Error("create remote document failed", "file", rel, "error", err)
				continue
			}
			if parsed.Title != "" {
				blocks = append([]wikiapi.Block{markdown.TitleHeadingBlock(parsed.Title)}, blocks...)
			}
		}

		if err := r.client.MoveDocToWiki(ctx, spaceID, "docx", docMeta.DocumentID, ""); err != nil {
			slog.Error("move new document into wiki space failed", "file", rel, "error", err)
			continue
		}

		if err := appendBlocks(ctx, r.client, docMeta.DocumentID, docMeta.DocumentID, 0, blocks); err != nil {
			slog.Error("populate new document failed", "file", rel, "error", err)
			continue
		}

		meta, err := r.client.GetDocumentMeta(ctx, docMeta.DocumentID)
		if err != nil {
			slog.Error("refetch metadata for new document failed", "file", rel, "error", err)
			continue
		}

		rev := strconv.FormatInt(meta.RevisionID, 10)
		m.Set(docMeta.DocumentID, &manifest.Entry{
			File:       rel,
			RevisionID: &rev,
			Title:      meta.Title,
			FileType:   "docx",
			Hash:       info.Hash,
		})
		paired[rel] = true
		result.Uploaded++
	}
	return nil
}

func (r *Reconciler) renderDocument(ctx context.Context, doc remoteDoc) (string, string, error) {
	blocks, err := r.client.GetDocumentBlocks(ctx, doc.documentID)
	if err != nil {
		return "", "", fmt.Errorf("fetch blocks for %s: %w", doc.documentID, err)
	}
	content := markdown.BlocksToMarkdown(markdown.Metadata{Title: doc.title}, blocks)
	return content, utils.HashBytes([]byte(content)), nil
}

// Summary renders a human-readable line for user-facing output, per
// §7's requirement to print counters after each pass.
func Summary(r Result) string {
	return fmt.Sprintf(
		"%s downloaded, %s uploaded, %s deleted locally, %s deleted remotely, %s conflicts, %s unchanged",
		humanize.Comma(int64(r.Downloaded)),
		humanize.Comma(int64(r.Uploaded)),
		humanize.Comma(int64(r.DeletedLocal)),
		humanize.Comma(int64(r.DeletedRemote)),
		humanize.Comma(int64(r.Conflicts)),
		humanize.Comma(int64(r.Skipped)),
	)
}
