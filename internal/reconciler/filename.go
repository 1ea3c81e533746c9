package reconciler

import (
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var unsafeFilenameChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)

// sanitizeTitle turns a document title into a filesystem-safe stem: it
// strips characters illegal in filenames and collapses whitespace. It
// returns "" when that leaves nothing usable; desiredFilename then
// falls back to the documentId.
func sanitizeTitle(title string) string {
	s := unsafeFilenameChars.ReplaceAllString(title, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// desiredFilename computes "<sanitize(title) || documentId>.md", made
// unique against usedPaths (which must already exclude the entry's own
// current file, so renaming a doc back to its own name is a no-op).
func desiredFilename(title, documentID string, usedPaths mapset.Set[string]) string {
	stem := sanitizeTitle(title)
	if stem == "" {
		stem = documentID
	}

	candidate := stem + ".md"
	if !usedPaths.Contains(candidate) {
		return candidate
	}

	for i := 2; ; i++ {
		candidate = fmt.Sprintf("%s-%d.md", stem, i)
		if !usedPaths.Contains(candidate) {
			return candidate
		}
	}
}

// conflictFilename is "<stem>.remote.md" for relPath "<stem>.md".
func conflictFilename(relPath string) string {
	stem := strings.TrimSuffix(relPath, ".md")
	return stem + ".remote.md"
}
