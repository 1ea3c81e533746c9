package localfs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
)

// defaultIgnoreLines are excluded regardless of any user-supplied
// ignore file.
var defaultIgnoreLines = []string{
	".git",
	"node_modules/",
	"*.remote.md",
	".feishu-sync.json",
	".feishu-sync/",
	".feishusyncignore",
	".DS_Store",
}

// IgnoreList decides whether a path under a root is excluded from the
// local file set, combining the built-in defaults with an optional
// gitignore-style file at "<root>/.feishusyncignore".
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList loads ignoreFile (if present) alongside the built-in
// defaults. A missing or unreadable ignore file is not an error: the
// defaults alone still apply.
func NewIgnoreList(baseDir, ignoreFile string) *IgnoreList {
	lines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignoreFile) {
		if custom, err := readIgnoreFile(ignoreFile); err == nil {
			lines = append(lines, custom...)
		}
	}

	return &IgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(lines...),
	}
}

// ShouldIgnore reports whether the absolute path fullPath should be
// excluded from the local file set.
func (l *IgnoreList) ShouldIgnore(fullPath string) bool {
	rel, err := filepath.Rel(l.baseDir, fullPath)
	if err != nil {
		return false
	}
	return l.ignore.MatchesPath(utils.ToSlash(rel))
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
