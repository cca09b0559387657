package watcher

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/padsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".padignore"

var defaultIgnoreLines = []string{
	// padsync
	".padsync/",
	ignoreFileName,
	// version control
	".git",
	// atomic write temp files and editor droppings
	"*.tmp",
	"*.swp",
	"*.swx",
	"*~",
	".#*",
	"4913",
	// archived documents are not live
	"archive/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which paths under the watched root never produce notifications.
type IgnoreList struct {
	baseDir    string
	extensions []string
	ignore     *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string, extensions []string) *IgnoreList {
	return &IgnoreList{
		baseDir:    baseDir,
		extensions: extensions,
		ignore:     gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// Load compiles the default rules together with the user's .padignore file, if present.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, ignoreFileName)
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("padignore open", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("padignore read", "path", ignorePath, "error", err)
			} else {
				slog.Info("padignore loaded", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether the root-relative slash path should be dropped.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	if l.ignore != nil && l.ignore.MatchesPath(rel) {
		return true
	}
	if len(l.extensions) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range l.extensions {
		if ext == strings.ToLower(e) {
			return false
		}
	}
	return true
}

// SkipDir reports whether everything below the root-relative directory is ignored.
func (l *IgnoreList) SkipDir(rel string) bool {
	return l.ignore != nil && l.ignore.MatchesPath(strings.TrimSuffix(rel, "/")+"/")
}
