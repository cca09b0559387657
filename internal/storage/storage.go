// Package storage is the path-addressed document store backing the sync service.
// Paths are slash separated and relative to the store root.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/openmined/padsync/internal/utils"
)

const (
	metadataDir = ".padsync"
	lockFile    = "padsync.lock"
	tempPrefix  = "."
	tempSuffix  = ".tmp"
)

var (
	ErrNotFound    = errors.New("storage: document not found")
	ErrInvalidPath = errors.New("storage: invalid document path")
	ErrExists      = errors.New("storage: document already exists")
	ErrRootLocked  = errors.New("storage: data directory locked by another process")
)

// Document is a document body together with its last modification instant.
type Document struct {
	Path       string    `json:"path"`
	Content    []byte    `json:"-"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Size       int64     `json:"size"`
}

// WriteRecorder is told about every mutation performed through the store before it hits the
// filesystem, together with the session that originated it (empty when none).
type WriteRecorder interface {
	RecordWrite(path string, origin string)
}

type FileStore struct {
	root       string
	extensions []string
	flock      *flock.Flock

	recorder   WriteRecorder
	recorderMu sync.RWMutex

	// one mutation at a time keeps temp file names unique per path
	writeMu sync.Mutex
}

func NewFileStore(root string, extensions []string) (*FileStore, error) {
	abs, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %s: %w", root, err)
	}
	if err := utils.EnsureDir(abs); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", abs, err)
	}
	// watchers report real paths; macos tmp dirs are symlinks
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	if len(extensions) == 0 {
		extensions = []string{".md"}
	}

	return &FileStore{
		root:       abs,
		extensions: extensions,
		flock:      flock.New(filepath.Join(abs, metadataDir, lockFile)),
	}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

// SetRecorder installs the own-write recorder. Passing nil disables recording.
func (s *FileStore) SetRecorder(r WriteRecorder) {
	s.recorderMu.Lock()
	defer s.recorderMu.Unlock()
	s.recorder = r
}

// Lock takes an exclusive advisory lock on the data directory so a second daemon
// cannot serve the same tree.
func (s *FileStore) Lock() error {
	if err := utils.EnsureDir(filepath.Join(s.root, metadataDir)); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	locked, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return ErrRootLocked
	}
	return nil
}

func (s *FileStore) Unlock() error {
	if !s.flock.Locked() {
		return nil
	}
	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock data dir: %w", err)
	}
	return os.Remove(s.flock.Path())
}

// Resolve maps a document path to an absolute filesystem path inside the root.
func (s *FileStore) Resolve(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Rel maps an absolute filesystem path back to a document path.
func (s *FileStore) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("%w: %s is outside %s", ErrInvalidPath, abs, s.root)
	}
	return rel, nil
}

func (s *FileStore) Read(p string) (*Document, error) {
	full, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, p)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	return &Document{
		Path:       path.Clean(filepath.ToSlash(p)),
		Content:    content,
		ModifiedAt: info.ModTime(),
		Size:       info.Size(),
	}, nil
}

func (s *FileStore) Exists(p string) bool {
	full, err := s.Resolve(p)
	if err != nil {
		return false
	}
	return utils.FileExists(full)
}

// Write stores content at p without an originating session.
func (s *FileStore) Write(p string, content []byte) (time.Time, error) {
	return s.WriteAs("", p, content)
}

// WriteAs atomically replaces the document at p and returns its new modification instant.
// origin identifies the session whose edit produced the write.
func (s *FileStore) WriteAs(origin string, p string, content []byte) (time.Time, error) {
	full, err := s.Resolve(p)
	if err != nil {
		return time.Time{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := utils.EnsureParent(full); err != nil {
		return time.Time{}, fmt.Errorf("create parent of %s: %w", p, err)
	}

	s.record(p, origin)

	tmp := filepath.Join(filepath.Dir(full), tempPrefix+filepath.Base(full)+tempSuffix)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return time.Time{}, fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return time.Time{}, fmt.Errorf("replace %s: %w", p, err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return time.Time{}, err
	}

	slog.Debug("storage write", "path", p, "origin", origin, "size", humanize.Bytes(uint64(len(content))))
	return info.ModTime(), nil
}

// Create writes a new document and fails if one already exists.
func (s *FileStore) Create(origin string, p string, content []byte) (time.Time, error) {
	if s.Exists(p) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrExists, p)
	}
	return s.WriteAs(origin, p, content)
}

func (s *FileStore) Delete(origin string, p string) error {
	full, err := s.Resolve(p)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.record(p, origin)
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return err
	}

	slog.Debug("storage delete", "path", p, "origin", origin)
	return nil
}

func (s *FileStore) Rename(origin string, from, to string) error {
	src, err := s.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := s.Resolve(to)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !utils.FileExists(src) {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if utils.FileExists(dst) {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}
	if err := utils.EnsureParent(dst); err != nil {
		return err
	}

	s.record(from, origin)
	s.record(to, origin)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", from, to, err)
	}

	slog.Debug("storage rename", "from", from, "to", to, "origin", origin)
	return nil
}

// List returns the document paths below dir that carry one of the store's extensions.
// Hidden files and directories are skipped.
func (s *FileStore) List(dir string) ([]string, error) {
	base := "."
	if dir != "" && dir != "." && dir != "/" {
		clean, err := CleanPath(dir)
		if err != nil {
			return nil, err
		}
		base = clean
	}

	pattern := path.Join(base, "**", "*"+extGlob(s.extensions))
	matches, err := doublestar.Glob(os.DirFS(s.root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := matches[:0]
	for _, m := range matches {
		if isHidden(m) {
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) record(p string, origin string) {
	s.recorderMu.RLock()
	r := s.recorder
	s.recorderMu.RUnlock()

	if r != nil {
		r.RecordWrite(path.Clean(filepath.ToSlash(p)), origin)
	}
}

// CleanPath normalizes a document path and rejects anything escaping the root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	if clean == metadataDir || strings.HasPrefix(clean, metadataDir+"/") {
		return "", fmt.Errorf("%w: %s is reserved", ErrInvalidPath, p)
	}
	return clean, nil
}

func extGlob(exts []string) string {
	if len(exts) == 1 {
		return exts[0]
	}
	trimmed := make([]string, 0, len(exts))
	for _, e := range exts {
		trimmed = append(trimmed, strings.TrimPrefix(e, "."))
	}
	return ".{" + strings.Join(trimmed, ",") + "}"
}

func isHidden(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
