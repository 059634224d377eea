package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// binarySniffSize is how much of a file is inspected to decide if it is text.
const binarySniffSize = 8192

type matcher interface {
	MatchesPath(path string) bool
}

type anyMatcher []matcher

func (m anyMatcher) MatchesPath(path string) bool {
	for _, each := range m {
		if each.MatchesPath(path) {
			return true
		}
	}
	return false
}

// buildMatcher compiles opts.IgnorePatterns and, when enabled, the root
// .gitignore into one matcher.
func buildMatcher(root string, opts WalkOptions) matcher {
	matchers := anyMatcher{gitignore.CompileIgnoreLines(opts.IgnorePatterns...)}
	if !opts.UseGitignore {
		return matchers
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		return matchers
	}
	gi, err := gitignore.CompileIgnoreFile(gitignorePath)
	if err != nil {
		log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
		return matchers
	}
	return append(matchers, gi)
}

// Walk calls fn for every text file under opts.Root that is not ignored.
// It stops at the first error from fn or when ctx is cancelled.
func Walk(ctx context.Context, opts WalkOptions, fn func(File) error) (WalkStats, error) {
	var stats WalkStats

	filter, err := NewFilter(opts)
	if err != nil {
		return stats, err
	}
	root := filter.Root()

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filter.Rel(path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if filter.SkipDir(rel) {
				stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filter.SkipFile(rel) {
			stats.FilesSkipped++
			return nil
		}

		f, ok, err := filter.Load(path)
		if err != nil {
			log.Debug("Failed to read file", "path", rel, "error", err)
			stats.FilesSkipped++
			return nil
		}
		if !ok {
			stats.FilesSkipped++
			return nil
		}

		stats.FilesFound++
		stats.TotalBytes += f.Size
		return fn(f)
	})
	return stats, err
}

// Filter applies the walk rules (hidden entries, ignore patterns, size and
// binary checks) to individual paths under a root.
type Filter struct {
	root   string
	opts   WalkOptions
	ignore matcher
}

// NewFilter resolves opts.Root, which must be an existing directory.
func NewFilter(opts WalkOptions) (*Filter, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	return &Filter{root: root, opts: opts, ignore: buildMatcher(root, opts)}, nil
}

// Root returns the absolute walk root.
func (f *Filter) Root() string { return f.root }

// Rel returns path relative to the root, slash-separated.
func (f *Filter) Rel(path string) (string, error) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// SkipDir reports whether the directory at rel is pruned.
func (f *Filter) SkipDir(rel string) bool {
	name := pathpkg.Base(rel)
	hidden := strings.HasPrefix(name, ".")
	return name == ".git" || (hidden && !f.opts.IncludeHidden) || f.ignore.MatchesPath(rel+"/")
}

// SkipFile reports whether the file at rel, or any of its parent
// directories, is excluded by name or pattern.
func (f *Filter) SkipFile(rel string) bool {
	for dir := pathpkg.Dir(rel); dir != "." && dir != "/"; dir = pathpkg.Dir(dir) {
		if f.SkipDir(dir) {
			return true
		}
	}
	hidden := strings.HasPrefix(pathpkg.Base(rel), ".")
	return (hidden && !f.opts.IncludeHidden) || f.ignore.MatchesPath(rel)
}

// Load stats and hashes the file at path. ok is false when the file is
// over the size limit or looks binary.
func (f *Filter) Load(path string) (file File, ok bool, err error) {
	rel, err := f.Rel(path)
	if err != nil {
		return File{}, false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, false, err
	}
	if !fi.Mode().IsRegular() {
		return File{}, false, nil
	}
	if f.opts.MaxFileSize > 0 && fi.Size() > f.opts.MaxFileSize {
		log.Debug("Skipping large file", "path", rel, "size", fi.Size())
		return File{}, false, nil
	}

	hash, binary, err := inspectFile(path)
	if err != nil || binary {
		return File{}, false, err
	}
	return File{
		Path:    path,
		RelPath: rel,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Hash:    hash,
	}, true, nil
}

// inspectFile hashes a file and reports whether its first bytes look binary.
func inspectFile(path string) (hash string, binary bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	head := make([]byte, binarySniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", false, err
	}
	head = head[:n]
	if isBinaryContent(head) {
		return "", true, nil
	}

	h := xxhash.New()
	_, _ = h.Write(head)
	if _, err := io.Copy(h, f); err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%016x", h.Sum64()), false, nil
}

// HashString returns the hex xxhash64 of s.
func HashString(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// isBinaryContent treats content with a NUL byte, or with more than 30%
// control characters, as binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	control := 0
	for _, b := range content {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(content)) > 0.3
}
