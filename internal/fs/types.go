// Package fs walks a directory tree and splits text files into chunks for
// ingestion into a vector store.
package fs

import "time"

// File is a text file accepted by the walker.
type File struct {
	Path    string    // Absolute path
	RelPath string    // Slash-separated path relative to the walk root
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash64 of the contents, hex
}

// Chunk is a contiguous run of lines from a file.
type Chunk struct {
	Content   string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Index     int // Position within the file
}

// WalkOptions configures Walk.
type WalkOptions struct {
	// Root is the directory to walk.
	Root string

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	// IgnorePatterns are applied in addition to .gitignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden walks dot files and directories.
	IncludeHidden bool

	// UseGitignore applies the root .gitignore.
	UseGitignore bool
}

// WalkStats counts what a walk accepted and skipped.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
}

// ChunkOptions configures the chunker. Sizes are in runes.
type ChunkOptions struct {
	ChunkSize    int
	ChunkOverlap int
}
