// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collect gathers changed-file descriptors from git and loads
// their content. It is the pipeline's only producer of input; everything
// downstream works from ChangedFile values and never runs git itself.
package collect

// FileStatus is the change status of a file in the working tree.
type FileStatus string

const (
	StatusAdded     FileStatus = "added"
	StatusModified  FileStatus = "modified"
	StatusDeleted   FileStatus = "deleted"
	StatusUntracked FileStatus = "untracked"
)

// Mode specifies how changes are detected.
type Mode string

const (
	ModeDiff   Mode = "diff"   // uncommitted changes (default)
	ModeStaged Mode = "staged" // git diff --cached
	ModeCommit Mode = "commit" // a specific commit
	ModeBranch Mode = "branch" // since branch point
	ModeFiles  Mode = "files"  // explicit file list
)

// LineRange is a 1-based inclusive range of changed lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChangedFile is one changed-file descriptor: path, status, content, and
// (when available from the diff) the line ranges that actually changed.
type ChangedFile struct {
	Path    string     `json:"path"`
	Status  FileStatus `json:"status"`
	Content string     `json:"content"`

	// OldPath is set for renames.
	OldPath string `json:"old_path,omitempty"`

	// ChangedRanges lists the new-side line ranges touched by the diff.
	// Empty for untracked files (the whole file is new).
	ChangedRanges []LineRange `json:"changed_ranges,omitempty"`
}

// Options configures change collection.
type Options struct {
	Mode       Mode
	CommitHash string
	BaseBranch string
	Files      []string

	// IncludeUntracked adds untracked files in diff mode.
	IncludeUntracked bool

	// MaxFiles truncates the change set (0 = default 500).
	MaxFiles int
}

// DefaultMaxFiles bounds a run when the caller does not.
const DefaultMaxFiles = 500

// DefaultOptions returns diff-mode collection with untracked files.
func DefaultOptions() Options {
	return Options{Mode: ModeDiff, IncludeUntracked: true, MaxFiles: DefaultMaxFiles}
}
