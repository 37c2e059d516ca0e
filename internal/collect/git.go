// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitCollector detects changed files via the git CLI and loads their
// content from the worktree (or object store, for deleted files).
//
// # Thread Safety
//
// GitCollector is safe for concurrent use.
type GitCollector struct {
	workDir string
	log     *slog.Logger
}

// NewGitCollector creates a collector rooted at workDir.
func NewGitCollector(workDir string, log *slog.Logger) *GitCollector {
	if log == nil {
		log = slog.Default()
	}
	return &GitCollector{workDir: workDir, log: log}
}

// IsGitRepo checks whether the working directory is inside a git worktree.
func (g *GitCollector) IsGitRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = g.workDir
	return cmd.Run() == nil
}

// Collect returns the ordered change set for the given options, content
// included. Binary files are skipped with a log entry; the set is
// truncated at MaxFiles.
func (g *GitCollector) Collect(ctx context.Context, opts Options) ([]ChangedFile, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if opts.Mode != ModeFiles && !g.IsGitRepo() {
		return nil, fmt.Errorf("not a git repository; pass explicit files instead")
	}

	files, err := g.changedFiles(ctx, opts)
	if err != nil {
		return nil, err
	}

	if opts.Mode == ModeDiff && opts.IncludeUntracked {
		untracked, err := g.untrackedFiles(ctx)
		if err != nil {
			return nil, err
		}
		files = append(files, untracked...)
	}

	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if len(files) > maxFiles {
		g.log.Warn("too many changed files, truncating", "found", len(files), "limit", maxFiles)
		files = files[:maxFiles]
	}

	ranges, err := g.changedRanges(ctx, opts)
	if err != nil {
		// Hunk info only refines change annotations; its absence is not
		// a reason to fail the run.
		g.log.Warn("could not parse diff hunks", "error", err)
		ranges = nil
	}

	out := make([]ChangedFile, 0, len(files))
	for _, f := range files {
		content, err := g.loadContent(ctx, opts, f)
		if err != nil {
			g.log.Warn("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		if isBinary(content) {
			g.log.Debug("skipping binary file", "path", f.Path)
			continue
		}
		f.Content = string(content)
		f.ChangedRanges = ranges[f.Path]
		out = append(out, f)
	}
	return out, nil
}

// changedFiles runs the mode-appropriate git command and parses its
// --name-status output.
func (g *GitCollector) changedFiles(ctx context.Context, opts Options) ([]ChangedFile, error) {
	switch opts.Mode {
	case ModeFiles:
		out := make([]ChangedFile, 0, len(opts.Files))
		for _, f := range opts.Files {
			out = append(out, ChangedFile{Path: filepath.ToSlash(f), Status: StatusModified})
		}
		return out, nil
	case ModeDiff:
		return g.runNameStatus(ctx, []string{"diff", "--name-status"})
	case ModeStaged:
		return g.runNameStatus(ctx, []string{"diff", "--cached", "--name-status"})
	case ModeCommit:
		if opts.CommitHash == "" {
			return nil, fmt.Errorf("commit hash required for commit mode")
		}
		return g.runNameStatus(ctx, []string{"show", "--name-status", "--format=", opts.CommitHash})
	case ModeBranch:
		if opts.BaseBranch == "" {
			return nil, fmt.Errorf("base branch required for branch mode")
		}
		if err := g.verifyRef(ctx, opts.BaseBranch); err != nil {
			return nil, err
		}
		return g.runNameStatus(ctx, []string{"diff", "--name-status", opts.BaseBranch + "...HEAD"})
	default:
		return nil, fmt.Errorf("unknown change mode: %s", opts.Mode)
	}
}

func (g *GitCollector) runNameStatus(ctx context.Context, args []string) ([]ChangedFile, error) {
	stdout, err := g.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(stdout)
}

// parseNameStatus parses git --name-status output.
// Format: M\tpath/to/file.go, or R100\told\tnew for renames.
func parseNameStatus(output string) ([]ChangedFile, error) {
	var result []ChangedFile

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}

		status := parts[0]
		cf := ChangedFile{Path: filepath.ToSlash(parts[1])}

		switch {
		case strings.HasPrefix(status, "A"):
			cf.Status = StatusAdded
		case strings.HasPrefix(status, "M"):
			cf.Status = StatusModified
		case strings.HasPrefix(status, "D"):
			cf.Status = StatusDeleted
		case strings.HasPrefix(status, "R"), strings.HasPrefix(status, "C"):
			cf.Status = StatusModified
			if len(parts) >= 3 {
				cf.OldPath = filepath.ToSlash(parts[1])
				cf.Path = filepath.ToSlash(parts[2])
			}
		default:
			cf.Status = StatusModified
		}
		result = append(result, cf)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing git output: %w", err)
	}
	return result, nil
}

// untrackedFiles lists files unknown to git, honoring .gitignore.
func (g *GitCollector) untrackedFiles(ctx context.Context) ([]ChangedFile, error) {
	stdout, err := g.run(ctx, []string{"ls-files", "--others", "--exclude-standard"})
	if err != nil {
		return nil, err
	}
	var out []ChangedFile
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}
		out = append(out, ChangedFile{Path: filepath.ToSlash(path), Status: StatusUntracked})
	}
	return out, scanner.Err()
}

// loadContent reads the file's current content, or its last committed
// content for deletions.
func (g *GitCollector) loadContent(ctx context.Context, opts Options, f ChangedFile) ([]byte, error) {
	if f.Status != StatusDeleted {
		return os.ReadFile(filepath.Join(g.workDir, filepath.FromSlash(f.Path)))
	}
	ref := "HEAD"
	if opts.Mode == ModeCommit && opts.CommitHash != "" {
		ref = opts.CommitHash + "^"
	}
	stdout, err := g.run(ctx, []string{"show", ref + ":" + f.Path})
	if err != nil {
		return nil, err
	}
	return []byte(stdout), nil
}

func (g *GitCollector) verifyRef(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, []string{"rev-parse", "--verify", ref}); err != nil {
		return fmt.Errorf("ref %q not found: %w", ref, err)
	}
	return nil
}

func (g *GitCollector) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0
}
