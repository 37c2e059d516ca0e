// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import (
	"context"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// changedRanges parses a zero-context unified diff for the current mode and
// returns the new-side changed line ranges per file. The extraction prompt
// uses these to tell modified components from unchanged context.
func (g *GitCollector) changedRanges(ctx context.Context, opts Options) (map[string][]LineRange, error) {
	var args []string
	switch opts.Mode {
	case ModeDiff:
		args = []string{"diff", "-U0"}
	case ModeStaged:
		args = []string{"diff", "--cached", "-U0"}
	case ModeCommit:
		args = []string{"show", "--format=", "-U0", opts.CommitHash}
	case ModeBranch:
		args = []string{"diff", "-U0", opts.BaseBranch + "...HEAD"}
	default:
		return nil, nil
	}
	stdout, err := g.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseUnifiedRanges([]byte(stdout))
}

// parseUnifiedRanges extracts new-side hunk ranges from a unified diff.
func parseUnifiedRanges(raw []byte) (map[string][]LineRange, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	fileDiffs, err := diff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, err
	}

	ranges := make(map[string][]LineRange, len(fileDiffs))
	for _, fd := range fileDiffs {
		path := strings.TrimPrefix(fd.NewName, "b/")
		if path == "/dev/null" {
			continue
		}
		for _, h := range fd.Hunks {
			lines := int(h.NewLines)
			if lines < 1 {
				// Pure deletion hunk; anchor it to the preceding line.
				lines = 1
			}
			start := int(h.NewStartLine)
			if start < 1 {
				start = 1
			}
			ranges[path] = append(ranges[path], LineRange{Start: start, End: start + lines - 1})
		}
	}
	return ranges, nil
}
