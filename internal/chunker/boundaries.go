// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chunker

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languages maps file extensions to tree-sitter grammars. Extensions not
// listed here fall back to the line heuristic.
var languages = map[string]*sitter.Language{
	".go":  golang.GetLanguage(),
	".py":  python.GetLanguage(),
	".js":  javascript.GetLanguage(),
	".jsx": javascript.GetLanguage(),
	".ts":  typescript.GetLanguage(),
	".tsx": tsx.GetLanguage(),
}

// topLevelDecl matches unindented declaration starts for languages without
// a grammar. Heuristic on purpose: a wrong boundary costs nothing beyond a
// slightly worse cut, the coverage invariant is unaffected.
var topLevelDecl = regexp.MustCompile(`^(func|type|class|def|function|interface|struct|enum|impl|fn|module|public|private|protected|export|const)\b`)

// boundaries returns 0-based line numbers where a new top-level construct
// starts. Line 0 is never a boundary.
func (c *Chunker) boundaries(ctx context.Context, filePath, content string) []int {
	if lang, ok := languages[strings.ToLower(filepath.Ext(filePath))]; ok {
		rows, err := treeSitterBoundaries(ctx, lang, content)
		if err == nil && len(rows) > 0 {
			return rows
		}
		if err != nil {
			c.log.Debug("tree-sitter parse failed, falling back to heuristic",
				"file", filePath, "error", err)
		}
	}
	return heuristicBoundaries(content)
}

func treeSitterBoundaries(ctx context.Context, lang *sitter.Language, content string) ([]int, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var rows []int
	prev := -1
	for i := 0; i < int(root.NamedChildCount()); i++ {
		row := int(root.NamedChild(i).StartPoint().Row)
		if row > 0 && row != prev {
			rows = append(rows, row)
			prev = row
		}
	}
	return rows, nil
}

func heuristicBoundaries(content string) []int {
	var rows []int
	for i, line := range splitLines(content) {
		if i == 0 {
			continue
		}
		if topLevelDecl.MatchString(line) {
			rows = append(rows, i)
		}
	}
	return rows
}
