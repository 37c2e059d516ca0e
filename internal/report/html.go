// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report renders the analysis result as a standalone HTML page
// with an embedded Mermaid diagram.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

// Data is the input to the HTML report.
type Data struct {
	// Summary is a short plain-text description of the run: file and
	// component counts, degraded chunks, unresolved targets.
	Summary string

	// Diagram is the Mermaid source produced by the graph manager.
	Diagram string
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>DiffGraph Report</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        :root {
            --bg-primary: #ffffff;
            --text-primary: #1a202c;
            --bg-secondary: #f8f9fa;
            --border-color: #e2e8f0;
        }

        [data-theme="dark"] {
            --bg-primary: #1a202c;
            --text-primary: #f7fafc;
            --bg-secondary: #2d3748;
            --border-color: #4a5568;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: var(--text-primary);
            background-color: var(--bg-primary);
            max-width: 1200px;
            margin: 0 auto;
            padding: 2rem;
            transition: background-color 0.3s, color 0.3s;
        }

        .mermaid {
            background: var(--bg-secondary);
            padding: 1.5rem;
            border-radius: 0.75rem;
            margin: 1.5rem 0;
            border: 1px solid var(--border-color);
        }

        .summary {
            background: var(--bg-secondary);
            padding: 1.5rem;
            border-radius: 0.75rem;
            box-shadow: 0 1px 3px rgba(0,0,0,0.1);
            margin-bottom: 2rem;
            border: 1px solid var(--border-color);
            white-space: pre-wrap;
        }

        h1 {
            color: var(--text-primary);
            font-size: 2.5rem;
            font-weight: 700;
            margin-bottom: 1.5rem;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        h2 {
            color: var(--text-primary);
            font-size: 1.8rem;
            font-weight: 600;
            margin-bottom: 1rem;
        }

        .theme-toggle {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            color: var(--text-primary);
            padding: 0.5rem 1rem;
            border-radius: 0.5rem;
            cursor: pointer;
            font-size: 0.875rem;
            transition: all 0.2s;
        }

        .theme-toggle:hover {
            background: var(--border-color);
        }
    </style>
</head>
<body>
    <h1>
        DiffGraph Report
        <button class="theme-toggle" onclick="toggleTheme()">Toggle Dark Mode</button>
    </h1>

    <div class="summary">
        <h2>Analysis Summary</h2>
        <div>{{.Summary}}</div>
    </div>

    <div class="mermaid">
{{.Diagram}}
    </div>

    <script>
        mermaid.initialize({
            startOnLoad: true,
            theme: 'default',
            securityLevel: 'loose',
            flowchart: {
                useMaxWidth: true,
                htmlLabels: true
            }
        });

        function toggleTheme() {
            const body = document.body;
            const currentTheme = body.getAttribute('data-theme');
            const newTheme = currentTheme === 'dark' ? 'light' : 'dark';
            body.setAttribute('data-theme', newTheme);

            mermaid.initialize({
                theme: newTheme === 'dark' ? 'dark' : 'default'
            });

            document.querySelectorAll('.mermaid').forEach((el) => {
                const content = el.textContent;
                el.textContent = content;
                mermaid.init(undefined, el);
            });
        }
    </script>
</body>
</html>
`))

// Write renders the report and writes it to path, returning the absolute
// path of the file.
func Write(data Data, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := page.Execute(f, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
