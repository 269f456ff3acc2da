package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// defaultMaxMatches caps SearchText results when the caller does not.
const defaultMaxMatches = 50

// binaryExtensions are skipped by the manual tree search.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".7z": true,
	".jar": true, ".class": true, ".o": true, ".a": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
}

const searchTextSchema = `{
  "type": "object",
  "properties": {
    "pattern": {"type": "string", "description": "Regular expression, matched case-insensitively"},
    "maxResults": {"type": "integer", "description": "Maximum matches to return (default 50)"}
  },
  "required": ["pattern"]
}`

// SearchText searches the workspace with a case-insensitive regex,
// delegating to ripgrep when it is on PATH.
type SearchText struct{}

// Descriptor implements tool.Tool.
func (SearchText) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "SearchText",
		Description: "Search workspace files with a case-insensitive regular expression.",
		InputSchema: searchTextSchema,
		Policy:      tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
}

// Match is one search hit.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// Execute implements tool.Tool.
func (SearchText) Execute(ctx context.Context, args json.RawMessage, execCtx tool.ExecContext) tool.Result {
	var in struct {
		Pattern    string `json:"pattern"`
		MaxResults int    `json:"maxResults"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}
	if in.MaxResults <= 0 {
		in.MaxResults = defaultMaxMatches
	}

	re, err := regexp.Compile("(?i)" + in.Pattern)
	if err != nil {
		return tool.Failure("InvalidRegex", fmt.Sprintf("invalid pattern %q: %v", in.Pattern, err))
	}

	var matches []Match
	if rg, lookErr := exec.LookPath("rg"); lookErr == nil {
		matches, err = ripgrepSearch(ctx, rg, execCtx.Guard.Root(), in.Pattern, in.MaxResults)
		if err != nil {
			execCtx.Log().Debug("ripgrep failed, falling back to manual search", "error", err)
			matches, err = manualSearch(ctx, execCtx.Guard.Root(), re, in.MaxResults)
		}
	} else {
		matches, err = manualSearch(ctx, execCtx.Guard.Root(), re, in.MaxResults)
	}
	if err != nil {
		return tool.Failure("SearchFailed", fmt.Sprintf("search: %v", err))
	}

	return tool.Success(map[string]any{
		"matches":   matches,
		"count":     len(matches),
		"truncated": len(matches) == in.MaxResults,
	})
}

// ripgrepSearch shells out to rg with JSON output and parses the match
// records.
func ripgrepSearch(ctx context.Context, rgPath, root, pattern string, maxResults int) ([]Match, error) {
	cmd := exec.CommandContext(ctx, rgPath, "--json", "-i", "-e", pattern, ".")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		// Exit code 1 means no matches; that is a valid empty result.
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	matches := make([]Match, 0, 16)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record struct {
			Type string `json:"type"`
			Data struct {
				Path struct {
					Text string `json:"text"`
				} `json:"path"`
				LineNumber int `json:"line_number"`
				Lines      struct {
					Text string `json:"text"`
				} `json:"lines"`
			} `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // non-JSON or unknown frame
		}
		if record.Type != "match" {
			continue
		}
		matches = append(matches, Match{
			File:    filepath.ToSlash(record.Data.Path.Text),
			Line:    record.Data.LineNumber,
			Content: strings.TrimRight(record.Data.Lines.Text, "\n"),
		})
		if len(matches) >= maxResults {
			break
		}
	}
	return matches, nil
}

// manualSearch walks the tree, skipping the directory blacklist and
// binary extensions, reading each file line by line.
func manualSearch(ctx context.Context, root string, re *regexp.Regexp, maxResults int) ([]Match, error) {
	matches := make([]Match, 0, 16)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if len(matches) >= maxResults {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		fileMatches, scanErr := scanFile(p, filepath.ToSlash(rel), re, maxResults-len(matches))
		if scanErr != nil {
			return nil // unreadable file, keep walking
		}
		matches = append(matches, fileMatches...)
		return nil
	})
	return matches, err
}

func scanFile(abs, rel string, re *regexp.Regexp, budget int) ([]Match, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, Match{File: rel, Line: lineNo, Content: line})
			if len(matches) >= budget {
				break
			}
		}
	}
	return matches, nil
}
