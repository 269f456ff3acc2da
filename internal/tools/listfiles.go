package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// maxListResults caps the number of paths ListFiles returns.
const maxListResults = 500

// skipDirs are never descended into by ListFiles or SearchText.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"bin":          true,
	"obj":          true,
}

const listFilesSchema = `{
  "type": "object",
  "properties": {
    "pattern": {"type": "string", "description": "Glob pattern; matched against the relative path when it contains a slash, against the file name otherwise. Empty lists everything."}
  }
}`

// ListFiles walks the workspace and returns relative forward-slash
// paths matching a glob pattern.
type ListFiles struct{}

// Descriptor implements tool.Tool.
func (ListFiles) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ListFiles",
		Description: "List workspace files matching a glob pattern.",
		InputSchema: listFilesSchema,
		Policy:      tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
}

// Execute implements tool.Tool.
func (ListFiles) Execute(ctx context.Context, args json.RawMessage, exec tool.ExecContext) tool.Result {
	var in struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}

	root := exec.Guard.Root()
	cacheKey := "listfiles:" + in.Pattern
	if exec.Cache != nil {
		if cached, ok, _ := exec.Cache.Get(ctx, root, cacheKey); ok {
			var paths []string
			if err := json.Unmarshal(cached, &paths); err == nil {
				return listResult(paths)
			}
		}
	}

	paths, err := walkMatching(root, in.Pattern)
	if err != nil {
		return tool.Failure("WalkFailed", fmt.Sprintf("walk workspace: %v", err))
	}

	if exec.Cache != nil {
		if encoded, err := json.Marshal(paths); err == nil {
			_ = exec.Cache.Set(ctx, root, cacheKey, encoded, exec.CacheTTL)
		}
	}

	return listResult(paths)
}

func listResult(paths []string) tool.Result {
	return tool.Success(map[string]any{
		"files":     paths,
		"count":     len(paths),
		"truncated": len(paths) == maxListResults,
	})
}

// walkMatching collects up to maxListResults relative paths under root
// that match pattern, skipping the directory blacklist.
func walkMatching(root, pattern string) ([]string, error) {
	paths := make([]string, 0, 64)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(paths) >= maxListResults {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchGlob(pattern, rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	return paths, err
}

// matchGlob matches pattern against the relative path when the pattern
// contains a slash, against the base name otherwise. An empty pattern
// matches everything.
func matchGlob(pattern, rel string) bool {
	if pattern == "" {
		return true
	}
	subject := path.Base(rel)
	if strings.Contains(pattern, "/") {
		subject = rel
	}
	ok, err := path.Match(pattern, subject)
	return err == nil && ok
}
