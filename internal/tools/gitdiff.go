package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/git"
)

const gitDiffSchema = `{
  "type": "object",
  "properties": {
    "staged": {"type": "boolean", "description": "Diff the index instead of the working tree"},
    "file": {"type": "string", "description": "Limit the diff to one file"}
  }
}`

// GitDiff returns the working-tree or staged diff, optionally limited
// to one file.
type GitDiff struct{}

// Descriptor implements tool.Tool.
func (GitDiff) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "GitDiff",
		Description: "Show the git diff of the workspace, staged or unstaged.",
		InputSchema: gitDiffSchema,
		Policy:      tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
}

// Execute implements tool.Tool.
func (GitDiff) Execute(ctx context.Context, args json.RawMessage, execCtx tool.ExecContext) tool.Result {
	var in struct {
		Staged bool   `json:"staged"`
		File   string `json:"file"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}

	gitArgs := []string{"diff"}
	if in.Staged {
		gitArgs = append(gitArgs, "--cached")
	}
	if in.File != "" {
		if _, err := execCtx.Guard.Resolve(in.File); err != nil {
			return tool.Failure("UnsafePath", fmt.Sprintf("path %q is outside the workspace", in.File))
		}
		gitArgs = append(gitArgs, "--", in.File)
	}

	var out string
	err := runGit(ctx, execCtx, func() error {
		var execErr error
		out, execErr = git.Exec(ctx, execCtx.RepoRoot, gitArgs...)
		return execErr
	})
	if err != nil {
		return tool.Failure("GitFailed", fmt.Sprintf("git diff: %v", err))
	}

	res := tool.Success(map[string]any{
		"staged":  in.Staged,
		"file":    in.File,
		"hasDiff": strings.TrimSpace(out) != "",
		"diff":    out,
	})
	res.Stdout = out
	return res
}
