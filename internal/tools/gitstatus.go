package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/git"
)

const gitStatusSchema = `{"type": "object", "properties": {}}`

// GitStatus reports the branch and working-tree changes of the
// workspace repository.
type GitStatus struct{}

// Descriptor implements tool.Tool.
func (GitStatus) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "GitStatus",
		Description: "Show the current branch and pending changes.",
		InputSchema: gitStatusSchema,
		Policy:      tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
}

// Change is one modified path from porcelain output.
type Change struct {
	Status string `json:"status"`
	File   string `json:"file"`
}

// Execute implements tool.Tool.
func (GitStatus) Execute(ctx context.Context, _ json.RawMessage, execCtx tool.ExecContext) tool.Result {
	var out string
	err := runGit(ctx, execCtx, func() error {
		var execErr error
		out, execErr = git.Exec(ctx, execCtx.RepoRoot, "status", "--porcelain", "-b")
		return execErr
	})
	if err != nil {
		return tool.Failure("GitFailed", fmt.Sprintf("git status: %v", err))
	}

	branch, changes := parsePorcelain(out)
	return tool.Success(map[string]any{
		"branch":  branch,
		"changes": changes,
		"clean":   len(changes) == 0,
	})
}

// parsePorcelain splits `git status --porcelain -b` output into the
// branch name and the list of XY-status changes.
func parsePorcelain(out string) (string, []Change) {
	branch := ""
	changes := make([]Change, 0, 8)

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			branch = strings.TrimPrefix(line, "## ")
			// "main...origin/main [ahead 1]" -> "main"
			if i := strings.Index(branch, "..."); i >= 0 {
				branch = branch[:i]
			}
			if i := strings.Index(branch, " "); i >= 0 {
				branch = branch[:i]
			}
			continue
		}
		if len(line) < 4 {
			continue
		}
		changes = append(changes, Change{
			Status: strings.TrimSpace(line[:2]),
			File:   strings.TrimSpace(line[3:]),
		})
	}
	return branch, changes
}

// runGit routes a git invocation through the shared pool when one is
// configured.
func runGit(ctx context.Context, execCtx tool.ExecContext, fn func() error) error {
	if execCtx.Git != nil {
		return execCtx.Git.Run(ctx, fn)
	}
	return fn()
}
