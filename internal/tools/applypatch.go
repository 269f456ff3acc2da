package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/git"
)

const applyPatchSchema = `{
  "type": "object",
  "properties": {
    "patch": {"type": "string", "description": "Unified diff text, or a Begin Patch / Update File / Add File / Delete File envelope"}
  },
  "required": ["patch"]
}`

// ApplyPatch applies a patch to the workspace. git apply is tried first
// for unified diffs; the in-process applier handles everything else and
// any git failure, file by file.
type ApplyPatch struct{}

// Descriptor implements tool.Tool.
func (ApplyPatch) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ApplyPatch",
		Description: "Apply a unified diff or patch envelope to workspace files.",
		InputSchema: applyPatchSchema,
		Policy:      tool.Policy{RequiresApproval: true, Risk: tool.RiskMedium},
	}
}

// Execute implements tool.Tool.
func (ApplyPatch) Execute(ctx context.Context, args json.RawMessage, execCtx tool.ExecContext) tool.Result {
	var in struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}
	if strings.TrimSpace(in.Patch) == "" {
		return tool.Failure("BadArgs", "patch is empty")
	}

	patches, err := parsePatch(in.Patch)
	if err != nil {
		return tool.Failure("ParseFailed", fmt.Sprintf("parse patch: %v", err))
	}

	// Cached tree walks are stale the moment anything applies.
	invalidateWalks := func() {
		if execCtx.Cache != nil {
			_ = execCtx.Cache.Invalidate(ctx, execCtx.Guard.Root())
		}
	}

	// Fast path: let git apply the whole patch atomically. Envelope
	// patches are not git-compatible and go straight to the fallback.
	if !isEnvelope(in.Patch) {
		gitErr := gitApply(ctx, execCtx, in.Patch)
		if gitErr == nil {
			applied := make([]string, 0, len(patches))
			for _, fp := range patches {
				applied = append(applied, fp.target())
			}
			invalidateWalks()
			return tool.Success(map[string]any{
				"appliedFiles":  applied,
				"failedPatches": []string{},
			})
		}
		execCtx.Log().Debug("git apply failed, using in-process applier", "error", gitErr)
	}

	var applied, failed []string
	var firstErr string
	for _, fp := range patches {
		if err := applyFilePatch(execCtx, fp); err != nil {
			failed = append(failed, fp.target())
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		applied = append(applied, fp.target())
	}

	if len(applied) == 0 {
		return tool.Failure("ApplyFailed", fmt.Sprintf("no file patches applied: %s", firstErr))
	}
	invalidateWalks()

	res := tool.Success(map[string]any{
		"appliedFiles":  applied,
		"failedPatches": failed,
	})
	if len(failed) > 0 {
		res = res.WithDiagnostic("PartialApply",
			fmt.Sprintf("%d of %d file patches failed", len(failed), len(patches)),
			map[string]any{"failedPatches": failed})
	}
	return res
}

// gitApply runs `git apply --check` then `git apply` against a temp
// file holding the patch text.
func gitApply(ctx context.Context, execCtx tool.ExecContext, patchText string) error {
	tmp, err := os.CreateTemp("", "forgeagent-*.patch")
	if err != nil {
		return fmt.Errorf("temp patch file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(patchText); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp patch: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return runGit(ctx, execCtx, func() error {
		if _, err := git.Exec(ctx, execCtx.RepoRoot, "apply", "--check", tmp.Name()); err != nil {
			return fmt.Errorf("git apply --check: %w", err)
		}
		if _, err := git.Exec(ctx, execCtx.RepoRoot, "apply", tmp.Name()); err != nil {
			return fmt.Errorf("git apply: %w", err)
		}
		return nil
	})
}

// applyFilePatch applies one file's changes through the workspace guard.
func applyFilePatch(execCtx tool.ExecContext, fp filePatch) error {
	target := fp.target()
	abs, err := execCtx.Guard.Resolve(target)
	if err != nil {
		return fmt.Errorf("unsafe path %q", target)
	}

	if fp.IsDelete {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", target, err)
		}
		return nil
	}

	_, statErr := os.Stat(abs)
	if fp.OldPath == "" || (os.IsNotExist(statErr) && allAdditions(fp.Hunks)) {
		return createFromAdditions(abs, target, fp.Hunks)
	}
	if statErr != nil {
		return fmt.Errorf("stat %s: %w", target, statErr)
	}

	return patchExisting(abs, target, fp.Hunks)
}

func allAdditions(hunks []hunk) bool {
	for _, h := range hunks {
		if !h.additionsOnly() {
			return false
		}
	}
	return true
}

// createFromAdditions writes a new file from the hunks' added lines.
func createFromAdditions(abs, target string, hunks []hunk) error {
	var lines []string
	for _, h := range hunks {
		lines = append(lines, h.newLines()...)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", target, err)
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// patchExisting applies hunks to an existing file. Numbered hunks are
// applied in descending OldStart order so earlier replacements do not
// shift later offsets; content-addressed hunks (OldStart 0) locate
// their old lines by search.
func patchExisting(abs, target string, hunks []hunk) error {
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}
	trailingNewline := strings.HasSuffix(string(data), "\n")
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	ordered := make([]hunk, len(hunks))
	copy(ordered, hunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].OldStart > ordered[j].OldStart })

	for _, h := range ordered {
		lines, err = applyHunk(lines, h)
		if err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
	}

	content := strings.Join(lines, "\n")
	if trailingNewline && content != "" {
		content += "\n"
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func applyHunk(lines []string, h hunk) ([]string, error) {
	start := h.OldStart - 1
	count := h.OldCount

	if h.OldStart == 0 {
		old := h.oldLines()
		idx := findLines(lines, old)
		if idx < 0 {
			return nil, fmt.Errorf("hunk context not found")
		}
		start, count = idx, len(old)
	}

	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		return nil, fmt.Errorf("hunk start %d beyond end of file (%d lines)", h.OldStart, len(lines))
	}
	end := start + count
	if end > len(lines) {
		end = len(lines)
	}

	replaced := make([]string, 0, len(lines)-(end-start)+h.NewCount)
	replaced = append(replaced, lines[:start]...)
	replaced = append(replaced, h.newLines()...)
	replaced = append(replaced, lines[end:]...)
	return replaced, nil
}

// findLines returns the index of the first occurrence of needle as a
// contiguous run inside haystack, or -1.
func findLines(haystack, needle []string) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
