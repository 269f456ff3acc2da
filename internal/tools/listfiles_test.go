package tools

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/adapter/ristretto"
)

func filesFrom(t *testing.T, res map[string]any) []string {
	t.Helper()
	raw, ok := res["files"].([]string)
	if !ok {
		t.Fatalf("files has unexpected type %T", res["files"])
	}
	return raw
}

func TestListFilesExcludesBlacklistedDirs(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "src/util.go", "package src\n")
	writeFile(t, root, "node_modules/pkg/index.js", "x")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "bin/out", "x")
	writeFile(t, root, "obj/cache", "x")

	res := ListFiles{}.Execute(context.Background(), json.RawMessage(`{}`), execCtx)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}

	files := filesFrom(t, res.Data)
	if !slices.Contains(files, "main.go") || !slices.Contains(files, "src/util.go") {
		t.Fatalf("expected source files in listing: %v", files)
	}
	for _, f := range files {
		for _, banned := range []string{"node_modules", ".git", "bin/", "obj/"} {
			if len(f) >= len(banned) && f[:len(banned)] == banned {
				t.Fatalf("blacklisted path leaked: %q", f)
			}
		}
	}
}

func TestListFilesGlobPattern(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "a.go", "x")
	writeFile(t, root, "b.txt", "x")
	writeFile(t, root, "sub/c.go", "x")

	res := ListFiles{}.Execute(context.Background(), json.RawMessage(`{"pattern":"*.go"}`), execCtx)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	files := filesFrom(t, res.Data)
	if !slices.Contains(files, "a.go") || !slices.Contains(files, "sub/c.go") {
		t.Fatalf("base-name glob should match in subdirs too: %v", files)
	}
	if slices.Contains(files, "b.txt") {
		t.Fatalf("pattern leaked non-matching file: %v", files)
	}
}

func TestListFilesWithCacheSeesApplyPatchWrites(t *testing.T) {
	execCtx, root := newExecContext(t)
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	execCtx.Cache = c
	execCtx.CacheTTL = time.Minute

	writeFile(t, root, "a.go", "package a\n")

	res := ListFiles{}.Execute(context.Background(), json.RawMessage(`{}`), execCtx)
	if !res.OK || !slices.Contains(filesFrom(t, res.Data), "a.go") {
		t.Fatalf("initial listing wrong: %+v", res)
	}
	c.Wait() // make sure the walk result is actually cached

	// ApplyPatch invalidates the workspace's walks, so the new file
	// must show up even though a listing was cached moments ago.
	patch := "--- a/b.go\n+++ b/b.go\n@@ -0,0 +1,1 @@\n+package b\n"
	pres := applyPatch(t, execCtx, patch)
	if !pres.OK {
		t.Fatalf("patch failed: %+v", pres)
	}

	res = ListFiles{}.Execute(context.Background(), json.RawMessage(`{}`), execCtx)
	if !slices.Contains(filesFrom(t, res.Data), "b.go") {
		t.Fatalf("listing served stale cache after patch: %+v", res.Data)
	}
}

func TestListFilesPathGlob(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "src/a.go", "x")
	writeFile(t, root, "docs/a.go", "x")

	res := ListFiles{}.Execute(context.Background(), json.RawMessage(`{"pattern":"src/*.go"}`), execCtx)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	files := filesFrom(t, res.Data)
	if !slices.Contains(files, "src/a.go") || slices.Contains(files, "docs/a.go") {
		t.Fatalf("path glob mismatch: %v", files)
	}
}
