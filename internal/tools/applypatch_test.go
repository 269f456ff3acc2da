package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

func applyPatch(t *testing.T, execCtx tool.ExecContext, patch string) tool.Result {
	t.Helper()
	args, err := json.Marshal(map[string]string{"patch": patch})
	if err != nil {
		t.Fatal(err)
	}
	return ApplyPatch{}.Execute(context.Background(), args, execCtx)
}

func TestApplyPatchCreatesNewFile(t *testing.T) {
	execCtx, root := newExecContext(t)

	patch := `--- a/new.txt
+++ b/new.txt
@@ -0,0 +1,2 @@
+hello
+world
`
	res := applyPatch(t, execCtx, patch)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\nworld\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestApplyPatchUpdatesExistingFile(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "code.txt", "one\ntwo\nthree\n")

	patch := `--- a/code.txt
+++ b/code.txt
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
`
	res := applyPatch(t, execCtx, patch)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(root, "code.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\nTWO\nthree\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestApplyPatchPartial(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "good.txt", "old\n")

	patch := `--- a/good.txt
+++ b/good.txt
@@ -1,1 +1,1 @@
-old
+new
--- a/../evil.txt
+++ b/../evil.txt
@@ -0,0 +1,1 @@
+pwned
`
	res := applyPatch(t, execCtx, patch)
	if !res.OK {
		t.Fatalf("partial apply must be ok=true, got %+v", res)
	}

	found := false
	for _, d := range res.Diagnostics {
		if d.Code == "PartialApply" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PartialApply diagnostic, got %+v", res.Diagnostics)
	}

	failed, _ := res.Data["failedPatches"].([]string)
	if len(failed) != 1 || !strings.Contains(failed[0], "evil.txt") {
		t.Fatalf("failedPatches should mention evil.txt: %v", failed)
	}

	data, err := os.ReadFile(filepath.Join(root, "good.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new\n" {
		t.Fatalf("good.txt not updated: %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "..", "evil.txt")); err == nil {
		t.Fatal("evil.txt escaped the workspace")
	}
}

func TestApplyPatchAllFailedIsFailure(t *testing.T) {
	execCtx, _ := newExecContext(t)

	patch := `--- a/../evil.txt
+++ b/../evil.txt
@@ -0,0 +1,1 @@
+pwned
`
	res := applyPatch(t, execCtx, patch)
	if res.OK {
		t.Fatal("expected failure when nothing applied")
	}
}

func TestApplyPatchDeleteFile(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "gone.txt", "bye\n")

	patch := `--- a/gone.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-bye
`
	res := applyPatch(t, execCtx, patch)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "gone.txt")); !os.IsNotExist(err) {
		t.Fatal("file should have been deleted")
	}
}

func TestApplyPatchEnvelope(t *testing.T) {
	execCtx, root := newExecContext(t)
	writeFile(t, root, "app.txt", "alpha\nbeta\ngamma\n")

	patch := `*** Begin Patch
*** Update File: app.txt
@@
 alpha
-beta
+BETA
 gamma
*** Add File: fresh.txt
+first
+second
*** End Patch
`
	res := applyPatch(t, execCtx, patch)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(root, "app.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpha\nBETA\ngamma\n" {
		t.Fatalf("envelope update failed: %q", data)
	}

	fresh, err := os.ReadFile(filepath.Join(root, "fresh.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(fresh) != "first\nsecond\n" {
		t.Fatalf("envelope add failed: %q", fresh)
	}
}

func TestParseUnifiedStripsPrefixes(t *testing.T) {
	patches, err := parseUnified("--- a/x.txt\n+++ b/x.txt\n@@ -1,1 +1,1 @@\n-a\n+b\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 1 || patches[0].OldPath != "x.txt" || patches[0].NewPath != "x.txt" {
		t.Fatalf("prefix stripping failed: %+v", patches)
	}
}

func TestParseUnifiedDevNull(t *testing.T) {
	patches, err := parseUnified("--- /dev/null\n+++ b/added.txt\n@@ -0,0 +1,1 @@\n+x\n")
	if err != nil {
		t.Fatal(err)
	}
	if patches[0].OldPath != "" || patches[0].NewPath != "added.txt" {
		t.Fatalf("/dev/null mapping failed: %+v", patches[0])
	}
}
