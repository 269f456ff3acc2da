package tool

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct{ name string }

func (f fakeTool) Descriptor() Descriptor {
	return Descriptor{Name: f.name, InputSchema: "{}"}
}

func (f fakeTool) Execute(context.Context, json.RawMessage, ExecContext) Result {
	return Success(nil)
}

func TestRegistryCaseInsensitiveLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "ReadFile"})

	for _, name := range []string{"ReadFile", "readfile", "READFILE", "ReadFILE"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("Get(%q) failed", name)
		}
	}
	if _, ok := r.Get("WriteFile"); ok {
		t.Fatal("unexpected hit for unregistered tool")
	}
}

func TestRegistryDescriptorsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "RunCommand"})
	r.Register(fakeTool{name: "ApplyPatch"})
	r.Register(fakeTool{name: "ListFiles"})

	descs := r.Descriptors()
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
	for i := 1; i < len(descs); i++ {
		if descs[i-1].Name > descs[i].Name {
			t.Fatalf("descriptors not sorted: %v", descs)
		}
	}
}

func TestRegistryReplaceKeepsOneEntry(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "ReadFile"})
	r.Register(fakeTool{name: "readfile"})
	if r.Len() != 1 {
		t.Fatalf("expected 1 tool after replace, got %d", r.Len())
	}
}

func TestFailureAlwaysCarriesDiagnostic(t *testing.T) {
	res := Failure("BadArgs", "invalid arguments")
	if res.OK {
		t.Fatal("failure must not be OK")
	}
	if len(res.Diagnostics) == 0 {
		t.Fatal("failure must carry at least one diagnostic")
	}
	if res.FirstDiagnostic() != "invalid arguments" {
		t.Fatalf("unexpected first diagnostic: %q", res.FirstDiagnostic())
	}
}
