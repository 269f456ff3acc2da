package policy

import (
	"testing"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

func TestAutoApproveAllowsEverything(t *testing.T) {
	e := NewEngine(true)
	desc := tool.Descriptor{
		Name:   "RunCommand",
		Policy: tool.Policy{RequiresApproval: true, Risk: tool.RiskHigh},
	}
	if got := e.Evaluate(desc, `{"exe":"rm"}`); got.Decision != DecisionAllow {
		t.Fatalf("expected allow under auto-approve, got %s", got.Decision)
	}
}

func TestStaticRequiresApproval(t *testing.T) {
	e := NewEngine(false)
	desc := tool.Descriptor{
		Name:   "ApplyPatch",
		Policy: tool.Policy{RequiresApproval: true, Risk: tool.RiskMedium},
	}
	if got := e.Evaluate(desc, `{}`); got.Decision != DecisionAsk {
		t.Fatalf("expected ask for requires-approval tool, got %s", got.Decision)
	}
}

func TestRunCommandDenylist(t *testing.T) {
	e := NewEngine(false)
	desc := tool.Descriptor{Name: "RunCommand"}

	tests := []struct {
		exe  string
		want Decision
	}{
		{"rm", DecisionAsk},
		{"curl", DecisionAsk},
		{"bash", DecisionAsk},
		{"/bin/sh", DecisionAsk},
		{"PowerShell.exe", DecisionAsk},
		{"go", DecisionAllow},
		{"python3", DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.exe, func(t *testing.T) {
			got := e.Evaluate(desc, `{"exe":"`+tt.exe+`"}`)
			if got.Decision != tt.want {
				t.Fatalf("Evaluate(exe=%q) = %s, want %s (%s)", tt.exe, got.Decision, tt.want, got.Reason)
			}
		})
	}
}

func TestRunCommandUnparseableArgsAsk(t *testing.T) {
	e := NewEngine(false)
	desc := tool.Descriptor{Name: "RunCommand"}
	if got := e.Evaluate(desc, `not json`); got.Decision != DecisionAsk {
		t.Fatalf("expected ask for unparseable args, got %s", got.Decision)
	}
}

func TestReadOnlyToolAllowed(t *testing.T) {
	e := NewEngine(false)
	desc := tool.Descriptor{
		Name:   "ReadFile",
		Policy: tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
	if got := e.Evaluate(desc, `{"path":"a.txt"}`); got.Decision != DecisionAllow {
		t.Fatalf("expected allow for read-only tool, got %s", got.Decision)
	}
}
