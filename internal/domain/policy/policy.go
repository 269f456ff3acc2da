// Package policy decides whether a tool call may run, must be approved
// by the user first, or is denied outright.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// Decision is the outcome of evaluating a tool call.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionAsk   Decision = "ask"
	DecisionDeny  Decision = "deny"
)

// runCommandTool is the tool whose arguments get command inspection.
const runCommandTool = "runcommand"

// commandDenylist contains executable-name fragments that force an
// approval prompt even when the tool's static policy would allow it.
// The list is intentionally coarse; finer gates belong in alternative
// engines implementing the same contract.
var commandDenylist = []string{
	"rm", "del", "rmdir", "format", "curl", "wget", "ssh", "powershell", "cmd", "bash", "sh",
}

// EvaluationResult captures a decision and why it was made.
type EvaluationResult struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Engine evaluates tool calls against static tool policies and a small
// set of argument-inspecting rules.
type Engine struct {
	autoApprove bool
}

// NewEngine creates an Engine. With autoApprove set, every call is
// allowed without prompting.
func NewEngine(autoApprove bool) *Engine {
	return &Engine{autoApprove: autoApprove}
}

// Evaluate applies the rules in order: auto-approve, static
// requires-approval, RunCommand argument inspection, then allow.
func (e *Engine) Evaluate(desc tool.Descriptor, argsJSON string) EvaluationResult {
	if e.autoApprove {
		return EvaluationResult{Decision: DecisionAllow, Reason: "auto-approve enabled"}
	}

	if desc.Policy.RequiresApproval {
		return EvaluationResult{
			Decision: DecisionAsk,
			Reason:   fmt.Sprintf("tool %s requires approval (risk: %s)", desc.Name, desc.Policy.Risk),
		}
	}

	if strings.EqualFold(desc.Name, runCommandTool) {
		return evaluateRunCommand(argsJSON)
	}

	return EvaluationResult{Decision: DecisionAllow, Reason: "no rule matched; allow"}
}

// evaluateRunCommand inspects the exe argument. Unparseable arguments
// are treated as suspicious and routed to approval.
func evaluateRunCommand(argsJSON string) EvaluationResult {
	var args struct {
		Exe string `json:"exe"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return EvaluationResult{Decision: DecisionAsk, Reason: "unparseable RunCommand arguments"}
	}

	exe := strings.ToLower(args.Exe)
	for _, fragment := range commandDenylist {
		if strings.Contains(exe, fragment) {
			return EvaluationResult{
				Decision: DecisionAsk,
				Reason:   fmt.Sprintf("executable %q matches denylist fragment %q", args.Exe, fragment),
			}
		}
	}

	return EvaluationResult{Decision: DecisionAllow, Reason: "executable not on denylist"}
}
