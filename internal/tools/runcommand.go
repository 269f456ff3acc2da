package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/secrets"
)

const (
	// defaultCommandTimeout bounds subprocess runtime when the caller
	// does not.
	defaultCommandTimeout = 60 * time.Second

	// maxCaptureChars caps captured stdout and stderr independently;
	// bytes beyond are dropped and a truncation flag is set.
	maxCaptureChars = 50_000
)

const runCommandSchema = `{
  "type": "object",
  "properties": {
    "exe": {"type": "string", "description": "Executable to run"},
    "args": {"type": "array", "items": {"type": "string"}, "description": "Arguments"},
    "cwd": {"type": "string", "description": "Working directory relative to the workspace root"},
    "timeoutSec": {"type": "integer", "description": "Timeout in seconds (default 60)"}
  },
  "required": ["exe"]
}`

// RunCommand executes a subprocess inside the workspace with a filtered
// environment, bounded output capture, and a kill-tree timeout.
type RunCommand struct{}

// Descriptor implements tool.Tool.
func (RunCommand) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "RunCommand",
		Description: "Run a command in the workspace and capture its output.",
		InputSchema: runCommandSchema,
		Policy:      tool.Policy{RequiresApproval: true, Risk: tool.RiskHigh},
	}
}

// Execute implements tool.Tool.
func (RunCommand) Execute(ctx context.Context, args json.RawMessage, execCtx tool.ExecContext) tool.Result {
	var in struct {
		Exe        string   `json:"exe"`
		Args       []string `json:"args"`
		Cwd        string   `json:"cwd"`
		TimeoutSec int      `json:"timeoutSec"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}
	if strings.TrimSpace(in.Exe) == "" {
		return tool.Failure("BadArgs", "exe is required")
	}

	workDir := execCtx.RepoRoot
	if in.Cwd != "" {
		abs, err := execCtx.Guard.Resolve(in.Cwd)
		if err != nil {
			return tool.Failure("UnsafePath", fmt.Sprintf("cwd %q is outside the workspace", in.Cwd))
		}
		workDir = abs
	}

	timeout := defaultCommandTimeout
	if in.TimeoutSec > 0 {
		timeout = time.Duration(in.TimeoutSec) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(in.Exe, in.Args...)
	cmd.Dir = workDir
	cmd.Env = secrets.FilterEnv(os.Environ())
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return tool.Failure("SpawnFailed", fmt.Sprintf("stdout pipe: %v", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return tool.Failure("SpawnFailed", fmt.Sprintf("stderr pipe: %v", err))
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return tool.Failure("SpawnFailed", fmt.Sprintf("start %s: %v", in.Exe, err))
	}

	// Kill the whole process tree when the context expires or is
	// cancelled, so grandchildren cannot outlive the timeout.
	waitDone := make(chan struct{})
	killDone := make(chan struct{})
	go func() {
		defer close(killDone)
		select {
		case <-runCtx.Done():
			killTree(cmd)
		case <-waitDone:
		}
	}()

	var stdout, stderr capture
	var g errgroup.Group
	g.Go(func() error { return stdout.consume(stdoutPipe) })
	g.Go(func() error { return stderr.consume(stderrPipe) })
	_ = g.Wait()

	waitErr := cmd.Wait()
	close(waitDone)
	<-killDone
	duration := time.Since(started)

	// The command may have written anywhere in the workspace; cached
	// tree walks are no longer trustworthy.
	if execCtx.Cache != nil {
		_ = execCtx.Cache.Invalidate(ctx, execCtx.Guard.Root())
	}

	command := strings.TrimSpace(in.Exe + " " + strings.Join(in.Args, " "))
	data := map[string]any{
		"command":         command,
		"exitCode":        cmd.ProcessState.ExitCode(),
		"durationMs":      duration.Milliseconds(),
		"stdoutTruncated": stdout.truncated,
		"stderrTruncated": stderr.truncated,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res := tool.Failure("Timeout", fmt.Sprintf("timed out after %ds", int(timeout.Seconds())))
		res.Stdout, res.Stderr = stdout.String(), stderr.String()
		res.Data = data
		return res
	}
	if runCtx.Err() != nil {
		res := tool.Failure("Cancelled", "command cancelled")
		res.Stdout, res.Stderr = stdout.String(), stderr.String()
		res.Data = data
		return res
	}

	res := tool.Result{OK: true, Data: data, Stdout: stdout.String(), Stderr: stderr.String()}
	if waitErr != nil || cmd.ProcessState.ExitCode() != 0 {
		res.OK = false
		res.Diagnostics = append(res.Diagnostics, tool.Diagnostic{
			Code:    "ExitCode",
			Message: fmt.Sprintf("command exited with code %d", cmd.ProcessState.ExitCode()),
		})
	}
	return res
}

// capture accumulates stream output up to maxCaptureChars.
type capture struct {
	buf       strings.Builder
	truncated bool
}

func (c *capture) consume(r io.Reader) error {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			remaining := maxCaptureChars - c.buf.Len()
			if remaining > 0 {
				if n > remaining {
					c.buf.Write(chunk[:remaining])
					c.truncated = true
				} else {
					c.buf.Write(chunk[:n])
				}
			} else {
				c.truncated = true
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (c *capture) String() string { return c.buf.String() }
