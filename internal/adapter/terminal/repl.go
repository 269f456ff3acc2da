package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/service"
)

const helpText = `Commands:
  /help        show this help
  /exit, /quit leave the session

Anything else is sent to the agent as a task.`

// REPL is the line-based interactive surface.
type REPL struct {
	runner  *service.Runner
	session *service.Session
	in      io.Reader
	out     io.Writer
}

// NewREPL creates a REPL bound to one session.
func NewREPL(runner *service.Runner, session *service.Session) *REPL {
	return &REPL{runner: runner, session: session, in: os.Stdin, out: os.Stdout}
}

// Loop reads prompts until /exit, /quit, or EOF. Ctrl-C cancels the
// in-flight run and returns to the prompt.
func (r *REPL) Loop(ctx context.Context) error {
	fmt.Fprintf(r.out, "forgeagent session %s (%s/%s)\nworkspace: %s\ntype /help for commands\n\n",
		r.session.Info.ID, r.session.Info.Provider, r.session.Info.Model, r.session.Info.WorkspaceRoot)

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, helpText)
			continue
		}

		if !r.session.TryRun() {
			fmt.Fprintln(r.out, "[busy] a run is already in progress")
			continue
		}
		r.runOnce(ctx, line)
		r.session.EndRun()
	}
}

// runOnce executes one prompt with interrupt-driven cancellation.
func (r *REPL) runOnce(ctx context.Context, prompt string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-runCtx.Done():
		}
	}()

	r.runner.Run(runCtx, r.session, prompt)
}
