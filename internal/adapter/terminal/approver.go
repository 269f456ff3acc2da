package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/Strob0t/ForgeAgent/internal/port/approval"
)

// Approver implements synchronous approval over stdin: print a prompt,
// read one line, approve iff it is "y" (any case, surrounding spaces
// ignored).
type Approver struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	// isTTY guards against prompting when stdin is a pipe; a
	// non-interactive stdin denies rather than hanging the run.
	isTTY bool
}

// NewApprover creates an Approver over stdin/stdout.
func NewApprover() *Approver {
	return &Approver{
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stdout,
		isTTY: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// NewApproverWith creates an Approver over explicit streams, for tests.
func NewApproverWith(in io.Reader, out io.Writer) *Approver {
	return &Approver{in: bufio.NewReader(in), out: out, isTTY: true}
}

// RequestApproval implements approval.Arbitrator.
func (a *Approver) RequestApproval(_ context.Context, req approval.Request) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isTTY {
		fmt.Fprintf(a.out, "[approval] %s denied: stdin is not a terminal\n", req.Tool)
		return false, nil
	}

	fmt.Fprintf(a.out, "\nApprove %s? %s\nargs: %s\n[y/N] > ", req.Tool, req.Reason, req.ArgsJSON)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return false, nil // EOF on stdin reads as denial
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}
