//go:build windows

package tools

import (
	"os/exec"
	"strconv"
)

// setProcessGroup is a no-op on Windows; taskkill handles the tree.
func setProcessGroup(_ *exec.Cmd) {}

// killTree uses taskkill to terminate the child and its descendants.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	_ = kill.Run()
}
