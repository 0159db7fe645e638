//go:build windows

package invoker

import "os/exec"

func configureProcess(*exec.Cmd) {}

func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
