//go:build windows

package runner

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; both stages kill the process.
func terminate(process *os.Process) error {
	return kill(process)
}

func kill(process *os.Process) error {
	err := process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
