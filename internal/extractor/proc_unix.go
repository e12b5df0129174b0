//go:build unix

package extractor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup запускает процесс в собственной группе; отмена контекста убивает всю группу
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
