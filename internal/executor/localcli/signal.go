package localcli

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// gracePeriod is how long Cancel waits after SIGTERM before escalating to
// SIGKILL (spec.md §5 "signals the child (SIGTERM then SIGKILL after
// grace)").
const gracePeriod = 5 * time.Second

func terminateSignal() os.Signal { return syscall.SIGTERM }

func killAfterGrace(cmd *exec.Cmd) {
	time.Sleep(gracePeriod)
	if cmd.ProcessState != nil {
		return // already exited
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
