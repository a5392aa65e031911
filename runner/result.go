package runner

import (
	"fmt"
	"time"
)

// Result is the outcome of driving one guest thread to completion
type Result struct {
	Status            // final status
	ExitStatus int    // guest exit code
	Error      string // detailed message for runner errors

	Syscalls    uint64        // proxied syscalls serviced
	RunningTime time.Duration // wall time between first entry and exit
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%d syscalls][%v]", r.Syscalls, r.RunningTime)
	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%d syscalls][%v]", r.Error, r.Syscalls, r.RunningTime)
	default:
		return fmt.Sprintf("Result[%v(%d)][%d syscalls][%v]", r.Status, r.ExitStatus, r.Syscalls, r.RunningTime)
	}
}
