package runner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/criyle/go-enclave/backend"
	"github.com/criyle/go-enclave/pkg/hostcall"
)

// action is the outcome of servicing one proxied request
type action int

const (
	actionContinue action = iota
	actionExit
	actionDenied
)

// Runner drives one guest thread to completion
type Runner struct {
	Thread backend.Thread
	Policy *Policy // nil permits every syscall
}

// Run enters the guest repeatedly, servicing proxied syscalls, until
// the guest exits or the context is cancelled. Cancellation is checked
// only between entries: an in-flight entry cannot be interrupted.
//
// Broken invariants inside the state machine abort the process; Run
// deliberately does not recover from them, since continuing would run
// against an inconsistent enclave.
func (r *Runner) Run(c context.Context) (result Result) {
	sTime := time.Now()
	defer func() {
		result.RunningTime = time.Since(sTime)
	}()

	for {
		if err := c.Err(); err != nil {
			result.Status = StatusRunnerError
			result.Error = err.Error()
			return
		}

		cmd, err := r.Thread.Enter()
		if err != nil {
			result.Status = StatusRunnerError
			result.Error = err.Error()
			return
		}
		if cmd != backend.Syscall {
			continue
		}

		block := r.Thread.Block()
		req := block.ObserveRequest()
		switch r.service(block, req) {
		case actionContinue:
			result.Syscalls++

		case actionExit:
			result.ExitStatus = int(req.Arg[0])
			if result.ExitStatus == 0 {
				result.Status = StatusNormal
			} else {
				result.Status = StatusNonzeroExitStatus
			}
			return

		case actionDenied:
			result.Status = StatusDisallowedSyscall
			result.Error = SyscallName(req.Num)
			return
		}
	}
}

// service handles one proxied request: exit family ends the run,
// anything outside the policy ends it too, the rest is executed and
// replied to.
func (r *Runner) service(block *hostcall.Block, req hostcall.Request) action {
	if isExit(req.Num) {
		return actionExit
	}
	if !r.Policy.Allowed(req.Num) {
		logrus.WithFields(logrus.Fields{
			"syscall": SyscallName(req.Num),
			"num":     req.Num,
		}).Warn("denied proxied syscall")
		return actionDenied
	}

	logrus.WithField("syscall", SyscallName(req.Num)).Debug("proxied syscall")
	block.CommitReply(execute(req))
	return actionContinue
}
