package runner

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-enclave/backend"
	"github.com/criyle/go-enclave/pkg/hostcall"
)

// scriptThread publishes one scripted request per entry
type scriptThread struct {
	block hostcall.Block
	reqs  []hostcall.Request
	i     int
	err   error
}

func (s *scriptThread) Block() *hostcall.Block { return &s.block }

func (s *scriptThread) Enter() (backend.Command, error) {
	if s.err != nil {
		return backend.Continue, s.err
	}
	if s.i >= len(s.reqs) {
		return backend.Continue, errors.New("script exhausted")
	}
	s.block.CommitRequest(s.reqs[s.i])
	s.i++
	return backend.Syscall, nil
}

func TestRunNormalExit(t *testing.T) {
	thr := &scriptThread{reqs: []hostcall.Request{
		{Num: unix.SYS_GETPID},
		{Num: unix.SYS_EXIT_GROUP, Arg: [hostcall.NumArgs]uint64{0}},
	}}
	r := Runner{Thread: thr}
	res := r.Run(context.Background())
	if res.Status != StatusNormal {
		t.Fatalf("status = %v, want %v: %s", res.Status, StatusNormal, res.Error)
	}
	if res.Syscalls != 1 {
		t.Errorf("syscalls = %d, want 1", res.Syscalls)
	}
	if rep := thr.block.ObserveReply(); rep.Code <= 0 {
		t.Errorf("getpid reply = %d, want a pid", rep.Code)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	thr := &scriptThread{reqs: []hostcall.Request{
		{Num: unix.SYS_EXIT, Arg: [hostcall.NumArgs]uint64{3}},
	}}
	res := (&Runner{Thread: thr}).Run(context.Background())
	if res.Status != StatusNonzeroExitStatus || res.ExitStatus != 3 {
		t.Errorf("result = %v/%d, want %v/3", res.Status, res.ExitStatus, StatusNonzeroExitStatus)
	}
}

func TestRunDeniedSyscall(t *testing.T) {
	policy, err := NewPolicy([]string{"write"})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	thr := &scriptThread{reqs: []hostcall.Request{
		{Num: unix.SYS_GETPID},
	}}
	res := (&Runner{Thread: thr, Policy: policy}).Run(context.Background())
	if res.Status != StatusDisallowedSyscall {
		t.Fatalf("status = %v, want %v", res.Status, StatusDisallowedSyscall)
	}
	if res.Error != "getpid" {
		t.Errorf("error = %q, want getpid", res.Error)
	}
}

func TestRunThreadError(t *testing.T) {
	thr := &scriptThread{err: errors.New("device gone")}
	res := (&Runner{Thread: thr}).Run(context.Background())
	if res.Status != StatusRunnerError || res.Error != "device gone" {
		t.Errorf("result = %v/%q", res.Status, res.Error)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	thr := &scriptThread{reqs: []hostcall.Request{{Num: unix.SYS_GETPID}}}
	res := (&Runner{Thread: thr}).Run(ctx)
	if res.Status != StatusRunnerError {
		t.Errorf("status = %v, want %v", res.Status, StatusRunnerError)
	}
	if thr.i != 0 {
		t.Error("entered the guest after cancellation")
	}
}

func TestExecute(t *testing.T) {
	rep := execute(hostcall.Request{Num: unix.SYS_GETPID})
	if rep.Code != int64(unix.Getpid()) {
		t.Errorf("getpid = %d, want %d", rep.Code, unix.Getpid())
	}

	rep = execute(hostcall.Request{Num: 1 << 14})
	if rep.Code != -int64(unix.ENOSYS) {
		t.Errorf("bogus syscall reply = %d, want -ENOSYS", rep.Code)
	}
}

func TestIsExit(t *testing.T) {
	if !isExit(unix.SYS_EXIT) || !isExit(unix.SYS_EXIT_GROUP) {
		t.Error("exit family not recognized")
	}
	if isExit(unix.SYS_READ) {
		t.Error("read treated as exit")
	}
}
