package runner

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSyscallName(t *testing.T) {
	if got := SyscallName(unix.SYS_WRITE); got != "write" {
		t.Errorf("SyscallName(SYS_WRITE) = %q", got)
	}
	if got := SyscallName(1 << 20); !strings.HasPrefix(got, "sys_") {
		t.Errorf("SyscallName fallback = %q", got)
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy([]string{"read", "write", "exit_group"})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if !p.Allowed(unix.SYS_READ) || !p.Allowed(unix.SYS_WRITE) {
		t.Error("listed syscalls not allowed")
	}
	if p.Allowed(unix.SYS_OPENAT) {
		t.Error("unlisted syscall allowed")
	}
}

func TestNewPolicyUnknownName(t *testing.T) {
	if _, err := NewPolicy([]string{"no_such_syscall"}); err == nil {
		t.Error("unknown name: got nil error")
	}
}

func TestNilPolicyAllowsAll(t *testing.T) {
	var p *Policy
	if !p.Allowed(unix.SYS_OPENAT) {
		t.Error("nil policy denied a syscall")
	}
}

func TestDefaultAllow(t *testing.T) {
	p, err := NewPolicy(DefaultAllow)
	if err != nil {
		t.Fatalf("NewPolicy(DefaultAllow): %v", err)
	}
	for _, num := range []uint64{unix.SYS_READ, unix.SYS_WRITE, unix.SYS_EXIT_GROUP, unix.SYS_CLOCK_GETTIME} {
		if !p.Allowed(num) {
			t.Errorf("default policy denies %s", SyscallName(num))
		}
	}
}
