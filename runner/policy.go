package runner

import (
	"fmt"

	"github.com/elastic/go-seccomp-bpf/arch"
)

var info, errInfo = arch.GetInfo("")

// SyscallName resolves a syscall number to its name on the native
// architecture, for logging
func SyscallName(num uint64) string {
	if errInfo == nil {
		if n, ok := info.SyscallNumbers[int(num)]; ok {
			return n
		}
	}
	return fmt.Sprintf("sys_%d", num)
}

// Policy is the set of syscalls the host is willing to execute on the
// guest's behalf. The guest cannot be trusted to ask only for what it
// needs; the policy is the host's own protection.
type Policy struct {
	allowed map[int]bool
}

// NewPolicy resolves an allowlist of syscall names against the native
// syscall table
func NewPolicy(allow []string) (*Policy, error) {
	if errInfo != nil {
		return nil, fmt.Errorf("runner: load syscall table: %w", errInfo)
	}
	m := make(map[int]bool, len(allow))
	for _, name := range allow {
		num, ok := info.SyscallNames[name]
		if !ok {
			return nil, fmt.Errorf("runner: unknown syscall name %q", name)
		}
		m[num] = true
	}
	return &Policy{allowed: m}, nil
}

// Allowed reports whether the syscall may be executed. A nil policy
// permits everything.
func (p *Policy) Allowed(num uint64) bool {
	if p == nil {
		return true
	}
	return p.allowed[int(num)]
}

// DefaultAllow covers what a plain computational guest needs
var DefaultAllow = []string{
	"read", "write", "readv", "writev", "close", "fstat", "lseek",
	"brk", "mmap", "munmap", "mprotect",
	"clock_gettime", "clock_getres", "gettimeofday", "nanosleep",
	"getrandom", "getpid", "gettid", "getuid", "getgid",
	"sched_yield", "uname", "arch_prctl",
	"exit", "exit_group",
}
