package runner

import (
	"golang.org/x/sys/unix"

	"github.com/criyle/go-enclave/pkg/hostcall"
)

// execute performs one proxied syscall with the request arguments
// verbatim. Pointer arguments reference the shared block, which the
// guest staged and which lives in host memory, so no translation is
// needed; the policy has already decided the number is acceptable.
func execute(req hostcall.Request) hostcall.Reply {
	r1, _, errno := unix.Syscall6(uintptr(req.Num),
		uintptr(req.Arg[0]), uintptr(req.Arg[1]), uintptr(req.Arg[2]),
		uintptr(req.Arg[3]), uintptr(req.Arg[4]), uintptr(req.Arg[5]))
	if errno != 0 {
		return hostcall.Reply{Code: -int64(errno)}
	}
	return hostcall.Reply{Code: int64(r1)}
}

// isExit reports whether the request ends the guest
func isExit(num uint64) bool {
	return num == unix.SYS_EXIT || num == unix.SYS_EXIT_GROUP
}
