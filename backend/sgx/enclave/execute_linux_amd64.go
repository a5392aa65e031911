package enclave

import "fmt"

// run mirrors struct sgx_enclave_run from the kernel uapi
// (linux/arch/x86/include/uapi/asm/sgx.h)
type run struct {
	tcs                uint64
	function           uint32
	exceptionVector    uint16
	exceptionErrorCode uint16
	exceptionAddr      uint64
	userHandler        uint64
	userData           uint64
	reserved           [27]uint64
}

// leaf reported by the vDSO on a clean synchronous exit
const leafEExit = 4

// vdsoEnterEnclave calls __vdso_sgx_enter_enclave with its C calling
// convention. Implemented in execute_linux_amd64.s.
func vdsoEnterEnclave(leaf uint32, rdi, rsi, rdx, r8, r9 uintptr, ru *run, fn uintptr) int32

// Enter performs one hardware entry on this thread and blocks until the
// guest leaves again. It returns (nil, nil) on a clean exit, the
// exception record on an asynchronous exit, and an error only when the
// kernel refused the entry itself.
//
// The five payload registers are passed through unmodified; every other
// register is clobbered by the guest. There is no timeout and no
// cancellation: a guest that never exits hangs the caller.
func (t *Thread) Enter(how Entry, r *Registers) (*ExceptionInfo, error) {
	ru := run{tcs: uint64(t.tcs)}

	ret := vdsoEnterEnclave(uint32(how),
		uintptr(r.Rdi), uintptr(r.Rsi), uintptr(r.Rdx),
		uintptr(r.R8), uintptr(r.R9), &ru, t.fn)
	if ret != 0 {
		return nil, fmt.Errorf("enclave: vdso entry: errno %d", -ret)
	}

	switch ru.function {
	case leafEExit:
		return nil, nil
	case uint32(Enter), uint32(Resume):
		return &ExceptionInfo{
			Last: Entry(ru.function),
			Trap: Vector(ru.exceptionVector),
			Code: ru.exceptionErrorCode,
			Addr: ru.exceptionAddr,
		}, nil
	}
	return nil, fmt.Errorf("enclave: unexpected exit leaf %d", ru.function)
}
