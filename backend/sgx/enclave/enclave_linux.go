package enclave

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Enclave is a built, immutable enclave. It owns the driver handle, the
// address space reservation and the unclaimed TCS pages.
type Enclave struct {
	file *os.File
	mem  []byte
	fn   uintptr // __vdso_sgx_enter_enclave

	mu  sync.Mutex
	tcs []uintptr
}

// Spawn claims one thread control structure. It returns nil when every
// TCS is taken; the hardware fixes the thread count at build time.
func (e *Enclave) Spawn() *Thread {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tcs) == 0 {
		return nil
	}
	tcs := e.tcs[len(e.tcs)-1]
	e.tcs = e.tcs[:len(e.tcs)-1]
	return &Thread{fn: e.fn, tcs: tcs}
}

// Close tears down the host mappings and the driver handle. Threads
// must not be entered afterwards.
func (e *Enclave) Close() error {
	if e.mem != nil {
		unix.Munmap(e.mem)
		e.mem = nil
	}
	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

// Thread is one claimed hardware thread slot. The hardware enforces
// that a TCS is active in at most one execution context, so Thread
// carries no locking; a thread is driven by one caller at a time.
type Thread struct {
	fn  uintptr
	tcs uintptr
}
