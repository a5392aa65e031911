// Package enclave wraps the Linux SGX driver: enclave creation, page
// loading, initialization and the hardware entry boundary. Everything
// that reasons about registers or ENCLU leaves lives here; callers see
// only typed entries and typed exception records.
package enclave

import "fmt"

// Entry selects the ENCLU leaf for the next hardware entry
type Entry uint32

const (
	// Enter performs a fresh entry (EENTER)
	Enter Entry = 2
	// Resume continues after an asynchronous exit (ERESUME)
	Resume Entry = 3
)

func (e Entry) String() string {
	switch e {
	case Enter:
		return "enter"
	case Resume:
		return "resume"
	}
	return "invalid"
}

// Vector is the x86 exception vector reported on an asynchronous exit
type Vector uint8

// Exception vectors that matter to the runtime. InvalidOpcode is the
// vector the in-enclave proxy raises on purpose.
const (
	VectorDivideByZero      Vector = 0
	VectorDebug             Vector = 1
	VectorBreakpoint        Vector = 3
	VectorInvalidOpcode     Vector = 6
	VectorGeneralProtection Vector = 13
	VectorPageFault         Vector = 14
	VectorSIMDException     Vector = 19
)

func (v Vector) String() string {
	switch v {
	case VectorDivideByZero:
		return "#DE"
	case VectorDebug:
		return "#DB"
	case VectorBreakpoint:
		return "#BP"
	case VectorInvalidOpcode:
		return "#UD"
	case VectorGeneralProtection:
		return "#GP"
	case VectorPageFault:
		return "#PF"
	case VectorSIMDException:
		return "#XM"
	}
	return fmt.Sprintf("#%d", uint8(v))
}

// ExceptionInfo describes one asynchronous exit. It is transient: the
// state machine consumes it immediately and never stores it.
type ExceptionInfo struct {
	Last Entry  // entry mode the hardware reported for the exited frame
	Trap Vector // exception vector
	Code uint16 // trap-specific error code
	Addr uint64 // faulting address
}

func (e *ExceptionInfo) String() string {
	return fmt.Sprintf("aex{%v %v code=%#x addr=%#x}", e.Last, e.Trap, e.Code, e.Addr)
}

// Registers is the 5-register payload passed into the enclave on entry.
// Everything else is clobbered by the guest; nothing may be assumed
// preserved across the boundary.
type Registers struct {
	Rdi uint64
	Rsi uint64
	Rdx uint64
	R8  uint64
	R9  uint64
}
