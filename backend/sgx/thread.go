package sgx

import (
	"fmt"
	"unsafe"

	"github.com/criyle/go-enclave/backend"
	"github.com/criyle/go-enclave/backend/sgx/enclave"
	"github.com/criyle/go-enclave/pkg/hostcall"
)

// rawThread is the narrow hardware entry boundary. enclave.Thread is
// the real implementation; tests substitute a fake to drive the state
// machine without hardware.
type rawThread interface {
	Enter(how enclave.Entry, r *enclave.Registers) (*enclave.ExceptionInfo, error)
}

// Thread drives one enclave thread through the enter/exit state
// machine. A thread is driven by exactly one caller at a time.
type Thread struct {
	thread rawThread
	regs   enclave.Registers
	block  hostcall.Block
	cssa   int
	how    enclave.Entry
	attest Attester
}

func newThread(raw rawThread, attest Attester) *Thread {
	return &Thread{
		thread: raw,
		how:    enclave.Enter,
		attest: attest,
	}
}

// Block implements backend.Thread
func (t *Thread) Block() *hostcall.Block {
	return &t.block
}

// Enter implements backend.Thread. One register slot carries the block
// address on every entry; the guest treats the rest as scratch.
//
// The transition rules: a clean exit means the guest finished an
// exception frame, so the next entry resumes the frame below it; an
// intentional #UD means the guest forced an exit and pushed a frame, so
// the next entry is fresh. Any other asynchronous exit is a defect the
// runtime cannot resume from. The nested-frame depth must track the
// transitions exactly, and the block is decoded precisely when a fresh
// entry came back clean, because that is when a forced exit was just
// serviced.
func (t *Thread) Enter() (backend.Command, error) {
	prev := t.how
	t.regs.Rdi = uint64(uintptr(unsafe.Pointer(&t.block)))

	ei, err := t.thread.Enter(prev, &t.regs)
	if err != nil {
		return backend.Continue, err
	}
	switch {
	case ei == nil:
		t.how = enclave.Resume
	case ei.Trap == enclave.VectorInvalidOpcode:
		t.how = enclave.Enter
	default:
		panic(fmt.Sprintf("sgx: unexpected asynchronous exit: %v", ei))
	}

	switch t.how {
	case enclave.Enter:
		t.cssa++
	case enclave.Resume:
		if t.cssa == 0 {
			panic("sgx: exception frame depth underflow")
		}
		t.cssa--
	}

	if prev == enclave.Enter && t.how == enclave.Resume {
		req := t.block.ObserveRequest()
		switch req.Num {
		case hostcall.NumCpuid:
			t.cpuid(req)
		case hostcall.NumGetAtt:
			if err := t.getAtt(req); err != nil {
				return backend.Continue, err
			}
		default:
			return backend.Syscall, nil
		}
	}
	return backend.Continue, nil
}

// cpuid services the CPU identification passthrough. The four result
// registers do not fit the two reply words, so they travel back in the
// first four request argument slots.
func (t *Thread) cpuid(req hostcall.Request) {
	eax, ebx, ecx, edx := cpuidCount(uint32(req.Arg[0]), uint32(req.Arg[1]))
	req.Arg[0] = uint64(eax)
	req.Arg[1] = uint64(ebx)
	req.Arg[2] = uint64(ecx)
	req.Arg[3] = uint64(edx)
	t.block.CommitRequest(req)
	t.block.CommitReply(hostcall.Reply{})
}

// getAtt services attestation-report retrieval. Nonce and report are
// (address, length) references into the block data area and are bounds
// checked before use.
func (t *Thread) getAtt(req hostcall.Request) error {
	nonce, err := t.block.CheckAddr(req.Arg[0], req.Arg[1])
	if err != nil {
		return fmt.Errorf("sgx: attestation nonce: %w", err)
	}
	report, err := t.block.CheckAddr(req.Arg[2], req.Arg[3])
	if err != nil {
		return fmt.Errorf("sgx: attestation report: %w", err)
	}

	n, err := t.attest.Attest(nonce, report)
	if err != nil {
		return fmt.Errorf("sgx: attestation: %w", err)
	}
	t.block.CommitReply(hostcall.Reply{Code: int64(n)})
	return nil
}
