// Package shim is the in-enclave side of the syscall proxy. It runs at
// the guest's privilege level: it cannot perform host syscalls and must
// not trust any memory outside the enclave, including the shared block
// it communicates through.
//
// The package is hardware-free by construction: the two operations only
// the enclave runtime can provide, forcing an asynchronous exit and
// leaving the enclave for good, are injected as functions. Everything
// else is ordinary code, which is also what makes the protocol testable
// against a host-side stub.
package shim

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-enclave/pkg/hostcall"
)

// errnoMax is the largest errno the kernel can produce; reply codes
// below -errnoMax cannot come from a real syscall
const errnoMax = 4095

// Handler services guest requests by proxying them to the host
type Handler struct {
	block *hostcall.Block
	yield func()    // force the designated illegal-instruction exit
	exit  func(int) // leave the enclave irrevocably

	// tripped is the one-way attack latch. It lives as long as the
	// enclave and is never cleared, because the untrusted host may
	// retry entry after an attack and every retry must exit
	// immediately.
	tripped uint32
}

// NewHandler binds a handler to the shared block. The yield function
// must force the asynchronous exit the host recognizes as a proxy trap;
// exit must leave the enclave without returning.
func NewHandler(b *hostcall.Block, yield func(), exit func(int)) *Handler {
	return &Handler{block: b, yield: yield, exit: exit}
}

// Enter gates every enclave entry. It checks the latch before anything
// else so that no re-entry after an attack reaches further code.
func (h *Handler) Enter() {
	if atomic.LoadUint32(&h.tripped) != 0 {
		h.exit(1)
	}
}

// Proxy submits one request to the host and returns the reply.
//
// The request is published with a release operation so every prior
// write is externally visible before control leaves the enclave; the
// reply is read behind an acquire operation so the host's writes,
// made while the enclave was not executing, are visible before use.
// Moving either fence makes the protocol unsound under reordering.
func (h *Handler) Proxy(req hostcall.Request) hostcall.Reply {
	h.block.CommitRequest(req)
	h.yield()
	rep := h.block.ObserveReply()

	// The host owns the reply bytes; a code no kernel could produce
	// means the block was tampered with.
	if rep.Code < -errnoMax {
		h.Attacked()
	}
	return rep
}

// Attacked trips the circuit breaker and leaves the enclave. It is a
// terminal action, not an error channel: there is deliberately no way
// to observe the trip and continue.
func (h *Handler) Attacked() {
	atomic.StoreUint32(&h.tripped, 1)
	h.exit(1)
}

// Exit terminates the guest with the given code
func (h *Handler) Exit(code int) {
	h.Proxy(hostcall.Request{
		Num: unix.SYS_EXIT_GROUP,
		Arg: [hostcall.NumArgs]uint64{uint64(code)},
	})
	h.exit(code)
}

// Unknown reports an unrecognized request number. Best effort: the
// message goes to the host's stderr through the proxy itself and
// failures are ignored, since an unknown number usually means
// unsupported functionality rather than an attack.
func (h *Handler) Unknown(num uint64) {
	h.debug(fmt.Sprintf("unsupported syscall: %d\n", num))
}

// Cpuid performs the CPU identification passthrough. The host returns
// the four result registers in the first request argument slots.
func (h *Handler) Cpuid(leaf, sub uint32) (eax, ebx, ecx, edx uint32) {
	h.Proxy(hostcall.Request{
		Num: hostcall.NumCpuid,
		Arg: [hostcall.NumArgs]uint64{uint64(leaf), uint64(sub)},
	})
	req := h.block.ObserveRequest()
	return uint32(req.Arg[0]), uint32(req.Arg[1]), uint32(req.Arg[2]), uint32(req.Arg[3])
}

// GetAttestation retrieves an attestation report over nonce. The reply
// length is validated against the staged buffer before it is trusted.
func (h *Handler) GetAttestation(nonce []byte, reportLen int) ([]byte, error) {
	c := h.block.Cursor()
	nbuf, naddr, err := c.Alloc(len(nonce))
	if err != nil {
		return nil, err
	}
	copy(nbuf, nonce)
	rbuf, raddr, err := c.Alloc(reportLen)
	if err != nil {
		return nil, err
	}

	rep := h.Proxy(hostcall.Request{
		Num: hostcall.NumGetAtt,
		Arg: [hostcall.NumArgs]uint64{naddr, uint64(len(nonce)), raddr, uint64(reportLen)},
	})
	if rep.Code < 0 {
		return nil, fmt.Errorf("shim: attestation failed: errno %d", rep.Errno())
	}

	n := uint64(rep.Code)
	if n > uint64(reportLen) {
		h.Attacked()
	}
	out := make([]byte, n)
	copy(out, rbuf[:n])
	return out, nil
}

// debug writes a message to the host's stderr via the proxy
func (h *Handler) debug(msg string) {
	c := h.block.Cursor()
	buf, addr, err := c.Alloc(len(msg))
	if err != nil {
		return
	}
	copy(buf, msg)
	h.Proxy(hostcall.Request{
		Num: unix.SYS_WRITE,
		Arg: [hostcall.NumArgs]uint64{2, addr, uint64(len(msg))},
	})
}
