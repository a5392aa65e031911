package shim

import (
	"bytes"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-enclave/pkg/hostcall"
)

// exitCall emulates the no-return property of leaving the enclave: the
// stub panics and the test recovers.
type exitCall struct{ code int }

// testHost wires a handler to an in-process host stub standing in for
// the runner
type testHost struct {
	block   *hostcall.Block
	handler *Handler
	service func(b *hostcall.Block, req hostcall.Request)
}

func newTestHost(service func(b *hostcall.Block, req hostcall.Request)) *testHost {
	h := &testHost{block: new(hostcall.Block), service: service}
	h.handler = NewHandler(h.block, h.yield, func(code int) { panic(exitCall{code}) })
	return h
}

func (h *testHost) yield() {
	h.service(h.block, h.block.ObserveRequest())
}

func wantExit(t *testing.T, code int, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		ec, ok := r.(exitCall)
		if !ok {
			t.Fatalf("recover() = %v, want exit", r)
		}
		if ec.code != code {
			t.Errorf("exit code = %d, want %d", ec.code, code)
		}
	}()
	f()
}

func TestProxyRoundTrip(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		b.CommitReply(hostcall.Reply{Code: int64(req.Arg[0] + req.Arg[1])})
	})
	rep := h.handler.Proxy(hostcall.Request{Num: 99, Arg: [hostcall.NumArgs]uint64{2, 3}})
	if rep.Code != 5 {
		t.Errorf("reply code = %d, want 5", rep.Code)
	}
}

func TestProxyErrnoReply(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		b.CommitReply(hostcall.Reply{Code: -int64(unix.EBADF)})
	})
	rep := h.handler.Proxy(hostcall.Request{Num: unix.SYS_READ})
	if rep.Errno() != int64(unix.EBADF) {
		t.Errorf("errno = %d, want EBADF", rep.Errno())
	}
}

func TestExit(t *testing.T) {
	var got hostcall.Request
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		got = req
		b.CommitReply(hostcall.Reply{})
	})
	wantExit(t, 3, func() { h.handler.Exit(3) })
	if got.Num != unix.SYS_EXIT_GROUP || got.Arg[0] != 3 {
		t.Errorf("proxied request = %+v, want exit_group(3)", got)
	}
}

// A reply code no kernel could produce trips the latch, and every entry
// after that exits immediately.
func TestTamperedReplyTripsLatch(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		b.CommitReply(hostcall.Reply{Code: -5000})
	})
	wantExit(t, 1, func() { h.handler.Proxy(hostcall.Request{Num: unix.SYS_READ}) })
	if atomic.LoadUint32(&h.handler.tripped) == 0 {
		t.Fatal("latch not tripped")
	}
	wantExit(t, 1, h.handler.Enter)
	wantExit(t, 1, h.handler.Enter)
}

func TestEnterBeforeTrip(t *testing.T) {
	h := newTestHost(nil)
	// must not exit
	h.handler.Enter()
}

func TestUnknown(t *testing.T) {
	var msg []byte
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		if req.Num != unix.SYS_WRITE || req.Arg[0] != 2 {
			t.Errorf("request = %+v, want write to stderr", req)
		}
		data, err := b.CheckAddr(req.Arg[1], req.Arg[2])
		if err != nil {
			t.Fatalf("CheckAddr: %v", err)
		}
		msg = append([]byte{}, data...)
		b.CommitReply(hostcall.Reply{Code: int64(len(data))})
	})
	h.handler.Unknown(4242)
	if !strings.Contains(string(msg), "4242") {
		t.Errorf("diagnostic = %q", msg)
	}
}

func TestCpuid(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		if req.Num != hostcall.NumCpuid || req.Arg[0] != 7 || req.Arg[1] != 1 {
			t.Errorf("request = %+v, want cpuid(7, 1)", req)
		}
		req.Arg[0], req.Arg[1], req.Arg[2], req.Arg[3] = 10, 11, 12, 13
		b.CommitRequest(req)
		b.CommitReply(hostcall.Reply{})
	})
	eax, ebx, ecx, edx := h.handler.Cpuid(7, 1)
	if eax != 10 || ebx != 11 || ecx != 12 || edx != 13 {
		t.Errorf("Cpuid() = %d %d %d %d, want 10 11 12 13", eax, ebx, ecx, edx)
	}
}

func TestGetAttestation(t *testing.T) {
	nonce := []byte{1, 2, 3, 4}
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		if req.Num != hostcall.NumGetAtt {
			t.Fatalf("request number = %#x", req.Num)
		}
		n, err := b.CheckAddr(req.Arg[0], req.Arg[1])
		if err != nil {
			t.Fatalf("nonce reference: %v", err)
		}
		if !bytes.Equal(n, nonce) {
			t.Errorf("staged nonce = %v", n)
		}
		report, err := b.CheckAddr(req.Arg[2], req.Arg[3])
		if err != nil {
			t.Fatalf("report reference: %v", err)
		}
		copy(report, []byte("report!!"))
		b.CommitReply(hostcall.Reply{Code: 8})
	})
	got, err := h.handler.GetAttestation(nonce, 64)
	if err != nil {
		t.Fatalf("GetAttestation: %v", err)
	}
	if !bytes.Equal(got, []byte("report!!")) {
		t.Errorf("report = %q", got)
	}
}

func TestGetAttestationFailure(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		b.CommitReply(hostcall.Reply{Code: -int64(unix.ENOSYS)})
	})
	if _, err := h.handler.GetAttestation([]byte{1}, 16); err == nil {
		t.Error("failed attestation: got nil error")
	}
}

// A host claiming it wrote more than the staged buffer is an attack.
func TestGetAttestationOversizeReply(t *testing.T) {
	h := newTestHost(func(b *hostcall.Block, req hostcall.Request) {
		b.CommitReply(hostcall.Reply{Code: 17})
	})
	wantExit(t, 1, func() { h.handler.GetAttestation([]byte{1}, 16) })
	if atomic.LoadUint32(&h.handler.tripped) == 0 {
		t.Error("latch not tripped")
	}
}

func TestGetAttestationStagingOverflow(t *testing.T) {
	h := newTestHost(nil)
	if _, err := h.handler.GetAttestation([]byte{1}, hostcall.DataSize); err == nil {
		t.Error("oversized staging: got nil error")
	}
	// a length chosen to wrap the staging arithmetic errors the same way
	if _, err := h.handler.GetAttestation([]byte{1}, math.MaxInt); err == nil {
		t.Error("wrapping report length: got nil error")
	}
}
