package hostcall

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// BlockSize is the total size of the shared block in bytes
const BlockSize = 1 << 16

// NumArgs is the number of argument words in a request
const NumArgs = 6

// Request numbers serviced by the host-side state machine itself rather
// than proxied to the kernel. They live far above the Linux syscall
// number range.
const (
	NumCpuid  uint64 = 0x1_0000 // leaf/subleaf CPU identification passthrough
	NumGetAtt uint64 = 0x1_0001 // attestation report retrieval
)

// Request is one proxied operation: a number plus raw argument words.
// Pointer-typed arguments must reference offsets staged inside the block
// data area; the host never dereferences guest addresses.
type Request struct {
	Num uint64
	Arg [NumArgs]uint64
}

// Reply is the host's answer. Code follows the kernel convention: zero
// or positive on success, a negated errno on failure.
type Reply struct {
	Code int64
	Val  [2]uint64
}

// Errno extracts the errno from a failed reply, or 0
func (r Reply) Errno() int64 {
	if r.Code < 0 {
		return -r.Code
	}
	return 0
}

const headerSize = 8 + 7*8 + 3*8

// DataSize is the capacity of the staging area inside the block
const DataSize = BlockSize - headerSize

// Block is the fixed-layout shared region. It is foreign-owned memory:
// both sides map the same bytes and neither trusts the other's writes,
// so every field read from it must be validated before use. All
// cross-boundary access goes through the Commit/Observe accessors.
type Block struct {
	seq  uint32
	_    [4]byte
	Req  Request
	Rep  Reply
	Data [DataSize]byte
}

// CommitRequest publishes a request. The atomic store is the release
// fence: every prior write to the block is visible before control can
// leave the writer.
func (b *Block) CommitRequest(r Request) {
	b.Req = r
	atomic.AddUint32(&b.seq, 1)
}

// ObserveRequest reads the published request. The atomic load is the
// acquire fence pairing with CommitRequest.
func (b *Block) ObserveRequest() Request {
	atomic.LoadUint32(&b.seq)
	return b.Req
}

// CommitReply publishes a reply, release-ordered after the reply bytes
func (b *Block) CommitReply(r Reply) {
	b.Rep = r
	atomic.AddUint32(&b.seq, 1)
}

// ObserveReply reads the published reply, acquire-ordered before the
// reply bytes
func (b *Block) ObserveReply() Reply {
	atomic.LoadUint32(&b.seq)
	return b.Rep
}

// Cursor stages variable-length request data into the block data area
type Cursor struct {
	b   *Block
	off int
}

// Cursor returns a fresh cursor over the data area. The previous
// request's staging is dead once a new cursor is taken.
func (b *Block) Cursor() *Cursor {
	return &Cursor{b: b}
}

// Alloc reserves n bytes in the data area and returns the reserved
// slice together with its address. Both sides map the block at the
// same host-virtual address, so the address is what goes into a
// pointer-typed request argument.
func (c *Cursor) Alloc(n int) ([]byte, uint64, error) {
	// compared without addition so a huge n cannot wrap the check
	if n < 0 || n > DataSize-c.off {
		return nil, 0, fmt.Errorf("hostcall: cursor overflow: %d bytes requested, %d free", n, DataSize-c.off)
	}
	off := c.off
	c.off += n
	addr := uint64(uintptr(unsafe.Pointer(&c.b.Data[0]))) + uint64(off)
	return c.b.Data[off : off+n : off+n], addr, nil
}

// CheckAddr validates an (address, length) pair decoded from an
// untrusted request and returns the referenced bytes. Anything outside
// the block data area is rejected: the host never dereferences a guest
// reference it has not bounds checked.
func (b *Block) CheckAddr(addr, n uint64) ([]byte, error) {
	base := uint64(uintptr(unsafe.Pointer(&b.Data[0])))
	if n > DataSize || addr < base || addr-base > DataSize-n {
		return nil, fmt.Errorf("hostcall: data reference out of range: addr=%#x len=%d", addr, n)
	}
	off := addr - base
	return b.Data[off : off+n : off+n], nil
}
