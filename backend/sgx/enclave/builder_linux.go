package enclave

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-enclave/pkg/sgx"
	"github.com/criyle/go-enclave/pkg/sgx/sigstruct"
)

// DevicePath is the SGX driver node enclaves are created through
var DevicePath = "/dev/sgx_enclave"

// Builder accumulates pages into a not-yet-runnable enclave. It keeps
// no measurement state of its own; the caller drives a measure.Hasher
// over the identical load sequence.
type Builder struct {
	file *os.File
	mem  []byte  // address space reservation backing the ELRANGE
	base uintptr // naturally aligned enclave base inside mem
	size uint64
	tcs  []uintptr
	maps []mapping
}

// mapping records one loaded range for the post-EINIT fixed mappings
type mapping struct {
	offset uint64
	length uint64
	prot   int
}

// NewBuilder opens the driver and issues ECREATE for an enclave of the
// given total size (bytes, power of two) with the given per-thread SSA
// frame page count. A missing or inaccessible device surfaces here.
func NewBuilder(size uint64, ssaFrames uint32, p sgx.Parameters) (*Builder, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("enclave: size %#x is not a power of two", size)
	}
	if ssaFrames == 0 {
		return nil, fmt.Errorf("enclave: ssa frame count must be non-zero")
	}

	f, err := os.OpenFile(DevicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("enclave: open %s: %w", DevicePath, err)
	}

	// Reserve twice the enclave size so a naturally aligned base
	// exists inside the reservation regardless of where mmap put it.
	mem, err := unix.Mmap(-1, 0, int(2*size),
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("enclave: reserve address space: %w", err)
	}
	base := (uintptr(unsafe.Pointer(&mem[0])) + uintptr(size) - 1) &^ (uintptr(size) - 1)

	s := &secs{
		size:         size,
		baseAddr:     uint64(base),
		ssaFrameSize: ssaFrames,
		miscSelect:   p.Misc,
		attributes:   p.Attr.Flags,
		xfrm:         p.Attr.Xfrm,
	}
	if err := ioctlCreate(f.Fd(), s); err != nil {
		unix.Munmap(mem)
		f.Close()
		return nil, fmt.Errorf("enclave: create: %w", err)
	}

	return &Builder{file: f, mem: mem, base: base, size: size}, nil
}

// Load issues one EADD for the given pages at the given virtual page
// offset. The source must be the segment's own page buffer; image bytes
// are never referenced after translation.
func (b *Builder) Load(pages []byte, pageOffset uint64, si sgx.SecInfo, measured bool) error {
	if len(pages) == 0 || len(pages)%sgx.PageSize != 0 {
		return fmt.Errorf("enclave: load size %d is not page aligned", len(pages))
	}
	off := pageOffset * sgx.PageSize
	if off+uint64(len(pages)) > b.size {
		return fmt.Errorf("enclave: load [%#x,%#x) beyond enclave size %#x", off, off+uint64(len(pages)), b.size)
	}

	var si64 [64]byte
	binary.LittleEndian.PutUint64(si64[:], si.Flags)
	if err := ioctlAddPages(b.file.Fd(), pages, off, &si64, measured); err != nil {
		return fmt.Errorf("enclave: add pages at %#x: %w", off, err)
	}

	if si.IsTcs() {
		for i := 0; i < len(pages); i += sgx.PageSize {
			b.tcs = append(b.tcs, b.base+uintptr(off)+uintptr(i))
		}
	}
	b.maps = append(b.maps, mapping{offset: off, length: uint64(len(pages)), prot: segmentProt(si)})
	return nil
}

// Build issues EINIT with the signed structure and maps the loaded
// ranges. This is the point of no return: on success the enclave is
// runnable and immutable, on failure the whole construction is torn
// down.
func (b *Builder) Build(sig *sigstruct.Sigstruct) (*Enclave, error) {
	if err := ioctlInit(b.file.Fd(), sig.Marshal()); err != nil {
		b.Close()
		return nil, fmt.Errorf("enclave: initialize: %w", err)
	}

	for _, m := range b.maps {
		addr := b.base + uintptr(m.offset)
		_, _, errno := unix.Syscall6(unix.SYS_MMAP,
			addr, uintptr(m.length), uintptr(m.prot),
			unix.MAP_SHARED|unix.MAP_FIXED, b.file.Fd(), 0)
		if errno != 0 {
			b.Close()
			return nil, fmt.Errorf("enclave: map range at %#x: %v", m.offset, errno)
		}
	}

	fn, err := enterFunc()
	if err != nil {
		b.Close()
		return nil, err
	}

	e := &Enclave{file: b.file, mem: b.mem, tcs: b.tcs, fn: fn}
	b.file = nil
	b.mem = nil
	return e, nil
}

// Close abandons an unfinished construction
func (b *Builder) Close() error {
	if b.mem != nil {
		unix.Munmap(b.mem)
		b.mem = nil
	}
	if b.file != nil {
		err := b.file.Close()
		b.file = nil
		return err
	}
	return nil
}

// segmentProt maps page metadata to the mmap protection the driver
// expects. TCS pages must be mapped read-write regardless of EPCM bits.
func segmentProt(si sgx.SecInfo) int {
	if si.IsTcs() {
		return unix.PROT_READ | unix.PROT_WRITE
	}
	var prot int
	p := si.Perm()
	if p&sgx.PermR != 0 {
		prot |= unix.PROT_READ
	}
	if p&sgx.PermW != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&sgx.PermX != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
