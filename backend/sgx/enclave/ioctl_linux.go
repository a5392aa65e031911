package enclave

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SGX driver ioctl numbers, group 0xA4
// (linux/arch/x86/include/uapi/asm/sgx.h)
const (
	ioctlEnclaveCreate   = 0x4008a400 // _IOW(0xA4, 0x00, struct sgx_enclave_create)
	ioctlEnclaveAddPages = 0xc030a401 // _IOWR(0xA4, 0x01, struct sgx_enclave_add_pages)
	ioctlEnclaveInit     = 0x4008a402 // _IOW(0xA4, 0x02, struct sgx_enclave_init)
)

// measureFlag marks the pages as contributing to the measurement
const measureFlag = 1 << 0

// createDesc wraps a pointer to the SECS page
type createDesc struct {
	secs uint64
}

// addPagesDesc layout is dictated by the kernel: source pointer,
// destination byte offset, byte length, SecInfo pointer, flags word and
// the pages-added result counter
type addPagesDesc struct {
	src     uint64
	offset  uint64
	length  uint64
	secinfo uint64
	flags   uint64
	count   uint64
}

// initDesc wraps a pointer to the marshalled SIGSTRUCT
type initDesc struct {
	sigstruct uint64
}

// secs is the enclave control structure page consumed by ECREATE. Only
// the leading fields are host-written; the rest must be zero.
type secs struct {
	size         uint64
	baseAddr     uint64
	ssaFrameSize uint32
	miscSelect   uint32
	_            [24]byte
	attributes   uint64
	xfrm         uint64
	_            [4032]byte
}

func ioctl(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlCreate(fd uintptr, s *secs) error {
	desc := createDesc{secs: uint64(uintptr(unsafe.Pointer(s)))}
	err := ioctl(fd, ioctlEnclaveCreate, unsafe.Pointer(&desc))
	runtime.KeepAlive(s)
	return err
}

func ioctlAddPages(fd uintptr, src []byte, offset uint64, si *[64]byte, measured bool) error {
	var flags uint64
	if measured {
		flags |= measureFlag
	}
	desc := addPagesDesc{
		src:     uint64(uintptr(unsafe.Pointer(&src[0]))),
		offset:  offset,
		length:  uint64(len(src)),
		secinfo: uint64(uintptr(unsafe.Pointer(si))),
		flags:   flags,
	}
	err := ioctl(fd, ioctlEnclaveAddPages, unsafe.Pointer(&desc))
	runtime.KeepAlive(src)
	runtime.KeepAlive(si)
	return err
}

func ioctlInit(fd uintptr, sig []byte) error {
	desc := initDesc{sigstruct: uint64(uintptr(unsafe.Pointer(&sig[0])))}
	err := ioctl(fd, ioctlEnclaveInit, unsafe.Pointer(&desc))
	runtime.KeepAlive(sig)
	return err
}
