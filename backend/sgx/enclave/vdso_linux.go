package enclave

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

const vdsoEntrySymbol = "__vdso_sgx_enter_enclave"

var enterFn struct {
	once sync.Once
	addr uintptr
	err  error
}

// enterFunc resolves the vDSO SGX entry function once per process
func enterFunc() (uintptr, error) {
	enterFn.once.Do(func() {
		enterFn.addr, enterFn.err = resolveVdsoEntry()
	})
	return enterFn.addr, enterFn.err
}

// resolveVdsoEntry locates the vDSO image from the auxiliary vector and
// looks the entry symbol up in its dynamic symbol table
func resolveVdsoEntry() (uintptr, error) {
	base, err := vdsoBase()
	if err != nil {
		return 0, err
	}

	// Size the window from the ELF header so we never read past the
	// mapping: section headers are the last thing in the vDSO image.
	hdr := unsafe.Slice((*byte)(unsafe.Pointer(base)), 64)
	shoff := binary.LittleEndian.Uint64(hdr[0x28:])
	shentsize := binary.LittleEndian.Uint16(hdr[0x3a:])
	shnum := binary.LittleEndian.Uint16(hdr[0x3c:])
	size := shoff + uint64(shentsize)*uint64(shnum)

	img := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
	f, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		return 0, fmt.Errorf("enclave: parse vdso: %w", err)
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		return 0, fmt.Errorf("enclave: vdso symbols: %w", err)
	}
	for _, s := range syms {
		if s.Name == vdsoEntrySymbol {
			return base + uintptr(s.Value), nil
		}
	}
	return 0, fmt.Errorf("enclave: %s not exported by this kernel", vdsoEntrySymbol)
}

// vdsoBase reads AT_SYSINFO_EHDR from /proc/self/auxv
func vdsoBase() (uintptr, error) {
	const atSysinfoEhdr = 33

	b, err := os.ReadFile("/proc/self/auxv")
	if err != nil {
		return 0, fmt.Errorf("enclave: read auxv: %w", err)
	}
	for i := 0; i+16 <= len(b); i += 16 {
		typ := binary.LittleEndian.Uint64(b[i:])
		val := binary.LittleEndian.Uint64(b[i+8:])
		if typ == atSysinfoEhdr {
			return uintptr(val), nil
		}
	}
	return 0, fmt.Errorf("enclave: no AT_SYSINFO_EHDR in auxv")
}
