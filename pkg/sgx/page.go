package sgx

import "strings"

// PageSize is the architectural EPC page size
const PageSize = 4096

// Perm is the page access permission set (EPCM R/W/X bits)
type Perm uint8

// Page access permissions
const (
	PermR Perm = 1 << iota // readable
	PermW                  // writable
	PermX                  // executable
)

func (p Perm) String() string {
	var b strings.Builder
	for _, f := range []struct {
		p Perm
		c string
	}{{PermR, "r"}, {PermW, "w"}, {PermX, "x"}} {
		if p&f.p != 0 {
			b.WriteString(f.c)
		} else {
			b.WriteString("-")
		}
	}
	return b.String()
}

// Class is the EPCM page type
type Class uint8

// EPCM page types (SDM table 38-12)
const (
	ClassSecs Class = iota // SGX enclave control structure
	ClassTcs               // thread control structure
	ClassReg               // regular page
)

func (c Class) String() string {
	switch c {
	case ClassSecs:
		return "secs"
	case ClassTcs:
		return "tcs"
	case ClassReg:
		return "reg"
	}
	return "invalid"
}

// SecInfo is the 64 byte security information structure consumed by
// EADD and folded into the measurement. The layout is fixed by hardware:
// permission bits in bits 0..2, page class in bits 8..15, rest reserved.
type SecInfo struct {
	Flags    uint64
	Reserved [7]uint64
}

// RegSecInfo creates the SecInfo for a regular page with permissions
func RegSecInfo(perm Perm) SecInfo {
	return SecInfo{Flags: uint64(perm) | uint64(ClassReg)<<8}
}

// TcsSecInfo creates the SecInfo for a thread control structure page.
// TCS pages must carry no access permissions.
func TcsSecInfo() SecInfo {
	return SecInfo{Flags: uint64(ClassTcs) << 8}
}

// Perm extracts the permission bits
func (s SecInfo) Perm() Perm {
	return Perm(s.Flags & 0x7)
}

// Class extracts the page class
func (s SecInfo) Class() Class {
	return Class(s.Flags >> 8)
}

// IsTcs reports whether the page is a thread control structure
func (s SecInfo) IsTcs() bool {
	return s.Class() == ClassTcs
}
