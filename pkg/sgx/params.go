package sgx

import (
	"encoding/binary"
	"encoding/hex"
)

// Attribute flag bits (SDM table 38-3)
const (
	AttributeInit         uint64 = 1 << 0
	AttributeDebug        uint64 = 1 << 1
	AttributeMode64       uint64 = 1 << 2
	AttributeProvisionKey uint64 = 1 << 4
	AttributeEInitKey     uint64 = 1 << 5
)

// Attributes is the enclave ATTRIBUTES field: feature flags plus the
// XSAVE feature request mask
type Attributes struct {
	Flags uint64
	Xfrm  uint64
}

// Marshal encodes the attributes into their 16 byte hardware layout
func (a Attributes) Marshal() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], a.Flags)
	binary.LittleEndian.PutUint64(b[8:], a.Xfrm)
	return b
}

// Parameters are the enclave-wide signing parameters bound into both the
// SECS at ECREATE and the SIGSTRUCT at signing time. The builder and the
// hasher must be constructed from the identical value or EINIT rejects
// the signature.
type Parameters struct {
	Misc      uint32
	MiscMask  uint32
	Attr      Attributes
	AttrMask  Attributes
	ISVProdID uint16
	ISVSVN    uint16
}

// DefaultParameters returns the parameters used for a 64-bit enclave with
// the x87+SSE state mandated by the architecture ("XFRM[1:0] must be 0x3")
func DefaultParameters() Parameters {
	return Parameters{
		Attr:     Attributes{Flags: AttributeMode64, Xfrm: 3},
		AttrMask: Attributes{Flags: ^uint64(0), Xfrm: ^uint64(0)},
	}
}

// Measurement is the SHA-256 digest over the enclave construction log
// (MRENCLAVE)
type Measurement [32]byte

func (m Measurement) String() string {
	return hex.EncodeToString(m[:])
}
