// Package measure maintains the MRENCLAVE digest that mirrors enclave
// construction. The hasher folds the same ECREATE / EADD / EEXTEND
// records into SHA-256 that the hardware folds while the builder issues
// the real operations; driving both with the identical load sequence is
// what makes the final signature verify.
package measure

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/criyle/go-enclave/pkg/sgx"
)

// chunkSize is the EEXTEND granularity
const chunkSize = 256

// Hasher accumulates the construction log of one enclave
type Hasher struct {
	h         hash.Hash
	size      uint64
	ssaFrames uint32
	params    sgx.Parameters
}

// NewHasher starts the digest for an enclave of the given total size
// (bytes, power of two) and SSA frame page count, mirroring ECREATE
func NewHasher(size uint64, ssaFrames uint32, p sgx.Parameters) *Hasher {
	h := &Hasher{
		h:         sha256.New(),
		size:      size,
		ssaFrames: ssaFrames,
		params:    p,
	}

	var rec [64]byte
	copy(rec[:], "ECREATE\x00")
	binary.LittleEndian.PutUint32(rec[8:], ssaFrames)
	binary.LittleEndian.PutUint64(rec[12:], size)
	h.h.Write(rec[:])
	return h
}

// Load folds one page-add operation into the digest. The arguments must
// match the builder call for the same pages exactly: same page offset,
// same SecInfo, same measured flag, same order.
func (h *Hasher) Load(pages []byte, pageOffset uint64, si sgx.SecInfo, measured bool) error {
	if len(pages)%sgx.PageSize != 0 {
		return fmt.Errorf("measure: load size %d is not page aligned", len(pages))
	}

	si64 := marshalSecInfo(si)
	for p := 0; p < len(pages); p += sgx.PageSize {
		off := pageOffset*sgx.PageSize + uint64(p)

		var rec [64]byte
		copy(rec[:], "EADD\x00\x00\x00\x00")
		binary.LittleEndian.PutUint64(rec[8:], off)
		copy(rec[16:], si64[:48])
		h.h.Write(rec[:])

		if !measured {
			continue
		}
		for c := 0; c < sgx.PageSize; c += chunkSize {
			var ext [64]byte
			copy(ext[:], "EEXTEND\x00")
			binary.LittleEndian.PutUint64(ext[8:], off+uint64(c))
			h.h.Write(ext[:])
			h.h.Write(pages[p+c : p+c+chunkSize])
		}
	}
	return nil
}

// Finish consumes the hasher and returns the finished digest together
// with the enclave parameters it was constructed with
func (h *Hasher) Finish() *Digest {
	d := &Digest{
		Size:      h.size,
		SsaFrames: h.ssaFrames,
		Params:    h.params,
	}
	copy(d.Measurement[:], h.h.Sum(nil))
	h.h = nil
	return d
}

// Digest is the finished measurement plus the enclave parameters that a
// signature must bind
type Digest struct {
	Measurement sgx.Measurement
	Size        uint64
	SsaFrames   uint32
	Params      sgx.Parameters
}

func marshalSecInfo(si sgx.SecInfo) [64]byte {
	var b [64]byte
	binary.LittleEndian.PutUint64(b[0:], si.Flags)
	return b
}
