// Package sgx implements the SGX backend: image translation, enclave
// construction, measurement, signing and the per-thread enter/exit
// state machine.
package sgx

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/criyle/go-enclave/backend"
	"github.com/criyle/go-enclave/backend/sgx/enclave"
	"github.com/criyle/go-enclave/pkg/image"
	sgxtypes "github.com/criyle/go-enclave/pkg/sgx"
	"github.com/criyle/go-enclave/pkg/sgx/measure"
	"github.com/criyle/go-enclave/pkg/sgx/sigstruct"
)

// Backend builds and runs SGX keeps
type Backend struct {
	// ShimImage is the runtime image loaded underneath the payload
	ShimImage []byte
	// Attest services in-enclave attestation requests; nil selects a
	// report-less default
	Attest Attester
}

// Name implements backend.Backend
func (b *Backend) Name() string {
	return "sgx"
}

// Shim implements backend.Backend
func (b *Backend) Shim() []byte {
	return b.ShimImage
}

// segmentSink consumes an ordered segment sequence. The builder and
// the hasher implement it with identical signatures so one iteration
// drives both and the ordering equivalence between construction and
// measurement is structural, not caller discipline.
type segmentSink interface {
	Load(pages []byte, pageOffset uint64, si sgxtypes.SecInfo, measured bool) error
}

// Build translates both images into segments, constructs and measures
// the enclave in lock-step, signs the measurement with a fresh key and
// initializes the enclave.
func (b *Backend) Build(shim, code *image.Component) (backend.Keep, error) {
	// The shim reserves a slot for the payload; the payload must fit.
	slot, ok := shim.FindHeader(image.PTypeCodeSlot)
	if !ok {
		return nil, fmt.Errorf("sgx: shim image has no payload slot header")
	}
	codeLo, codeHi := code.Region()
	if codeHi-codeLo > slot.Memsz {
		return nil, fmt.Errorf("sgx: payload spans %#x bytes, slot holds %#x", codeHi-codeLo, slot.Memsz)
	}

	// Enclave geometry travels out of band in the shim notes.
	bits, err := shim.NoteUint32(image.NoteName, image.NoteEnclaveBits)
	if err != nil {
		return nil, fmt.Errorf("sgx: %w", err)
	}
	size := uint64(1) << bits
	ssaFrames, err := shim.NoteUint32(image.NoteName, image.NoteSsaFrames)
	if err != nil {
		return nil, fmt.Errorf("sgx: %w", err)
	}

	segs := translate(shim, 0)
	segs = append(segs, translate(code, slot.Vaddr)...)
	sortSegments(segs)

	params := sgxtypes.DefaultParameters()
	builder, err := enclave.NewBuilder(size, ssaFrames, params)
	if err != nil {
		return nil, err
	}
	hasher := measure.NewHasher(size, ssaFrames, params)

	for _, seg := range segs {
		logrus.WithField("backend", "sgx").Debug(seg)
		for _, sink := range []segmentSink{builder, hasher} {
			if err := sink.Load(seg.Pages, seg.VPage, seg.SecInfo, seg.Measured); err != nil {
				builder.Close()
				return nil, err
			}
		}
	}

	// Fresh signing identity per build; the key never leaves here.
	key, err := sigstruct.GenerateKey()
	if err != nil {
		builder.Close()
		return nil, err
	}
	sig, err := sigstruct.Sign(hasher.Finish(), sigstruct.Author{}, key)
	if err != nil {
		builder.Close()
		return nil, err
	}

	enc, err := builder.Build(sig)
	if err != nil {
		return nil, err
	}
	return &Keep{enc: enc, attest: b.attester()}, nil
}

func (b *Backend) attester() Attester {
	if b.Attest != nil {
		return b.Attest
	}
	return nullAttester{}
}

// Keep is a built, runnable enclave
type Keep struct {
	enc    *enclave.Enclave
	attest Attester
}

// Spawn implements backend.Keep
func (k *Keep) Spawn() (backend.Thread, error) {
	t := k.enc.Spawn()
	if t == nil {
		return nil, nil
	}
	return newThread(t, k.attest), nil
}

// Close tears the keep down
func (k *Keep) Close() error {
	return k.enc.Close()
}
