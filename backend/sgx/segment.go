package sgx

import (
	"fmt"
	"sort"

	"github.com/criyle/go-enclave/pkg/image"
	sgxtypes "github.com/criyle/go-enclave/pkg/sgx"
)

// Segment is one page-aligned, access-tagged load unit derived from a
// loadable program header. Its page buffer is a private copy of the
// image bytes, zero padded at both ends to page boundaries; the image
// is never referenced again after translation.
type Segment struct {
	FileStart uint64 // source byte range in the image
	FileEnd   uint64
	VMStart   uint64 // relocated virtual byte range
	VMEnd     uint64
	VPage     uint64 // first virtual page
	Pages     []byte
	SecInfo   sgxtypes.SecInfo
	Measured  bool
}

// NewSegment translates one loadable header relative to the given
// relocation offset. The offset must be page aligned; a misaligned
// offset is a build-time defect, not recoverable input.
func NewSegment(c *image.Component, h image.ProgramHeader, relocate uint64) *Segment {
	if relocate%sgxtypes.PageSize != 0 {
		panic(fmt.Sprintf("sgx: relocation offset %#x is not page aligned", relocate))
	}

	fileStart, fileEnd := h.FileRange()
	vmStart, vmEnd := h.VMRange()
	if fileEnd-fileStart > vmEnd-vmStart {
		panic(fmt.Sprintf("sgx: segment file bytes %#x exceed memory size %#x", fileEnd-fileStart, vmEnd-vmStart))
	}
	vmStart += relocate
	vmEnd += relocate

	skip := vmStart % sgxtypes.PageSize
	vpage := vmStart / sgxtypes.PageSize
	npages := (skip + (vmEnd - vmStart) + sgxtypes.PageSize - 1) / sgxtypes.PageSize

	pages := make([]byte, npages*sgxtypes.PageSize)
	copy(pages[skip:], c.Bytes[fileStart:fileEnd])

	var perm sgxtypes.Perm
	if h.Flags&image.PFlagR != 0 {
		perm |= sgxtypes.PermR
	}
	if h.Flags&image.PFlagW != 0 {
		perm |= sgxtypes.PermW
	}
	if h.Flags&image.PFlagX != 0 {
		perm |= sgxtypes.PermX
	}

	si := sgxtypes.RegSecInfo(perm)
	if h.Flags&image.PFlagTCS != 0 {
		si = sgxtypes.TcsSecInfo()
	}

	return &Segment{
		FileStart: fileStart,
		FileEnd:   fileEnd,
		VMStart:   vmStart,
		VMEnd:     vmEnd,
		VPage:     vpage,
		Pages:     pages,
		SecInfo:   si,
		Measured:  h.Flags&image.PFlagUnmeasured == 0,
	}
}

// NPages returns the page count of the segment
func (s *Segment) NPages() uint64 {
	return uint64(len(s.Pages)) / sgxtypes.PageSize
}

func (s *Segment) String() string {
	letter := func(b bool, c string) string {
		if b {
			return c
		}
		return " "
	}
	return fmt.Sprintf("Segment(%08x:%08x => %08x:%08x => %08x:%08x %v%v%v)",
		s.FileStart, s.FileEnd, s.VMStart, s.VMEnd,
		s.VPage*sgxtypes.PageSize, (s.VPage+s.NPages())*sgxtypes.PageSize,
		s.SecInfo.Perm(),
		letter(s.SecInfo.IsTcs(), "t"),
		letter(s.Measured, "m"))
}

// sortSegments orders segments by starting virtual page and verifies
// that no pair overlaps. Overlapping enclave pages are a security
// defect, never user input, so a violation aborts.
func sortSegments(segs []*Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].VPage < segs[j].VPage })
	for i := 1; i < len(segs); i++ {
		prev, cur := segs[i-1], segs[i]
		if prev.VPage+prev.NPages() > cur.VPage {
			panic(fmt.Sprintf("sgx: segments overlap at page %#x: %v / %v", cur.VPage, prev, cur))
		}
	}
}

// translate derives the segment list of one component at the given
// relocation offset
func translate(c *image.Component, relocate uint64) []*Segment {
	var segs []*Segment
	for _, h := range c.FilterHeader(image.PTypeLoad) {
		segs = append(segs, NewSegment(c, h, relocate))
	}
	return segs
}
