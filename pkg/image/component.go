// Package image abstracts an executable image into the pieces the
// enclave builder needs: loadable program headers, named notes and raw
// byte ranges. The ELF adapter lives in elf.go; nothing outside this
// package depends on the container format.
package image

// Program header types understood by the builder
const (
	PTypeLoad     uint32 = 1          // loadable segment
	PTypeNote     uint32 = 4          // note segment
	PTypeCodeSlot uint32 = 0x6000c0de // reserved region for the guest payload
)

// Standard permission bits plus the OS-reserved bits carrying enclave
// page metadata
const (
	PFlagX uint32 = 1 << 0
	PFlagW uint32 = 1 << 1
	PFlagR uint32 = 1 << 2

	PFlagTCS        uint32 = 1 << 20 // segment holds thread control pages
	PFlagUnmeasured uint32 = 1 << 21 // exclude contents from the measurement
)

// Note identifiers carrying enclave geometry out of band
const (
	NoteName = "go-enclave"

	NoteEnclaveBits uint32 = 0x10 // enclave size as a power of two
	NoteSsaFrames   uint32 = 0x11 // state save area pages per thread
)

// ProgramHeader is one segment description from the image
type ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64 // file offset
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

// FileRange returns the half-open byte range inside the image file
func (p ProgramHeader) FileRange() (uint64, uint64) {
	return p.Off, p.Off + p.Filesz
}

// VMRange returns the half-open target virtual address range
func (p ProgramHeader) VMRange() (uint64, uint64) {
	return p.Vaddr, p.Vaddr + p.Memsz
}

// Component is a parsed image: its bytes, its program headers and its
// note store
type Component struct {
	Bytes   []byte
	Headers []ProgramHeader
	notes   map[string]map[uint32][]byte
}

// FilterHeader returns all program headers of the given type in file
// order
func (c *Component) FilterHeader(typ uint32) []ProgramHeader {
	var out []ProgramHeader
	for _, h := range c.Headers {
		if h.Type == typ {
			out = append(out, h)
		}
	}
	return out
}

// FindHeader returns the first program header of the given type
func (c *Component) FindHeader(typ uint32) (ProgramHeader, bool) {
	for _, h := range c.Headers {
		if h.Type == typ {
			return h, true
		}
	}
	return ProgramHeader{}, false
}

// Note returns the raw descriptor of a note by owner name and type
func (c *Component) Note(name string, typ uint32) ([]byte, bool) {
	d, ok := c.notes[name][typ]
	return d, ok
}

// AddNote stores a note descriptor, replacing an existing entry of the
// same owner and type
func (c *Component) AddNote(name string, typ uint32, desc []byte) {
	if c.notes == nil {
		c.notes = make(map[string]map[uint32][]byte)
	}
	if c.notes[name] == nil {
		c.notes[name] = make(map[uint32][]byte)
	}
	c.notes[name][typ] = desc
}

// Region returns the half-open virtual address range spanned by all
// loadable headers
func (c *Component) Region() (uint64, uint64) {
	var lo, hi uint64
	first := true
	for _, h := range c.FilterHeader(PTypeLoad) {
		s, e := h.VMRange()
		if first || s < lo {
			lo = s
		}
		if first || e > hi {
			hi = e
		}
		first = false
	}
	return lo, hi
}
