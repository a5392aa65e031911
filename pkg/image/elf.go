package image

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// LoadELF parses an ELF image into a Component. Program headers are
// taken verbatim, including OS-reserved flag bits and segment types;
// PT_NOTE segments populate the note store.
func LoadELF(b []byte) (*Component, error) {
	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("image: parse elf: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("image: not a 64-bit x86 image: class=%v machine=%v", f.Class, f.Machine)
	}

	c := &Component{
		Bytes: b,
		notes: make(map[string]map[uint32][]byte),
	}
	for _, p := range f.Progs {
		h := ProgramHeader{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
		}
		if h.Off+h.Filesz > uint64(len(b)) {
			return nil, fmt.Errorf("image: segment file range [%#x,%#x) beyond image size %#x", h.Off, h.Off+h.Filesz, len(b))
		}
		if h.Type == PTypeLoad && h.Filesz > h.Memsz {
			return nil, fmt.Errorf("image: segment file size %#x exceeds memory size %#x", h.Filesz, h.Memsz)
		}
		c.Headers = append(c.Headers, h)

		if h.Type == PTypeNote {
			if err := parseNotes(c, b[h.Off:h.Off+h.Filesz]); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// parseNotes decodes the 4-byte aligned note entries of one PT_NOTE
// segment into the component note store
func parseNotes(c *Component, b []byte) error {
	for len(b) > 0 {
		if len(b) < 12 {
			return fmt.Errorf("image: truncated note header")
		}
		namesz := binary.LittleEndian.Uint32(b[0:])
		descsz := binary.LittleEndian.Uint32(b[4:])
		typ := binary.LittleEndian.Uint32(b[8:])

		nameEnd := 12 + int(namesz)
		descOff := align4(nameEnd)
		descEnd := descOff + int(descsz)
		if nameEnd > len(b) || descEnd > len(b) {
			return fmt.Errorf("image: truncated note entry")
		}

		name := string(bytes.TrimRight(b[12:nameEnd], "\x00"))
		c.AddNote(name, typ, b[descOff:descEnd:descEnd])

		next := align4(descEnd)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}
	return nil
}

// NoteUint32 decodes a 4 byte little-endian note descriptor
func (c *Component) NoteUint32(name string, typ uint32) (uint32, error) {
	d, ok := c.Note(name, typ)
	if !ok {
		return 0, fmt.Errorf("image: note %s/%#x not present", name, typ)
	}
	if len(d) != 4 {
		return 0, fmt.Errorf("image: note %s/%#x has %d bytes, want 4", name, typ, len(d))
	}
	return binary.LittleEndian.Uint32(d), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// ReadAll is a convenience wrapper loading a component from a reader
func ReadAll(r io.Reader) (*Component, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	return LoadELF(b)
}
