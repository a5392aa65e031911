package hostcall

import (
	"bytes"
	"math"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	b := new(Block)
	want := Request{Num: 1, Arg: [NumArgs]uint64{2, 0, 4, 0, 6, 7}}
	b.CommitRequest(want)
	if got := b.ObserveRequest(); got != want {
		t.Errorf("ObserveRequest() = %v, want %v", got, want)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	b := new(Block)
	want := Reply{Code: -11, Val: [2]uint64{42, 0}}
	b.CommitReply(want)
	if got := b.ObserveReply(); got != want {
		t.Errorf("ObserveReply() = %v, want %v", got, want)
	}
}

func TestReplyErrno(t *testing.T) {
	tests := []struct {
		code int64
		want int64
	}{
		{0, 0},
		{3, 0},
		{-1, 1},
		{-38, 38},
	}
	for _, tc := range tests {
		if got := (Reply{Code: tc.code}).Errno(); got != tc.want {
			t.Errorf("Reply{Code: %d}.Errno() = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestCursorAlloc(t *testing.T) {
	b := new(Block)
	c := b.Cursor()

	s1, a1, err := c.Alloc(16)
	if err != nil {
		t.Fatalf("Alloc(16): %v", err)
	}
	s2, a2, err := c.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc(8): %v", err)
	}
	if len(s1) != 16 || len(s2) != 8 {
		t.Errorf("Alloc lengths = %d, %d, want 16, 8", len(s1), len(s2))
	}
	if a2 != a1+16 {
		t.Errorf("second address = %#x, want %#x", a2, a1+16)
	}

	copy(s1, "0123456789abcdef")
	got, err := b.CheckAddr(a1, 16)
	if err != nil {
		t.Fatalf("CheckAddr: %v", err)
	}
	if !bytes.Equal(got, []byte("0123456789abcdef")) {
		t.Errorf("CheckAddr bytes = %q", got)
	}
}

func TestCursorOverflow(t *testing.T) {
	b := new(Block)
	c := b.Cursor()
	if _, _, err := c.Alloc(DataSize); err != nil {
		t.Fatalf("Alloc(DataSize): %v", err)
	}
	if _, _, err := c.Alloc(1); err == nil {
		t.Error("Alloc(1) after exhausting data area: got nil error")
	}
	if _, _, err := b.Cursor().Alloc(-1); err == nil {
		t.Error("Alloc(-1): got nil error")
	}

	// a request large enough to wrap the offset arithmetic must fail
	// the same way, not fault
	c = b.Cursor()
	if _, _, err := c.Alloc(8); err != nil {
		t.Fatalf("Alloc(8): %v", err)
	}
	if _, _, err := c.Alloc(math.MaxInt); err == nil {
		t.Error("Alloc(math.MaxInt): got nil error")
	}
}

func TestCheckAddrBounds(t *testing.T) {
	b := new(Block)
	_, base, err := b.Cursor().Alloc(0)
	if err != nil {
		t.Fatalf("Alloc(0): %v", err)
	}

	tests := []struct {
		name string
		addr uint64
		n    uint64
		ok   bool
	}{
		{"whole area", base, DataSize, true},
		{"empty at end", base + DataSize, 0, true},
		{"below area", base - 1, 1, false},
		{"past end", base + DataSize - 4, 8, false},
		{"length overflow", base, DataSize + 1, false},
		{"wild pointer", 0x1000, 8, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.CheckAddr(tc.addr, tc.n)
			if (err == nil) != tc.ok {
				t.Errorf("CheckAddr(%#x, %d) error = %v, want ok=%v", tc.addr, tc.n, err, tc.ok)
			}
		})
	}
}
