// Package backend defines the host-visible surface of an isolation
// backend: probing, building a runnable keep from executable images and
// driving its threads.
package backend

import (
	"github.com/criyle/go-enclave/pkg/hostcall"
	"github.com/criyle/go-enclave/pkg/image"
)

// Datum is one capability probe result reported by a backend
type Datum struct {
	Name string
	Pass bool
	Info string
}

// Command tells the thread driver what to do after an entry returned
type Command int

const (
	// Continue means nothing needs service; re-enter immediately
	Continue Command = iota
	// Syscall means the thread's block holds a request the caller must
	// service before the next entry
	Syscall
)

func (c Command) String() string {
	switch c {
	case Continue:
		return "continue"
	case Syscall:
		return "syscall"
	}
	return "invalid"
}

// Thread is one schedulable guest thread. A thread must be driven by a
// single caller at a time; Enter blocks until the guest either exits
// cleanly or traps.
type Thread interface {
	// Enter runs the guest until the next exit and reports what the
	// driver must do. When it returns Syscall, the request is in
	// Block() and the driver must commit a reply before calling Enter
	// again.
	Enter() (Command, error)

	// Block returns the shared message block bound to this thread
	Block() *hostcall.Block
}

// Keep is a built, immutable, runnable enclave
type Keep interface {
	// Spawn binds a new thread, or returns nil when every hardware
	// thread slot is taken
	Spawn() (Thread, error)
}

// Backend constructs keeps on one isolation technology
type Backend interface {
	// Name identifies the backend
	Name() string
	// Have reports whether the host supports this backend
	Have() bool
	// Data returns the capability probe list behind Have
	Data() []Datum
	// Shim returns the runtime image that must be loaded below the
	// guest payload
	Shim() []byte
	// Build translates the shim and payload images into a runnable keep
	Build(shim, code *image.Component) (Keep, error)
}
