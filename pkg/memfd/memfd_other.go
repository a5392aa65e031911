//go:build !linux

package memfd

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

// sealed memory files are a Linux facility
var errUnsupported = fmt.Errorf("memfd: not supported on %s", runtime.GOOS)

func New(name string) (*os.File, error) {
	return nil, errUnsupported
}

func DupToMemfd(name string, reader io.Reader) (*os.File, error) {
	return nil, errUnsupported
}
