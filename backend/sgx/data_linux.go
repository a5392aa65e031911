package sgx

import (
	"fmt"
	"os"
	"strings"

	"github.com/criyle/go-enclave/backend"
	"github.com/criyle/go-enclave/backend/sgx/enclave"
)

// Have implements backend.Backend: the backend is usable when the
// driver node exists and is accessible
func (b *Backend) Have() bool {
	return deviceDatum().Pass
}

// Data implements backend.Backend
func (b *Backend) Data() []backend.Datum {
	return []backend.Datum{
		deviceDatum(),
		cpuFlagDatum(),
		epcDatum(),
	}
}

func deviceDatum() backend.Datum {
	d := backend.Datum{Name: enclave.DevicePath}
	f, err := os.OpenFile(enclave.DevicePath, os.O_RDWR, 0)
	if err != nil {
		d.Info = err.Error()
		return d
	}
	f.Close()
	d.Pass = true
	return d
}

func cpuFlagDatum() backend.Datum {
	d := backend.Datum{Name: "cpu sgx flag"}
	b, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		d.Info = err.Error()
		return d
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		for _, f := range strings.Fields(line) {
			if f == "sgx" {
				d.Pass = true
				return d
			}
		}
		break
	}
	d.Info = "sgx not listed in /proc/cpuinfo"
	return d
}

// epcDatum sizes the first enclave page cache section from CPUID leaf
// 0x12
func epcDatum() backend.Datum {
	d := backend.Datum{Name: "enclave page cache"}

	if max, _, _, _ := cpuidCount(0, 0); max < 0x12 {
		d.Info = "cpuid leaf 0x12 not available"
		return d
	}
	eax, ebx, ecx, edx := cpuidCount(0x12, 2)
	if eax&0xf != 1 {
		d.Info = "no epc section reported"
		return d
	}
	base := uint64(eax&0xfffff000) | uint64(ebx&0xfffff)<<32
	size := uint64(ecx&0xfffff000) | uint64(edx&0xfffff)<<32
	d.Pass = size > 0
	d.Info = fmt.Sprintf("base=%#x size=%d MiB", base, size>>20)
	return d
}
