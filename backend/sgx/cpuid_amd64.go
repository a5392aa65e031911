package sgx

// cpuidCount executes CPUID with the given leaf and subleaf.
// Implemented in cpuid_amd64.s.
func cpuidCount(leaf, sub uint32) (eax, ebx, ecx, edx uint32)
