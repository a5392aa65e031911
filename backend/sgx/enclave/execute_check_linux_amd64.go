package enclave

// spoilEntry returns the entry point of a stub that honors the vDSO
// register contract the way a hostile guest would: it reports a clean
// return with every general purpose register except BX, BP and SP
// overwritten. Entering it through the thunk exercises the register
// save/restore discipline in-process, without hardware.
func spoilEntry() uintptr

// enclaveSpoilRegs is implemented in assembly. It is never called from
// Go; it is entered only through the thunk via the address spoilEntry
// returns.
func enclaveSpoilRegs()
