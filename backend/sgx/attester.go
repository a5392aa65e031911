package sgx

// Attester retrieves a hardware attestation report over a guest
// supplied nonce. Report retrieval itself (quoting infrastructure,
// PCCS access) lives outside this module.
type Attester interface {
	// Attest writes a report binding nonce into report and returns the
	// number of bytes written
	Attest(nonce, report []byte) (int, error)
}

// nullAttester reports that no attestation infrastructure is present
// by returning an empty report
type nullAttester struct{}

func (nullAttester) Attest(nonce, report []byte) (int, error) {
	return 0, nil
}
