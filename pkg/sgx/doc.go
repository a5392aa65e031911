// Package sgx defines the Intel SGX data structures shared between the
// enclave builder, the measurement hasher and the signer. Byte layouts
// follow the Intel SDM vol. 3D; all multi-byte fields are little-endian.
package sgx
