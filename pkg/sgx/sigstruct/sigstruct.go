// Package sigstruct produces the SIGSTRUCT that EINIT verifies against
// the enclave measurement. Layout follows the Intel SDM (1808 bytes);
// the signed portion is bytes [0,128) plus [900,1028), hashed with
// SHA-256 and signed with a 3072-bit RSA key whose public exponent is 3.
package sigstruct

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/criyle/go-enclave/pkg/sgx"
	"github.com/criyle/go-enclave/pkg/sgx/measure"
)

// Size is the total SIGSTRUCT size in bytes
const Size = 1808

const keyBytes = 384 // 3072 bit modulus

// field offsets within the structure
const (
	offVendor    = 16
	offDate      = 20
	offHeader2   = 24
	offSwDefined = 40
	offModulus   = 128
	offExponent  = 512
	offSignature = 516
	offMisc      = 900
	offMiscMask  = 904
	offAttr      = 928
	offAttrMask  = 944
	offHash      = 960
	offISVProdID = 1024
	offISVSVN    = 1026
	offQ1        = 1040
	offQ2        = 1424
)

var (
	header1 = [16]byte{0x06, 0x00, 0x00, 0x00, 0xe1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}
	header2 = [16]byte{0x01, 0x01, 0x00, 0x00, 0x60, 0x00, 0x00, 0x00, 0x60, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
)

// Author identifies the enclave vendor in the signed header
type Author struct {
	Vendor    uint32
	SwDefined uint32
}

// Sigstruct is the signed structure handed to EINIT
type Sigstruct struct {
	Author      Author
	Date        uint32 // BCD yyyymmdd
	Misc        uint32
	MiscMask    uint32
	Attr        sgx.Attributes
	AttrMask    sgx.Attributes
	Measurement sgx.Measurement
	ISVProdID   uint16
	ISVSVN      uint16

	Modulus   [keyBytes]byte // little-endian RSA modulus
	Exponent  uint32
	Signature [keyBytes]byte // little-endian RSA signature
	Q1        [keyBytes]byte
	Q2        [keyBytes]byte
}

// GenerateKey creates a fresh 3072-bit RSA key with public exponent 3 as
// the architecture requires. The key is enclave-instance-local: a new
// one is generated for every build and never stored.
func GenerateKey() (*rsa.PrivateKey, error) {
	three := big.NewInt(3)
	one := big.NewInt(1)

	for {
		p, err := rand.Prime(rand.Reader, 1536)
		if err != nil {
			return nil, fmt.Errorf("sigstruct: generate prime: %w", err)
		}
		q, err := rand.Prime(rand.Reader, 1536)
		if err != nil {
			return nil, fmt.Errorf("sigstruct: generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != 3072 {
			continue
		}

		phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
		d := new(big.Int).ModInverse(three, phi)
		if d == nil {
			// phi divisible by 3, try other primes
			continue
		}

		key := &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: n, E: 3},
			D:         d,
			Primes:    []*big.Int{p, q},
		}
		key.Precompute()
		if err := key.Validate(); err != nil {
			continue
		}
		return key, nil
	}
}

// Sign binds the finished digest and its enclave parameters to the
// author identity and signs the result. The digest is consumed; signing
// the same digest twice with different keys yields independent
// signatures over identical signed bytes.
func Sign(d *measure.Digest, a Author, key *rsa.PrivateKey) (*Sigstruct, error) {
	if key.E != 3 {
		return nil, fmt.Errorf("sigstruct: public exponent %d, hardware requires 3", key.E)
	}
	if key.N.BitLen() != 3072 {
		return nil, fmt.Errorf("sigstruct: modulus %d bits, hardware requires 3072", key.N.BitLen())
	}

	s := &Sigstruct{
		Author:      a,
		Date:        bcdDate(time.Now()),
		Misc:        d.Params.Misc,
		MiscMask:    d.Params.MiscMask,
		Attr:        d.Params.Attr,
		AttrMask:    d.Params.AttrMask,
		Measurement: d.Measurement,
		ISVProdID:   d.Params.ISVProdID,
		ISVSVN:      d.Params.ISVSVN,
		Exponent:    3,
	}
	copyLittleEndian(s.Modulus[:], key.N)

	digest := sha256.Sum256(s.signingData())
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sigstruct: sign: %w", err)
	}
	copyLittleEndian(s.Signature[:], new(big.Int).SetBytes(sig))

	// q1 = s^2 / n, q2 = s * (s^2 mod n) / n; EINIT uses these to
	// verify the signature without a division circuit
	sv := new(big.Int).SetBytes(sig)
	s2 := new(big.Int).Mul(sv, sv)
	q1, rem := new(big.Int).QuoRem(s2, key.N, new(big.Int))
	q2 := new(big.Int).Div(new(big.Int).Mul(sv, rem), key.N)
	copyLittleEndian(s.Q1[:], q1)
	copyLittleEndian(s.Q2[:], q2)

	return s, nil
}

// Marshal encodes the structure into its 1808 byte hardware layout
func (s *Sigstruct) Marshal() []byte {
	b := make([]byte, Size)
	copy(b[0:], header1[:])
	binary.LittleEndian.PutUint32(b[offVendor:], s.Author.Vendor)
	binary.LittleEndian.PutUint32(b[offDate:], s.Date)
	copy(b[offHeader2:], header2[:])
	binary.LittleEndian.PutUint32(b[offSwDefined:], s.Author.SwDefined)
	copy(b[offModulus:], s.Modulus[:])
	binary.LittleEndian.PutUint32(b[offExponent:], s.Exponent)
	copy(b[offSignature:], s.Signature[:])
	binary.LittleEndian.PutUint32(b[offMisc:], s.Misc)
	binary.LittleEndian.PutUint32(b[offMiscMask:], s.MiscMask)
	attr := s.Attr.Marshal()
	copy(b[offAttr:], attr[:])
	mask := s.AttrMask.Marshal()
	copy(b[offAttrMask:], mask[:])
	copy(b[offHash:], s.Measurement[:])
	binary.LittleEndian.PutUint16(b[offISVProdID:], s.ISVProdID)
	binary.LittleEndian.PutUint16(b[offISVSVN:], s.ISVSVN)
	copy(b[offQ1:], s.Q1[:])
	copy(b[offQ2:], s.Q2[:])
	return b
}

// signingData returns the 256 bytes covered by the signature
func (s *Sigstruct) signingData() []byte {
	b := s.Marshal()
	return append(append([]byte{}, b[0:128]...), b[offMisc:offMisc+128]...)
}

// bcdDate encodes yyyymmdd as binary coded decimal
func bcdDate(t time.Time) uint32 {
	y, m, d := t.Date()
	dec := uint32(y*10000 + int(m)*100 + d)
	var bcd uint32
	for i := 0; i < 8; i++ {
		bcd |= (dec % 10) << (4 * i)
		dec /= 10
	}
	return bcd
}

// copyLittleEndian writes the absolute value of v into dst as a
// little-endian fixed-width integer
func copyLittleEndian(dst []byte, v *big.Int) {
	be := v.Bytes()
	for i, b := range be {
		dst[len(be)-1-i] = b
	}
}
