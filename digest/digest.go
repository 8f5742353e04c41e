// Package digest computes and verifies the 16-byte content digest
// stored in block headers.
//
// The digest covers block content only, never the header. Two modes
// exist: Skip (do not compute, do not verify; the stored field is
// zero) and Use (compute on write, verify on read when the stored
// digest is non-zero). The algorithm is MD5; it is fixed for a file
// and serves as an integrity check, not a security boundary.
package digest

import "crypto/md5"

// Len is the digest length in bytes.
const Len = md5.Size

// Mode controls whether digests are computed and verified.
type Mode uint8

const (
	Skip Mode = 0 // store zero digests, never verify
	Use  Mode = 1 // compute on write, verify on read when stored
)

func (m Mode) String() string {
	if m == Use {
		return "use"
	}

	return "skip"
}

// Sum returns the content digest of the given block content.
func Sum(content []byte) [Len]byte {
	return md5.Sum(content)
}

// Zero reports whether the stored digest is all zero, meaning the
// writer did not compute one.
func Zero(d [Len]byte) bool {
	for _, b := range d {
		if b != 0 {
			return false
		}
	}

	return true
}

// Verify recomputes the digest over content and compares it against
// the stored value. A zero stored digest always verifies.
func Verify(content []byte, stored [Len]byte) bool {
	if Zero(stored) {
		return true
	}

	return Sum(content) == stored
}
