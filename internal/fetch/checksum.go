package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrChecksumMismatch is matched by every *ChecksumError.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumError reports downloaded content whose digest differs from the one
// published by the GDC index.
type ChecksumError struct {
	ID       string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed checksum for %s: expected %s, got %s", e.ID, e.Expected, e.Got)
	}
	return fmt.Sprintf("failed checksum: expected %s, got %s", e.Expected, e.Got)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// MD5Hex returns the lowercase hex md5 digest of b.
func MD5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// VerifyMD5 checks body against an expected hex md5 digest. An empty
// expectation always verifies.
func VerifyMD5(body []byte, expected string) error {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return nil
	}
	got := MD5Hex(body)
	if !strings.EqualFold(got, expected) {
		return &ChecksumError{Expected: expected, Got: got}
	}
	return nil
}
