package crypto

import "fmt"

// CryptoError describes a failed cryptographic operation. Callers that
// process inbound frames are expected to catch it and substitute a
// placeholder rather than propagate the failure.
type CryptoError struct {
	Op  string // operation that failed: "encrypt", "decrypt", "decode"
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}
