// Package fingerprint derives deterministic cache keys from narrative inputs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Of returns the hex SHA-256 of the JSON encoding of parts. Struct fields
// encode in declaration order and map keys are sorted, so equal inputs
// always produce the same digest. Times should be normalized to UTC by the
// caller.
func Of(parts ...any) (string, error) {
	h := sha256.New()
	for i, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("fingerprint part %d: %w", i, err)
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns the first n characters of a fingerprint, for logs.
func Short(fp string, n int) string {
	if len(fp) <= n {
		return fp
	}
	return fp[:n]
}
