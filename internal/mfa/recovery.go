package mfa

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

const (
	recoveryCodeCount = 8
	recoveryCodeBytes = 10
)

var recoveryEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateRecoveryCodes returns a fresh batch of single-use recovery codes in
// the form "xxxx-xxxx-xxxx-xxxx". The batch is returned to the user exactly
// once; only hashes are persisted.
func GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		raw := make([]byte, recoveryCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		enc := strings.ToLower(recoveryEncoding.EncodeToString(raw))
		var b strings.Builder
		for j, r := range enc {
			if j > 0 && j%4 == 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}
