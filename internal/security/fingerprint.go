package security

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
)

// Fingerprinter produces opaque digests of solution paths. Clients can
// compare digests but cannot recover the steps without the secret.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter keys the digest with secret. Secrets longer than a BLAKE2b
// key are hashed down first.
func NewFingerprinter(secret string) *Fingerprinter {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Fingerprinter{key: key}
}

// SolutionHash digests the normalized steps of path. Case and operand order do
// not change the result.
func (f *Fingerprinter) SolutionHash(path models.Path) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		// only possible for keys over 64 bytes, which the constructor prevents
		panic(err)
	}
	for _, step := range path.Steps {
		line := stepLine(step)
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func stepLine(step models.Step) string {
	result, err := normalize.Name(step.ResultName)
	if err != nil {
		result = strings.ToLower(strings.TrimSpace(step.ResultName))
	}
	key, err := normalize.Combination(step.A, step.B)
	if err != nil {
		return strings.ToLower(step.A) + "|" + strings.ToLower(step.B) + ">" + result
	}
	return key.String() + ">" + result
}
