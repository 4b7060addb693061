package vmedia

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm is the type for HMAC algorithms.
type Algorithm string

const (
	SHA256      Algorithm = "sha256"
	SHA256Short Algorithm = "256"
	SHA512      Algorithm = "sha512"
	SHA512Short Algorithm = "512"
)

// HMAC signs notification payloads with one or more secrets per algorithm.
type HMAC struct {
	// Secrets is a map of algorithms to secrets. Multiple secrets allow rotation on the consumer side.
	Secrets map[Algorithm][]string
	// NoPrefix doesn't prefix the algorithm to the signature. The default is for the prefix to be added. Example: sha256=abc123
	NoPrefix bool
}

type Opt func(*HMAC)

func WithSHA256(secrets ...string) Opt {
	return func(h *HMAC) {
		h.Secrets[SHA256] = append(h.Secrets[SHA256], secrets...)
	}
}

func WithSHA512(secrets ...string) Opt {
	return func(h *HMAC) {
		h.Secrets[SHA512] = append(h.Secrets[SHA512], secrets...)
	}
}

func WithNoPrefix() Opt {
	return func(h *HMAC) {
		h.NoPrefix = true
	}
}

// NewHMAC returns an HMAC with no secrets unless opts add them.
func NewHMAC(opts ...Opt) HMAC {
	h := HMAC{Secrets: map[Algorithm][]string{}}
	for _, opt := range opts {
		opt(&h)
	}

	return h
}

// Empty reports whether no secrets are configured.
func (h HMAC) Empty() bool {
	for _, s := range h.Secrets {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// Sign returns one signature per secret, grouped by algorithm.
// A new hash is created per call so Sign is safe for concurrent use.
func (h HMAC) Sign(data []byte) (map[Algorithm][]string, error) {
	sigs := map[Algorithm][]string{}
	for algo, secrets := range h.Secrets {
		newHash, err := hashFor(algo)
		if err != nil {
			return nil, err
		}
		for _, secret := range secrets {
			mac := hmac.New(newHash, []byte(secret))
			if _, err := mac.Write(data); err != nil {
				return nil, err
			}
			sig := hex.EncodeToString(mac.Sum(nil))
			if !h.NoPrefix {
				sig = fmt.Sprintf("%s=%s", canonical(algo), sig)
			}
			sigs[canonical(algo)] = append(sigs[canonical(algo)], sig)
		}
	}

	return sigs, nil
}

// Equal compares two sets of signatures.
// Equal means that the data is signed by at least one secret common to both sides.
func Equal(one, two []string) bool {
	for _, o := range one {
		for _, t := range two {
			if hmac.Equal([]byte(o), []byte(t)) {
				return true
			}
		}
	}

	return false
}

func canonical(algo Algorithm) Algorithm {
	switch algo {
	case SHA256Short:
		return SHA256
	case SHA512Short:
		return SHA512
	}
	return algo
}

func hashFor(algo Algorithm) (func() hash.Hash, error) {
	switch canonical(algo) {
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	}
	return nil, fmt.Errorf("unsupported hmac algorithm %q", algo)
}

// ParseAlgorithm accepts sha256, sha512 and their short forms 256 and 512.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := canonical(Algorithm(s))
	if _, err := hashFor(a); err != nil {
		return "", err
	}
	return a, nil
}
