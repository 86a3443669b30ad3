package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainKernel separates kernel fingerprints from other hashes.
// The version suffix allows the wire encoding to change later.
const DomainKernel = "parallax/kernel/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a content address for m: equal modules, including
// value and block names, share a fingerprint.
func Fingerprint(m *Module) (string, error) {
	canonical, err := MarshalMsgpack(m)
	if err != nil {
		return "", fmt.Errorf("fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKernel, canonical), nil
}

// KernelName derives a stable entry point name from a fingerprint.
func KernelName(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return "kernel_" + fingerprint
}
