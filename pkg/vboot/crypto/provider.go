// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crypto is the verified-boot engine's external crypto
// collaborator (the abstract interface of the design's §6.3): hashing
// and signature verification, factored out so the container package
// never talks to a concrete crypto library directly.
package crypto

// Handle is a materialized, ready-to-use verification key. It is the
// only heap-allocated intermediate the engine creates; callers release
// it with Free on every exit path, including early failures.
type Handle interface {
	// Verify reports whether signature authenticates data under this key.
	Verify(data, signature []byte) bool
	// VerifyDigest reports whether signature authenticates a precomputed
	// digest under this key.
	VerifyDigest(digest, signature []byte) bool
	// Free releases any resources held by the handle.
	Free()
}

// Provider is one crypto backend: hashing plus materializing raw,
// algorithm-specific key bytes into a Handle.
type Provider interface {
	// DigestOf returns the provider's hash of data.
	DigestOf(data []byte) []byte
	// KeyFromBytes materializes raw key bytes into a Handle, or an error
	// if the provider rejects them.
	KeyFromBytes(buf []byte) (Handle, error)
}

// AlgorithmInfo is one row of the algorithm table: the fixed, immutable
// per-algorithm constants looked up by a dense integer index, plus the
// provider implementing the algorithm. No part of the hot path switches
// on algorithm by reflection or type assertion; every check is a table
// lookup by Algorithm field value.
type AlgorithmInfo struct {
	Name          string
	Provider      Provider
	KeySize       int
	SignatureSize int
	DigestSize    int
}

// Algorithm table indices. These are the only valid values of a
// PublicKeyView's algorithm field (and of the algorithm index a root key
// is loaded with).
const (
	AlgRSA2048SHA256 = iota
	AlgRSA4096SHA384
	AlgSM2SM3
	numAlgorithms
)

var table = [numAlgorithms]AlgorithmInfo{
	AlgRSA2048SHA256: {
		Name:          "rsa2048-sha256",
		Provider:      rsa2048Provider,
		KeySize:       4 + 256,
		SignatureSize: 256,
		DigestSize:    32,
	},
	AlgRSA4096SHA384: {
		Name:          "rsa4096-sha384",
		Provider:      rsa4096Provider,
		KeySize:       4 + 512,
		SignatureSize: 512,
		DigestSize:    48,
	},
	AlgSM2SM3: {
		Name:          "sm2-sm3",
		Provider:      sm2sm3Provider,
		KeySize:       64,
		SignatureSize: 64,
		DigestSize:    32,
	},
}

// Lookup resolves a dense algorithm index into its table row. This is
// the engine's only "dispatch": an array index, never a plugin registry
// (design note: no dynamic dispatch in the hot path).
func Lookup(algorithm uint64) (AlgorithmInfo, bool) {
	if algorithm >= uint64(len(table)) {
		return AlgorithmInfo{}, false
	}
	return table[algorithm], true
}

// DefaultChecksumAlgorithm is the fixed digest used by key-block
// hash-only (inspection) mode. It is independent of the data key's own
// algorithm index -- the checksum authenticates the key block to
// itself, not to any externally trusted key.
var DefaultChecksumAlgorithm = table[AlgRSA2048SHA256]
