// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

// publicKeyHeader is the on-disk layout of a packed public-key
// descriptor: an algorithm/version header followed, at an internal
// offset relative to the header's own start, by the key material.
type publicKeyHeader struct {
	KeyOffset  uint64
	KeySize    uint64
	Algorithm  uint64
	KeyVersion uint64
}

const publicKeyHeaderSize = 32

// PublicKeyView is a bounds-checked, non-owning window onto a packed
// public-key descriptor living inside a caller-owned buffer.
type PublicKeyView struct {
	Algorithm  uint64
	KeyVersion uint64
	keyBytes   []byte
}

// parsePublicKeyView reads a PublicKeyView header located at hdrOff
// bytes inside parent, and bounds-validates its key material against
// parentSize. When signedSize is non-negative, the key material must
// also fall inside the first signedSize bytes of parent (the
// two-envelope check of invariant 4).
func parsePublicKeyView(parent []byte, hdrOff uint64, parentSize uint64, signedSize int64) (*PublicKeyView, error) {
	if hdrOff+publicKeyHeaderSize > uint64(len(parent)) {
		return nil, fmt.Errorf("public key header [%d,%d) out of range of %d-byte buffer", hdrOff, hdrOff+publicKeyHeaderSize, len(parent))
	}
	var hdr publicKeyHeader
	r := bytes.NewReader(parent[hdrOff : hdrOff+publicKeyHeaderSize])
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("could not parse public key header: %w", err)
	}

	var err error
	if signedSize >= 0 {
		err = ValidateBoundsInSigned(parentSize, uint64(signedSize), hdrOff, publicKeyHeaderSize, hdr.KeyOffset, hdr.KeySize)
	} else {
		err = ValidateBounds(parentSize, hdrOff, publicKeyHeaderSize, hdr.KeyOffset, hdr.KeySize)
	}
	if err != nil {
		return nil, fmt.Errorf("public key material not contained: %w", err)
	}

	start := hdrOff + hdr.KeyOffset
	return &PublicKeyView{
		Algorithm:  hdr.Algorithm,
		KeyVersion: hdr.KeyVersion,
		keyBytes:   parent[start : start+hdr.KeySize],
	}, nil
}

// Materialize resolves the view's algorithm index and key bytes into a
// crypto handle ready for signature verification. The returned handle
// must be released with Free once the caller no longer needs it. Every
// failure here is reported as PublicKeyInvalid: by the time a caller
// reaches Materialize, the view has already passed its bounds checks,
// so what remains is purely a key-material problem.
func (v *PublicKeyView) Materialize() (vbcrypto.Handle, vbcrypto.AlgorithmInfo, error) {
	alg, ok := vbcrypto.Lookup(v.Algorithm)
	if !ok {
		return nil, vbcrypto.AlgorithmInfo{}, newError(PublicKeyInvalid, fmt.Errorf("algorithm index %d is out of range", v.Algorithm))
	}
	if len(v.keyBytes) != alg.KeySize {
		return nil, vbcrypto.AlgorithmInfo{}, newError(PublicKeyInvalid, fmt.Errorf("key size %d does not match algorithm %s (expected %d)", len(v.keyBytes), alg.Name, alg.KeySize))
	}
	handle, err := alg.Provider.KeyFromBytes(v.keyBytes)
	if err != nil {
		return nil, vbcrypto.AlgorithmInfo{}, newError(PublicKeyInvalid, fmt.Errorf("crypto provider rejected key bytes: %w", err))
	}
	return handle, alg, nil
}

// KeyID returns a short, stable hex fingerprint of the key material: the
// first 8 bytes of its SHA-256 digest. It exists for diagnostic display
// only (table rows, JSON verdicts) -- the engine's verification path
// never compares by KeyID, only by the full materialized key.
func (v *PublicKeyView) KeyID() string {
	sum := sha256.Sum256(v.keyBytes)
	return hex.EncodeToString(sum[:8])
}

// RootKey is an externally supplied, already-identified public key (for
// example one anchored in read-only hardware) used to authenticate a
// key block. Unlike PublicKeyView it is not embedded in any signed
// container, so there are no offsets to bounds-check: only the
// algorithm table lookup and the crypto provider's own validation
// apply.
type RootKey struct {
	Algorithm vbcrypto.AlgorithmInfo
	Handle    vbcrypto.Handle
}

// NewRootKey materializes a RootKey from raw, algorithm-specific key
// bytes and an explicit algorithm table index.
func NewRootKey(algorithm uint64, keyBytes []byte) (*RootKey, error) {
	alg, ok := vbcrypto.Lookup(algorithm)
	if !ok {
		return nil, newError(PublicKeyInvalid, fmt.Errorf("algorithm index %d is out of range", algorithm))
	}
	if len(keyBytes) != alg.KeySize {
		return nil, newError(PublicKeyInvalid, fmt.Errorf("key size %d does not match algorithm %s (expected %d)", len(keyBytes), alg.Name, alg.KeySize))
	}
	handle, err := alg.Provider.KeyFromBytes(keyBytes)
	if err != nil {
		return nil, newError(PublicKeyInvalid, fmt.Errorf("crypto provider rejected root key bytes: %w", err))
	}
	return &RootKey{Algorithm: alg, Handle: handle}, nil
}

// Free releases the root key's materialized handle.
func (r *RootKey) Free() {
	if r.Handle != nil {
		r.Handle.Free()
	}
}
