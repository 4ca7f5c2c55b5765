// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto

import (
	"fmt"
	"math/big"

	"github.com/tjfoc/gmsm/sm2"
	"github.com/tjfoc/gmsm/sm3"
)

// sm2UID is the fixed user identifier SM2 mixes into its signing
// digest. It must match pkg/vboot/sign's sm2UID byte for byte, since
// signer and verifier have to agree on it out of band.
var sm2UID = []byte("vboot-engine-sm2")

// sm2Provider is the table's non-RSA algorithm entry, wired to
// github.com/tjfoc/gmsm -- the same dependency
// pkg/intel/metadata/manifest/crypto_routines.go imports for SM3, used
// here for both SM2 signature verification and SM3 hashing so the
// algorithm table has a second, structurally different, live entry
// besides RSA.
type sm2Provider struct{}

var sm2sm3Provider = &sm2Provider{}

// DigestOf implements Provider.
func (*sm2Provider) DigestOf(data []byte) []byte {
	h := sm3.New()
	h.Write(data)
	return h.Sum(nil)
}

// KeyFromBytes implements Provider. Key material is the raw,
// big-endian X and Y curve coordinates, 32 bytes each.
func (*sm2Provider) KeyFromBytes(buf []byte) (Handle, error) {
	if len(buf) != 64 {
		return nil, fmt.Errorf("sm2 key material must be 64 bytes, got %d", len(buf))
	}
	x := new(big.Int).SetBytes(buf[:32])
	y := new(big.Int).SetBytes(buf[32:])
	pub := &sm2.PublicKey{Curve: sm2.P256Sm2(), X: x, Y: y}
	if !pub.Curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("sm2 public key is not on curve")
	}
	return &sm2Handle{pub: pub}, nil
}

type sm2Handle struct {
	pub *sm2.PublicKey
}

// Verify implements Handle. Signature is the raw, big-endian R and S
// components, 32 bytes each.
func (h *sm2Handle) Verify(data, signature []byte) bool {
	if len(signature) != 64 {
		return false
	}
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	return sm2.Sm2Verify(h.pub, data, sm2UID, r, s)
}

// VerifyDigest implements Handle. SM2 hashes its own input (SM3 over the
// user identifier and public key, ZA, folded in), so a caller that
// already holds a precomputed SM3 digest must have produced it with
// DigestOf; VerifyDigest then treats that digest as the message.
func (h *sm2Handle) VerifyDigest(digest, signature []byte) bool {
	return h.Verify(digest, signature)
}

// Free implements Handle.
func (h *sm2Handle) Free() {
	h.pub = nil
}
