// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto

import (
	gocrypto "crypto"
	"crypto/rsa"
	_ "crypto/sha256" // registers gocrypto.SHA256
	_ "crypto/sha512" // registers gocrypto.SHA384
	"fmt"
	"math/big"
)

// stdProvider implements Provider on top of the standard library's
// crypto/rsa, the same RSA-PKCS1v15 shape pkg/amd/psb/signature.go uses
// for PSS, adapted here to PKCS1v15 to match a digest_info_prefix table.
type stdProvider struct {
	hash gocrypto.Hash
}

func newStdRSAProvider(hash gocrypto.Hash) *stdProvider {
	return &stdProvider{hash: hash}
}

var (
	rsa2048Provider = newStdRSAProvider(gocrypto.SHA256)
	rsa4096Provider = newStdRSAProvider(gocrypto.SHA384)
)

// DigestOf implements Provider.
func (p *stdProvider) DigestOf(data []byte) []byte {
	h := p.hash.New()
	h.Write(data)
	return h.Sum(nil)
}

// KeyFromBytes implements Provider. Key material is a 4-byte
// little-endian exponent followed by the modulus stored byte-reversed
// (little-endian), the same convention pkg/amd/psb/keys.go uses for its
// RSA key tokens (exponent/modulus reversed before handing to
// math/big.Int.SetBytes, which wants big-endian).
func (p *stdProvider) KeyFromBytes(buf []byte) (Handle, error) {
	if len(buf) < 5 {
		return nil, fmt.Errorf("rsa key material too short: %d bytes", len(buf))
	}
	exponent := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if exponent == 0 {
		return nil, fmt.Errorf("rsa key has zero exponent")
	}
	modulus := reverseBytes(buf[4:])
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(exponent)}
	if pub.N.Sign() <= 0 {
		return nil, fmt.Errorf("rsa key has non-positive modulus")
	}
	return &stdHandle{pub: pub, hash: p.hash}, nil
}

type stdHandle struct {
	pub  *rsa.PublicKey
	hash gocrypto.Hash
}

// Verify implements Handle.
func (h *stdHandle) Verify(data, signature []byte) bool {
	digest := h.sum(data)
	return rsa.VerifyPKCS1v15(h.pub, h.hash, digest, signature) == nil
}

// VerifyDigest implements Handle.
func (h *stdHandle) VerifyDigest(digest, signature []byte) bool {
	return rsa.VerifyPKCS1v15(h.pub, h.hash, digest, signature) == nil
}

// Free implements Handle. The *rsa.PublicKey is ordinary garbage once
// dereferenced; Free exists so the resource-release discipline is
// structural (a defer in every caller) rather than left to the GC.
func (h *stdHandle) Free() {
	h.pub = nil
}

func (h *stdHandle) sum(data []byte) []byte {
	hh := h.hash.New()
	hh.Write(data)
	return hh.Sum(nil)
}

func reverseBytes(b []byte) []byte {
	d := make([]byte, len(b))
	for i, v := range b {
		d[len(b)-1-i] = v
	}
	return d
}
