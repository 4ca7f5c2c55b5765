// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sign is the host-side collaborator of pkg/vboot/container: it
// builds key blocks and preambles from a private key and a payload. The
// verification engine never imports this package; it exists for image
// builders and for generating test fixtures.
package sign

import (
	"crypto"
	cryptorand "crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/tjfoc/gmsm/sm2"

	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

// sm2UID must match pkg/vboot/crypto's sm2UID: SM2 folds the user
// identifier into the signed digest, so signer and verifier have to
// agree on it out of band.
var sm2UID = []byte("vboot-engine-sm2")

// PrivateKey wraps a host-side signing key together with the algorithm
// table index it corresponds to in pkg/vboot/crypto.
type PrivateKey struct {
	Algorithm uint64
	rsaKey    *rsa.PrivateKey
	sm2Key    *sm2.PrivateKey
}

// GenerateRSAKey produces a fresh RSA-2048/SHA-256 test key.
func GenerateRSAKey() (*PrivateKey, error) {
	key, err := rsa.GenerateKey(cryptorand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("could not generate RSA key: %w", err)
	}
	return &PrivateKey{Algorithm: vbcrypto.AlgRSA2048SHA256, rsaKey: key}, nil
}

// GenerateRSA4096Key produces a fresh RSA-4096/SHA-384 test key.
func GenerateRSA4096Key() (*PrivateKey, error) {
	key, err := rsa.GenerateKey(cryptorand.Reader, 4096)
	if err != nil {
		return nil, fmt.Errorf("could not generate RSA key: %w", err)
	}
	return &PrivateKey{Algorithm: vbcrypto.AlgRSA4096SHA384, rsaKey: key}, nil
}

// GenerateSM2Key produces a fresh SM2/SM3 test key.
func GenerateSM2Key() (*PrivateKey, error) {
	key, err := sm2.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate SM2 key: %w", err)
	}
	return &PrivateKey{Algorithm: vbcrypto.AlgSM2SM3, sm2Key: key}, nil
}

// PublicKeyBytes encodes the public half in the wire format KeyFromBytes
// expects: 4-byte little-endian exponent plus reversed modulus for RSA,
// raw X||Y for SM2.
func (k *PrivateKey) PublicKeyBytes() []byte {
	switch {
	case k.rsaKey != nil:
		n := k.rsaKey.PublicKey.N.Bytes()
		buf := make([]byte, 4+len(n))
		binary.LittleEndian.PutUint32(buf, uint32(k.rsaKey.PublicKey.E))
		copy(buf[4:], reverseBytes(n))
		return buf
	case k.sm2Key != nil:
		size := 32
		x := k.sm2Key.PublicKey.X.Bytes()
		y := k.sm2Key.PublicKey.Y.Bytes()
		buf := make([]byte, 2*size)
		copy(buf[size-len(x):size], x)
		copy(buf[2*size-len(y):], y)
		return buf
	}
	return nil
}

// Sign produces a detached signature over data, in the form expected by
// the corresponding crypto.Provider.
func (k *PrivateKey) Sign(data []byte) ([]byte, error) {
	switch {
	case k.rsaKey != nil:
		var h crypto.Hash
		switch k.Algorithm {
		case vbcrypto.AlgRSA2048SHA256:
			h = crypto.SHA256
		case vbcrypto.AlgRSA4096SHA384:
			h = crypto.SHA384
		default:
			return nil, fmt.Errorf("unsupported RSA algorithm index %d", k.Algorithm)
		}
		digest := digestFor(h, data)
		return rsa.SignPKCS1v15(cryptorand.Reader, k.rsaKey, h, digest)
	case k.sm2Key != nil:
		r, s, err := sm2.Sm2Sign(k.sm2Key, data, sm2UID, cryptorand.Reader)
		if err != nil {
			return nil, fmt.Errorf("unable to sign with SM2: %w", err)
		}
		rb, sb := leftPad(r.Bytes(), 32), leftPad(s.Bytes(), 32)
		return append(rb, sb...), nil
	}
	return nil, fmt.Errorf("private key has no material set")
}

func digestFor(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	}
	return nil
}

func reverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for i := range b {
		r[i] = b[len(b)-i-1]
	}
	return r
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
