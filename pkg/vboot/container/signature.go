// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

// signatureHeader is the on-disk layout of a packed signature
// descriptor: where the signature blob lives, and how many bytes --
// counted from the start of the container -- it authenticates.
type signatureHeader struct {
	SigOffset uint64
	SigSize   uint64
	DataSize  uint64
}

const signatureHeaderSize = 24

// SignatureView is a bounds-checked, non-owning window onto a packed
// signature descriptor. It performs no allocation and no cryptography;
// it is purely descriptive, interpreted by VerifyData/VerifyDigest.
type SignatureView struct {
	SigSize  uint64
	DataSize uint64
	sigBytes []byte
}

// parseSignatureView reads a SignatureView header located at hdrOff
// bytes inside parent, and bounds-validates its signature blob against
// parentSize (and, when signedSize is non-negative, against the signed
// prefix too).
func parseSignatureView(parent []byte, hdrOff uint64, parentSize uint64, signedSize int64) (*SignatureView, error) {
	if hdrOff+signatureHeaderSize > uint64(len(parent)) {
		return nil, fmt.Errorf("signature header [%d,%d) out of range of %d-byte buffer", hdrOff, hdrOff+signatureHeaderSize, len(parent))
	}
	var hdr signatureHeader
	r := bytes.NewReader(parent[hdrOff : hdrOff+signatureHeaderSize])
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("could not parse signature header: %w", err)
	}

	var err error
	if signedSize >= 0 {
		err = ValidateBoundsInSigned(parentSize, uint64(signedSize), hdrOff, signatureHeaderSize, hdr.SigOffset, hdr.SigSize)
	} else {
		err = ValidateBounds(parentSize, hdrOff, signatureHeaderSize, hdr.SigOffset, hdr.SigSize)
	}
	if err != nil {
		return nil, fmt.Errorf("signature blob not contained: %w", err)
	}

	start := hdrOff + hdr.SigOffset
	return &SignatureView{
		SigSize:  hdr.SigSize,
		DataSize: hdr.DataSize,
		sigBytes: parent[start : start+hdr.SigSize],
	}, nil
}

// VerifyData is the data verifier's primary entry point: given the
// signature descriptor and a materialized key, it checks the signature
// size against the algorithm table, checks the signed region fits
// inside the buffer, and invokes the crypto provider against the first
// sig.DataSize bytes of data.
func VerifyData(data []byte, totalSize uint64, sig *SignatureView, handle vbcrypto.Handle, alg vbcrypto.AlgorithmInfo) error {
	if sig.SigSize != uint64(alg.SignatureSize) {
		return fmt.Errorf("signature size %d does not match algorithm %s (expected %d)", sig.SigSize, alg.Name, alg.SignatureSize)
	}
	if sig.DataSize > totalSize {
		return fmt.Errorf("signed region (%d bytes) exceeds container size (%d bytes)", sig.DataSize, totalSize)
	}
	if !handle.Verify(data[:sig.DataSize], sig.sigBytes) {
		return fmt.Errorf("signature does not validate")
	}
	return nil
}

// VerifyDigest is the data verifier's hot-path entry point for callers
// who have already hashed the authenticated region separately (for
// example a body streamed from storage).
func VerifyDigest(digest []byte, sig *SignatureView, handle vbcrypto.Handle, alg vbcrypto.AlgorithmInfo) error {
	if sig.SigSize != uint64(alg.SignatureSize) {
		return fmt.Errorf("signature size %d does not match algorithm %s (expected %d)", sig.SigSize, alg.Name, alg.SignatureSize)
	}
	if len(digest) != alg.DigestSize {
		return fmt.Errorf("digest size %d does not match algorithm %s (expected %d)", len(digest), alg.Name, alg.DigestSize)
	}
	if !handle.VerifyDigest(digest, sig.sigBytes) {
		return fmt.Errorf("signature does not validate")
	}
	return nil
}
