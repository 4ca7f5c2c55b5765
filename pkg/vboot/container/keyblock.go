// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

// KeyBlockMagic is the fixed 8-byte tag every key block must carry
// bit-exactly. The value is a compile-time constant, stable across
// engine versions.
var KeyBlockMagic = [8]byte{'V', 'B', 'O', 'O', 'T', 'F', 'W', 'H'}

// headerVersionMajorKeyBlock is the only header_version_major this
// engine accepts for key blocks; minor is ignored.
const headerVersionMajorKeyBlock = 2

// keyBlockHeader is the on-disk layout of a key block's fixed header,
// magic through the data key descriptor. Sub-object key/signature
// material itself lives past this fixed region, named by the embedded
// descriptors' own offset fields.
type keyBlockHeader struct {
	Magic              [8]byte
	HeaderVersionMajor uint32
	HeaderVersionMinor uint32
	KeyBlockSize       uint64
	KeyBlockSignature  signatureHeader
	KeyBlockChecksum   signatureHeader
	DataKey            publicKeyHeader
}

const keyBlockFixedHeaderSize = 8 + 4 + 4 + 8 + signatureHeaderSize + signatureHeaderSize + publicKeyHeaderSize

const (
	offKeyBlockSignature = 8 + 4 + 4 + 8
	offKeyBlockChecksum  = offKeyBlockSignature + signatureHeaderSize
	offDataKey           = offKeyBlockChecksum + signatureHeaderSize
)

// VerifiedKeyBlock is returned by VerifyKeyBlock on success.
type VerifiedKeyBlock struct {
	// DataKey is the subkey handed off to preamble verification.
	DataKey PublicKeyView
	// BlockSize is the key block's self-declared total size.
	BlockSize uint64
	// HeaderVersionMinor is forwarded opaquely; the engine does not
	// interpret it.
	HeaderVersionMinor uint32
	// Authenticated is true only when the block was validated against a
	// root key (AUTH_SIGNATURE). It is false in hash-only (inspection)
	// mode, where acceptance proves only internal self-consistency, not
	// a trust decision. This field is additive to the wire-compatible
	// Success code; it does not introduce a new Code value.
	Authenticated bool
}

// VerifyKeyBlock validates a key block container: either by root public
// key (signature), when root is non-nil, or, in unauthenticated
// inspection mode, by embedded hash. It yields the embedded data key.
func VerifyKeyBlock(buf []byte, root *RootKey) (*VerifiedKeyBlock, error) {
	bufSize := uint64(len(buf))
	if bufSize < keyBlockFixedHeaderSize {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("buffer (%d bytes) shorter than fixed key block header (%d bytes)", bufSize, keyBlockFixedHeaderSize))
	}

	var hdr keyBlockHeader
	if err := binary.Read(bytes.NewReader(buf[:keyBlockFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("could not parse key block header: %w", err))
	}
	if hdr.Magic != KeyBlockMagic {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("magic mismatch: got %q", hdr.Magic))
	}
	if hdr.HeaderVersionMajor != headerVersionMajorKeyBlock {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.KeyBlockSize {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("buffer (%d bytes) shorter than declared key_block_size (%d bytes)", bufSize, hdr.KeyBlockSize))
	}
	blockSize := hdr.KeyBlockSize

	var (
		sigView       *SignatureView
		authenticated bool
	)

	if root != nil {
		sv, err := parseSignatureView(buf, offKeyBlockSignature, blockSize, -1)
		if err != nil {
			return nil, newError(KeyBlockInvalid, fmt.Errorf("key_block_signature: %w", err))
		}
		if sv.SigSize != uint64(root.Algorithm.SignatureSize) {
			return nil, newError(KeyBlockInvalid, fmt.Errorf("key_block_signature size %d does not match root key algorithm %s (expected %d)", sv.SigSize, root.Algorithm.Name, root.Algorithm.SignatureSize))
		}
		if err := VerifyData(buf, blockSize, sv, root.Handle, root.Algorithm); err != nil {
			return nil, newError(KeyBlockSignatureFailed, err)
		}
		sigView = sv
		authenticated = true
	} else {
		sv, err := parseSignatureView(buf, offKeyBlockChecksum, blockSize, -1)
		if err != nil {
			return nil, newError(KeyBlockInvalid, fmt.Errorf("key_block_checksum: %w", err))
		}
		checksumAlg := vbcrypto.DefaultChecksumAlgorithm
		if sv.SigSize != uint64(checksumAlg.DigestSize) {
			return nil, newError(KeyBlockInvalid, fmt.Errorf("key_block_checksum size %d does not match configured digest length %d", sv.SigSize, checksumAlg.DigestSize))
		}
		if sv.DataSize > blockSize {
			return nil, newError(KeyBlockInvalid, fmt.Errorf("key_block_checksum signed region (%d bytes) exceeds key block size (%d bytes)", sv.DataSize, blockSize))
		}
		want := checksumAlg.Provider.DigestOf(buf[:sv.DataSize])
		if subtle.ConstantTimeCompare(want, sv.sigBytes) != 1 {
			return nil, newError(KeyBlockHashFailed, fmt.Errorf("checksum mismatch"))
		}
		sigView = sv
		authenticated = false
	}

	if sigView.DataSize < keyBlockFixedHeaderSize {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("signed region (%d bytes) does not cover the fixed header (%d bytes)", sigView.DataSize, uint64(keyBlockFixedHeaderSize)))
	}
	if blockSize < sigView.DataSize {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("signed region (%d bytes) extends past key block (%d bytes)", sigView.DataSize, blockSize))
	}

	dataKey, err := parsePublicKeyView(buf, offDataKey, blockSize, int64(sigView.DataSize))
	if err != nil {
		return nil, newError(KeyBlockInvalid, fmt.Errorf("data_key: %w", err))
	}

	return &VerifiedKeyBlock{
		DataKey:            *dataKey,
		BlockSize:          blockSize,
		HeaderVersionMinor: hdr.HeaderVersionMinor,
		Authenticated:      authenticated,
	}, nil
}

// String renders a one-line-per-field diagnostic summary: key ID,
// version, size. It never prints the raw key or signature bytes.
func (vb *VerifiedKeyBlock) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "Authenticated: %t\n", vb.Authenticated)
	fmt.Fprintf(&s, "Block Size: %d\n", vb.BlockSize)
	fmt.Fprintf(&s, "Data Key ID: 0x%s\n", vb.DataKey.KeyID())
	fmt.Fprintf(&s, "Data Key Version: %d\n", vb.DataKey.KeyVersion)
	return s.String()
}

// MarshalJSON implements json.Marshaler, carrying the same fields as
// String, plus the data key's algorithm index, in machine-readable form
// for -format json.
func (vb *VerifiedKeyBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Authenticated    bool   `json:"authenticated"`
		BlockSize        uint64 `json:"block_size"`
		DataKeyID        string `json:"data_key_id"`
		DataKeyVersion   uint64 `json:"data_key_version"`
		DataKeyAlgorithm uint64 `json:"data_key_algorithm"`
	}{
		Authenticated:    vb.Authenticated,
		BlockSize:        vb.BlockSize,
		DataKeyID:        vb.DataKey.KeyID(),
		DataKeyVersion:   vb.DataKey.KeyVersion,
		DataKeyAlgorithm: vb.DataKey.Algorithm,
	})
}
