// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sign

import (
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/vboot-engine/pkg/vboot/container"
	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

func checksumOf(data []byte) []byte {
	return vbcrypto.DefaultChecksumAlgorithm.Provider.DigestOf(data)
}

// Wire layout constants mirror pkg/vboot/container's fixed headers. They
// are kept here, rather than imported, because the two packages model
// opposite ends of the same format: the engine only ever reads a
// container it did not build, while this package exists to build one.
const (
	sigHeaderSize = 24
	keyHeaderSize = 32

	keyBlockFixedHeaderSize = 8 + 4 + 4 + 8 + sigHeaderSize + sigHeaderSize + keyHeaderSize
	offKeyBlockSignature    = 8 + 4 + 4 + 8
	offKeyBlockChecksum     = offKeyBlockSignature + sigHeaderSize
	offKeyBlockDataKey      = offKeyBlockChecksum + sigHeaderSize

	firmwarePreambleFixedHeaderSize = 4 + 4 + 8 + sigHeaderSize + 8 + keyHeaderSize + sigHeaderSize
	offFWPreambleSignature          = 4 + 4 + 8
	offFWVersion                    = offFWPreambleSignature + sigHeaderSize
	offFWKernelSubkey               = offFWVersion + 8
	offFWBodySignature              = offFWKernelSubkey + keyHeaderSize

	kernelPreambleFixedHeaderSize = 4 + 4 + 8 + sigHeaderSize + 8 + 8 + 8 + sigHeaderSize
	offKPreambleSignature         = 4 + 4 + 8
	offKVersion                   = offKPreambleSignature + sigHeaderSize
	offKBodyLoadAddress           = offKVersion + 8
	offKBodySize                  = offKBodyLoadAddress + 8
	offKBodySignature             = offKBodySize + 8

	headerVersionMajor = 2
	headerVersionMinor = 0
)

// putSignatureHeader writes a packed signature descriptor at the given
// offset: blob offset relative to the header itself, blob size, and the
// number of bytes counted from the start of the container it signs.
func putSignatureHeader(buf []byte, hdrOff int, sigOffset, sigSize, dataSize uint64) {
	binary.LittleEndian.PutUint64(buf[hdrOff:], sigOffset)
	binary.LittleEndian.PutUint64(buf[hdrOff+8:], sigSize)
	binary.LittleEndian.PutUint64(buf[hdrOff+16:], dataSize)
}

func putKeyHeader(buf []byte, hdrOff int, keyOffset, keySize, algorithm, keyVersion uint64) {
	binary.LittleEndian.PutUint64(buf[hdrOff:], keyOffset)
	binary.LittleEndian.PutUint64(buf[hdrOff+8:], keySize)
	binary.LittleEndian.PutUint64(buf[hdrOff+16:], algorithm)
	binary.LittleEndian.PutUint64(buf[hdrOff+24:], keyVersion)
}

// KeyBlockOptions configures BuildKeyBlock.
type KeyBlockOptions struct {
	// Root, when non-nil, authenticates the block by signature. When
	// nil, the block is checksummed instead (hash-only mode).
	Root *PrivateKey
	// DataKey is the subkey embedded in the block and handed off to
	// preamble verification.
	DataKey *PrivateKey
	// KeyVersion is forwarded into the data key descriptor unchanged.
	KeyVersion uint64
}

// BuildKeyBlock assembles a complete, signed (or checksummed) key block
// ready to be consumed by container.VerifyKeyBlock.
func BuildKeyBlock(opts KeyBlockOptions) ([]byte, error) {
	dataKeyBytes := opts.DataKey.PublicKeyBytes()
	if dataKeyBytes == nil {
		return nil, fmt.Errorf("data key has no public material")
	}

	blockSize := keyBlockFixedHeaderSize + len(dataKeyBytes)
	buf := make([]byte, blockSize)

	copy(buf[0:8], container.KeyBlockMagic[:])
	binary.LittleEndian.PutUint32(buf[8:], headerVersionMajor)
	binary.LittleEndian.PutUint32(buf[12:], headerVersionMinor)
	binary.LittleEndian.PutUint64(buf[16:], uint64(blockSize))

	putKeyHeader(buf, offKeyBlockDataKey, uint64(keyBlockFixedHeaderSize-offKeyBlockDataKey), uint64(len(dataKeyBytes)), opts.DataKey.Algorithm, opts.KeyVersion)
	copy(buf[keyBlockFixedHeaderSize:], dataKeyBytes)

	// The signature (or checksum) descriptor's own offset and size, and
	// the final key_block_size including the appended blob, are
	// deterministic from the algorithm table, so they are filled in
	// before signing: they fall inside the signed region itself
	// (dataSize == blockSize), and patching them after the fact would
	// change bytes the signature or checksum already covers.
	if opts.Root != nil {
		alg, ok := vbcrypto.Lookup(opts.Root.Algorithm)
		if !ok {
			return nil, fmt.Errorf("root key algorithm index %d is out of range", opts.Root.Algorithm)
		}
		putSignatureHeader(buf, offKeyBlockSignature, uint64(blockSize-offKeyBlockSignature), uint64(alg.SignatureSize), uint64(blockSize))
		binary.LittleEndian.PutUint64(buf[16:], uint64(blockSize+alg.SignatureSize))

		sig, err := opts.Root.Sign(buf[:blockSize])
		if err != nil {
			return nil, fmt.Errorf("could not sign key block: %w", err)
		}
		buf = append(buf, sig...)
		return buf, nil
	}

	checksumAlg := vbcrypto.DefaultChecksumAlgorithm
	putSignatureHeader(buf, offKeyBlockChecksum, uint64(blockSize-offKeyBlockChecksum), uint64(checksumAlg.DigestSize), uint64(blockSize))
	binary.LittleEndian.PutUint64(buf[16:], uint64(blockSize+checksumAlg.DigestSize))

	digest := checksumOf(buf[:blockSize])
	buf = append(buf, digest...)
	return buf, nil
}

// FirmwarePreambleOptions configures BuildFirmwarePreamble.
type FirmwarePreambleOptions struct {
	DataKey          *PrivateKey
	FirmwareVersion  uint64
	KernelSubkey     *PrivateKey
	KernelKeyVersion uint64
	BodySignature    []byte
	BodySize         uint64
}

// BuildFirmwarePreamble assembles a complete firmware preamble, signed
// by DataKey, ready to be consumed by container.VerifyFirmwarePreamble.
// BodySignature is an already-computed detached signature over the
// firmware body; this package does not itself sign bodies, since the
// preamble only ever carries a descriptor of where that signature
// lives.
func BuildFirmwarePreamble(opts FirmwarePreambleOptions) ([]byte, error) {
	subkeyBytes := opts.KernelSubkey.PublicKeyBytes()
	if subkeyBytes == nil {
		return nil, fmt.Errorf("kernel subkey has no public material")
	}

	fixedAndSubkey := firmwarePreambleFixedHeaderSize + len(subkeyBytes)
	preambleSize := fixedAndSubkey + len(opts.BodySignature)
	buf := make([]byte, preambleSize)

	binary.LittleEndian.PutUint32(buf[0:], headerVersionMajor)
	binary.LittleEndian.PutUint32(buf[4:], headerVersionMinor)
	binary.LittleEndian.PutUint64(buf[8:], uint64(preambleSize))
	binary.LittleEndian.PutUint64(buf[offFWVersion:], opts.FirmwareVersion)
	putKeyHeader(buf, offFWKernelSubkey, uint64(firmwarePreambleFixedHeaderSize-offFWKernelSubkey), uint64(len(subkeyBytes)), opts.KernelSubkey.Algorithm, opts.KernelKeyVersion)
	copy(buf[firmwarePreambleFixedHeaderSize:], subkeyBytes)
	putSignatureHeader(buf, offFWBodySignature, uint64(fixedAndSubkey-offFWBodySignature), uint64(len(opts.BodySignature)), opts.BodySize)
	copy(buf[fixedAndSubkey:], opts.BodySignature)

	alg, ok := vbcrypto.Lookup(opts.DataKey.Algorithm)
	if !ok {
		return nil, fmt.Errorf("data key algorithm index %d is out of range", opts.DataKey.Algorithm)
	}
	putSignatureHeader(buf, offFWPreambleSignature, uint64(preambleSize-offFWPreambleSignature), uint64(alg.SignatureSize), uint64(preambleSize))
	binary.LittleEndian.PutUint64(buf[8:], uint64(preambleSize+alg.SignatureSize))

	sig, err := opts.DataKey.Sign(buf[:preambleSize])
	if err != nil {
		return nil, fmt.Errorf("could not sign firmware preamble: %w", err)
	}
	buf = append(buf, sig...)
	return buf, nil
}

// KernelPreambleOptions configures BuildKernelPreamble.
type KernelPreambleOptions struct {
	DataKey         *PrivateKey
	KernelVersion   uint64
	BodyLoadAddress uint64
	BodySize        uint64
	BodySignature   []byte
}

// BuildKernelPreamble assembles a complete kernel preamble, signed by
// DataKey (typically the kernel subkey embedded in a firmware
// preamble), ready to be consumed by container.VerifyKernelPreamble.
func BuildKernelPreamble(opts KernelPreambleOptions) ([]byte, error) {
	preambleSize := kernelPreambleFixedHeaderSize + len(opts.BodySignature)
	buf := make([]byte, preambleSize)

	binary.LittleEndian.PutUint32(buf[0:], headerVersionMajor)
	binary.LittleEndian.PutUint32(buf[4:], headerVersionMinor)
	binary.LittleEndian.PutUint64(buf[8:], uint64(preambleSize))
	binary.LittleEndian.PutUint64(buf[offKVersion:], opts.KernelVersion)
	binary.LittleEndian.PutUint64(buf[offKBodyLoadAddress:], opts.BodyLoadAddress)
	binary.LittleEndian.PutUint64(buf[offKBodySize:], opts.BodySize)
	putSignatureHeader(buf, offKBodySignature, uint64(kernelPreambleFixedHeaderSize-offKBodySignature), uint64(len(opts.BodySignature)), opts.BodySize)
	copy(buf[kernelPreambleFixedHeaderSize:], opts.BodySignature)

	alg, ok := vbcrypto.Lookup(opts.DataKey.Algorithm)
	if !ok {
		return nil, fmt.Errorf("data key algorithm index %d is out of range", opts.DataKey.Algorithm)
	}
	putSignatureHeader(buf, offKPreambleSignature, uint64(preambleSize-offKPreambleSignature), uint64(alg.SignatureSize), uint64(preambleSize))
	binary.LittleEndian.PutUint64(buf[8:], uint64(preambleSize+alg.SignatureSize))

	sig, err := opts.DataKey.Sign(buf[:preambleSize])
	if err != nil {
		return nil, fmt.Errorf("could not sign kernel preamble: %w", err)
	}
	buf = append(buf, sig...)
	return buf, nil
}
