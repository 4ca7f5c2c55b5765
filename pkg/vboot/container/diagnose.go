// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DiagnoseKeyBlock walks a key block buffer collecting every structural
// problem it can find, rather than stopping at the first one. It never
// performs a cryptographic check and is not part of the trust decision:
// a nil return here is not equivalent to a successful VerifyKeyBlock.
// It exists for operator-facing -verbose output, so a malformed image
// reports all of its problems in one pass instead of one at a time.
func DiagnoseKeyBlock(buf []byte) error {
	var result *multierror.Error

	bufSize := uint64(len(buf))
	if bufSize < keyBlockFixedHeaderSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than fixed key block header (%d bytes)", bufSize, uint64(keyBlockFixedHeaderSize)))
		return result.ErrorOrNil()
	}

	var hdr keyBlockHeader
	if err := binary.Read(bytes.NewReader(buf[:keyBlockFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not parse key block header: %w", err))
		return result.ErrorOrNil()
	}
	if hdr.Magic != KeyBlockMagic {
		result = multierror.Append(result, fmt.Errorf("magic mismatch: got %q, want %q", hdr.Magic, KeyBlockMagic))
	}
	if hdr.HeaderVersionMajor != headerVersionMajorKeyBlock {
		result = multierror.Append(result, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.KeyBlockSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than declared key_block_size (%d bytes)", bufSize, hdr.KeyBlockSize))
	}
	blockSize := hdr.KeyBlockSize
	if blockSize > bufSize {
		blockSize = bufSize
	}

	if _, err := parseSignatureView(buf, offKeyBlockSignature, blockSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("key_block_signature: %w", err))
	}
	if _, err := parseSignatureView(buf, offKeyBlockChecksum, blockSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("key_block_checksum: %w", err))
	}
	if _, err := parsePublicKeyView(buf, offDataKey, blockSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("data_key: %w", err))
	}

	return result.ErrorOrNil()
}

// DiagnoseFirmwarePreamble is the DiagnoseKeyBlock analog for firmware
// preambles.
func DiagnoseFirmwarePreamble(buf []byte) error {
	var result *multierror.Error

	bufSize := uint64(len(buf))
	if bufSize < firmwarePreambleFixedHeaderSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than fixed firmware preamble header (%d bytes)", bufSize, uint64(firmwarePreambleFixedHeaderSize)))
		return result.ErrorOrNil()
	}

	var hdr firmwarePreambleHeader
	if err := binary.Read(bytes.NewReader(buf[:firmwarePreambleFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not parse firmware preamble header: %w", err))
		return result.ErrorOrNil()
	}
	if hdr.HeaderVersionMajor != headerVersionMajorPreamble {
		result = multierror.Append(result, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.PreambleSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than declared preamble_size (%d bytes)", bufSize, hdr.PreambleSize))
	}
	preambleSize := hdr.PreambleSize
	if preambleSize > bufSize {
		preambleSize = bufSize
	}

	if _, err := parseSignatureView(buf, offFWPreambleSignature, preambleSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("preamble_signature: %w", err))
	}
	if _, err := parseSignatureView(buf, offFWBodySignature, preambleSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("body_signature: %w", err))
	}
	if _, err := parsePublicKeyView(buf, offKernelSubkey, preambleSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("kernel_subkey: %w", err))
	}

	return result.ErrorOrNil()
}

// DiagnoseKernelPreamble is the DiagnoseKeyBlock analog for kernel
// preambles.
func DiagnoseKernelPreamble(buf []byte) error {
	var result *multierror.Error

	bufSize := uint64(len(buf))
	if bufSize < kernelPreambleFixedHeaderSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than fixed kernel preamble header (%d bytes)", bufSize, uint64(kernelPreambleFixedHeaderSize)))
		return result.ErrorOrNil()
	}

	var hdr kernelPreambleHeader
	if err := binary.Read(bytes.NewReader(buf[:kernelPreambleFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not parse kernel preamble header: %w", err))
		return result.ErrorOrNil()
	}
	if hdr.HeaderVersionMajor != headerVersionMajorPreamble {
		result = multierror.Append(result, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.PreambleSize {
		result = multierror.Append(result, fmt.Errorf("buffer (%d bytes) shorter than declared preamble_size (%d bytes)", bufSize, hdr.PreambleSize))
	}
	preambleSize := hdr.PreambleSize
	if preambleSize > bufSize {
		preambleSize = bufSize
	}

	if _, err := parseSignatureView(buf, offKernelPreambleSignature, preambleSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("preamble_signature: %w", err))
	}
	if _, err := parseSignatureView(buf, offKernelBodySignature, preambleSize, -1); err != nil {
		result = multierror.Append(result, fmt.Errorf("body_signature: %w", err))
	}

	return result.ErrorOrNil()
}
