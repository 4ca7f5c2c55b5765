// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

// headerVersionMajorPreamble is the only header_version_major this
// engine accepts for firmware and kernel preambles; minor is ignored.
const headerVersionMajorPreamble = 2

// firmwarePreambleHeader is the on-disk layout of a firmware preamble's
// fixed header.
type firmwarePreambleHeader struct {
	HeaderVersionMajor uint32
	HeaderVersionMinor uint32
	PreambleSize       uint64
	PreambleSignature  signatureHeader
	FirmwareVersion    uint64
	KernelSubkey       publicKeyHeader
	BodySignature      signatureHeader
}

const firmwarePreambleFixedHeaderSize = 4 + 4 + 8 + signatureHeaderSize + 8 + publicKeyHeaderSize + signatureHeaderSize

const (
	offFWPreambleSignature = 4 + 4 + 8
	offFirmwareVersion     = offFWPreambleSignature + signatureHeaderSize
	offKernelSubkey        = offFirmwareVersion + 8
	offFWBodySignature     = offKernelSubkey + publicKeyHeaderSize
)

// kernelPreambleHeader is the on-disk layout of a kernel preamble's
// fixed header: same shape as firmwarePreambleHeader minus the embedded
// subkey, with a body load address and size forwarded opaquely in its
// place.
type kernelPreambleHeader struct {
	HeaderVersionMajor uint32
	HeaderVersionMinor uint32
	PreambleSize       uint64
	PreambleSignature  signatureHeader
	KernelVersion      uint64
	BodyLoadAddress    uint64
	BodySize           uint64
	BodySignature      signatureHeader
}

const kernelPreambleFixedHeaderSize = 4 + 4 + 8 + signatureHeaderSize + 8 + 8 + 8 + signatureHeaderSize

const (
	offKernelPreambleSignature = 4 + 4 + 8
	offKernelVersion           = offKernelPreambleSignature + signatureHeaderSize
	offBodyLoadAddress         = offKernelVersion + 8
	offBodySize                = offBodyLoadAddress + 8
	offKernelBodySignature     = offBodySize + 8
)

// VerifiedFirmwarePreamble is returned by VerifyFirmwarePreamble on
// success.
type VerifiedFirmwarePreamble struct {
	FirmwareVersion    uint64
	KernelSubkey       PublicKeyView
	BodySignature      SignatureView
	PreambleSize       uint64
	HeaderVersionMinor uint32
}

// VerifyFirmwarePreamble validates a firmware preamble container using
// the data key produced by VerifyKeyBlock. It yields a body-signature
// descriptor (verified later by the caller against the loaded firmware
// body) and the embedded kernel subkey.
func VerifyFirmwarePreamble(buf []byte, dataKey vbcrypto.Handle, dataKeyAlg vbcrypto.AlgorithmInfo) (*VerifiedFirmwarePreamble, error) {
	bufSize := uint64(len(buf))
	if bufSize < firmwarePreambleFixedHeaderSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("buffer (%d bytes) shorter than fixed firmware preamble header (%d bytes)", bufSize, uint64(firmwarePreambleFixedHeaderSize)))
	}

	var hdr firmwarePreambleHeader
	if err := binary.Read(bytes.NewReader(buf[:firmwarePreambleFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("could not parse firmware preamble header: %w", err))
	}
	if hdr.HeaderVersionMajor != headerVersionMajorPreamble {
		return nil, newError(PreambleInvalid, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.PreambleSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("buffer (%d bytes) shorter than declared preamble_size (%d bytes)", bufSize, hdr.PreambleSize))
	}
	preambleSize := hdr.PreambleSize

	sv, err := parseSignatureView(buf, offFWPreambleSignature, preambleSize, -1)
	if err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("preamble_signature: %w", err))
	}
	if preambleSize < sv.DataSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("signed region (%d bytes) extends past preamble (%d bytes)", sv.DataSize, preambleSize))
	}
	if sv.SigSize != uint64(dataKeyAlg.SignatureSize) {
		return nil, newError(PreambleInvalid, fmt.Errorf("preamble_signature size %d does not match data key algorithm %s (expected %d)", sv.SigSize, dataKeyAlg.Name, dataKeyAlg.SignatureSize))
	}
	if err := VerifyData(buf, preambleSize, sv, dataKey, dataKeyAlg); err != nil {
		return nil, newError(PreambleSignatureFailed, err)
	}
	if sv.DataSize < firmwarePreambleFixedHeaderSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("signed region (%d bytes) does not cover the fixed header (%d bytes)", sv.DataSize, uint64(firmwarePreambleFixedHeaderSize)))
	}

	bodySig, err := parseSignatureView(buf, offFWBodySignature, preambleSize, int64(sv.DataSize))
	if err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("body_signature: %w", err))
	}

	kernelSubkey, err := parsePublicKeyView(buf, offKernelSubkey, preambleSize, int64(sv.DataSize))
	if err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("kernel_subkey: %w", err))
	}

	return &VerifiedFirmwarePreamble{
		FirmwareVersion:    hdr.FirmwareVersion,
		KernelSubkey:       *kernelSubkey,
		BodySignature:      *bodySig,
		PreambleSize:       preambleSize,
		HeaderVersionMinor: hdr.HeaderVersionMinor,
	}, nil
}

// String renders a one-line-per-field diagnostic summary: firmware
// version, size, and the embedded kernel subkey's ID and version. It
// never prints the raw key or signature bytes.
func (vp *VerifiedFirmwarePreamble) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "Firmware Version: %d\n", vp.FirmwareVersion)
	fmt.Fprintf(&s, "Preamble Size: %d\n", vp.PreambleSize)
	fmt.Fprintf(&s, "Kernel Subkey ID: 0x%s\n", vp.KernelSubkey.KeyID())
	fmt.Fprintf(&s, "Kernel Subkey Version: %d\n", vp.KernelSubkey.KeyVersion)
	return s.String()
}

// MarshalJSON implements json.Marshaler, carrying the same fields as
// String in machine-readable form for -format json.
func (vp *VerifiedFirmwarePreamble) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FirmwareVersion     uint64 `json:"firmware_version"`
		PreambleSize        uint64 `json:"preamble_size"`
		KernelSubkeyID      string `json:"kernel_subkey_id"`
		KernelSubkeyVersion uint64 `json:"kernel_subkey_version"`
	}{
		FirmwareVersion:     vp.FirmwareVersion,
		PreambleSize:        vp.PreambleSize,
		KernelSubkeyID:      vp.KernelSubkey.KeyID(),
		KernelSubkeyVersion: vp.KernelSubkey.KeyVersion,
	})
}

// VerifiedKernelPreamble is returned by VerifyKernelPreamble on success.
type VerifiedKernelPreamble struct {
	KernelVersion      uint64
	BodySignature      SignatureView
	BodyLoadAddress    uint64
	BodySize           uint64
	PreambleSize       uint64
	HeaderVersionMinor uint32
}

// VerifyKernelPreamble validates a kernel preamble container using the
// kernel subkey produced by VerifyFirmwarePreamble (or, when kernel
// verification is not chained through firmware, any other data key the
// caller already trusts).
func VerifyKernelPreamble(buf []byte, dataKey vbcrypto.Handle, dataKeyAlg vbcrypto.AlgorithmInfo) (*VerifiedKernelPreamble, error) {
	bufSize := uint64(len(buf))
	if bufSize < kernelPreambleFixedHeaderSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("buffer (%d bytes) shorter than fixed kernel preamble header (%d bytes)", bufSize, uint64(kernelPreambleFixedHeaderSize)))
	}

	var hdr kernelPreambleHeader
	if err := binary.Read(bytes.NewReader(buf[:kernelPreambleFixedHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("could not parse kernel preamble header: %w", err))
	}
	if hdr.HeaderVersionMajor != headerVersionMajorPreamble {
		return nil, newError(PreambleInvalid, fmt.Errorf("unsupported header_version_major %d", hdr.HeaderVersionMajor))
	}
	if bufSize < hdr.PreambleSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("buffer (%d bytes) shorter than declared preamble_size (%d bytes)", bufSize, hdr.PreambleSize))
	}
	preambleSize := hdr.PreambleSize

	sv, err := parseSignatureView(buf, offKernelPreambleSignature, preambleSize, -1)
	if err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("preamble_signature: %w", err))
	}
	if preambleSize < sv.DataSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("signed region (%d bytes) extends past preamble (%d bytes)", sv.DataSize, preambleSize))
	}
	if sv.SigSize != uint64(dataKeyAlg.SignatureSize) {
		return nil, newError(PreambleInvalid, fmt.Errorf("preamble_signature size %d does not match data key algorithm %s (expected %d)", sv.SigSize, dataKeyAlg.Name, dataKeyAlg.SignatureSize))
	}
	if err := VerifyData(buf, preambleSize, sv, dataKey, dataKeyAlg); err != nil {
		return nil, newError(PreambleSignatureFailed, err)
	}
	if sv.DataSize < kernelPreambleFixedHeaderSize {
		return nil, newError(PreambleInvalid, fmt.Errorf("signed region (%d bytes) does not cover the fixed header (%d bytes)", sv.DataSize, uint64(kernelPreambleFixedHeaderSize)))
	}

	bodySig, err := parseSignatureView(buf, offKernelBodySignature, preambleSize, int64(sv.DataSize))
	if err != nil {
		return nil, newError(PreambleInvalid, fmt.Errorf("body_signature: %w", err))
	}

	return &VerifiedKernelPreamble{
		KernelVersion:      hdr.KernelVersion,
		BodySignature:      *bodySig,
		BodyLoadAddress:    hdr.BodyLoadAddress,
		BodySize:           hdr.BodySize,
		PreambleSize:       preambleSize,
		HeaderVersionMinor: hdr.HeaderVersionMinor,
	}, nil
}

// String renders a one-line-per-field diagnostic summary: kernel
// version, load address, body size, preamble size.
func (vk *VerifiedKernelPreamble) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "Kernel Version: %d\n", vk.KernelVersion)
	fmt.Fprintf(&s, "Body Load Address: 0x%x\n", vk.BodyLoadAddress)
	fmt.Fprintf(&s, "Body Size: %d\n", vk.BodySize)
	fmt.Fprintf(&s, "Preamble Size: %d\n", vk.PreambleSize)
	return s.String()
}

// MarshalJSON implements json.Marshaler, carrying the same fields as
// String in machine-readable form for -format json.
func (vk *VerifiedKernelPreamble) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		KernelVersion   uint64 `json:"kernel_version"`
		BodyLoadAddress uint64 `json:"body_load_address"`
		BodySize        uint64 `json:"body_size"`
		PreambleSize    uint64 `json:"preamble_size"`
	}{
		KernelVersion:   vk.KernelVersion,
		BodyLoadAddress: vk.BodyLoadAddress,
		BodySize:        vk.BodySize,
		PreambleSize:    vk.PreambleSize,
	})
}
