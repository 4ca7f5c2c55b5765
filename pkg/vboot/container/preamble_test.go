// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/linuxboot/vboot-engine/pkg/vboot/container"
	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
	"github.com/linuxboot/vboot-engine/pkg/vboot/sign"
)

type PreambleSuite struct {
	suite.Suite
}

func (suite *PreambleSuite) buildFirmwarePreamble() ([]byte, vbcrypto.Handle, vbcrypto.AlgorithmInfo, func()) {
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	kernelSubkey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	body := []byte("the entire firmware body")
	bodySig, err := dataKey.Sign(body)
	assert.NoError(suite.T(), err)

	preambleBuf, err := sign.BuildFirmwarePreamble(sign.FirmwarePreambleOptions{
		DataKey:         dataKey,
		FirmwareVersion: 9,
		KernelSubkey:    kernelSubkey,
		BodySignature:   bodySig,
		BodySize:        uint64(len(body)),
	})
	assert.NoError(suite.T(), err)

	alg, ok := vbcrypto.Lookup(dataKey.Algorithm)
	assert.True(suite.T(), ok)
	handle, err := alg.Provider.KeyFromBytes(dataKey.PublicKeyBytes())
	assert.NoError(suite.T(), err)

	return preambleBuf, handle, alg, handle.Free
}

func (suite *PreambleSuite) TestVerifyFirmwarePreambleOK() {
	preambleBuf, handle, alg, free := suite.buildFirmwarePreamble()
	defer free()

	verified, err := container.VerifyFirmwarePreamble(preambleBuf, handle, alg)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(9), verified.FirmwareVersion)
}

func (suite *PreambleSuite) TestVerifiedFirmwarePreambleStringAndJSON() {
	preambleBuf, handle, alg, free := suite.buildFirmwarePreamble()
	defer free()

	verified, err := container.VerifyFirmwarePreamble(preambleBuf, handle, alg)
	assert.NoError(suite.T(), err)

	assert.Contains(suite.T(), verified.String(), "Kernel Subkey ID: 0x")
	assert.Contains(suite.T(), verified.String(), "Firmware Version: 9")

	raw, err := json.Marshal(verified)
	assert.NoError(suite.T(), err)
	var decoded map[string]interface{}
	assert.NoError(suite.T(), json.Unmarshal(raw, &decoded))
	assert.Equal(suite.T(), float64(9), decoded["firmware_version"])
	assert.NotEmpty(suite.T(), decoded["kernel_subkey_id"])
}

func (suite *PreambleSuite) TestVerifyFirmwarePreambleRejectsTruncatedBuffer() {
	preambleBuf, handle, alg, free := suite.buildFirmwarePreamble()
	defer free()

	_, err := container.VerifyFirmwarePreamble(preambleBuf[:4], handle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleInvalid, cerr.Code)
}

func (suite *PreambleSuite) TestVerifyFirmwarePreambleRejectsBadVersion() {
	preambleBuf, handle, alg, free := suite.buildFirmwarePreamble()
	defer free()

	preambleBuf[0] = 99

	_, err := container.VerifyFirmwarePreamble(preambleBuf, handle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleInvalid, cerr.Code)
}

func (suite *PreambleSuite) TestVerifyFirmwarePreambleRejectsFlippedSubkeyByte() {
	preambleBuf, handle, alg, free := suite.buildFirmwarePreamble()
	defer free()

	// Offset 150 lands inside the embedded kernel subkey material,
	// which is covered by the preamble signature.
	preambleBuf[150] ^= 0xff

	_, err := container.VerifyFirmwarePreamble(preambleBuf, handle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleSignatureFailed, cerr.Code)
}

func (suite *PreambleSuite) TestVerifyFirmwarePreambleRejectsWrongDataKey() {
	preambleBuf, _, _, free := suite.buildFirmwarePreamble()
	free()

	otherKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	alg, _ := vbcrypto.Lookup(otherKey.Algorithm)
	otherHandle, err := alg.Provider.KeyFromBytes(otherKey.PublicKeyBytes())
	assert.NoError(suite.T(), err)
	defer otherHandle.Free()

	_, err = container.VerifyFirmwarePreamble(preambleBuf, otherHandle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleSignatureFailed, cerr.Code)
}

func (suite *PreambleSuite) buildKernelPreamble() ([]byte, vbcrypto.Handle, vbcrypto.AlgorithmInfo, func()) {
	kernelSubkey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	kernelBody := []byte("the kernel body")
	kernelBodySig, err := kernelSubkey.Sign(kernelBody)
	assert.NoError(suite.T(), err)

	kernelPreambleBuf, err := sign.BuildKernelPreamble(sign.KernelPreambleOptions{
		DataKey:         kernelSubkey,
		KernelVersion:   4,
		BodyLoadAddress: 0x200000,
		BodySize:        uint64(len(kernelBody)),
		BodySignature:   kernelBodySig,
	})
	assert.NoError(suite.T(), err)

	alg, ok := vbcrypto.Lookup(kernelSubkey.Algorithm)
	assert.True(suite.T(), ok)
	handle, err := alg.Provider.KeyFromBytes(kernelSubkey.PublicKeyBytes())
	assert.NoError(suite.T(), err)

	return kernelPreambleBuf, handle, alg, handle.Free
}

func (suite *PreambleSuite) TestVerifyKernelPreambleOK() {
	kernelPreambleBuf, handle, alg, free := suite.buildKernelPreamble()
	defer free()

	verified, err := container.VerifyKernelPreamble(kernelPreambleBuf, handle, alg)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(4), verified.KernelVersion)
	assert.Equal(suite.T(), uint64(0x200000), verified.BodyLoadAddress)
}

func (suite *PreambleSuite) TestVerifiedKernelPreambleStringAndJSON() {
	kernelPreambleBuf, handle, alg, free := suite.buildKernelPreamble()
	defer free()

	verified, err := container.VerifyKernelPreamble(kernelPreambleBuf, handle, alg)
	assert.NoError(suite.T(), err)

	assert.Contains(suite.T(), verified.String(), "Kernel Version: 4")
	assert.Contains(suite.T(), verified.String(), "Body Load Address: 0x200000")

	raw, err := json.Marshal(verified)
	assert.NoError(suite.T(), err)
	var decoded map[string]interface{}
	assert.NoError(suite.T(), json.Unmarshal(raw, &decoded))
	assert.Equal(suite.T(), float64(4), decoded["kernel_version"])
}

func (suite *PreambleSuite) TestVerifyKernelPreambleRejectsFlippedBodySignatureByte() {
	kernelPreambleBuf, handle, alg, free := suite.buildKernelPreamble()
	defer free()

	// Offset 90 lands inside the embedded body_signature descriptor's
	// blob, which is itself covered by the outer preamble signature.
	kernelPreambleBuf[90] ^= 0xff

	_, err := container.VerifyKernelPreamble(kernelPreambleBuf, handle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleSignatureFailed, cerr.Code)
}

func (suite *PreambleSuite) TestVerifyKernelPreambleRejectsTruncatedBuffer() {
	kernelPreambleBuf, handle, alg, free := suite.buildKernelPreamble()
	defer free()

	_, err := container.VerifyKernelPreamble(kernelPreambleBuf[:10], handle, alg)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.PreambleInvalid, cerr.Code)
}

func TestPreambleSuite(t *testing.T) {
	suite.Run(t, new(PreambleSuite))
}
