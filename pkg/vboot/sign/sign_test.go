// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sign_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/linuxboot/vboot-engine/pkg/vboot/container"
	"github.com/linuxboot/vboot-engine/pkg/vboot/sign"
)

type BuilderSuite struct {
	suite.Suite
}

func (suite *BuilderSuite) TestBuildAndVerifyKeyBlockSigned() {
	root, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{Root: root, DataKey: dataKey, KeyVersion: 3})
	assert.NoError(suite.T(), err)

	rootKey, err := container.NewRootKey(root.Algorithm, root.PublicKeyBytes())
	assert.NoError(suite.T(), err)
	defer rootKey.Free()

	verified, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), verified.Authenticated)
	assert.Equal(suite.T(), uint64(3), verified.DataKey.KeyVersion)
}

func (suite *BuilderSuite) TestBuildAndVerifyKeyBlockHashOnly() {
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{DataKey: dataKey})
	assert.NoError(suite.T(), err)

	verified, err := container.VerifyKeyBlock(blockBuf, nil)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), verified.Authenticated)
}

func (suite *BuilderSuite) TestBuildFirmwareAndKernelPreambleChain() {
	root, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	kernelSubkey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{Root: root, DataKey: dataKey})
	assert.NoError(suite.T(), err)
	rootKey, err := container.NewRootKey(root.Algorithm, root.PublicKeyBytes())
	assert.NoError(suite.T(), err)
	defer rootKey.Free()
	verifiedBlock, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.NoError(suite.T(), err)

	dataKeyHandle, dataKeyAlg, err := verifiedBlock.DataKey.Materialize()
	assert.NoError(suite.T(), err)
	defer dataKeyHandle.Free()

	body := []byte("the entire firmware body")
	bodySig, err := dataKey.Sign(body)
	assert.NoError(suite.T(), err)

	preambleBuf, err := sign.BuildFirmwarePreamble(sign.FirmwarePreambleOptions{
		DataKey:         dataKey,
		FirmwareVersion: 7,
		KernelSubkey:    kernelSubkey,
		BodySignature:   bodySig,
		BodySize:        uint64(len(body)),
	})
	assert.NoError(suite.T(), err)

	verifiedPreamble, err := container.VerifyFirmwarePreamble(preambleBuf, dataKeyHandle, dataKeyAlg)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(7), verifiedPreamble.FirmwareVersion)

	kernelSubkeyHandle, kernelSubkeyAlg, err := verifiedPreamble.KernelSubkey.Materialize()
	assert.NoError(suite.T(), err)
	defer kernelSubkeyHandle.Free()

	kernelBody := []byte("the kernel body")
	kernelBodySig, err := kernelSubkey.Sign(kernelBody)
	assert.NoError(suite.T(), err)

	kernelPreambleBuf, err := sign.BuildKernelPreamble(sign.KernelPreambleOptions{
		DataKey:         kernelSubkey,
		KernelVersion:   2,
		BodyLoadAddress: 0x100000,
		BodySize:        uint64(len(kernelBody)),
		BodySignature:   kernelBodySig,
	})
	assert.NoError(suite.T(), err)

	verifiedKernel, err := container.VerifyKernelPreamble(kernelPreambleBuf, kernelSubkeyHandle, kernelSubkeyAlg)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(2), verifiedKernel.KernelVersion)
	assert.Equal(suite.T(), uint64(0x100000), verifiedKernel.BodyLoadAddress)
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}
