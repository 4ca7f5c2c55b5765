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
	"github.com/linuxboot/vboot-engine/pkg/vboot/sign"
)

type KeyBlockSuite struct {
	suite.Suite
}

func (suite *KeyBlockSuite) buildSigned() ([]byte, *container.RootKey) {
	root, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)

	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{Root: root, DataKey: dataKey, KeyVersion: 1})
	assert.NoError(suite.T(), err)

	rootKey, err := container.NewRootKey(root.Algorithm, root.PublicKeyBytes())
	assert.NoError(suite.T(), err)
	return blockBuf, rootKey
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockSigned() {
	blockBuf, rootKey := suite.buildSigned()
	defer rootKey.Free()

	verified, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), verified.Authenticated)
}

func (suite *KeyBlockSuite) TestVerifiedKeyBlockStringAndJSON() {
	blockBuf, rootKey := suite.buildSigned()
	defer rootKey.Free()

	verified, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.NoError(suite.T(), err)

	assert.Contains(suite.T(), verified.String(), "Data Key ID: 0x")
	assert.Contains(suite.T(), verified.String(), "Authenticated: true")

	raw, err := json.Marshal(verified)
	assert.NoError(suite.T(), err)

	var decoded map[string]interface{}
	assert.NoError(suite.T(), json.Unmarshal(raw, &decoded))
	assert.Equal(suite.T(), true, decoded["authenticated"])
	assert.NotEmpty(suite.T(), decoded["data_key_id"])
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockHashOnly() {
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{DataKey: dataKey})
	assert.NoError(suite.T(), err)

	verified, err := container.VerifyKeyBlock(blockBuf, nil)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), verified.Authenticated)
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockRejectsTruncatedBuffer() {
	blockBuf, rootKey := suite.buildSigned()
	defer rootKey.Free()

	_, err := container.VerifyKeyBlock(blockBuf[:4], rootKey)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.KeyBlockInvalid, cerr.Code)
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockRejectsBadMagic() {
	blockBuf, rootKey := suite.buildSigned()
	defer rootKey.Free()

	blockBuf[0] ^= 0xff

	_, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.KeyBlockInvalid, cerr.Code)
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockRejectsFlippedBodyByte() {
	blockBuf, rootKey := suite.buildSigned()
	defer rootKey.Free()

	// Flip a byte inside the embedded data key (well past the 104-byte
	// fixed header, well before the signature blob appended at the
	// end), leaving header and signature bytes themselves untouched.
	blockBuf[150] ^= 0xff

	_, err := container.VerifyKeyBlock(blockBuf, rootKey)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.KeyBlockSignatureFailed, cerr.Code)
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockRejectsWrongRootKey() {
	blockBuf, rootKey := suite.buildSigned()
	rootKey.Free()

	otherRoot, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	otherRootKey, err := container.NewRootKey(otherRoot.Algorithm, otherRoot.PublicKeyBytes())
	assert.NoError(suite.T(), err)
	defer otherRootKey.Free()

	_, err = container.VerifyKeyBlock(blockBuf, otherRootKey)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.KeyBlockSignatureFailed, cerr.Code)
}

func (suite *KeyBlockSuite) TestVerifyKeyBlockHashOnlyRejectsTamperedChecksum() {
	dataKey, err := sign.GenerateRSAKey()
	assert.NoError(suite.T(), err)
	blockBuf, err := sign.BuildKeyBlock(sign.KeyBlockOptions{DataKey: dataKey})
	assert.NoError(suite.T(), err)

	blockBuf[len(blockBuf)-1] ^= 0xff

	_, err = container.VerifyKeyBlock(blockBuf, nil)
	assert.Error(suite.T(), err)
	var cerr *container.Error
	assert.ErrorAs(suite.T(), err, &cerr)
	assert.Equal(suite.T(), container.KeyBlockHashFailed, cerr.Code)
}

func TestKeyBlockSuite(t *testing.T) {
	suite.Run(t, new(KeyBlockSuite))
}
