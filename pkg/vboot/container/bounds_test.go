// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type BoundsSuite struct {
	suite.Suite
}

func (suite *BoundsSuite) TestValidateBoundsOK() {
	err := ValidateBounds(100, 0, 16, 16, 20)
	assert.NoError(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsExactFit() {
	err := ValidateBounds(100, 80, 20, 0, 20)
	assert.NoError(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsMemberPastParent() {
	err := ValidateBounds(100, 90, 20, 0, 5)
	assert.Error(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsDataPastParent() {
	err := ValidateBounds(100, 0, 16, 90, 20)
	assert.Error(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsDataOverlapsMemberHeader() {
	// dataOffset is relative to hdrOff; a sub-object overlapping the
	// member header's own bytes is still "contained in parent" as far
	// as this function is concerned -- it is not an exclusivity check.
	err := ValidateBounds(100, 50, 16, 0, 10)
	assert.NoError(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsOverflow() {
	err := ValidateBounds(100, 10, 16, 0, math.MaxUint64-5)
	assert.Error(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsInSignedOK() {
	err := ValidateBoundsInSigned(100, 40, 0, 16, 16, 20)
	assert.NoError(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsInSignedPastSignedRegion() {
	// Fits within the 100-byte parent but the data blob [16,36) exceeds
	// the 30-byte signed prefix: this is the "valid in container but
	// past the signed region" case the two-envelope check exists for.
	err := ValidateBoundsInSigned(100, 30, 0, 16, 16, 20)
	assert.Error(suite.T(), err)
}

func (suite *BoundsSuite) TestValidateBoundsInSignedHeaderPastSignedRegion() {
	err := ValidateBoundsInSigned(100, 10, 20, 16, 0, 5)
	assert.Error(suite.T(), err)
}

func TestBoundsSuite(t *testing.T) {
	suite.Run(t, new(BoundsSuite))
}
