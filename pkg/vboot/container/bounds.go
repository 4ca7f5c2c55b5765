// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import "fmt"

// ValidateBounds is the engine's single trust boundary between declared
// offset/size fields and the bytes they name. It decides whether a
// sub-region (dataOffset, dataSize), computed relative to a member
// header of memberSize bytes located at hdrOff inside a parent of
// parentSize bytes, is fully contained in that parent.
//
// All arithmetic is unsigned 64-bit and overflow-checked; overflow is
// always rejection, never wraparound. No other function in this package
// reads a sub-region without first calling this one (or
// ValidateBoundsInSigned, its two-envelope sibling).
func ValidateBounds(parentSize, hdrOff, memberSize, dataOffset, dataSize uint64) error {
	if hdrOff > parentSize {
		return fmt.Errorf("member header offset %d exceeds parent size %d", hdrOff, parentSize)
	}
	hdrEnd, ok := addU64(hdrOff, memberSize)
	if !ok || hdrEnd > parentSize {
		return fmt.Errorf("member header [%d,%d) exceeds parent size %d", hdrOff, hdrEnd, parentSize)
	}
	dataStart, ok := addU64(hdrOff, dataOffset)
	if !ok || dataStart > parentSize {
		return fmt.Errorf("sub-object start %d exceeds parent size %d", dataStart, parentSize)
	}
	dataEnd, ok := addU64(dataStart, dataSize)
	if !ok || dataEnd > parentSize {
		return fmt.Errorf("sub-object end %d exceeds parent size %d", dataEnd, parentSize)
	}
	return nil
}

// ValidateBoundsInSigned runs ValidateBounds twice: once against the
// full parent, once against the signed-region prefix of signedSize
// bytes. Objects that contribute to a trust decision (embedded keys,
// nested signatures) must pass both -- omitting the second check would
// let an attacker append an unsigned object past the signed region
// while keeping it inside the container.
func ValidateBoundsInSigned(parentSize, signedSize, hdrOff, memberSize, dataOffset, dataSize uint64) error {
	if err := ValidateBounds(parentSize, hdrOff, memberSize, dataOffset, dataSize); err != nil {
		return err
	}
	if err := ValidateBounds(signedSize, hdrOff, memberSize, dataOffset, dataSize); err != nil {
		return fmt.Errorf("not contained in signed prefix: %w", err)
	}
	return nil
}

func addU64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
