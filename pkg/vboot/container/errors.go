// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

// Code is the closed enumeration of terminal verification outcomes. The
// engine emits exactly one value per call: there is no chaining and no
// composite errors.
type Code int

const (
	// Success indicates all checks passed.
	Success Code = iota
	// KeyBlockInvalid covers magic mismatch, major-version mismatch,
	// size underrun, a bounds check failure inside the key block,
	// checksum length mismatch, or insufficient signed-region coverage.
	KeyBlockInvalid
	// KeyBlockSignatureFailed means the root-key signature did not
	// validate.
	KeyBlockSignatureFailed
	// KeyBlockHashFailed means hash-only mode's checksum did not match
	// the recomputed digest.
	KeyBlockHashFailed
	// PublicKeyInvalid means a PublicKeyView's algorithm was out of
	// range, its key size disagreed with the algorithm table, or the
	// crypto provider rejected the key bytes.
	PublicKeyInvalid
	// PreambleInvalid covers major-version mismatch, size underrun, a
	// bounds check failure inside the preamble, or insufficient
	// signed-region coverage.
	PreambleInvalid
	// PreambleSignatureFailed means the preamble signature did not
	// validate against the data key.
	PreambleSignatureFailed
)

var codePhrases = [...]string{
	Success:                 "verification succeeded",
	KeyBlockInvalid:         "key block is malformed or fails a bounds, version, or size check",
	KeyBlockSignatureFailed: "key block signature does not validate against the supplied root key",
	KeyBlockHashFailed:      "key block checksum does not match the recomputed digest",
	PublicKeyInvalid:        "public key descriptor is malformed or was rejected by the crypto provider",
	PreambleInvalid:         "preamble is malformed or fails a bounds, version, or size check",
	PreambleSignatureFailed: "preamble signature does not validate against the data key",
}

// String returns the code's stable, human-readable phrase, suitable for
// debug logging only.
func (c Code) String() string {
	if int(c) < 0 || int(c) >= len(codePhrases) {
		return "unknown verification code"
	}
	return codePhrases[c]
}

// Error is the engine's terminal error type: exactly one Code, plus an
// optional internal cause retained for debug logging via errors.Unwrap
// (never part of the stable contract -- callers must match on Code).
type Error struct {
	Code  Code
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code.String() + ": " + e.cause.Error()
	}
	return e.Code.String()
}

// Unwrap exposes the internal cause for debug-only introspection.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}
