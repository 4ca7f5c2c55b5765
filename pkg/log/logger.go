// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"errors"
	"log"
	"os"

	"github.com/linuxboot/vboot-engine/pkg/vboot/container"
)

// Logger describes a logger to be used by the vboot-engine commands. The
// verification engine itself (pkg/vboot/container) never logs; only the
// CLI front ends do.
type Logger interface {
	// Warnf logs an warning message.
	Warnf(format string, args ...interface{})

	// Errorf logs an error message.
	Errorf(format string, args ...interface{})

	// Fatalf logs a fatal message and immediately exits the application
	// with os.Exit.
	Fatalf(format string, args ...interface{})

	// VerificationFailed logs a rejected key block or preamble. When err
	// wraps a *container.Error, the terminal Code is broken out onto its
	// own field so operators can grep a log for a code name (e.g.
	// "code=KeyBlockSignatureFailed") instead of parsing free text.
	VerificationFailed(what string, err error)
}

// DefaultLogger is the logger used by default everywhere within this
// module.
var DefaultLogger Logger

func init() {
	DefaultLogger = logWrapper{Logger: log.New(os.Stderr, "", log.LstdFlags)}
}

type logWrapper struct {
	Logger *log.Logger
}

// Warnf implements Logger.
func (logger logWrapper) Warnf(format string, args ...interface{}) {
	logger.Logger.Printf("[vboot][WARN] "+format, args...)
}

// Errorf implements Logger.
func (logger logWrapper) Errorf(format string, args ...interface{}) {
	logger.Logger.Printf("[vboot][ERROR] "+format, args...)
}

// Fatalf implements Logger.
func (logger logWrapper) Fatalf(format string, args ...interface{}) {
	logger.Logger.Fatalf("[vboot][FATAL] "+format, args...)
}

// VerificationFailed implements Logger.
func (logger logWrapper) VerificationFailed(what string, err error) {
	var cerr *container.Error
	if errors.As(err, &cerr) {
		names := [...]string{
			container.Success:                 "Success",
			container.KeyBlockInvalid:         "KeyBlockInvalid",
			container.KeyBlockSignatureFailed: "KeyBlockSignatureFailed",
			container.KeyBlockHashFailed:      "KeyBlockHashFailed",
			container.PublicKeyInvalid:        "PublicKeyInvalid",
			container.PreambleInvalid:         "PreambleInvalid",
			container.PreambleSignatureFailed: "PreambleSignatureFailed",
		}
		name := "Unknown"
		if c := int(cerr.Code); c >= 0 && c < len(names) {
			name = names[c]
		}
		logger.Logger.Printf("[vboot][FAIL] %s rejected, code=%s: %v", what, name, cerr.Unwrap())
		return
	}
	logger.Logger.Printf("[vboot][FAIL] %s rejected: %v", what, err)
}

// Warnf logs an warning message.
func Warnf(format string, args ...interface{}) {
	DefaultLogger.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

// Fatalf logs a fatal message and immediately exits the application
// with os.Exit (which is expected to be called by the DefaultLogger.Fatalf).
func Fatalf(format string, args ...interface{}) {
	DefaultLogger.Fatalf(format, args...)
}

// VerificationFailed logs a rejected key block or preamble, breaking out
// its container.Code when present.
func VerificationFailed(what string, err error) {
	DefaultLogger.VerificationFailed(what, err)
}
