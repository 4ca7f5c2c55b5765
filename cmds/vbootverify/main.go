// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vbootverify validates a key block and, optionally, the
// firmware preamble chained to it, and reports the resulting trust
// decision. Kernel preambles are not verified by this command.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	flag "github.com/spf13/pflag"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"

	"github.com/linuxboot/vboot-engine/pkg/log"
	"github.com/linuxboot/vboot-engine/pkg/vboot/container"
	vbcrypto "github.com/linuxboot/vboot-engine/pkg/vboot/crypto"
)

var (
	keyBlockPath = flag.String("key-block", "", "path to the key block to verify")
	preamblePath = flag.String("preamble", "", "path to the firmware preamble to verify")
	rootKeyPath  = flag.String("root-key", "", "path to root public key bytes; omitted means hash-only inspection mode")
	rootKeyAlg   = flag.Uint64("root-key-algorithm", vbcrypto.AlgRSA2048SHA256, "algorithm table index of the root key")
	verbose      = flag.BoolP("verbose", "v", false, "on failure, also run the non-authoritative bounds diagnostic and report every structural problem found")
	format       = flag.String("format", "text", "verdict output format: text or json")
)

// verdict is the -format json document: the same fields the text table
// renders, never the raw key or signature bytes.
type verdict struct {
	KeyBlock *container.VerifiedKeyBlock         `json:"key_block"`
	Preamble *container.VerifiedFirmwarePreamble `json:"firmware_preamble,omitempty"`
}

// foldWidth folds fullwidth/halfwidth Unicode variants (e.g. a hex ID or
// path pasted from a fullwidth IME) down to their narrow form, so
// go-pretty's column width accounting -- which assumes one cell per
// rune -- lines up table borders correctly.
func foldWidth(s string) string {
	folded, _, err := transform.String(width.Fold, s)
	if err != nil {
		return s
	}
	return folded
}

func main() {
	flag.Parse()
	if *keyBlockPath == "" {
		log.Fatalf("usage: vbootverify --key-block <path> [--preamble <path>] [--root-key <path>] [--format text|json]")
	}
	if *format != "text" && *format != "json" {
		log.Fatalf("--format must be text or json, got %q", *format)
	}

	keyBlockBuf, err := os.ReadFile(*keyBlockPath)
	if err != nil {
		log.Fatalf("reading key block: %v", err)
	}

	var root *container.RootKey
	if *rootKeyPath != "" {
		rootBytes, err := os.ReadFile(*rootKeyPath)
		if err != nil {
			log.Fatalf("reading root key: %v", err)
		}
		root, err = container.NewRootKey(*rootKeyAlg, rootBytes)
		if err != nil {
			log.Fatalf("loading root key: %v", err)
		}
		defer root.Free()
	}

	verifiedBlock, err := container.VerifyKeyBlock(keyBlockBuf, root)
	if err != nil {
		reportFailure("key block", err, func() error { return container.DiagnoseKeyBlock(keyBlockBuf) })
		os.Exit(1)
	}

	dataKeyHandle, dataKeyAlg, err := verifiedBlock.DataKey.Materialize()
	if err != nil {
		log.Fatalf("materializing data key: %v", err)
	}
	defer dataKeyHandle.Free()

	v := verdict{KeyBlock: verifiedBlock}

	if *preamblePath != "" {
		preambleBuf, err := os.ReadFile(*preamblePath)
		if err != nil {
			log.Fatalf("reading preamble: %v", err)
		}
		verifiedPreamble, err := container.VerifyFirmwarePreamble(preambleBuf, dataKeyHandle, dataKeyAlg)
		if err != nil {
			reportFailure("firmware preamble", err, func() error { return container.DiagnoseFirmwarePreamble(preambleBuf) })
			os.Exit(1)
		}
		v.Preamble = verifiedPreamble
	}

	if *format == "json" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			log.Fatalf("marshaling verdict: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	renderTable(v)
}

func renderTable(v verdict) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("vbootverify: %s", foldWidth(*keyBlockPath))
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Key block size", humanize.Bytes(v.KeyBlock.BlockSize)})
	t.AppendRow(table.Row{"Authenticated", v.KeyBlock.Authenticated})
	t.AppendRow(table.Row{"Data key ID", foldWidth("0x" + v.KeyBlock.DataKey.KeyID())})
	t.AppendRow(table.Row{"Data key version", v.KeyBlock.DataKey.KeyVersion})

	if v.Preamble != nil {
		t.AppendRow(table.Row{"Firmware version", v.Preamble.FirmwareVersion})
		t.AppendRow(table.Row{"Preamble size", humanize.Bytes(v.Preamble.PreambleSize)})
		t.AppendRow(table.Row{"Kernel subkey ID", foldWidth("0x" + v.Preamble.KernelSubkey.KeyID())})
		t.AppendRow(table.Row{"Kernel subkey version", v.Preamble.KernelSubkey.KeyVersion})
	}

	t.Render()
}

func reportFailure(what string, err error, diagnose func() error) {
	log.VerificationFailed(what, err)
	if *verbose {
		if diagErr := diagnose(); diagErr != nil {
			log.Errorf("%s diagnostic found additional problems: %v", what, diagErr)
		}
	}
}
