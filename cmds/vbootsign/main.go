// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vbootsign builds a self-consistent key block plus firmware
// preamble from freshly generated test keys. It exists to produce
// fixtures for exercising vbootverify and pkg/vboot/container; it is
// not a production signing tool.
package main

import (
	"os"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/linuxboot/vboot-engine/pkg/log"
	"github.com/linuxboot/vboot-engine/pkg/vboot/sign"
)

var (
	outDir   = flag.StringP("out", "o", ".", "directory to write the generated fixtures into")
	hashOnly = flag.Bool("hash-only", false, "checksum the key block instead of signing it with a root key")
	sm2      = flag.Bool("sm2", false, "use SM2/SM3 keys instead of RSA")
)

func main() {
	flag.Parse()

	rootKey, dataKey, kernelSubkey := mustGenerateKeys()

	var keyBlockRoot *sign.PrivateKey
	if !*hashOnly {
		keyBlockRoot = rootKey
	}

	keyBlock, err := sign.BuildKeyBlock(sign.KeyBlockOptions{
		Root:    keyBlockRoot,
		DataKey: dataKey,
	})
	if err != nil {
		log.Fatalf("building key block: %v", err)
	}

	bodySig, err := dataKey.Sign([]byte("placeholder firmware body"))
	if err != nil {
		log.Fatalf("signing placeholder body: %v", err)
	}
	preamble, err := sign.BuildFirmwarePreamble(sign.FirmwarePreambleOptions{
		DataKey:         dataKey,
		FirmwareVersion: 1,
		KernelSubkey:    kernelSubkey,
		BodySignature:   bodySig,
		BodySize:        uint64(len("placeholder firmware body")),
	})
	if err != nil {
		log.Fatalf("building firmware preamble: %v", err)
	}

	writeFixture("keyblock.bin", keyBlock)
	writeFixture("preamble.bin", preamble)
	if !*hashOnly {
		writeFixture("root_key.bin", rootKey.PublicKeyBytes())
	}

	log.Warnf("wrote %s of fixtures to %s", humanize.Bytes(uint64(len(keyBlock)+len(preamble))), *outDir)
}

func mustGenerateKeys() (root, data, kernelSubkey *sign.PrivateKey) {
	var err error
	generate := sign.GenerateRSAKey
	if *sm2 {
		generate = sign.GenerateSM2Key
	}
	if root, err = generate(); err != nil {
		log.Fatalf("generating root key: %v", err)
	}
	if data, err = generate(); err != nil {
		log.Fatalf("generating data key: %v", err)
	}
	if kernelSubkey, err = generate(); err != nil {
		log.Fatalf("generating kernel subkey: %v", err)
	}
	return root, data, kernelSubkey
}

func writeFixture(name string, content []byte) {
	path := *outDir + string(os.PathSeparator) + name
	if err := os.WriteFile(path, content, 0644); err != nil {
		log.Fatalf("writing %s: %v", path, err)
	}
}
