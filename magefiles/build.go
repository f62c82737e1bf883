//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides the mage targets for mosaic.
//
//	mage build        Compile the mosaic binary to bin/
//	mage install      Install mosaic to GOPATH/bin
//	mage clean        Remove build artifacts
//	mage test:all     Run every test
//	mage test:race    Run the engine and store tests with the race detector
//	mage test:cover   Write a coverage profile to bin/coverage.out
//	mage lint         Run golangci-lint
//	mage stats        Print Go line counts as JSON
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "mosaic"
	binaryDir  = "bin"
	cmdDir     = "./cmd/mosaic"
	versionVar = "github.com/mesh-intelligence/mosaic/pkg/mosaic.Version"
)

// Build compiles the mosaic binary to bin/, stamping the version from the
// nearest git tag when there is one.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if v := gitVersion(); v != "" {
		args = append(args, "-ldflags", fmt.Sprintf("-X %s=%s", versionVar, v))
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

func gitVersion() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "v")
}
