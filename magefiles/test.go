//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups the test targets.
type Test mg.Namespace

// racePackages hold the lock and transaction code.
var racePackages = []string{"./internal/engine/...", "./internal/sqlite/..."}

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Race runs the engine and store tests with the race detector.
func (Test) Race() error {
	args := append([]string{"test", "-race", "-count=1"}, racePackages...)
	return sh.RunV(binGo, args...)
}

// Cover writes a coverage profile to bin/coverage.out and prints the
// per-function summary.
func (Test) Cover() error {
	mg.Deps(ensureBinDir)
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile="+profile, "./..."); err != nil {
		return err
	}
	out, err := sh.Output(binGo, "tool", "cover", "-func="+profile)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func ensureBinDir() error {
	return os.MkdirAll(binaryDir, 0o755)
}
