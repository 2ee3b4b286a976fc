//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var commands = []string{"watertight", "make-watertight", "check-watertight"}

// Build compiles all commands into ./bin.
func Build() error {
	for _, c := range commands {
		fmt.Printf("Building %v...\n", c)
		if err := sh.RunV("go", "build", "-o", filepath.Join("bin", c), "./cmd/"+c); err != nil {
			return err
		}
	}
	return nil
}

// Install runs go install on all commands.
func Install() error {
	args := []string{"install"}
	for _, c := range commands {
		args = append(args, "./cmd/"+c)
	}
	return sh.RunV("go", args...)
}

// Clean removes ./bin.
func Clean() error {
	return sh.Rm("bin")
}

type Test mg.Namespace

// Unit runs the unit tests with the race detector.
func (Test) Unit() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// GL runs the OpenGL rasterizer tests verbosely. They skip themselves
// when no OpenGL 4.1 context can be created.
func (Test) GL() error {
	return sh.RunV("go", "test", "-v", "./depth/glraster/...")
}

// All runs vet and then the unit tests.
func All() {
	mg.SerialDeps(Vet, Test.Unit)
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}
