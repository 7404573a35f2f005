//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed on the Vulkan backend.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed without a GPU for a fixed number of frames.
func (Run) Headless() error {
	fmt.Println("Run headless engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-backend", "headless", "-frames", "120"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the test suite with the race detector.
func (Run) Tests() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
