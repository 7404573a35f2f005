//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL stage under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima-render", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	sources, err := shaderSources(shaderDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shaderDir)
	}
	for _, src := range sources {
		out := src + ".spv"
		if upToDate(src, out) {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("-I", shaderDir, src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func shaderSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".vert", ".frag":
			sources = append(sources, filepath.Join(dir, e.Name()))
		}
	}
	return sources, nil
}

// upToDate reports whether out is newer than src and the shared include.
func upToDate(src, out string) bool {
	o, err := os.Stat(out)
	if err != nil {
		return false
	}
	for _, in := range []string{src, filepath.Join(shaderDir, "common.glsl")} {
		i, err := os.Stat(in)
		if err != nil || i.ModTime().After(o.ModTime()) {
			return false
		}
	}
	return true
}
