// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// File is the on-disk layout of an address map
type File struct {
	Params []Def `yaml:"params"`
}

// Load reads an address map from a YAML file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bmserr.Configuration("read address map %s: %v", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes an address map from YAML
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, bmserr.Configuration("parse address map: %v", err)
	}
	if len(f.Params) == 0 {
		return nil, bmserr.Configuration("address map defines no parameters")
	}
	return NewRegistry(f.Params)
}

// Marshal renders definitions back to YAML
func Marshal(defs []Def) ([]byte, error) {
	return yaml.Marshal(File{Params: defs})
}
