// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// writeOutput renders data in the selected --format. Text output is left to
// the caller's text function so each command keeps its own layout.
func writeOutput(w io.Writer, format string, data any, text func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "", "text":
		return text(w)

	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()

	case "cbor":
		// sorted map keys keep dumps byte-comparable
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return err
		}
		b, err := em.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err

	default:
		return bmserr.Configuration("unknown output format %q (use text, json, yaml or cbor)", format)
	}
}

// output writes data to stdout in the --format selected on the command line
func output(data any, text func(io.Writer) error) error {
	return writeOutput(os.Stdout, outputFormat, data, text)
}

// printf is fmt.Fprintf without the error, for text renderers
func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
