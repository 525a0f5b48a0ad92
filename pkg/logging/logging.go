// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zerolog loggers used by bmsctl.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// EnvLevel overrides the level passed to New
const EnvLevel = "BMSCTL_LOG_LEVEL"

// ParseLevel maps a level name onto a zerolog level. An empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, bmserr.Configuration("unknown log level %q", name)
	}
	return level, nil
}

// New returns a console logger on stderr. BMSCTL_LOG_LEVEL, when set, wins
// over level.
func New(level string) (zerolog.Logger, error) {
	return NewWriter(os.Stderr, level)
}

// NewWriter is New with an explicit destination
func NewWriter(w io.Writer, level string) (zerolog.Logger, error) {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "bmsctl").Logger(), nil
}
