package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"TRACE", zerolog.TraceLevel},
		{" warning ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseLevel("loud"); !errors.Is(err, bmserr.ErrConfiguration) {
		t.Errorf("ParseLevel(loud) err = %v, want ErrConfiguration", err)
	}
}

func TestNewWriter_FiltersBelowLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNewWriter_EnvOverride(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "error")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("env level not applied: %q", buf.String())
	}
}
