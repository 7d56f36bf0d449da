package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_JSONComponent(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	log := Component("sync")
	log.Debug().Str("thread", "t1").Msg("refreshed")

	out := buf.String()
	require.Contains(t, out, `"component":"sync"`)
	require.Contains(t, out, `"thread":"t1"`)
	require.Contains(t, out, `"message":"refreshed"`)
}

func TestRedact(t *testing.T) {
	got := Redact(`Get "http://x/api": header Authorization: Bearer eyJhbGciOi.abc-def`)
	require.NotContains(t, got, "eyJhbGciOi")
	require.Contains(t, got, "Bearer "+RedactedValue)
}
