package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFromFlags(t *testing.T) {
	assert.Equal(t, "debug", LevelFromFlags(true, false))
	assert.Equal(t, "warn", LevelFromFlags(false, true))
	assert.Equal(t, "info", LevelFromFlags(false, false))
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "debug", Output: &buf}, "xtab")

	logger.Debug().Msg("decoded")

	assert.Contains(t, buf.String(), `"component":"xtab"`)
}

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.closeErr
}

func TestDeferClose(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ok := &mockCloser{}
	DeferClose(logger, ok, "close failed")
	assert.True(t, ok.closed)
	assert.Empty(t, buf.String())

	bad := &mockCloser{closeErr: errors.New("boom")}
	DeferClose(logger, bad, "close failed")
	assert.True(t, bad.closed)
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "close failed")

	DeferClose(logger, nil, "nil closer")
}
