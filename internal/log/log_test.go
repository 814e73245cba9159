package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "empty falls back to default", input: "", want: DefaultLevel},
		{name: "lowercase", input: "debug", want: zapcore.DebugLevel},
		{name: "uppercase", input: "ERROR", want: zapcore.ErrorLevel},
		{name: "padded", input: "  info ", want: zapcore.InfoLevel},
		{name: "unknown", input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewAtLevel(t *testing.T) {
	logger, err := NewAtLevel("debug")
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewAtLevel("")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewAtLevel("nope")
	require.Error(t, err)
}
