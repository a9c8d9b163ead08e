package cmd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	rootCmd := NewRootCommand()
	assert.Equal(t, "evalocr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	res := run(t, fakeApp(t, helloWorldFactory()), nil, "--help")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Available Commands:")
	assert.Contains(t, res.stdout, "Usage:")
	assert.Contains(t, res.stdout, "strategies")
}

func TestRootCommandVersion(t *testing.T) {
	isolate(t)
	res := run(t, fakeApp(t, helloWorldFactory()), nil, "--version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "evalocr version")

	res = run(t, fakeApp(t, helloWorldFactory()), nil, "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Commit:")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range NewRootCommand().Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"recognize", "validate", "probe", "strategies", "serve", "config", "version"} {
		assert.True(t, names[expected], "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolate(t)
	res := run(t, fakeApp(t, helloWorldFactory()), nil, "--invalid-flag")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "unknown flag")
}

func TestRootCommandNoArgs(t *testing.T) {
	isolate(t)
	res := run(t, fakeApp(t, helloWorldFactory()), nil)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Usage:")
}

func TestRootCommandInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("EVALOCR_LOG_LEVEL", "chatty")
	res := run(t, fakeApp(t, helloWorldFactory()), nil, "strategies")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid log level")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}

func TestNewLoggerVerbose(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Verbose = true
	logger := newLogger(io.Discard, &cfg)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	cfg.Verbose = false
	cfg.LogLevel = "error"
	logger = newLogger(io.Discard, &cfg)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelWarn))
}
