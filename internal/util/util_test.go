package util

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := RandomToken(11)
		require.NoError(t, err)
		assert.Len(t, token, 11)
		for _, c := range token {
			assert.True(t, strings.ContainsRune(TokenAlphabet, c), "unexpected character %q", c)
		}
		seen[token] = true
	}
	// 62^11 possibilities; a collision in 200 draws means the generator is broken.
	assert.Len(t, seen, 200)
}

func TestRandomTokenRejectsBadLength(t *testing.T) {
	_, err := RandomToken(0)
	assert.Error(t, err)
}

func TestInitLoggerWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	err := initLogger(LogConfig{Level: "debug", Directory: dir, File: true, Console: true}, &console)
	require.NoError(t, err)

	logger := ComponentLogger("test")
	logger.Info().Msg("hello from test")

	assert.Contains(t, console.String(), "hello from test")

	matches, err := filepath.Glob(filepath.Join(dir, "loginhelper_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"app":"loginhelper"`)
}

func TestInitLoggerDisabledOutputs(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, initLogger(LogConfig{Level: "info"}, &console))

	log.Info().Msg("discarded")
	assert.Zero(t, console.Len())
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUCores)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
