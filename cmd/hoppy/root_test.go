package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandUsage(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "hoppy [flags] [connection1] [connection2] [localdir]")
}

func TestRootCommandRejectsTooManyPositionals(t *testing.T) {
	conns, localDir, err := splitPositionals([]string{"a", "b", "c", "d"})
	assert.Error(t, err)
	assert.Nil(t, conns)
	assert.Empty(t, localDir)
}

func TestSplitPositionalsOneConnection(t *testing.T) {
	conns, localDir, err := splitPositionals([]string{"sftp://example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sftp://example.com"}, conns)
	assert.Empty(t, localDir)
}

func TestSplitPositionalsTwoConnectionsAndLocalDir(t *testing.T) {
	conns, localDir, err := splitPositionals([]string{"sftp://a", "sftp://b", "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sftp://a", "sftp://b"}, conns)
	assert.Equal(t, "/tmp", localDir)
}

func TestSplitPositionalsEmpty(t *testing.T) {
	conns, localDir, err := splitPositionals(nil)
	require.NoError(t, err)
	assert.Nil(t, conns)
	assert.Empty(t, localDir)
}

func TestFatalRuntimeErrorMarksExitFatal(t *testing.T) {
	err := fatalf("boom: %s", "bad")
	assert.True(t, isFatalRuntime(err))
	assert.True(t, strings.Contains(err.Error(), "boom: bad"))
}

func TestPlainErrorIsNotFatalRuntime(t *testing.T) {
	assert.False(t, isFatalRuntime(assert.AnError))
}
