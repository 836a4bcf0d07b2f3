package scp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/home/user"}
	assert.Equal(t, "/home/user/dir", tr.resolve("dir"))
	assert.Equal(t, "/etc/passwd", tr.resolve("/etc/passwd"))
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestParseScpSizeExtractsByteCount(t *testing.T) {
	assert.EqualValues(t, 1234, parseScpSize("C0644 1234 name"))
	assert.EqualValues(t, 0, parseScpSize("garbage"))
}

func TestReadAckSuccessAndError(t *testing.T) {
	err := readAck(strings.NewReader("\x00"))
	require.NoError(t, err)

	err = readAck(strings.NewReader("\x01disk full\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
