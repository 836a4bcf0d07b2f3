package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoppy-fm/hoppy/internal/params"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/app"}
	assert.Equal(t, "/app/logs", tr.resolve("logs"))
	assert.Equal(t, "/etc", tr.resolve("/etc"))
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestBaseArgsIncludesOnlySetFields(t *testing.T) {
	tr := &Transport{cfg: &params.Kube{}}
	assert.Empty(t, tr.baseArgs())

	tr.cfg = &params.Kube{Namespace: "prod", ClusterURL: "https://cluster", Username: "ops"}
	assert.Equal(t, []string{"-n", "prod", "--server", "https://cluster", "--user", "ops"}, tr.baseArgs())
}
