package smb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/docs"}
	assert.Equal(t, "/docs/report", tr.resolve("report"))
	assert.Equal(t, "/other", tr.resolve("/other"))
}

func TestSharePathConvertsToBackslashRelative(t *testing.T) {
	assert.Equal(t, `dir\sub\file.txt`, sharePath("/dir/sub/file.txt"))
	assert.Equal(t, "", sharePath("/"))
}
