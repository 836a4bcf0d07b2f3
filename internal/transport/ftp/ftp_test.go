package ftp

import (
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/home/user"}
	assert.Equal(t, "/home/user/dir", tr.resolve("dir"))
	assert.Equal(t, "/etc/passwd", tr.resolve("/etc/passwd"))
	assert.Equal(t, "/home", tr.resolve(".."))
}

func TestToEntityMapsKindAndMeta(t *testing.T) {
	now := time.Now()
	fileEntry := toEntity("/a/report.log", &ftp.Entry{Name: "report.log", Type: ftp.EntryTypeFile, Size: 42, Time: now})
	assert.Equal(t, fsentity.KindFile, fileEntry.Kind)
	assert.EqualValues(t, 42, fileEntry.Size)
	assert.Equal(t, ".log", fileEntry.Ext)

	dirEntry := toEntity("/a/sub", &ftp.Entry{Name: "sub", Type: ftp.EntryTypeFolder})
	assert.Equal(t, fsentity.KindDirectory, dirEntry.Kind)

	linkEntry := toEntity("/a/link", &ftp.Entry{Name: "link", Type: ftp.EntryTypeLink})
	assert.Equal(t, fsentity.KindSymlink, linkEntry.Kind)
}
