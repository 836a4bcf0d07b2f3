package sftp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

func TestResolveRelativeAndAbsolute(t *testing.T) {
	tr := &Transport{cwd: "/home/user"}
	assert.Equal(t, "/home/user/dir", tr.resolve("dir"))
	assert.Equal(t, "/etc/passwd", tr.resolve("/etc/passwd"))
}

func TestToEntityMapsFileAndDir(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "report.log")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	info, err := os.Lstat(filePath)
	require.NoError(t, err)
	fileEntity := toEntity(filePath, info)
	assert.Equal(t, fsentity.KindFile, fileEntity.Kind)
	assert.EqualValues(t, 5, fileEntity.Size)
	assert.Equal(t, ".log", fileEntity.Ext)
	require.NotNil(t, fileEntity.Mode)

	dirInfo, err := os.Lstat(dir)
	require.NoError(t, err)
	dirEntity := toEntity(dir, dirInfo)
	assert.Equal(t, fsentity.KindDirectory, dirEntity.Kind)
}
