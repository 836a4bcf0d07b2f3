package local

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
	assert.Equal(t, filepath.Clean("/home/user/dir"), tr.resolve("dir"))
	assert.Equal(t, filepath.Clean("/etc/passwd"), tr.resolve("/etc/passwd"))
}

func TestToEntityMapsFileAndDir(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "report.log")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	fileEntity, err := toEntity(filePath)
	require.NoError(t, err)
	assert.Equal(t, fsentity.KindFile, fileEntity.Kind)
	assert.EqualValues(t, 5, fileEntity.Size)
	assert.Equal(t, ".log", fileEntity.Ext)

	subdir := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(subdir, 0o755))
	dirEntity, err := toEntity(subdir)
	require.NoError(t, err)
	assert.Equal(t, fsentity.KindDirectory, dirEntity.Kind)
}

func TestToEntityMissingPathErrors(t *testing.T) {
	_, err := toEntity(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
