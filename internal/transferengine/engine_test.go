package transferengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport/local"
)

func connectedLocal(t *testing.T, dir string) *local.Transport {
	t.Helper()
	tr := local.New()
	_, err := tr.Connect(context.Background(), params.ProtocolParams{
		Generic: &params.Generic{Address: dir},
	})
	require.NoError(t, err)
	return tr
}

func TestSendFileCopiesBytes(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello world"), 0o644))

	srcT := connectedLocal(t, srcDir)
	dstT := connectedLocal(t, dstDir)

	entry, err := srcT.Stat(filepath.Join(srcDir, "a.txt"))
	require.NoError(t, err)

	state := NewTransferState(entry.Size)
	var events int
	err = New().Send(srcT, dstT, entry, dstDir, "", Policy{Mode: OverwriteAlways}, state, func(ProgressEvent) { events++ })
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, int64(len("hello world")), state.BytesWritten)
	assert.GreaterOrEqual(t, events, 1)
}

func TestSendDirectoryRecurses(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "pkg"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "pkg", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "pkg", "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "pkg", "sub", "b.txt"), []byte("bb"), 0o644))

	srcT := connectedLocal(t, srcDir)
	dstT := connectedLocal(t, dstDir)

	entry, err := srcT.Stat(filepath.Join(srcDir, "pkg"))
	require.NoError(t, err)

	state := NewTransferState(0)
	err = New().Send(srcT, dstT, entry, dstDir, "", Policy{Mode: OverwriteAlways}, state, nil)
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(dstDir, "pkg", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(a))
	b, err := os.ReadFile(filepath.Join(dstDir, "pkg", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bb", string(b))
}

func TestOverwriteNeverSkipsExisting(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("old"), 0o644))

	srcT := connectedLocal(t, srcDir)
	dstT := connectedLocal(t, dstDir)

	entry, err := srcT.Stat(filepath.Join(srcDir, "a.txt"))
	require.NoError(t, err)

	state := NewTransferState(entry.Size)
	err = New().Send(srcT, dstT, entry, dstDir, "", Policy{Mode: OverwriteNever}, state, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestAbortStopsBeforeNextChunkAndDeletesPartial(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	data := make([]byte, chunkSize*3)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "big.bin"), data, 0o644))

	srcT := connectedLocal(t, srcDir)
	dstT := connectedLocal(t, dstDir)

	entry, err := srcT.Stat(filepath.Join(srcDir, "big.bin"))
	require.NoError(t, err)

	state := NewTransferState(entry.Size)
	chunks := 0
	err = New().Send(srcT, dstT, entry, dstDir, "", Policy{Mode: OverwriteAlways}, state, func(ProgressEvent) {
		chunks++
		if chunks == 1 {
			state.Abort()
		}
	})
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dstDir, "big.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenameDispatchesDirectly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	tr := connectedLocal(t, dir)

	entry, err := tr.Stat(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)

	err = New().Rename(tr, entry, filepath.Join(dir, "b.txt"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	assert.NoError(t, err)
}

func TestDeleteRecursesIntoDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("x"), 0o644))
	tr := connectedLocal(t, dir)

	entry, err := tr.Stat(filepath.Join(dir, "sub"))
	require.NoError(t, err)

	err = New().Delete(tr, entry)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransferStateProgressAndETA(t *testing.T) {
	state := NewTransferState(100)
	assert.Equal(t, float64(0), state.Progress())
	_, ok := state.ETASeconds()
	assert.False(t, ok)

	state.BytesWritten = 50
	assert.Equal(t, 0.5, state.Progress())

	state.BytesWritten = 200
	assert.Equal(t, float64(1), state.Progress())
}
