package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppy-fm/hoppy/internal/explorer"
	"github.com/hoppy-fm/hoppy/internal/formatter"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/session"
	"github.com/hoppy-fm/hoppy/internal/transferengine"
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

func newTestShell(t *testing.T, localDir, remoteDir string) *shell {
	t.Helper()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	sh := &shell{
		log:    log,
		sess:   session.New(log),
		engine: transferengine.New(),
		fmt:    formatter.Default(),
		local:  pane{label: "local", t: connectedLocal(t, localDir), exp: explorer.New()},
		remote: pane{label: "remote", t: connectedLocal(t, remoteDir), exp: explorer.New()},
	}
	sh.focus = &sh.local
	sh.sess.ConnectOK()
	return sh
}

func TestDispatchListsFocusedPane(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	sh := newTestShell(t, dir, t.TempDir())

	done, err := sh.dispatch("ls")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, sh.local.exp.IterFiles(), 1)
}

func TestDispatchPaneSwitchesFocus(t *testing.T) {
	sh := newTestShell(t, t.TempDir(), t.TempDir())
	_, err := sh.dispatch("pane remote")
	require.NoError(t, err)
	assert.Equal(t, &sh.remote, sh.focus)
}

func TestDispatchPaneRejectsUnknownBridge(t *testing.T) {
	sh := newTestShell(t, t.TempDir(), t.TempDir())
	_, err := sh.dispatch("pane bridge")
	assert.Error(t, err)
}

func TestDispatchGetCopiesFileToLocal(t *testing.T) {
	remoteDir := t.TempDir()
	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(remoteDir, "report.txt"), []byte("payload"), 0o644))
	sh := newTestShell(t, localDir, remoteDir)
	require.NoError(t, sh.list(&sh.remote))

	_, err := sh.dispatch("get report.txt")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(localDir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDispatchPutCopiesFileToRemote(t *testing.T) {
	remoteDir := t.TempDir()
	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "upload.bin"), []byte("xyz"), 0o644))
	sh := newTestShell(t, localDir, remoteDir)
	require.NoError(t, sh.list(&sh.local))

	_, err := sh.dispatch("put upload.bin")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(remoteDir, "upload.bin"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))
}

func TestDispatchFindMaterializesMatchesIntoFocusedExplorer(t *testing.T) {
	localDir := t.TempDir()
	remoteDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(remoteDir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remoteDir, "logs", "app.log"), []byte("l"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remoteDir, "readme.txt"), []byte("r"), 0o644))
	sh := newTestShell(t, localDir, remoteDir)

	_, err := sh.dispatch("pane remote")
	require.NoError(t, err)

	_, err = sh.dispatch("find *.log")
	require.NoError(t, err)

	matches := sh.remote.exp.IterFiles()
	require.Len(t, matches, 1)
	assert.Equal(t, "app.log", matches[0].Name)

	_, err = sh.dispatch("get app.log")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(localDir, "app.log"))
	require.NoError(t, err)
	assert.Equal(t, "l", string(data))
}

func TestDispatchUnknownCommandErrors(t *testing.T) {
	sh := newTestShell(t, t.TempDir(), t.TempDir())
	_, err := sh.dispatch("frobnicate")
	assert.Error(t, err)
}

func TestDispatchQuitRequestsDone(t *testing.T) {
	sh := newTestShell(t, t.TempDir(), t.TempDir())
	done, err := sh.dispatch("quit")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestFirstOr(t *testing.T) {
	assert.Equal(t, "a", firstOr([]string{"a", "b"}, 0))
	assert.Equal(t, "b", firstOr([]string{"a", "b"}, 1))
	assert.Empty(t, firstOr([]string{"a"}, 1))
}
