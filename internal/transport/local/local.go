// Package local provides the host-bridge Transport backed by the local
// filesystem. It is always available and is used as one end of every
// transfer (spec §4.D).
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements transport.Transport against the OS filesystem.
type Transport struct {
	connected bool
	cwd       string
}

// New returns a disconnected local Transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Connect(_ context.Context, p params.ProtocolParams) (string, error) {
	if t.connected {
		return "", nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not determine working directory")
	}
	if p.Generic != nil && p.Generic.Address != "" {
		wd = p.Generic.Address
	}
	t.cwd = wd
	t.connected = true
	return "", nil
}

func (t *Transport) Disconnect() error {
	t.connected = false
	return nil
}

func (t *Transport) IsConnected() bool { return t.connected }

func (t *Transport) Pwd() (string, error) {
	if !t.connected {
		return "", xfererr.New(xfererr.UninitializedSession)
	}
	return t.cwd, nil
}

func (t *Transport) ChangeDir(dir string) (string, error) {
	if !t.connected {
		return "", xfererr.New(xfererr.UninitializedSession)
	}
	resolved := t.resolve(dir)
	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	if err != nil {
		return "", xfererr.Wrap(xfererr.PexError, err, "stat failed")
	}
	if !info.IsDir() {
		return "", xfererr.Newf(xfererr.NoSuchFileOrDirectory, "%s is not a directory", resolved)
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(t.cwd, p))
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	if !t.connected {
		return nil, xfererr.New(xfererr.UninitializedSession)
	}
	resolved := t.resolve(dir)
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	out := make([]fsentity.Entity, 0, len(entries))
	for _, de := range entries {
		e, err := toEntity(filepath.Join(resolved, de.Name()))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if !t.connected {
		return fsentity.Entity{}, xfererr.New(xfererr.UninitializedSession)
	}
	return toEntity(t.resolve(p))
}

func toEntity(absPath string) (fsentity.Entity, error) {
	lst, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return fsentity.Entity{}, xfererr.Wrap(xfererr.PexError, err, "stat failed")
	}
	kind := fsentity.KindFile
	if lst.IsDir() {
		kind = fsentity.KindDirectory
	}
	e := fsentity.New(absPath, kind)
	e.ModTime = lst.ModTime()
	e.AccTime = lst.ModTime()
	e.CrtTime = lst.ModTime()
	if !lst.IsDir() {
		e.Size = lst.Size()
		e.Ext = filepath.Ext(absPath)
	}
	fillPlatformMeta(&e, lst)

	if lst.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(absPath)
		if err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(absPath), target)
			}
			inner, innerErr := toEntity(target)
			e.Kind = fsentity.KindSymlink
			if innerErr == nil {
				e.Symlink = &inner
			}
		}
	}
	return e, nil
}

func (t *Transport) Mkdir(p string) error {
	if !t.connected {
		return xfererr.New(xfererr.UninitializedSession)
	}
	resolved := t.resolve(p)
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if err := os.Mkdir(resolved, 0o755); err != nil {
		if os.IsNotExist(err) {
			return xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if !t.connected {
		return xfererr.New(xfererr.UninitializedSession)
	}
	if err := os.RemoveAll(e.AbsPath); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "remove failed")
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if !t.connected {
		return xfererr.New(xfererr.UninitializedSession)
	}
	if err := os.Rename(e.AbsPath, t.resolve(dstPath)); err != nil {
		if os.IsNotExist(err) {
			return xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	if !t.connected {
		return xfererr.New(xfererr.UninitializedSession)
	}
	in, err := os.Open(src.AbsPath)
	if err != nil {
		return xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "open source failed")
	}
	defer in.Close()
	out, err := os.Create(t.resolve(dstPath))
	if err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "create destination failed")
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy failed")
	}
	return nil
}

func (t *Transport) Exec(cmd string) (string, error) {
	return "", xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	f, err := os.Create(t.resolve(remotePath))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.FileCreateDenied, err, "create failed")
	}
	return f, nil
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	return sink.Close()
}

func (t *Transport) RecvFile(meta fsentity.Entity) (io.ReadCloser, error) {
	f, err := os.Open(meta.AbsPath)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "open failed")
	}
	return f, nil
}

func (t *Transport) OnRecv(source io.ReadCloser) error {
	return source.Close()
}

func (t *Transport) Find(pattern string) ([]fsentity.Entity, error) {
	root, err := t.Pwd()
	if err != nil {
		return nil, err
	}
	return transport.DefaultFind(root, pattern, t.ListDir)
}
