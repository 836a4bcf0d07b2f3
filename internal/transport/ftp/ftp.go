// Package ftp implements Transport over FTP and FTPS using
// github.com/jlaffaye/ftp.
package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements Transport over a single *ftp.ServerConn. Explicit
// FTPS is selected by the Explicit field that New sets; implicit FTPS is
// not supported.
type Transport struct {
	// Explicit selects AUTH TLS (explicit FTPS) instead of a bare
	// cleartext connection. Implicit FTPS is intentionally unsupported,
	// matching the address grammar's ftp/ftps split (spec §4.I).
	Explicit bool

	conn *ftp.ServerConn
	cwd  string
}

// New returns a disconnected FTP/FTPS Transport. explicit selects AUTH TLS.
func New(explicit bool) *Transport {
	return &Transport{Explicit: explicit}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.conn != nil {
		return "", nil
	}
	g := p.Generic
	if g == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}
	addr := fmt.Sprintf("%s:%d", g.Address, g.Port)

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(30 * time.Second),
	}
	if t.Explicit {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{InsecureSkipVerify: true}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not reach "+addr)
	}
	password := ""
	if g.Password != nil {
		password = *g.Password
	}
	if err := conn.Login(g.Username, password); err != nil {
		conn.Quit()
		return "", xfererr.Wrap(xfererr.AuthenticationFailed, err, "login rejected")
	}
	t.conn = conn
	if cwd, err := conn.CurrentDir(); err == nil {
		t.cwd = cwd
	} else {
		t.cwd = "/"
	}
	return "", nil
}

func (t *Transport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Quit()
	t.conn = nil
	return err
}

func (t *Transport) IsConnected() bool { return t.conn != nil }

func (t *Transport) ensure() error {
	if t.conn == nil {
		return xfererr.New(xfererr.UninitializedSession)
	}
	return nil
}

func (t *Transport) Pwd() (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	return t.cwd, nil
}

func (t *Transport) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Clean(path.Join(t.cwd, p))
}

func (t *Transport) ChangeDir(dir string) (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	resolved := t.resolve(dir)
	if err := t.conn.ChangeDir(resolved); err != nil {
		return "", xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "change dir failed")
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resolved := t.resolve(dir)
	entries, err := t.conn.List(resolved)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	out := make([]fsentity.Entity, 0, len(entries))
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		out = append(out, toEntity(path.Join(resolved, entry.Name), entry))
	}
	return out, nil
}

func toEntity(absPath string, entry *ftp.Entry) fsentity.Entity {
	kind := fsentity.KindFile
	switch entry.Type {
	case ftp.EntryTypeFolder:
		kind = fsentity.KindDirectory
	case ftp.EntryTypeLink:
		kind = fsentity.KindSymlink
	}
	e := fsentity.New(absPath, kind)
	e.ModTime = entry.Time
	e.AccTime = entry.Time
	e.CrtTime = entry.Time
	if kind == fsentity.KindFile {
		e.Size = int64(entry.Size)
		e.Ext = path.Ext(absPath)
	}
	return e
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return fsentity.Entity{}, err
	}
	resolved := t.resolve(p)
	entries, err := t.conn.List(path.Dir(resolved))
	if err != nil {
		return fsentity.Entity{}, xfererr.Wrap(xfererr.DirStatFailed, err, "stat failed")
	}
	base := path.Base(resolved)
	for _, entry := range entries {
		if entry.Name == base {
			return toEntity(resolved, entry), nil
		}
	}
	return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
}

func (t *Transport) Mkdir(p string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	resolved := t.resolve(p)
	if _, err := t.Stat(resolved); err == nil {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if err := t.conn.MakeDir(resolved); err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if err := t.ensure(); err != nil {
		return err
	}
	var err error
	if e.IsDir() {
		err = t.conn.RemoveDirRecur(e.AbsPath)
	} else {
		err = t.conn.Delete(e.AbsPath)
	}
	if err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "remove failed")
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if err := t.conn.Rename(e.AbsPath, t.resolve(dstPath)); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	// FTP has no server-side copy verb; the engine falls back to
	// download+upload on this error.
	return xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) Exec(cmd string) (string, error) {
	return "", xfererr.New(xfererr.UnsupportedFeature)
}

// ftpSink wraps the pipe side of a background Stor call so the upload's
// eventual error reaches OnSent/Close instead of being discarded, the
// same shape as scp.scpSink.Close and kube's exec-based sink.
type ftpSink struct {
	*io.PipeWriter
	done chan error
}

func (s *ftpSink) Close() error {
	s.PipeWriter.Close()
	return <-s.done
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	resolved := t.resolve(remotePath)
	done := make(chan error, 1)
	go func() {
		err := t.conn.Stor(resolved, pr)
		pr.CloseWithError(err)
		done <- err
	}()
	return &ftpSink{PipeWriter: pw, done: done}, nil
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	if err := sink.Close(); err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "upload failed")
	}
	return nil
}

func (t *Transport) RecvFile(meta fsentity.Entity) (io.ReadCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resp, err := t.conn.Retr(meta.AbsPath)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "retrieve failed")
	}
	return resp, nil
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
