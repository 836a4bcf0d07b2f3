// Package sftp implements Transport over SSH/SFTP using github.com/pkg/sftp
// and golang.org/x/crypto/ssh, with optional ssh-agent key discovery
// (github.com/xanzy/ssh-agent).
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"

	pkgsftp "github.com/pkg/sftp"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// KeyStorage is the injected collaborator that resolves a host's private
// key material (spec §3.J); core never reads key files from disk itself.
type KeyStorage interface {
	Lookup(address string, port uint16, username string) (pemBytes []byte, ok bool)
}

// Transport implements Transport over an SFTP session multiplexed on a
// single SSH connection.
type Transport struct {
	Keys KeyStorage

	client *ssh.Client
	sftp   *pkgsftp.Client
	cwd    string
}

// New returns a disconnected SFTP Transport. keys may be nil, in which case
// only ssh-agent keys and the password are attempted.
func New(keys KeyStorage) *Transport {
	return &Transport{Keys: keys}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.client != nil {
		return "", nil
	}
	g := p.Generic
	if g == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}
	cfg := &ssh.ClientConfig{
		User:            g.Username,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	if t.Keys != nil {
		if pemBytes, ok := t.Keys.Lookup(g.Address, g.Port, g.Username); ok {
			if signer, err := ssh.ParsePrivateKey(pemBytes); err == nil {
				cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
			}
		}
	}
	if agentClient, _, err := sshagent.New(); err == nil && agentClient != nil {
		if signers, err := agentClient.Signers(); err == nil {
			cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signers...))
		}
	}
	if g.Password != nil {
		cfg.Auth = append(cfg.Auth, ssh.Password(*g.Password))
	}

	addr := fmt.Sprintf("%s:%d", g.Address, g.Port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not reach "+addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return "", xfererr.Wrap(xfererr.AuthenticationFailed, err, "ssh handshake failed")
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := pkgsftp.NewClient(client)
	if err != nil {
		client.Close()
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "sftp subsystem failed")
	}

	t.client = client
	t.sftp = sftpClient
	if cwd, err := sftpClient.Getwd(); err == nil {
		t.cwd = cwd
	} else {
		t.cwd = "/"
	}
	return "", nil
}

func (t *Transport) Disconnect() error {
	if t.sftp != nil {
		t.sftp.Close()
		t.sftp = nil
	}
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

func (t *Transport) IsConnected() bool { return t.client != nil && t.sftp != nil }

func (t *Transport) ensure() error {
	if !t.IsConnected() {
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
	info, err := t.sftp.Stat(resolved)
	if os.IsNotExist(err) {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	if err != nil {
		return "", xfererr.Wrap(xfererr.DirStatFailed, err, "stat failed")
	}
	if !info.IsDir() {
		return "", xfererr.Newf(xfererr.NoSuchFileOrDirectory, "%s is not a directory", resolved)
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resolved := t.resolve(dir)
	infos, err := t.sftp.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	out := make([]fsentity.Entity, 0, len(infos))
	for _, info := range infos {
		out = append(out, toEntity(path.Join(resolved, info.Name()), info))
	}
	return out, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return fsentity.Entity{}, err
	}
	resolved := t.resolve(p)
	info, err := t.sftp.Lstat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
		}
		return fsentity.Entity{}, xfererr.Wrap(xfererr.PexError, err, "stat failed")
	}
	e := toEntity(resolved, info)
	if info.Mode()&os.ModeSymlink != 0 {
		if target, err := t.sftp.ReadLink(resolved); err == nil {
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(resolved), target)
			}
			if targetInfo, err := t.sftp.Stat(target); err == nil {
				inner := toEntity(target, targetInfo)
				e.Symlink = &inner
			}
		}
	}
	return e, nil
}

func toEntity(absPath string, info os.FileInfo) fsentity.Entity {
	kind := fsentity.KindFile
	switch {
	case info.IsDir():
		kind = fsentity.KindDirectory
	case info.Mode()&os.ModeSymlink != 0:
		kind = fsentity.KindSymlink
	}
	e := fsentity.New(absPath, kind)
	e.ModTime = info.ModTime()
	e.AccTime = info.ModTime()
	e.CrtTime = info.ModTime()
	if kind == fsentity.KindFile {
		e.Size = info.Size()
		e.Ext = path.Ext(absPath)
	}
	if st, ok := info.Sys().(*pkgsftp.FileStat); ok {
		uid, gid := st.UID, st.GID
		e.UID = &uid
		e.GID = &gid
	}
	perm := uint32(info.Mode().Perm())
	e.Mode = &fsentity.Mode{
		Owner: byte((perm >> 6) & 0o7),
		Group: byte((perm >> 3) & 0o7),
		Other: byte(perm & 0o7),
	}
	return e
}

func (t *Transport) Mkdir(p string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	resolved := t.resolve(p)
	if info, err := t.sftp.Stat(resolved); err == nil && info.IsDir() {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if err := t.sftp.Mkdir(resolved); err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if err := t.ensure(); err != nil {
		return err
	}
	var rmErr error
	if e.IsDir() {
		rmErr = t.removeDirRecursive(e.AbsPath)
	} else {
		rmErr = t.sftp.Remove(e.AbsPath)
	}
	if rmErr != nil {
		return xfererr.Wrap(xfererr.PexError, rmErr, "remove failed")
	}
	return nil
}

func (t *Transport) removeDirRecursive(dir string) error {
	infos, err := t.sftp.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := t.removeDirRecursive(child); err != nil {
				return err
			}
		} else if err := t.sftp.Remove(child); err != nil {
			return err
		}
	}
	return t.sftp.RemoveDirectory(dir)
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if err := t.sftp.Rename(e.AbsPath, t.resolve(dstPath)); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	// SFTP has no server-side copy verb; the engine falls back to
	// download+upload on this error.
	return xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) Exec(cmd string) (string, error) {
	if t.client == nil {
		return "", xfererr.New(xfererr.UninitializedSession)
	}
	session, err := t.client.NewSession()
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not open session")
	}
	defer session.Close()
	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(out), xfererr.Wrap(xfererr.ProtocolError, err, "command failed")
	}
	return string(out), nil
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	f, err := t.sftp.Create(t.resolve(remotePath))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.FileCreateDenied, err, "create failed")
	}
	return f, nil
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	return sink.Close()
}

func (t *Transport) RecvFile(meta fsentity.Entity) (io.ReadCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	f, err := t.sftp.Open(meta.AbsPath)
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
