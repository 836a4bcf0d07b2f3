// Package smb implements Transport over SMB2/3 using
// github.com/cloudsoda/go-smb2. Authentication is NTLM by default; a
// Kerberos ticket-cache path is wired through github.com/jcmturner/gokrb5
// for environments that require it (see KerberosCCache).
package smb

import (
	"context"
	"net"
	"path"
	"strconv"
	"strings"

	smb2 "github.com/cloudsoda/go-smb2"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements Transport over a single mounted SMB share.
type Transport struct {
	// KerberosCCache, when non-empty, selects Kerberos auth from a
	// ccache file path instead of NTLM. Only the common case of an
	// already-kinited ticket cache is supported; full client-side TGT
	// acquisition is out of scope.
	KerberosCCache string
	SPN            string

	conn  net.Conn
	sess  *smb2.Session
	share *smb2.Share
	cwd   string
}

// New returns a disconnected SMB Transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.share != nil {
		return "", nil
	}
	cfg := p.Smb
	if cfg == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(int(cfg.Port)))

	dialer := net.Dialer{}
	tconn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not reach "+addr)
	}

	password := ""
	if cfg.Password != nil {
		password = *cfg.Password
	}

	d := &smb2.Dialer{}
	if t.KerberosCCache != "" {
		cl, err := kerberosClient(t.KerberosCCache)
		if err != nil {
			tconn.Close()
			return "", xfererr.Wrap(xfererr.AuthenticationFailed, err, "kerberos ccache load failed")
		}
		spn := t.SPN
		if spn == "" {
			spn = "cifs/" + cfg.Address
		}
		d.Initiator = &smb2.Krb5Initiator{Client: cl, TargetSPN: spn}
	} else {
		d.Initiator = &smb2.NTLMInitiator{
			User:      cfg.Username,
			Password:  password,
			Domain:    cfg.Workgroup,
			TargetSPN: t.SPN,
		}
	}

	sess, err := d.DialConn(ctx, tconn, addr)
	if err != nil {
		tconn.Close()
		return "", xfererr.Wrap(xfererr.AuthenticationFailed, err, "smb negotiation failed")
	}

	share, err := sess.Mount(cfg.Share)
	if err != nil {
		sess.Logoff()
		tconn.Close()
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "mount share failed")
	}

	t.conn = tconn
	t.sess = sess
	t.share = share
	t.cwd = "/"
	return "", nil
}

// kerberosClient loads a pre-populated credentials cache and the system
// krb5 config; it does not itself acquire a TGT.
func kerberosClient(ccachePath string) (*client.Client, error) {
	ccache, err := credentials.LoadCCache(ccachePath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load("/etc/krb5.conf")
	if err != nil {
		cfg = config.New()
	}
	return client.NewFromCCache(ccache, cfg)
}

func (t *Transport) Disconnect() error {
	if t.share != nil {
		t.share.Umount()
		t.share = nil
	}
	if t.sess != nil {
		err := t.sess.Logoff()
		t.sess = nil
		if t.conn != nil {
			t.conn.Close()
			t.conn = nil
		}
		return err
	}
	return nil
}

func (t *Transport) IsConnected() bool { return t.share != nil }

func (t *Transport) ensure() error {
	if t.share == nil {
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

// sharePath converts an absolute path into a share-relative, backslash
// path the smb2 package expects.
func sharePath(absPath string) string {
	rel := strings.TrimPrefix(absPath, "/")
	return strings.ReplaceAll(rel, "/", "\\")
}

func (t *Transport) ChangeDir(dir string) (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	resolved := t.resolve(dir)
	info, err := t.share.Stat(sharePath(resolved))
	if err != nil {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
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
	infos, err := t.share.ReadDir(sharePath(resolved))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	out := make([]fsentity.Entity, 0, len(infos))
	for _, info := range infos {
		kind := fsentity.KindFile
		if info.IsDir() {
			kind = fsentity.KindDirectory
		}
		e := fsentity.New(path.Join(resolved, info.Name()), kind)
		e.ModTime = info.ModTime()
		e.AccTime = info.ModTime()
		e.CrtTime = info.ModTime()
		if !info.IsDir() {
			e.Size = info.Size()
			e.Ext = path.Ext(info.Name())
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return fsentity.Entity{}, err
	}
	resolved := t.resolve(p)
	info, err := t.share.Stat(sharePath(resolved))
	if err != nil {
		return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	kind := fsentity.KindFile
	if info.IsDir() {
		kind = fsentity.KindDirectory
	}
	e := fsentity.New(resolved, kind)
	e.ModTime = info.ModTime()
	e.AccTime = info.ModTime()
	e.CrtTime = info.ModTime()
	if !info.IsDir() {
		e.Size = info.Size()
		e.Ext = path.Ext(resolved)
	}
	return e, nil
}

func (t *Transport) Mkdir(p string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	resolved := t.resolve(p)
	if info, err := t.share.Stat(sharePath(resolved)); err == nil && info.IsDir() {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if err := t.share.Mkdir(sharePath(resolved), 0o755); err != nil {
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
		err = t.share.RemoveAll(sharePath(e.AbsPath))
	} else {
		err = t.share.Remove(sharePath(e.AbsPath))
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
	if err := t.share.Rename(sharePath(e.AbsPath), sharePath(t.resolve(dstPath))); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	// go-smb2 has no server-side copy verb; the engine falls back to
	// download+upload on this error.
	return xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) Exec(cmd string) (string, error) {
	return "", xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (transport.WriteSink, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	f, err := t.share.Create(sharePath(t.resolve(remotePath)))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.FileCreateDenied, err, "create failed")
	}
	return f, nil
}

func (t *Transport) OnSent(sink transport.WriteSink) error {
	return sink.Close()
}

func (t *Transport) RecvFile(meta fsentity.Entity) (transport.ReadSource, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	f, err := t.share.Open(sharePath(meta.AbsPath))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "open failed")
	}
	return f, nil
}

func (t *Transport) OnRecv(source transport.ReadSource) error {
	return source.Close()
}

func (t *Transport) Find(pattern string) ([]fsentity.Entity, error) {
	root, err := t.Pwd()
	if err != nil {
		return nil, err
	}
	return transport.DefaultFind(root, pattern, t.ListDir)
}
