// Package scp implements Transport over SSH using the classic scp(1) wire
// protocol (scp -f / scp -t piped through an ssh.Session), reusing the same
// golang.org/x/crypto/ssh connection machinery as the sftp backend.
package scp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"

	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// KeyStorage resolves a host's private key material (spec §3.J).
type KeyStorage interface {
	Lookup(address string, port uint16, username string) (pemBytes []byte, ok bool)
}

// Transport implements Transport by shelling scp -f/-t through an SSH
// session and shell commands (ls -1a / test / mkdir / rm / mv) for directory
// operations, since the scp protocol itself has no listing verb.
type Transport struct {
	Keys KeyStorage

	client *ssh.Client
	cwd    string
}

// New returns a disconnected SCP Transport.
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
	t.client = ssh.NewClient(sshConn, chans, reqs)
	t.cwd = "."
	if out, err := t.runCmd("pwd"); err == nil {
		t.cwd = strings.TrimSpace(out)
	}
	return "", nil
}

func (t *Transport) Disconnect() error {
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

func (t *Transport) IsConnected() bool { return t.client != nil }

func (t *Transport) ensure() error {
	if t.client == nil {
		return xfererr.New(xfererr.UninitializedSession)
	}
	return nil
}

func (t *Transport) runCmd(cmd string) (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	session, err := t.client.NewSession()
	if err != nil {
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not open session")
	}
	defer session.Close()
	out, err := session.CombinedOutput(cmd)
	return string(out), err
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
	resolved := t.resolve(dir)
	if _, err := t.runCmd(fmt.Sprintf("test -d %s", shellQuote(resolved))); err != nil {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	resolved := t.resolve(dir)
	out, err := t.runCmd(fmt.Sprintf("ls -1a %s", shellQuote(resolved)))
	if err != nil {
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	var entries []fsentity.Entity
	for _, name := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if name == "" || name == "." || name == ".." {
			continue
		}
		e, err := t.Stat(path.Join(resolved, name))
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	resolved := t.resolve(p)
	// POSIX stat(1) isn't portable across remotes; fall back to test -d.
	out, err := t.runCmd(fmt.Sprintf("test -d %s && echo D || (test -L %s && echo L || echo F)", shellQuote(resolved), shellQuote(resolved)))
	if err != nil {
		return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	kind := fsentity.KindFile
	switch strings.TrimSpace(out) {
	case "D":
		kind = fsentity.KindDirectory
	case "L":
		kind = fsentity.KindSymlink
	}
	e := fsentity.New(resolved, kind)
	if kind == fsentity.KindFile {
		if sizeOut, err := t.runCmd(fmt.Sprintf("wc -c < %s", shellQuote(resolved))); err == nil {
			if n, err := strconv.ParseInt(strings.TrimSpace(sizeOut), 10, 64); err == nil {
				e.Size = n
			}
		}
		e.Ext = path.Ext(resolved)
	}
	return e, nil
}

func (t *Transport) Mkdir(p string) error {
	resolved := t.resolve(p)
	if _, err := t.runCmd(fmt.Sprintf("test -d %s", shellQuote(resolved))); err == nil {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if _, err := t.runCmd(fmt.Sprintf("mkdir %s", shellQuote(resolved))); err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if _, err := t.runCmd(fmt.Sprintf("rm -rf %s", shellQuote(e.AbsPath))); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "remove failed")
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if _, err := t.runCmd(fmt.Sprintf("mv %s %s", shellQuote(e.AbsPath), shellQuote(t.resolve(dstPath)))); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	if _, err := t.runCmd(fmt.Sprintf("cp -r %s %s", shellQuote(src.AbsPath), shellQuote(t.resolve(dstPath)))); err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy failed")
	}
	return nil
}

func (t *Transport) Exec(cmd string) (string, error) {
	return t.runCmd(cmd)
}

// scpSink streams bytes into a remote file via `scp -t`. SendFile writes the
// protocol header before returning the sink; Close writes the trailing zero
// byte and waits for the remote scp to exit.
type scpSink struct {
	session *ssh.Session
	stdin   io.WriteCloser
	done    chan error
	name    string
	size    int64
}

func (t *Transport) SendFile(localMeta fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	session, err := t.client.NewSession()
	if err != nil {
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "could not open session")
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "stdin pipe failed")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "stdout pipe failed")
	}

	resolved := t.resolve(remotePath)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(fmt.Sprintf("scp -qt %s", shellQuote(path.Dir(resolved))))
	}()

	if err := readAck(stdout); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp sink rejected transfer start")
	}
	header := fmt.Sprintf("C0644 %d %s\n", localMeta.Size, path.Base(resolved))
	if _, err := io.WriteString(stdin, header); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp header write failed")
	}
	if err := readAck(stdout); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp sink rejected header")
	}

	return &scpSink{session: session, stdin: stdin, done: done, name: path.Base(resolved), size: localMeta.Size}, nil
}

func (s *scpSink) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *scpSink) Close() error {
	if _, err := io.WriteString(s.stdin, "\x00"); err != nil {
		return err
	}
	s.stdin.Close()
	return <-s.done
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	if s, ok := sink.(*scpSink); ok {
		return s.Close()
	}
	return sink.Close()
}

type scpSource struct {
	session *ssh.Session
	reader  io.Reader
}

func (s *scpSource) Read(p []byte) (int, error) { return s.reader.Read(p) }
func (s *scpSource) Close() error                { return s.session.Close() }

func (t *Transport) RecvFile(remoteMeta fsentity.Entity) (io.ReadCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	session, err := t.client.NewSession()
	if err != nil {
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "could not open session")
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "stdin pipe failed")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ConnectionError, err, "stdout pipe failed")
	}
	if err := session.Start(fmt.Sprintf("scp -qf %s", shellQuote(remoteMeta.AbsPath))); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp source start failed")
	}

	if _, err := stdin.Write([]byte{0}); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp ack write failed")
	}
	br := bufio.NewReader(stdout)
	header, err := br.ReadString('\n')
	if err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp header read failed")
	}
	size := parseScpSize(header)
	if _, err := stdin.Write([]byte{0}); err != nil {
		session.Close()
		return nil, xfererr.Wrap(xfererr.ProtocolError, err, "scp ack write failed")
	}
	return &scpSource{session: session, reader: io.LimitReader(br, size)}, nil
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

// readAck consumes one scp protocol status byte: 0 is success, nonzero is
// an error whose remaining line is the message.
func readAck(r io.Reader) error {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if buf[0] == 0 {
		return nil
	}
	msg, _ := bufio.NewReader(r).ReadString('\n')
	return fmt.Errorf("scp: %s", strings.TrimSpace(msg))
}

// parseScpSize extracts the byte count from a "C0644 1234 name\n" header.
func parseScpSize(header string) int64 {
	fields := strings.Fields(strings.TrimSpace(header))
	if len(fields) < 2 {
		return 0
	}
	n, _ := strconv.ParseInt(fields[1], 10, 64)
	return n
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
