// Package kube implements Transport against a container in a Kubernetes
// pod by shelling out to the kubectl binary instead of speaking the
// Kubernetes API directly.
package kube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strconv"
	"strings"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements Transport against one pod/container by running
// `kubectl exec` for every operation, file streaming included.
type Transport struct {
	// Binary is the kubectl executable path; defaults to "kubectl".
	Binary string

	cfg *params.Kube
	cwd string
}

// New returns a disconnected Kube Transport.
func New() *Transport {
	return &Transport{Binary: "kubectl"}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.cfg != nil {
		return "", nil
	}
	cfg := p.Kube
	if cfg == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}
	if t.Binary == "" {
		t.Binary = "kubectl"
	}
	t.cfg = cfg
	t.cwd = "/"
	if _, err := t.exec(ctx, "pwd"); err != nil {
		t.cfg = nil
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not exec in pod")
	}
	return "", nil
}

func (t *Transport) Disconnect() error {
	t.cfg = nil
	return nil
}

func (t *Transport) IsConnected() bool { return t.cfg != nil }

func (t *Transport) ensure() error {
	if t.cfg == nil {
		return xfererr.New(xfererr.UninitializedSession)
	}
	return nil
}

func (t *Transport) baseArgs() []string {
	args := []string{}
	if t.cfg.Namespace != "" {
		args = append(args, "-n", t.cfg.Namespace)
	}
	if t.cfg.ClusterURL != "" {
		args = append(args, "--server", t.cfg.ClusterURL)
	}
	if t.cfg.Username != "" {
		args = append(args, "--user", t.cfg.Username)
	}
	if t.cfg.ClientCert != "" {
		args = append(args, "--client-certificate", t.cfg.ClientCert)
	}
	if t.cfg.ClientKey != "" {
		args = append(args, "--client-key", t.cfg.ClientKey)
	}
	return args
}

func (t *Transport) exec(ctx context.Context, shellCmd string) (string, error) {
	if err := t.ensure(); err != nil && t.cfg == nil {
		return "", err
	}
	args := append(t.baseArgs(), "exec", t.cfg.Pod)
	if t.cfg.Container != "" {
		args = append(args, "-c", t.cfg.Container)
	}
	args = append(args, "--", "sh", "-c", shellCmd)
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("kubectl exec: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
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
	if _, err := t.exec(context.Background(), fmt.Sprintf("test -d %s", shellQuote(resolved))); err != nil {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	resolved := t.resolve(dir)
	out, err := t.exec(context.Background(), fmt.Sprintf("ls -1a %s", shellQuote(resolved)))
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
	out, err := t.exec(context.Background(), fmt.Sprintf(
		"test -d %s && echo D || (test -L %s && echo L || echo F)",
		shellQuote(resolved), shellQuote(resolved)))
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
		if sizeOut, err := t.exec(context.Background(), fmt.Sprintf("wc -c < %s", shellQuote(resolved))); err == nil {
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
	if _, err := t.exec(context.Background(), fmt.Sprintf("test -d %s", shellQuote(resolved))); err == nil {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	if _, err := t.exec(context.Background(), fmt.Sprintf("mkdir %s", shellQuote(resolved))); err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkdir failed")
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if _, err := t.exec(context.Background(), fmt.Sprintf("rm -rf %s", shellQuote(e.AbsPath))); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "remove failed")
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if _, err := t.exec(context.Background(), fmt.Sprintf("mv %s %s", shellQuote(e.AbsPath), shellQuote(t.resolve(dstPath)))); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	if _, err := t.exec(context.Background(), fmt.Sprintf("cp -r %s %s", shellQuote(src.AbsPath), shellQuote(t.resolve(dstPath)))); err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy failed")
	}
	return nil
}

func (t *Transport) Exec(cmd string) (string, error) {
	return t.exec(context.Background(), cmd)
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (io.WriteCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resolved := t.resolve(remotePath)
	args := append(t.baseArgs(), "exec", "-i", t.cfg.Pod)
	if t.cfg.Container != "" {
		args = append(args, "-c", t.cfg.Container)
	}
	args = append(args, "--", "sh", "-c", fmt.Sprintf("cat > %s", shellQuote(resolved)))
	cmd := exec.Command(t.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, xfererr.Wrap(xfererr.FileCreateDenied, err, "stdin pipe failed")
	}
	if err := cmd.Start(); err != nil {
		return nil, xfererr.Wrap(xfererr.FileCreateDenied, err, "exec start failed")
	}
	return &sink{stdin: stdin, cmd: cmd}, nil
}

type sink struct {
	stdin io.WriteCloser
	cmd   *exec.Cmd
}

func (s *sink) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *sink) Close() error {
	s.stdin.Close()
	return s.cmd.Wait()
}

func (t *Transport) OnSent(sink io.WriteCloser) error {
	return sink.Close()
}

type source struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
}

func (s *source) Read(p []byte) (int, error) { return s.stdout.Read(p) }
func (s *source) Close() error {
	s.stdout.Close()
	return s.cmd.Wait()
}

func (t *Transport) RecvFile(meta fsentity.Entity) (io.ReadCloser, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	args := append(t.baseArgs(), "exec", t.cfg.Pod)
	if t.cfg.Container != "" {
		args = append(args, "-c", t.cfg.Container)
	}
	args = append(args, "--", "cat", meta.AbsPath)
	cmd := exec.Command(t.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "stdout pipe failed")
	}
	if err := cmd.Start(); err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "exec start failed")
	}
	return &source{stdout: stdout, cmd: cmd}, nil
}

func (t *Transport) OnRecv(src io.ReadCloser) error {
	return src.Close()
}

func (t *Transport) Find(pattern string) ([]fsentity.Entity, error) {
	root, err := t.Pwd()
	if err != nil {
		return nil, err
	}
	return transport.DefaultFind(root, pattern, t.ListDir)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
