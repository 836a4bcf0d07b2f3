// Package webdav implements Transport over plain WebDAV (RFC 4918) using
// net/http and encoding/xml directly, matching the teacher's own choice of
// no third-party WebDAV client dependency.
package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// Transport implements Transport over a WebDAV collection rooted at a URI.
type Transport struct {
	client   *http.Client
	baseURL  *url.URL
	username string
	password string
	cwd      string
}

// New returns a disconnected WebDAV Transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Connect(ctx context.Context, p params.ProtocolParams) (string, error) {
	if t.client != nil {
		return "", nil
	}
	cfg := p.WebDAV
	if cfg == nil {
		return "", xfererr.New(xfererr.BadAddress)
	}
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return "", xfererr.Wrap(xfererr.BadAddress, err, "invalid webdav uri")
	}
	t.client = &http.Client{Timeout: 30 * time.Second}
	t.baseURL = u
	t.username = cfg.Username
	t.password = cfg.Password
	t.cwd = "/"

	if _, err := t.propfind(ctx, "/", 0); err != nil {
		t.client = nil
		return "", xfererr.Wrap(xfererr.ConnectionError, err, "could not reach "+cfg.URI)
	}
	return "", nil
}

func (t *Transport) Disconnect() error {
	t.client = nil
	return nil
}

func (t *Transport) IsConnected() bool { return t.client != nil }

func (t *Transport) ensure() error {
	if t.client == nil {
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

func (t *Transport) urlFor(absPath string) string {
	u := *t.baseURL
	u.Path = path.Join(u.Path, absPath)
	return u.String()
}

func (t *Transport) newRequest(ctx context.Context, method, absPath string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.urlFor(absPath), body)
	if err != nil {
		return nil, err
	}
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}
	return req, nil
}

type davResponse struct {
	Href     string `xml:"href"`
	PropStat struct {
		Prop struct {
			DisplayName  string `xml:"displayname"`
			ResourceType struct {
				Collection *struct{} `xml:"collection"`
			} `xml:"resourcetype"`
			ContentLength string `xml:"getcontentlength"`
			LastModified  string `xml:"getlastmodified"`
		} `xml:"prop"`
	} `xml:"propstat"`
}

type multiStatus struct {
	Responses []davResponse `xml:"response"`
}

func (t *Transport) propfind(ctx context.Context, absPath string, depth int) ([]davResponse, error) {
	body := `<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:allprop/></d:propfind>`
	req, err := t.newRequest(ctx, "PROPFIND", absPath, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Depth", strconv.Itoa(depth))
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webdav: propfind %s: %s", absPath, resp.Status)
	}
	var ms multiStatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, err
	}
	return ms.Responses, nil
}

func toEntity(absPath string, r davResponse) fsentity.Entity {
	kind := fsentity.KindFile
	if r.PropStat.Prop.ResourceType.Collection != nil {
		kind = fsentity.KindDirectory
	}
	e := fsentity.New(absPath, kind)
	if t, err := http.ParseTime(r.PropStat.Prop.LastModified); err == nil {
		e.ModTime = t
		e.AccTime = t
		e.CrtTime = t
	}
	if kind == fsentity.KindFile {
		if n, err := strconv.ParseInt(r.PropStat.Prop.ContentLength, 10, 64); err == nil {
			e.Size = n
		}
		e.Ext = path.Ext(absPath)
	}
	return e
}

func (t *Transport) ListDir(dir string) ([]fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	resolved := t.resolve(dir)
	responses, err := t.propfind(context.Background(), resolved, 1)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.DirStatFailed, err, "could not list "+resolved)
	}
	var out []fsentity.Entity
	for _, r := range responses {
		hrefPath, err := url.PathUnescape(r.Href)
		if err != nil {
			continue
		}
		name := path.Base(strings.TrimSuffix(hrefPath, "/"))
		entryPath := path.Join(resolved, name)
		if entryPath == resolved {
			continue
		}
		out = append(out, toEntity(entryPath, r))
	}
	return out, nil
}

func (t *Transport) ChangeDir(dir string) (string, error) {
	if err := t.ensure(); err != nil {
		return "", err
	}
	resolved := t.resolve(dir)
	responses, err := t.propfind(context.Background(), resolved, 0)
	if err != nil || len(responses) == 0 || responses[0].PropStat.Prop.ResourceType.Collection == nil {
		return "", xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	t.cwd = resolved
	return t.cwd, nil
}

func (t *Transport) Stat(p string) (fsentity.Entity, error) {
	if err := t.ensure(); err != nil {
		return fsentity.Entity{}, err
	}
	resolved := t.resolve(p)
	responses, err := t.propfind(context.Background(), resolved, 0)
	if err != nil || len(responses) == 0 {
		return fsentity.Entity{}, xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	return toEntity(resolved, responses[0]), nil
}

func (t *Transport) Mkdir(p string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	resolved := t.resolve(p)
	if _, err := t.Stat(resolved); err == nil {
		return xfererr.New(xfererr.DirectoryAlreadyExists)
	}
	req, err := t.newRequest(context.Background(), "MKCOL", resolved, nil)
	if err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkcol failed")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return xfererr.Wrap(xfererr.FileCreateDenied, err, "mkcol failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return xfererr.Newf(xfererr.FileCreateDenied, "mkcol: %s", resp.Status)
	}
	return nil
}

func (t *Transport) Remove(e fsentity.Entity) error {
	if err := t.ensure(); err != nil {
		return err
	}
	req, err := t.newRequest(context.Background(), "DELETE", e.AbsPath, nil)
	if err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "delete failed")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "delete failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return xfererr.Newf(xfererr.PexError, "delete: %s", resp.Status)
	}
	return nil
}

func (t *Transport) move(srcPath, dstPath string, overwrite bool) error {
	req, err := t.newRequest(context.Background(), "MOVE", srcPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Destination", t.urlFor(dstPath))
	if overwrite {
		req.Header.Set("Overwrite", "T")
	} else {
		req.Header.Set("Overwrite", "F")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webdav: move: %s", resp.Status)
	}
	return nil
}

func (t *Transport) Rename(e fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	if err := t.move(e.AbsPath, t.resolve(dstPath), true); err != nil {
		return xfererr.Wrap(xfererr.PexError, err, "rename failed")
	}
	return nil
}

func (t *Transport) Copy(src fsentity.Entity, dstPath string) error {
	if err := t.ensure(); err != nil {
		return err
	}
	req, err := t.newRequest(context.Background(), "COPY", src.AbsPath, nil)
	if err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy failed")
	}
	req.Header.Set("Destination", t.urlFor(t.resolve(dstPath)))
	req.Header.Set("Overwrite", "T")
	resp, err := t.client.Do(req)
	if err != nil {
		return xfererr.Wrap(xfererr.ProtocolError, err, "copy failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return xfererr.Newf(xfererr.ProtocolError, "copy: %s", resp.Status)
	}
	return nil
}

func (t *Transport) Exec(cmd string) (string, error) {
	return "", xfererr.New(xfererr.UnsupportedFeature)
}

func (t *Transport) SendFile(_ fsentity.Entity, remotePath string) (transport.WriteSink, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	resolved := t.resolve(remotePath)
	done := make(chan error, 1)
	go func() {
		req, err := t.newRequest(context.Background(), "PUT", resolved, pr)
		if err != nil {
			done <- err
			return
		}
		resp, err := t.client.Do(req)
		if err != nil {
			done <- err
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			done <- fmt.Errorf("webdav: put: %s", resp.Status)
			return
		}
		done <- nil
	}()
	return &putSink{w: pw, done: done}, nil
}

type putSink struct {
	w    *io.PipeWriter
	done chan error
}

func (s *putSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *putSink) Close() error {
	s.w.Close()
	return <-s.done
}

func (t *Transport) OnSent(sink transport.WriteSink) error {
	return sink.Close()
}

func (t *Transport) RecvFile(meta fsentity.Entity) (transport.ReadSource, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	req, err := t.newRequest(context.Background(), "GET", meta.AbsPath, nil)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "get failed")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, xfererr.Wrap(xfererr.NoSuchFileOrDirectory, err, "get failed")
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, xfererr.New(xfererr.NoSuchFileOrDirectory)
	}
	return resp.Body, nil
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
