// Package transport defines the uniform operation contract every storage
// backend implements (spec §4.C) and the default find() walk shared by
// backends that don't provide a native search.
package transport

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/params"
)

// WriteSink is returned by SendFile: the caller writes bytes to it, then
// invokes OnSent to commit (needed for FTP's end-of-data semantics).
type WriteSink = io.WriteCloser

// ReadSource is returned by RecvFile: the caller reads bytes from it, then
// invokes OnRecv to release any resources held open for the read.
type ReadSource = io.ReadCloser

// Transport is the uniform contract of §4.C. Every backend (including
// Local, which represents the host filesystem) implements it.
type Transport interface {
	// Connect is idempotent: a no-op if already connected. Returns an
	// optional banner string on success.
	Connect(ctx context.Context, p params.ProtocolParams) (banner string, err error)
	// Disconnect is idempotent.
	Disconnect() error
	IsConnected() bool

	Pwd() (string, error)
	ChangeDir(path string) (newPwd string, err error)
	ListDir(path string) ([]fsentity.Entity, error)
	Stat(path string) (fsentity.Entity, error)
	Mkdir(path string) error
	Remove(entity fsentity.Entity) error
	Rename(entity fsentity.Entity, dstPath string) error

	// Copy performs a same-endpoint copy. Backends that cannot do this
	// server-side return an *xfererr.Error of kind UnsupportedFeature so
	// the engine can fall back to download+upload.
	Copy(src fsentity.Entity, dstPath string) error

	// Exec runs a remote command and returns its stdout. Backends that
	// have no command channel (S3, WebDAV, pure FTP) return
	// UnsupportedFeature.
	Exec(cmd string) (stdout string, err error)

	// SendFile opens a byte sink for an upload. Backends that cannot
	// stream return UnsupportedFeature and must implement
	// NoStreamSender instead.
	SendFile(localMeta fsentity.Entity, remotePath string) (WriteSink, error)
	// OnSent commits a previously opened WriteSink.
	OnSent(sink WriteSink) error

	// RecvFile opens a byte source for a download; see SendFile.
	RecvFile(remoteMeta fsentity.Entity) (ReadSource, error)
	// OnRecv releases a previously opened ReadSource.
	OnRecv(source ReadSource) error

	// Find returns entities under pwd() matching a wildcard pattern
	// (?, *, literal). DefaultFind implements the fallback DFS; backends
	// may shadow it with a native search.
	Find(pattern string) ([]fsentity.Entity, error)
}

// NoStreamSender is implemented by backends that can only upload a whole
// object at once (e.g. S3 PutObject). The engine tries SendFile first and
// falls back to this on UnsupportedFeature.
type NoStreamSender interface {
	SendFileNoStream(localMeta fsentity.Entity, remotePath string, r io.Reader) error
}

// NoStreamReceiver is the download-side analogue of NoStreamSender.
type NoStreamReceiver interface {
	RecvFileNoStream(remoteMeta fsentity.Entity, w io.Writer) error
}

// DefaultFind performs a recursive DFS from root using list, matching each
// entry's Name against a wildcard pattern (?, *, literal). Backends without
// a native search call this from their Find method.
func DefaultFind(root string, pattern string, list func(dir string) ([]fsentity.Entity, error)) ([]fsentity.Entity, error) {
	var out []fsentity.Entity
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := list(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			if wildcardMatch(pattern, e.Name) {
				out = append(out, e)
			}
			if e.IsDir() {
				if err := walk(e.AbsPath); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// wildcardMatch matches name against a pattern containing '?' (any single
// rune) and '*' (any run of runes), the rest literal.
func wildcardMatch(pattern, name string) bool {
	return wildcardMatchRunes([]rune(pattern), []rune(name))
}

func wildcardMatchRunes(pat, name []rune) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	switch pat[0] {
	case '*':
		// Try consuming zero or more characters of name.
		for i := 0; i <= len(name); i++ {
			if wildcardMatchRunes(pat[1:], name[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(name) == 0 {
			return false
		}
		return wildcardMatchRunes(pat[1:], name[1:])
	default:
		if len(name) == 0 || pat[0] != name[0] {
			return false
		}
		return wildcardMatchRunes(pat[1:], name[1:])
	}
}

// JoinRemote joins a remote directory and a name using forward slashes,
// regardless of host OS (every non-local backend is slash-addressed).
func JoinRemote(dir, name string) string {
	if dir == "" || dir == "/" {
		return "/" + strings.TrimPrefix(name, "/")
	}
	return path.Join(dir, name)
}
