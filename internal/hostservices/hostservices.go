// Package hostservices defines the small injected-capability interfaces
// the session FSM consumes instead of touching the OS directly (spec
// §3/§4.J): clock, sleep, SSH key lookup, text-editor invocation, and
// notifications. Every interface here is substitutable in tests; the
// default implementations are thin OS wrappers, grounded the way
// host.rs wraps environment/hostname/editor access behind small methods
// on the activity rather than inlining std calls at every call site.
package hostservices

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/hoppy-fm/hoppy/internal/params"
)

// Clock abstracts wall-clock time so TransferState-adjacent code can be
// tested without real sleeps.
type Clock interface {
	Now() time.Time
}

// Sleeper abstracts blocking sleeps (the main loop's poll-timeout wait).
type Sleeper interface {
	Sleep(d time.Duration)
}

// KeyStorage resolves a host's private key material; the sftp and scp
// backends each declare a package-local interface with this identical
// method set, so any concrete implementation here satisfies both without
// an adapter.
type KeyStorage interface {
	Lookup(address string, port uint16, username string) (pemBytes []byte, ok bool)
}

// BookmarkStore resolves and persists named connection bookmarks, keyed
// by name to a params.FileTransferParams, mirroring the original's
// config/bookmarks/*.rs TOML store. As with KeyStorage, the core only
// consumes this interface: no on-disk format is implemented here.
type BookmarkStore interface {
	Get(name string) (params.FileTransferParams, bool)
	Put(name string, p params.FileTransferParams)
	Delete(name string)
	Names() []string
}

// Editor spawns the user's configured text editor on a local file and
// waits for it to exit, the Go equivalent of setting $EDITOR and letting
// the terminal take over.
type Editor interface {
	Open(path string) error
}

// Notifier surfaces a message to the user outside the TUI (desktop
// notification, bell, etc).
type Notifier interface {
	Notify(title, body string) error
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SystemSleeper is the default Sleeper, backed by time.Sleep.
type SystemSleeper struct{}

func (SystemSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// DirKeyStorage resolves key material from "<Dir>/<address>_<port>_<username>"
// files, the simplest on-disk layout for a key lookup table.
type DirKeyStorage struct {
	Dir string
}

func (d DirKeyStorage) Lookup(address string, port uint16, username string) ([]byte, bool) {
	if d.Dir == "" {
		return nil, false
	}
	name := fmt.Sprintf("%s_%d_%s", address, port, username)
	data, err := os.ReadFile(d.Dir + string(os.PathSeparator) + name)
	if err != nil {
		return nil, false
	}
	return data, true
}

// MemBookmarkStore is an in-process BookmarkStore, useful as a default
// where no persisted bookmark file is configured and in tests; it holds
// no on-disk state, consistent with the core never owning that format.
type MemBookmarkStore struct {
	entries map[string]params.FileTransferParams
}

func (m *MemBookmarkStore) Get(name string) (params.FileTransferParams, bool) {
	p, ok := m.entries[name]
	return p, ok
}

func (m *MemBookmarkStore) Put(name string, p params.FileTransferParams) {
	if m.entries == nil {
		m.entries = make(map[string]params.FileTransferParams)
	}
	m.entries[name] = p
}

func (m *MemBookmarkStore) Delete(name string) {
	delete(m.entries, name)
}

func (m *MemBookmarkStore) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names
}

// SystemEditor runs the given executable against path, connecting its
// std streams to the current process so a terminal editor behaves
// normally once the TUI yields the screen.
type SystemEditor struct {
	// Command defaults to the $EDITOR environment variable, then the
	// platform default ("notepad" on Windows, "nano" everywhere else).
	Command string
}

func (e SystemEditor) Open(path string) error {
	editor := e.Command
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		if runtime.GOOS == "windows" {
			editor = "notepad"
		} else {
			editor = "nano"
		}
	}
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// NopNotifier discards every notification; used when no OS-level
// notification channel is wired (spec §1 scopes notification internals
// out of the core).
type NopNotifier struct{}

func (NopNotifier) Notify(title, body string) error { return nil }

// Hostname reports the local machine's short hostname, falling back to
// "localhost" exactly as the distillation's get_hostbridge_hostname does.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	if i := strings.IndexByte(h, '.'); i >= 0 {
		h = h[:i]
	}
	return h
}

// ConnectionMessage builds the human-readable "Connecting to…" banner for
// a protocol, mirroring host.rs's get_connection_msg per-variant switch.
func ConnectionMessage(protocol params.Protocol, p params.ProtocolParams) string {
	switch {
	case p.Generic != nil:
		return fmt.Sprintf("Connecting to %s:%d…", p.Generic.Address, p.Generic.Port)
	case p.S3 != nil:
		return fmt.Sprintf("Connecting to %s…", p.S3.Bucket)
	case p.Smb != nil:
		return fmt.Sprintf(`Connecting to \\%s\%s…`, p.Smb.Address, p.Smb.Share)
	case p.WebDAV != nil:
		return fmt.Sprintf("Connecting to %s…", p.WebDAV.URI)
	case p.Kube != nil:
		namespace := p.Kube.Namespace
		if namespace == "" {
			namespace = "default"
		}
		return fmt.Sprintf("Connecting to Kube namespace %s…", namespace)
	default:
		return "Connecting…"
	}
}

// EndpointLabel returns the address the user will recognize this endpoint
// by, mirroring host.rs's get_hostname.
func EndpointLabel(p params.ProtocolParams) string {
	switch {
	case p.Generic != nil:
		return p.Generic.Address
	case p.S3 != nil:
		return p.S3.Bucket
	case p.Smb != nil:
		return p.Smb.Address
	case p.WebDAV != nil:
		return p.WebDAV.URI
	case p.Kube != nil:
		if p.Kube.Namespace != "" {
			return p.Kube.Namespace
		}
		return "default"
	default:
		return ""
	}
}
