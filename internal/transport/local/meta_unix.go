//go:build !windows

package local

import (
	"os"
	"syscall"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

// fillPlatformMeta extracts uid/gid/mode-triple from the platform-specific
// stat_t the stdlib hides behind os.FileInfo.Sys() on Unix.
func fillPlatformMeta(e *fsentity.Entity, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	uid := st.Uid
	gid := st.Gid
	e.UID = &uid
	e.GID = &gid
	perm := uint32(info.Mode().Perm())
	e.Mode = &fsentity.Mode{
		Owner: byte((perm >> 6) & 0o7),
		Group: byte((perm >> 3) & 0o7),
		Other: byte(perm & 0o7),
	}
}
