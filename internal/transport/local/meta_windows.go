//go:build windows

package local

import (
	"os"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

// fillPlatformMeta is a no-op on Windows: there is no POSIX uid/gid/mode
// triple to recover from os.FileInfo.
func fillPlatformMeta(e *fsentity.Entity, info os.FileInfo) {}
