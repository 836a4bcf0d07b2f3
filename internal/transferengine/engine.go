// Package transferengine drives recursive copy/rename/delete/find between
// two transport.Transport endpoints (spec §4.G), reporting progress through
// a per-transfer TransferState instead of a process-wide counter: the
// global-mutable-state shape accounting.go uses (a package-level *Stats
// every Account reader reports into) is exactly what this package replaces
// with one state value owned by the caller of Send/Recv.
package transferengine

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
	"github.com/hoppy-fm/hoppy/internal/transport"
	"github.com/hoppy-fm/hoppy/internal/xfererr"
)

// chunkSize is the suggested copy granularity: large enough to amortize
// per-call overhead, small enough that an abort only overshoots by one
// chunk.
const chunkSize = 65536

// OverwritePolicy governs what happens when a destination file already
// exists; a recursive Send/Recv applies it to every file it writes.
type OverwritePolicy int

const (
	// OverwriteAlways replaces the destination unconditionally.
	OverwriteAlways OverwritePolicy = iota
	// OverwriteNever skips the file, leaving the destination untouched.
	OverwriteNever
	// OverwriteIfNewer replaces the destination only if the source is
	// strictly newer by modification time.
	OverwriteIfNewer
	// OverwriteAsk defers the decision to Policy.Ask for every conflict.
	OverwriteAsk
)

// Policy bundles the overwrite decision and the optional callback
// OverwriteAsk defers to.
type Policy struct {
	Mode OverwritePolicy
	// Ask is consulted once per conflicting destination when Mode is
	// OverwriteAsk. true means replace.
	Ask func(src, dst fsentity.Entity) bool
}

func (p Policy) shouldOverwrite(src, dst fsentity.Entity) bool {
	switch p.Mode {
	case OverwriteAlways:
		return true
	case OverwriteNever:
		return false
	case OverwriteIfNewer:
		return src.ModTime.After(dst.ModTime)
	case OverwriteAsk:
		if p.Ask == nil {
			return false
		}
		return p.Ask(src, dst)
	default:
		return false
	}
}

// TransferState tracks one ongoing transfer. It is owned by the caller
// (the session FSM), not by the engine or the backend: there is exactly
// one TransferState per operation, and nothing outside the goroutine
// driving that operation touches it concurrently.
type TransferState struct {
	Started      time.Time
	BytesWritten int64
	BytesTotal   int64
	aborted      bool
}

// NewTransferState starts a state for a transfer of the given total size.
func NewTransferState(totalBytes int64) *TransferState {
	return &TransferState{Started: time.Now(), BytesTotal: totalBytes}
}

// Abort requests cancellation. The engine observes it before the next
// chunk or child and unwinds.
func (s *TransferState) Abort() { s.aborted = true }

// Aborted reports whether Abort has been called.
func (s *TransferState) Aborted() bool { return s.aborted }

// Progress returns the fraction of bytes written so far, clamped to 1.0.
func (s *TransferState) Progress() float64 {
	total := s.BytesTotal
	if total < 1 {
		total = 1
	}
	p := float64(s.BytesWritten) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

// BytesPerSecond derives transfer speed from elapsed wall time.
func (s *TransferState) BytesPerSecond() float64 {
	elapsed := time.Since(s.Started).Seconds()
	if elapsed == 0 {
		if s.BytesWritten >= s.BytesTotal && s.BytesTotal > 0 {
			return float64(s.BytesTotal)
		}
		return 0
	}
	return float64(s.BytesWritten) / elapsed
}

// ETASeconds derives estimated time remaining from elapsed time and
// progress. ok is false when progress is zero and no estimate exists yet.
func (s *TransferState) ETASeconds() (secs float64, ok bool) {
	progressPct := s.Progress() * 100
	if progressPct <= 0 {
		return 0, false
	}
	elapsed := time.Since(s.Started).Seconds()
	return (elapsed*100/progressPct - elapsed), true
}

// ProgressEvent is emitted after every chunk copied.
type ProgressEvent struct {
	Path         string
	BytesWritten int64
	BytesTotal   int64
	SpeedBps     float64
}

// ProgressFunc receives one ProgressEvent per chunk. Callers use it to
// repaint a progress popup; it must not block.
type ProgressFunc func(ProgressEvent)

// Engine moves entries between two transport.Transport endpoints.
type Engine struct {
	Log *logrus.Logger
}

// New returns an Engine logging through a default logrus.Logger.
func New() *Engine {
	return &Engine{Log: logrus.New()}
}

func (e *Engine) logger() *logrus.Logger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

// Send copies src (from srcT) into destDir on destT, recursing into
// directories. rename overrides the top-level entry's name at the
// destination if non-empty. state tracks byte-level progress across the
// whole call, including nested children; on is called once per chunk.
func (e *Engine) Send(srcT, destT transport.Transport, src fsentity.Entity, destDir, rename string, policy Policy, state *TransferState, on ProgressFunc) error {
	name := src.Name
	if rename != "" {
		name = rename
	}
	destPath := transport.JoinRemote(destDir, name)

	if src.IsDir() {
		return e.sendDir(srcT, destT, src, destPath, policy, state, on)
	}
	return e.sendFile(srcT, destT, src, destPath, policy, state, on)
}

func (e *Engine) sendDir(srcT, destT transport.Transport, src fsentity.Entity, destPath string, policy Policy, state *TransferState, on ProgressFunc) error {
	if state.Aborted() {
		return xfererr.New(xfererr.ProtocolError)
	}
	if err := destT.Mkdir(destPath); err != nil {
		if !xfererr.Is(err, xfererr.DirectoryAlreadyExists) {
			e.logger().WithError(err).WithField("path", destPath).Error("mkdir failed, skipping subtree")
			return err
		}
	}
	children, err := srcT.ListDir(src.AbsPath)
	if err != nil {
		if isConnectionFatal(err) {
			return err
		}
		e.logger().WithError(err).WithField("path", src.AbsPath).Error("could not list directory, skipping subtree")
		return nil
	}
	for _, child := range children {
		if state.Aborted() {
			return xfererr.New(xfererr.ProtocolError)
		}
		if err := e.Send(srcT, destT, child, destPath, "", policy, state, on); err != nil {
			if isConnectionFatal(err) {
				return err
			}
			e.logger().WithError(err).WithField("path", child.AbsPath).Warn("transfer of child failed, continuing with siblings")
		}
	}
	return nil
}

func (e *Engine) sendFile(srcT, destT transport.Transport, src fsentity.Entity, destPath string, policy Policy, state *TransferState, on ProgressFunc) error {
	if dst, err := destT.Stat(destPath); err == nil {
		if !policy.shouldOverwrite(src, dst) {
			e.logger().WithField("path", destPath).Info("skipped by overwrite policy")
			return nil
		}
	}

	reader, cleanupSrc, err := e.openReader(srcT, src)
	if err != nil {
		return err
	}
	defer cleanupSrc()

	writer, commitDest, err := e.openWriter(destT, src, destPath)
	if err != nil {
		return err
	}

	if err := e.copyChunks(reader, writer, state, destPath, on); err != nil {
		commitDest(false)
		e.tryDeletePartial(destT, destPath)
		// copyChunks reports both a user-triggered Abort() and a genuine
		// I/O failure as the same ProtocolError kind (the taxonomy has no
		// distinct "aborted" member); state.Aborted() is the only
		// reliable signal for which one actually happened, so check it
		// directly instead of inspecting the error.
		if state.Aborted() {
			e.logger().WithField("path", destPath).Warn("transfer aborted")
		} else {
			e.logger().WithError(err).WithField("path", destPath).Warn("transfer failed")
		}
		return err
	}
	return commitDest(true)
}

// Recv is the symmetric counterpart of Send: it copies src (living on
// srcT) into destDir on destT. Kept as a distinct entry point per the
// algorithm's "receive is symmetric" note, rather than relying on callers
// to swap arguments to Send themselves.
func (e *Engine) Recv(srcT, destT transport.Transport, src fsentity.Entity, destDir, rename string, policy Policy, state *TransferState, on ProgressFunc) error {
	return e.Send(srcT, destT, src, destDir, rename, policy, state, on)
}

// openReader opens a byte source for src on t, preferring RecvFile and
// falling back to RecvFileNoStream (via a temp file) when the backend
// can't stream.
func (e *Engine) openReader(t transport.Transport, src fsentity.Entity) (io.Reader, func(), error) {
	rc, err := t.RecvFile(src)
	if err == nil {
		return rc, func() { t.OnRecv(rc) }, nil
	}
	if !xfererr.Is(err, xfererr.UnsupportedFeature) {
		return nil, func() {}, err
	}
	noStream, ok := t.(transport.NoStreamReceiver)
	if !ok {
		return nil, func() {}, err
	}
	tmp, tmpErr := os.CreateTemp("", "hoppy-recv-*")
	if tmpErr != nil {
		return nil, func() {}, errors.Wrap(tmpErr, "could not create temp file for no-stream recv")
	}
	if err := noStream.RecvFileNoStream(src, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, func() {}, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, func() {}, errors.Wrap(err, "could not rewind temp file")
	}
	cleanup := func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil {
			e.logger().WithError(rmErr).WithField("path", tmp.Name()).Warn("could not remove temp file")
		}
	}
	return tmp, cleanup, nil
}

// openWriter opens a byte sink for destPath on t, preferring SendFile and
// falling back to SendFileNoStream (buffering through a temp file) when
// the backend can't stream. commit(true) finalizes the write (OnSent, or
// the buffered PutObject); commit(false) only closes a streamed sink, or
// drops the temp file without uploading it.
func (e *Engine) openWriter(t transport.Transport, srcMeta fsentity.Entity, destPath string) (io.Writer, func(ok bool) error, error) {
	sink, err := t.SendFile(srcMeta, destPath)
	if err == nil {
		return sink, func(ok bool) error {
			if !ok {
				sink.Close()
				return nil
			}
			return t.OnSent(sink)
		}, nil
	}
	if !xfererr.Is(err, xfererr.UnsupportedFeature) {
		return nil, nil, err
	}
	noStream, ok := t.(transport.NoStreamSender)
	if !ok {
		return nil, nil, err
	}
	tmp, tmpErr := os.CreateTemp("", "hoppy-send-*")
	if tmpErr != nil {
		return nil, nil, errors.Wrap(tmpErr, "could not create temp file for no-stream send")
	}
	commit := func(ok bool) error {
		defer func() {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil {
				e.logger().WithError(rmErr).WithField("path", tmp.Name()).Warn("could not remove temp file")
			}
		}()
		if !ok {
			return nil
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "could not rewind temp file")
		}
		return noStream.SendFileNoStream(srcMeta, destPath, tmp)
	}
	return tmp, commit, nil
}

// copyChunks moves reader into writer chunkSize bytes at a time, checking
// state.Aborted() before every chunk and emitting a ProgressEvent after
// every chunk written.
func (e *Engine) copyChunks(r io.Reader, w io.Writer, state *TransferState, path string, on ProgressFunc) error {
	buf := make([]byte, chunkSize)
	for {
		if state.Aborted() {
			return xfererr.New(xfererr.ProtocolError)
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return xfererr.Wrap(xfererr.ProtocolError, writeErr, "write failed")
			}
			state.BytesWritten += int64(n)
			if on != nil {
				on(ProgressEvent{
					Path:         path,
					BytesWritten: state.BytesWritten,
					BytesTotal:   state.BytesTotal,
					SpeedBps:     state.BytesPerSecond(),
				})
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return xfererr.Wrap(xfererr.ProtocolError, readErr, "read failed")
		}
	}
}

func (e *Engine) tryDeletePartial(t transport.Transport, destPath string) {
	entity, err := t.Stat(destPath)
	if err != nil {
		return
	}
	if err := t.Remove(entity); err != nil {
		e.logger().WithError(err).WithField("path", destPath).Warn("could not remove partial destination")
	}
}

// Rename dispatches directly to t.Rename (spec §4.G: "rename/delete/copy
// dispatch directly").
func (e *Engine) Rename(t transport.Transport, entity fsentity.Entity, dstPath string) error {
	return t.Rename(entity, dstPath)
}

// Delete dispatches to t.Remove, recursing into directories first so
// backends without native recursive delete still succeed.
func (e *Engine) Delete(t transport.Transport, entity fsentity.Entity) error {
	if entity.IsDir() {
		children, err := t.ListDir(entity.AbsPath)
		if err != nil {
			if isConnectionFatal(err) {
				return err
			}
			e.logger().WithError(err).WithField("path", entity.AbsPath).Error("could not list directory for delete")
			return err
		}
		for _, child := range children {
			if err := e.Delete(t, child); err != nil {
				if isConnectionFatal(err) {
					return err
				}
				e.logger().WithError(err).WithField("path", child.AbsPath).Warn("delete of child failed, continuing with siblings")
			}
		}
	}
	return t.Remove(entity)
}

// Copy dispatches directly to t.Copy for a same-endpoint copy.
func (e *Engine) Copy(t transport.Transport, src fsentity.Entity, dstPath string) error {
	return t.Copy(src, dstPath)
}

// Find returns t.Find's matches; a caller transfers a match by passing it
// to Send like any listed entity.
func (e *Engine) Find(t transport.Transport, pattern string) ([]fsentity.Entity, error) {
	return t.Find(pattern)
}

// isConnectionFatal reports whether err should abort the whole operation
// rather than just the current file/subtree (spec §4.G failure policy).
func isConnectionFatal(err error) bool {
	return xfererr.Is(err, xfererr.ConnectionError) || xfererr.Is(err, xfererr.UninitializedSession)
}
