// Package session implements the top-level activity state machine (spec
// §4.H): authenticate → explore → popup → transfer → disconnect. It owns
// no transport or explorer state directly — the FSM only tracks which
// phase the session is in and the bookkeeping a phase transition needs
// (which pane has focus, a popup's parent phase, the in-flight transfer
// state) — leaving the actual I/O to the caller.
package session

import (
	"github.com/sirupsen/logrus"

	"github.com/hoppy-fm/hoppy/internal/transferengine"
)

// Phase is one state of the activity FSM.
type Phase int

const (
	PhaseAuthenticating Phase = iota
	PhaseIdle
	PhasePopup
	PhaseTransferring
	PhaseDisconnecting
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePopup:
		return "popup"
	case PhaseTransferring:
		return "transferring"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseTerminated:
		return "terminated"
	default:
		return "authenticating"
	}
}

// Pane identifies which of the two explorers has focus.
type Pane int

const (
	PaneLocal Pane = iota
	PaneRemote
)

// PopupKind enumerates popup kinds in decreasing priority order: a lower
// value is more urgent. A popup mount only supersedes the currently
// mounted popup if its kind outranks it (spec §4.H: "Error > Fatal > Wait
// > Progress > Confirm > Input > Help").
type PopupKind int

const (
	PopupError PopupKind = iota
	PopupFatal
	PopupWait
	PopupProgress
	PopupConfirm
	PopupInput
	PopupHelp
)

func (k PopupKind) outranks(other PopupKind) bool { return k < other }

// Popup carries a mounted popup's kind, message, and the callback(s) its
// kind expects. Only the callback relevant to Kind is ever invoked.
type Popup struct {
	Kind     PopupKind
	Message  string
	OnYes    func()
	OnNo     func()
	OnInput  func(string)
	OnSelect func(index int)
}

// TerminationReason is carried by PhaseTerminated and tells the host
// which activity to swap to next.
type TerminationReason int

const (
	ReasonQuit TerminationReason = iota
	ReasonDisconnect
	ReasonEnterSetup
)

// Session is the activity FSM. It is not safe for concurrent use — the
// single-threaded main loop (spec §5) is its only caller.
type Session struct {
	phase Phase
	focus Pane

	popup       *Popup
	parentPhase Phase
	parentFocus Pane

	transfer *transferengine.TransferState
	reason   TerminationReason

	log *logrus.Logger
}

// New returns a Session in PhaseAuthenticating.
func New(log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{phase: PhaseAuthenticating, log: log}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Focus returns the pane focused while idle.
func (s *Session) Focus() Pane { return s.focus }

// Popup returns the mounted popup, or nil if none is mounted.
func (s *Session) Popup() *Popup { return s.popup }

// TransferState returns the in-flight transfer's state, or nil outside
// PhaseTransferring.
func (s *Session) TransferState() *transferengine.TransferState { return s.transfer }

// TerminationReason returns why the session terminated; only meaningful
// once Phase() == PhaseTerminated.
func (s *Session) TerminationReason() TerminationReason { return s.reason }

// ConnectOK transitions Authenticating -> Idle(Local-focused).
func (s *Session) ConnectOK() {
	if s.phase != PhaseAuthenticating {
		return
	}
	s.phase = PhaseIdle
	s.focus = PaneLocal
	s.log.Info("connected, entering explorer")
}

// ConnectFail transitions Authenticating -> Popup(Fatal, Authenticating).
func (s *Session) ConnectFail(message string) {
	if s.phase != PhaseAuthenticating {
		return
	}
	s.mountOver(PhaseAuthenticating, Popup{Kind: PopupFatal, Message: message})
	s.log.WithField("reason", message).Error("connection failed")
}

// FocusPane switches which pane is active while Idle.
func (s *Session) FocusPane(p Pane) {
	if s.phase == PhaseIdle {
		s.focus = p
	}
}

// BeginTransfer transitions Idle -> Transferring(state), mounting a
// progress popup.
func (s *Session) BeginTransfer(state *transferengine.TransferState) {
	if s.phase != PhaseIdle {
		return
	}
	s.phase = PhaseTransferring
	s.transfer = state
	s.popup = &Popup{Kind: PopupProgress, Message: "Transferring…"}
}

// CompleteTransfer transitions Transferring -> Idle on normal completion.
func (s *Session) CompleteTransfer() {
	if s.phase != PhaseTransferring {
		return
	}
	s.phase = PhaseIdle
	s.transfer = nil
	s.popup = nil
}

// AbortTransfer sets the in-flight transfer's aborted flag; the engine
// observes it on its next chunk/child check and unwinds, at which point
// the caller invokes CompleteTransfer to return to Idle with a warning
// logged.
func (s *Session) AbortTransfer() {
	if s.phase != PhaseTransferring || s.transfer == nil {
		return
	}
	s.transfer.Abort()
	s.log.Warn("transfer aborted")
}

// MountPopup mounts a popup over the current phase, remembering it as
// the parent to return to on dismissal. If a popup is already mounted,
// the new one only supersedes it when it outranks the current one;
// otherwise MountPopup is a no-op and returns false.
func (s *Session) MountPopup(p Popup) bool {
	if s.phase == PhasePopup && s.popup != nil && !p.Kind.outranks(s.popup.Kind) {
		return false
	}
	if s.phase != PhasePopup {
		s.mountOver(s.phase, p)
		return true
	}
	s.popup = &p
	return true
}

func (s *Session) mountOver(parent Phase, p Popup) {
	s.parentPhase = parent
	s.parentFocus = s.focus
	s.phase = PhasePopup
	s.popup = &p
}

// DismissPopup pops back to the phase that was active before the popup
// was mounted.
func (s *Session) DismissPopup() {
	if s.phase != PhasePopup {
		return
	}
	s.phase = s.parentPhase
	s.focus = s.parentFocus
	s.popup = nil
}

// RequestDisconnect mounts a ConfirmDisconnect popup over any state.
func (s *Session) RequestDisconnect() {
	if s.phase == PhaseTerminated {
		return
	}
	s.MountPopup(Popup{Kind: PopupConfirm, Message: "Disconnect?"})
}

// ConfirmDisconnect resolves a mounted confirm-disconnect popup: yes
// terminates the session, no dismisses back to the parent phase.
func (s *Session) ConfirmDisconnect(yes bool) {
	if s.phase != PhasePopup || s.popup == nil || s.popup.Kind != PopupConfirm {
		return
	}
	if !yes {
		s.DismissPopup()
		return
	}
	s.Terminate(ReasonDisconnect)
}

// Terminate transitions to PhaseTerminated with the given reason. The
// host inspects TerminationReason() to decide which activity to swap to
// next (spec §4.H).
func (s *Session) Terminate(reason TerminationReason) {
	s.phase = PhaseDisconnecting
	s.reason = reason
	s.popup = nil
	s.transfer = nil
	s.phase = PhaseTerminated
}
