package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoppy-fm/hoppy/internal/transferengine"
)

func TestConnectOKEntersIdleLocalFocused(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, PaneLocal, s.Focus())
}

func TestConnectFailMountsFatalPopup(t *testing.T) {
	s := New(nil)
	s.ConnectFail("boom")
	assert.Equal(t, PhasePopup, s.Phase())
	assert.Equal(t, PopupFatal, s.Popup().Kind)
}

func TestBeginTransferMountsProgressPopup(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	state := transferengine.NewTransferState(100)
	s.BeginTransfer(state)
	assert.Equal(t, PhaseTransferring, s.Phase())
	assert.Equal(t, PopupProgress, s.Popup().Kind)
}

func TestCompleteTransferReturnsToIdle(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	s.BeginTransfer(transferengine.NewTransferState(100))
	s.CompleteTransfer()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Nil(t, s.TransferState())
}

func TestAbortTransferSetsAbortedFlag(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	state := transferengine.NewTransferState(100)
	s.BeginTransfer(state)
	s.AbortTransfer()
	assert.True(t, state.Aborted())
}

func TestMountPopupRespectsHigherPriority(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	assert.True(t, s.MountPopup(Popup{Kind: PopupInput}))
	assert.False(t, s.MountPopup(Popup{Kind: PopupHelp}))
	assert.True(t, s.MountPopup(Popup{Kind: PopupError}))
	assert.Equal(t, PopupError, s.Popup().Kind)
}

func TestDismissPopupReturnsToParentPhase(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	s.FocusPane(PaneRemote)
	s.MountPopup(Popup{Kind: PopupHelp})
	s.DismissPopup()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, PaneRemote, s.Focus())
}

func TestRequestDisconnectThenConfirmTerminates(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	s.RequestDisconnect()
	assert.Equal(t, PhasePopup, s.Phase())
	assert.Equal(t, PopupConfirm, s.Popup().Kind)

	s.ConfirmDisconnect(true)
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Equal(t, ReasonDisconnect, s.TerminationReason())
}

func TestRequestDisconnectDeclineReturnsToIdle(t *testing.T) {
	s := New(nil)
	s.ConnectOK()
	s.RequestDisconnect()
	s.ConfirmDisconnect(false)
	assert.Equal(t, PhaseIdle, s.Phase())
}
