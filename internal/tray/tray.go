// Package tray provides a system tray interface for the bodydetect service.
package tray

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/getlantern/systray"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/command"
	"github.com/ayusman/bodydetect/internal/session"
)

// Dispatcher executes the commands issued from the menu.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Response
}

type menuAction int

const (
	actionCamera menuAction = iota
	actionPose
	actionMask
	actionSwitch
)

// requestFor returns the command a click on action issues given the
// current state.
func requestFor(action menuAction, st session.State) command.Request {
	switch action {
	case actionCamera:
		if st.CameraRunning {
			return command.Request{Method: command.MethodStopCameraStream}
		}
		return command.Request{Method: command.MethodStartCameraStream}
	case actionPose:
		if st.PoseEnabled {
			return command.Request{Method: command.MethodDisablePoseDetection}
		}
		return command.Request{Method: command.MethodEnablePoseDetection}
	case actionMask:
		if st.MaskEnabled {
			return command.Request{Method: command.MethodDisableBodyMaskDetection}
		}
		return command.Request{Method: command.MethodEnableBodyMaskDetection}
	}

	facing := capture.FacingFront
	if st.LensFacing == capture.FacingFront {
		facing = capture.FacingBack
	}
	args, _ := json.Marshal(map[string]string{"lensFacing": facing.String()})
	return command.Request{Method: command.MethodSwitchCamera, Arguments: args}
}

// Tray represents the system tray application.
type Tray struct {
	dispatcher Dispatcher
	onSettings func()
	onQuit     func()
	state      session.State
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuCamera *systray.MenuItem
	menuPose   *systray.MenuItem
	menuMask   *systray.MenuItem
	menuSwitch *systray.MenuItem
}

// New creates a new Tray issuing commands through d.
func New(d Dispatcher, initial session.State) *Tray {
	return &Tray{
		dispatcher: d,
		state:      initial,
	}
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Bodydetect")
	systray.SetTooltip("Bodydetect pose and body mask detection")

	t.mu.Lock()
	t.menuCamera = systray.AddMenuItem("Start camera", "Start or stop the camera stream")
	systray.AddSeparator()
	t.menuPose = systray.AddMenuItemCheckbox("Pose detection", "Toggle pose detection", false)
	t.menuMask = systray.AddMenuItemCheckbox("Body mask", "Toggle body mask segmentation", false)
	t.menuSwitch = systray.AddMenuItem("Switch camera", "Switch between front and back camera")
	t.render()
	t.mu.Unlock()

	systray.AddSeparator()
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit bodydetect")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuCamera.ClickedCh:
				t.click(actionCamera)
			case <-t.menuPose.ClickedCh:
				t.click(actionPose)
			case <-t.menuMask.ClickedCh:
				t.click(actionMask)
			case <-t.menuSwitch.ClickedCh:
				t.click(actionSwitch)
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) click(action menuAction) {
	t.mu.RLock()
	req := requestFor(action, t.state)
	t.mu.RUnlock()

	// Dispatch outside the lock; the resulting state change calls Update.
	resp := t.dispatcher.Dispatch(context.Background(), req)
	if !resp.Success {
		log.WithField("method", req.Method).Warnf("Tray command failed: %v", resp.Error)
	}
}

// Update refreshes the menu from st. It is safe to call before Run.
func (t *Tray) Update(st session.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = st
	t.render()
}

// render must be called with mu held.
func (t *Tray) render() {
	if t.menuCamera == nil {
		return
	}

	if t.state.CameraRunning {
		t.menuCamera.SetTitle("● Stop camera")
	} else {
		t.menuCamera.SetTitle("○ Start camera")
	}
	setChecked(t.menuPose, t.state.PoseEnabled)
	setChecked(t.menuMask, t.state.MaskEnabled)
	t.menuSwitch.SetTitle("Switch camera (" + t.state.LensFacing.String() + ")")
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// State returns the state last shown in the menu.
func (t *Tray) State() session.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
