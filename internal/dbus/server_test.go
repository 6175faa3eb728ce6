package dbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g15tools/vibranced/internal/vibrance"
)

// mockController implements Controller for testing.
type mockController struct {
	devices  []string
	listErr  error
	applyErr error
	applied  []appliedCall
	resets   []string
	lastBy   map[string]vibrance.Settings
}

type appliedCall struct {
	display  string
	settings vibrance.Settings
}

func (m *mockController) Apply(_ context.Context, displayID string, settings vibrance.Settings) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied = append(m.applied, appliedCall{display: displayID, settings: settings})
	return nil
}

func (m *mockController) Reset(_ context.Context, displayID string) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.resets = append(m.resets, displayID)
	return nil
}

func (m *mockController) Last(displayID string) vibrance.Settings {
	if s, ok := m.lastBy[displayID]; ok {
		return s
	}
	return vibrance.Neutral
}

func (m *mockController) ListDevices(context.Context) ([]string, error) {
	return m.devices, m.listErr
}

func TestNewServer(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)
	assert.NotNil(t, server)
	assert.Equal(t, Controller(controller), server.controller)
}

func TestServer_ListDevices(t *testing.T) {
	controller := &mockController{devices: []string{"xrandr-eDP-1", "xrandr-HDMI-1"}}
	server := NewServer(controller)

	devices, err := server.ListDevices()
	require.Nil(t, err)
	assert.Equal(t, []string{"xrandr-eDP-1", "xrandr-HDMI-1"}, devices)
}

func TestServer_ListDevices_Error(t *testing.T) {
	controller := &mockController{listErr: errors.New("colormgr missing")}
	server := NewServer(controller)

	devices, err := server.ListDevices()
	assert.NotNil(t, err)
	assert.Nil(t, devices)
}

func TestServer_GetColorSettings(t *testing.T) {
	controller := &mockController{
		lastBy: map[string]vibrance.Settings{
			"xrandr-eDP-1": {Saturation: 1.5, Gamma: 1.2},
		},
	}
	server := NewServer(controller)

	saturation, gamma, err := server.GetColorSettings("xrandr-eDP-1")
	require.Nil(t, err)
	assert.Equal(t, 1.5, saturation)
	assert.Equal(t, 1.2, gamma)
}

func TestServer_GetColorSettings_UntouchedDisplayIsNeutral(t *testing.T) {
	server := NewServer(&mockController{})

	saturation, gamma, err := server.GetColorSettings("xrandr-DP-3")
	require.Nil(t, err)
	assert.Equal(t, 1.0, saturation)
	assert.Equal(t, 1.0, gamma)
}

func TestServer_GetColorSettings_EmptyDisplay(t *testing.T) {
	server := NewServer(&mockController{})

	_, _, err := server.GetColorSettings("")
	assert.NotNil(t, err)
}

func TestServer_SetColorSettings(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)

	err := server.SetColorSettings("xrandr-eDP-1", 1.5, 1.2)
	require.Nil(t, err)

	require.Len(t, controller.applied, 1)
	assert.Equal(t, "xrandr-eDP-1", controller.applied[0].display)
	assert.Equal(t, vibrance.Settings{Saturation: 1.5, Gamma: 1.2}, controller.applied[0].settings)
}

func TestServer_SetColorSettings_ApplyError(t *testing.T) {
	controller := &mockController{applyErr: vibrance.ErrInvalidGamma}
	server := NewServer(controller)

	err := server.SetColorSettings("xrandr-eDP-1", 1.0, 9.0)
	assert.NotNil(t, err)
}

func TestServer_SetColorSettings_RateLimit(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)

	// Exhaust the burst, then expect rejection.
	var rejected bool
	for i := 0; i < 10; i++ {
		if err := server.SetColorSettings("xrandr-eDP-1", 1.0, 1.0); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "rate limiter should reject rapid applies")
	assert.LessOrEqual(t, len(controller.applied), 3)
}

func TestServer_ResetColorSettings(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)

	err := server.ResetColorSettings("xrandr-eDP-1")
	require.Nil(t, err)
	assert.Equal(t, []string{"xrandr-eDP-1"}, controller.resets)
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer(&mockController{})
	assert.NoError(t, server.Stop())
}

func TestServer_EmitWithoutConnectionIsSafe(t *testing.T) {
	server := NewServer(&mockController{})
	assert.NotPanics(t, func() {
		server.emitColorSettingsChanged("xrandr-eDP-1", 1.0, 1.0)
	})
}
