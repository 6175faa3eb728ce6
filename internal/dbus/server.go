// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus service implementation for display
// vibrance control.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/g15tools/vibranced/internal/vibrance"
)

// ErrRateLimitExceeded is returned when apply requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// rateLimitPerSecond is the maximum number of profile applies per second.
	// Each apply spawns external tools.
	rateLimitPerSecond = 2

	// rateLimitBurst is the maximum burst size for profile applies.
	rateLimitBurst = 2
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.g15tools.Vibranced"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/g15tools/Vibranced"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.g15tools.Vibranced"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="ListDevices">
      <arg name="devices" type="as" direction="out"/>
    </method>
    <method name="GetColorSettings">
      <arg name="display" type="s" direction="in"/>
      <arg name="saturation" type="d" direction="out"/>
      <arg name="gamma" type="d" direction="out"/>
    </method>
    <method name="SetColorSettings">
      <arg name="display" type="s" direction="in"/>
      <arg name="saturation" type="d" direction="in"/>
      <arg name="gamma" type="d" direction="in"/>
    </method>
    <method name="ResetColorSettings">
      <arg name="display" type="s" direction="in"/>
    </method>
    <signal name="ColorSettingsChanged">
      <arg name="display" type="s"/>
      <arg name="saturation" type="d"/>
      <arg name="gamma" type="d"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Controller is the apply pipeline boundary. This allows for mocking in
// tests.
type Controller interface {
	// Apply synthesizes and activates a profile for the display.
	Apply(ctx context.Context, displayID string, settings vibrance.Settings) error

	// Reset applies the neutral settings to the display.
	Reset(ctx context.Context, displayID string) error

	// Last returns the settings most recently applied in this session.
	Last(displayID string) vibrance.Settings

	// ListDevices returns the registry's device IDs.
	ListDevices(ctx context.Context) ([]string, error)
}

// Server implements the D-Bus service for vibrance control.
//
// Thread safety:
//   - The Controller serializes per-display applies internally.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	controller  Controller
	rateLimiter *rate.Limiter
}

// NewServer creates a new D-Bus server around the given controller.
func NewServer(controller Controller) *Server {
	return &Server{
		controller:  controller,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	// Export the server object
	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	// Export introspectable interface
	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	// Request the service name
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	// Store connection with mutex protection
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ListDevices returns the IDs of all displays known to the color
// management registry.
func (s *Server) ListDevices() ([]string, *dbus.Error) {
	devices, err := s.controller.ListDevices(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		return nil, dbus.MakeFailedError(err)
	}

	log.Debug().Int("count", len(devices)).Msg("Listed devices")
	return devices, nil
}

// GetColorSettings returns the saturation and gamma most recently applied
// to a display in this session. Displays never touched report 1.0/1.0.
func (s *Server) GetColorSettings(display string) (float64, float64, *dbus.Error) {
	if display == "" {
		return 0, 0, dbus.MakeFailedError(vibrance.ErrEmptyDisplayID)
	}

	settings := s.controller.Last(display)
	log.Debug().
		Str("display", display).
		Float64("saturation", settings.Saturation).
		Float64("gamma", settings.Gamma).
		Msg("Got color settings")
	return settings.Saturation, settings.Gamma, nil
}

// SetColorSettings applies a saturation/gamma pair to a display.
// Saturation is accepted in [0, 4] and gamma in (0.1, 3.0].
func (s *Server) SetColorSettings(display string, saturation, gamma float64) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetColorSettings")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	settings := vibrance.Settings{Saturation: saturation, Gamma: gamma}
	if err := s.controller.Apply(context.Background(), display, settings); err != nil {
		log.Error().Err(err).Str("display", display).Msg("Failed to apply color settings")
		return dbus.MakeFailedError(err)
	}

	log.Debug().
		Str("display", display).
		Float64("saturation", saturation).
		Float64("gamma", gamma).
		Msg("Set color settings")

	s.emitColorSettingsChanged(display, saturation, gamma)
	return nil
}

// ResetColorSettings applies the neutral 1.0/1.0 settings to a display.
func (s *Server) ResetColorSettings(display string) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for ResetColorSettings")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if err := s.controller.Reset(context.Background(), display); err != nil {
		log.Error().Err(err).Str("display", display).Msg("Failed to reset color settings")
		return dbus.MakeFailedError(err)
	}

	s.emitColorSettingsChanged(display, vibrance.Neutral.Saturation, vibrance.Neutral.Gamma)
	return nil
}

// emitColorSettingsChanged emits the ColorSettingsChanged signal.
func (s *Server) emitColorSettingsChanged(display string, saturation, gamma float64) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".ColorSettingsChanged", display, saturation, gamma)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit ColorSettingsChanged signal")
	}
}
