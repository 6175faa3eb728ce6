// SPDX-License-Identifier: GPL-3.0-only

// Package udev provides display hot-plug detection via netlink/udev DRM
// events, so the daemon can re-apply the session's color settings when a
// display reconnects.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// A larger buffer prevents ENOBUFS errors during hot-plug bursts; dock
	// connects generate many netlink messages rapidly. 2MB handles typical
	// scenarios.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB
)

const (
	// DRMSubsystem is the kernel subsystem emitting display connector events.
	DRMSubsystem = "drm"

	// HotplugEnvKey marks a change event as a connector hot-plug.
	HotplugEnvKey = "HOTPLUG"
)

// Event represents a display connector hot-plug event.
type Event struct {
	// DevPath is the kernel object path of the DRM device.
	DevPath string
}

// EventHandler is called when a display hot-plug event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error
// condition (e.g., netlink buffer overflow) and events may have been
// dropped.
type RecoveryHandler func()

// Monitor watches for DRM connector change events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler: handler,
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers
// from errors. This should trigger a settings re-apply to recover from
// potentially missed events.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for DRM events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	// Increase socket receive buffer to prevent ENOBUFS during hot-plug bursts
	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
		// Continue anyway - the default buffer may still work for most cases
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.createMatcher()

	m.quit = m.conn.Monitor(queue, errs, matcher)
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	// Signal the monitor goroutine to stop
	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher creates a matcher for DRM connector hot-plug events.
// Connector changes arrive as "change" actions on the drm subsystem with
// HOTPLUG=1 in the environment.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	changeAction := "change"
	rules.AddRule(netlink.RuleDefinition{
		Action: &changeAction,
		Env: map[string]string{
			"SUBSYSTEM":   "^" + DRMSubsystem + "$",
			HotplugEnvKey: "^1$",
		},
	})

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			// Check if we're stopping
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Handle netlink buffer overflow (ENOBUFS) gracefully.
			// When this occurs, events may have been dropped, so we trigger
			// a recovery pass.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	// Try SO_RCVBUFFORCE first - bypasses rmem_max limit (requires CAP_NET_ADMIN)
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// Fall back to SO_RCVBUF - limited by net.core.rmem_max sysctl
	// The kernel will cap the value at rmem_max and double it internally
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	// Check for ENOBUFS using errors.Is for wrapped error support
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// Fallback: check error message for non-wrapped cases from the udev library
	// Use case-insensitive matching for robustness
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	// The matcher already restricts delivery to drm change events with
	// HOTPLUG=1, but re-check the essentials in case rules loosen.
	if uevent.Action != netlink.CHANGE || uevent.Env[HotplugEnvKey] != "1" {
		return
	}

	log.Info().
		Str("devpath", uevent.KObj).
		Msg("Display connector hot-plug detected")

	if m.handler != nil {
		m.handler(Event{DevPath: uevent.KObj})
	}
}
