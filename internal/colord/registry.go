// SPDX-License-Identifier: GPL-3.0-only

// Package colord wraps the colormgr CLI: the device registry queries and
// the profile import/assignment sequence that activates a generated
// profile on a display.
package colord

//go:generate mockgen -source=registry.go -destination=mocks/colord_mock.go -package=mocks

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/g15tools/vibranced/internal/runner"
)

// DefaultBin is the colormgr binary name.
const DefaultBin = "colormgr"

// Registry is the color management device registry boundary.
type Registry interface {
	// ListDevices returns the IDs of all devices known to the registry.
	ListDevices(ctx context.Context) ([]string, error)

	// EnsureRegistered registers displayID as a persistent display
	// device unless it is already present. Idempotent.
	EnsureRegistered(ctx context.Context, displayID string) error
}

// Applier associates a generated profile file with a display device.
type Applier interface {
	Apply(ctx context.Context, displayID, profilePath string) error
}

// Client implements Registry and Applier over colormgr.
type Client struct {
	bin    string
	runner runner.Runner
}

var (
	_ Registry = (*Client)(nil)
	_ Applier  = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBin overrides the colormgr binary name.
func WithBin(bin string) ClientOption {
	return func(c *Client) {
		c.bin = bin
	}
}

// WithRunner sets a custom tool runner for testing.
func WithRunner(r runner.Runner) ClientOption {
	return func(c *Client) {
		c.runner = r
	}
}

// NewClient creates a colormgr client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		bin:    DefaultBin,
		runner: runner.Exec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDevices queries colormgr for all registered device IDs.
func (c *Client) ListDevices(ctx context.Context) ([]string, error) {
	if err := c.runner.LookPath(c.bin); err != nil {
		return nil, err
	}

	out, err := c.runner.Run(ctx, c.bin, "get-devices")
	if err != nil {
		return nil, fmt.Errorf("failed to query device registry: %w", err)
	}
	return parseDeviceIDs(out), nil
}

// EnsureRegistered registers the display with the registry if absent.
// A second call for the same ID performs no create command.
func (c *Client) EnsureRegistered(ctx context.Context, displayID string) error {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return err
	}

	for _, id := range devices {
		if id == displayID {
			log.Debug().Str("display", displayID).Msg("Display already registered")
			return nil
		}
	}

	_, err = c.runner.Run(ctx, c.bin, "create-device", displayID, "persistent", "display")
	if err != nil {
		return fmt.Errorf("failed to create device %s: %w", displayID, err)
	}

	log.Info().Str("display", displayID).Msg("Registered display with colord")
	return nil
}

// parseDeviceIDs extracts device IDs from colormgr get-devices output.
// Relevant lines look like "Device ID:     xrandr-eDP-1".
func parseDeviceIDs(out []byte) []string {
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "Device ID" {
			continue
		}
		if id := strings.TrimSpace(value); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
