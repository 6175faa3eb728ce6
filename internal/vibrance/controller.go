// SPDX-License-Identifier: GPL-3.0-only

// Package vibrance sequences one complete vibrance apply: registration,
// template load, document edit, conversion, application and pruning.
package vibrance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/g15tools/vibranced/internal/cache"
	"github.com/g15tools/vibranced/internal/color"
	"github.com/g15tools/vibranced/internal/colord"
	"github.com/g15tools/vibranced/internal/icctool"
	"github.com/g15tools/vibranced/internal/profile"
)

// ErrEmptyDisplayID is returned when no display identifier is provided.
var ErrEmptyDisplayID = errors.New("display ID cannot be empty")

// ErrInvalidSaturation is returned for saturation outside [0, 4].
var ErrInvalidSaturation = errors.New("saturation must be between 0.0 and 4.0")

// ErrInvalidGamma is returned for gamma outside (0.1, 3.0].
var ErrInvalidGamma = errors.New("gamma must be greater than 0.1 and at most 3.0")

// DefaultToolTimeout bounds each external tool invocation.
const DefaultToolTimeout = 15 * time.Second

// Settings are the user-facing values applied to one display. 1.0/1.0 is
// neutral.
type Settings struct {
	Saturation float64
	Gamma      float64
}

// Neutral is the identity settings pair.
var Neutral = Settings{Saturation: 1.0, Gamma: 1.0}

// Controller owns the apply sequence. Applies for the same display are
// serialized; the generated-file directory and the registration
// check-then-act are not safe under interleaving.
type Controller struct {
	registry    colord.Registry
	codec       icctool.Codec
	applier     colord.Applier
	cache       *cache.Manager
	templates   []string
	toolTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	lastMu sync.RWMutex
	last   map[string]Settings
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithTemplatePaths overrides the base template candidate paths.
func WithTemplatePaths(paths []string) ControllerOption {
	return func(c *Controller) {
		if len(paths) > 0 {
			c.templates = paths
		}
	}
}

// WithToolTimeout overrides the per-invocation external tool timeout.
func WithToolTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.toolTimeout = d
		}
	}
}

// NewController wires the apply sequence together.
func NewController(registry colord.Registry, codec icctool.Codec, applier colord.Applier, cacheMgr *cache.Manager, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry:    registry,
		codec:       codec,
		applier:     applier,
		cache:       cacheMgr,
		templates:   profile.DefaultTemplatePaths,
		toolTimeout: DefaultToolTimeout,
		locks:       make(map[string]*sync.Mutex),
		last:        make(map[string]Settings),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply synthesizes a profile for the settings and activates it on the
// display. Registration and pruning are best-effort and never affect the
// returned outcome; every other stage aborts the call on failure.
func (c *Controller) Apply(ctx context.Context, displayID string, settings Settings) error {
	if displayID == "" {
		return ErrEmptyDisplayID
	}
	if err := validate(settings); err != nil {
		return err
	}

	unlock := c.lockDisplay(displayID)
	defer unlock()

	log.Info().
		Str("display", displayID).
		Float64("saturation", settings.Saturation).
		Float64("gamma", settings.Gamma).
		Msg("Applying color settings")

	if err := c.runBounded(ctx, func(ctx context.Context) error {
		return c.registry.EnsureRegistered(ctx, displayID)
	}); err != nil {
		log.Warn().Err(err).Str("display", displayID).Msg("Display registration failed, continuing")
	}

	templatePath, err := profile.LocateTemplate(c.templates)
	if err != nil {
		return err
	}

	var doc *profile.Document
	if err := c.runBounded(ctx, func(ctx context.Context) error {
		var loadErr error
		doc, loadErr = c.codec.Load(ctx, templatePath)
		return loadErr
	}); err != nil {
		return fmt.Errorf("failed to load template %s: %w", templatePath, err)
	}

	outPath, token, err := c.cache.NextPath()
	if err != nil {
		return err
	}

	final, err := edit(doc, settings, token)
	if err != nil {
		return err
	}

	if err := c.runBounded(ctx, func(ctx context.Context) error {
		return c.codec.Write(ctx, final, outPath)
	}); err != nil {
		return err
	}

	if err := c.runBounded(ctx, func(ctx context.Context) error {
		return c.applier.Apply(ctx, displayID, outPath)
	}); err != nil {
		return err
	}

	c.setLast(displayID, settings)
	c.cache.Prune()

	log.Info().Str("display", displayID).Str("profile", outPath).Msg("Color settings applied")
	return nil
}

// Reset applies the neutral settings to the display.
func (c *Controller) Reset(ctx context.Context, displayID string) error {
	return c.Apply(ctx, displayID, Neutral)
}

// Last returns the settings most recently applied to the display in this
// session. Displays never touched report neutral.
func (c *Controller) Last(displayID string) Settings {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()

	if s, ok := c.last[displayID]; ok {
		return s
	}
	return Neutral
}

// AppliedDisplays returns every display that received settings in this
// session.
func (c *Controller) AppliedDisplays() []string {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()

	ids := make([]string, 0, len(c.last))
	for id := range c.last {
		ids = append(ids, id)
	}
	return ids
}

// ListDevices surfaces the registry's device list.
func (c *Controller) ListDevices(ctx context.Context) ([]string, error) {
	var devices []string
	err := c.runBounded(ctx, func(ctx context.Context) error {
		var listErr error
		devices, listErr = c.registry.ListDevices(ctx)
		return listErr
	})
	return devices, err
}

// edit runs the document pipeline and returns the finalized document.
func edit(doc *profile.Document, settings Settings, token int64) (*profile.Document, error) {
	editor := profile.NewEditor(doc)
	if err := editor.UpdatePrimaries(settings.Saturation); err != nil {
		return nil, err
	}
	if err := editor.ReplaceToneCurve(settings.Gamma); err != nil {
		return nil, err
	}
	if err := editor.SetDeviceClass(); err != nil {
		return nil, err
	}
	if err := editor.SetDescription(settings.Saturation, settings.Gamma, token); err != nil {
		return nil, err
	}
	return editor.Finalize()
}

func validate(s Settings) error {
	if math.IsNaN(s.Saturation) || s.Saturation < 0 || s.Saturation > 4 {
		return ErrInvalidSaturation
	}
	if math.IsNaN(s.Gamma) || s.Gamma <= color.MinGamma || s.Gamma > color.MaxGamma {
		return ErrInvalidGamma
	}
	return nil
}

// runBounded runs one external interaction under the tool timeout.
func (c *Controller) runBounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()
	return fn(ctx)
}

// lockDisplay serializes applies per display.
func (c *Controller) lockDisplay(displayID string) func() {
	c.locksMu.Lock()
	mu, ok := c.locks[displayID]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[displayID] = mu
	}
	c.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (c *Controller) setLast(displayID string, s Settings) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.last[displayID] = s
}
