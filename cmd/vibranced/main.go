// Package main provides the entry point for the vibranced color daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/g15tools/vibranced/internal/cache"
	"github.com/g15tools/vibranced/internal/colord"
	"github.com/g15tools/vibranced/internal/config"
	"github.com/g15tools/vibranced/internal/dbus"
	"github.com/g15tools/vibranced/internal/icctool"
	"github.com/g15tools/vibranced/internal/udev"
	"github.com/g15tools/vibranced/internal/vibrance"
)

var (
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "vibranced",
		Short: "D-Bus daemon for display saturation and gamma control",
		Long: `vibranced is a D-Bus service that adjusts display color rendering by
synthesizing ICC profiles. Saturation is applied by rescaling the profile's
primary chromaticities and gamma by replacing its tone reproduction curves;
the resulting profile is activated through the system color manager.

It exposes methods for listing color-managed displays and for getting,
setting, and resetting per-display color settings, and re-applies the
session's settings when a display reconnects.`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}

	applyDisplay    string
	applySaturation float64
	applyGamma      float64
	applyCmd        = &cobra.Command{
		Use:   "apply",
		Short: "Apply color settings to one display and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	applyCmd.Flags().StringVarP(&applyDisplay, "display", "d", "", "Color manager device ID of the target display")
	applyCmd.Flags().Float64VarP(&applySaturation, "saturation", "s", 1.0, "Saturation (0.0-4.0, 1.0 is neutral)")
	applyCmd.Flags().Float64VarP(&applyGamma, "gamma", "g", 1.0, "Gamma (0.1-3.0, 1.0 is neutral)")
	_ = applyCmd.MarkFlagRequired("display")

	rootCmd.AddCommand(applyCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// buildController wires the external tool clients and the apply pipeline
// from the environment configuration.
func buildController(cfg config.Config) *vibrance.Controller {
	client := colord.NewClient(colord.WithBin(cfg.ColormgrBin))
	codec := icctool.NewXMLCodec(icctool.WithBins(cfg.IccFromXMLBin, cfg.IccToXMLBin))
	cacheMgr := cache.NewManager(cfg.CacheDir, cache.WithKeep(cfg.KeepProfiles))

	opts := []vibrance.ControllerOption{
		vibrance.WithToolTimeout(cfg.ToolTimeout),
	}
	if len(cfg.TemplatePaths) > 0 {
		opts = append(opts, vibrance.WithTemplatePaths(cfg.TemplatePaths))
	}

	return vibrance.NewController(client, codec, client, cacheMgr, opts...)
}

func run() {
	setupLogging()

	log.Info().Msg("Starting vibranced")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Debug().
		Str("cacheDir", cfg.CacheDir).
		Dur("toolTimeout", cfg.ToolTimeout).
		Int("keepProfiles", cfg.KeepProfiles).
		Msg("Configuration loaded")

	controller := buildController(cfg)

	// Initialize D-Bus server
	server := dbus.NewServer(controller)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start D-Bus server")
	}

	// Initialize udev monitor for display hot-plug detection
	monitor := udev.NewMonitor(createHotplugHandler(controller))
	monitor.SetRecoveryHandler(createRecoveryHandler(controller))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug re-apply disabled)")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-sigChan

	// Cleanup
	log.Info().Msg("Shutting down...")
	if err := monitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop udev monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}

	log.Info().Msg("Daemon stopped")
}

// runApply performs a one-shot apply without starting the service.
func runApply() error {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	controller := buildController(cfg)
	settings := vibrance.Settings{Saturation: applySaturation, Gamma: applyGamma}

	if err := controller.Apply(context.Background(), applyDisplay, settings); err != nil {
		return err
	}

	log.Info().
		Str("display", applyDisplay).
		Float64("saturation", applySaturation).
		Float64("gamma", applyGamma).
		Msg("Profile applied")
	return nil
}

// reapplyMu serializes re-apply passes to prevent race conditions between
// hot-plug handlers and recovery handlers.
var reapplyMu sync.Mutex

// reapplier is the controller surface needed to restore the session's
// settings after a display reconnects.
type reapplier interface {
	Apply(ctx context.Context, displayID string, settings vibrance.Settings) error
	Last(displayID string) vibrance.Settings
	AppliedDisplays() []string
}

// applyWithRetry attempts to apply settings with linear backoff. A display
// that just reconnected may not be registered with the color manager yet.
func applyWithRetry(ctx context.Context, r reapplier, displayID string, settings vibrance.Settings, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("display", displayID).
				Msg("Retrying settings re-apply")
			time.Sleep(backoff)
		}

		if err := r.Apply(ctx, displayID, settings); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Str("display", displayID).
				Msg("Settings re-apply failed")
			continue
		}

		// Success
		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Str("display", displayID).Msg("Settings re-apply succeeded after retry")
		}
		return nil
	}
	return lastErr
}

// reapplyAll restores the last in-session settings for every display that
// has some. It returns the number of displays successfully restored.
func reapplyAll(ctx context.Context, r reapplier, maxRetries int) int {
	restored := 0
	for _, displayID := range r.AppliedDisplays() {
		settings := r.Last(displayID)
		if err := applyWithRetry(ctx, r, displayID, settings, maxRetries); err != nil {
			log.Error().Err(err).Str("display", displayID).Msg("Failed to restore settings (all retries exhausted)")
			continue
		}
		restored++
	}
	return restored
}

// createHotplugHandler returns an event handler that re-applies the
// session's settings after a connector change. The handler uses the shared
// reapplyMu to prevent race conditions with recovery handlers.
func createHotplugHandler(controller *vibrance.Controller) udev.EventHandler {
	return func(event udev.Event) {
		// Use shared mutex to serialize with recovery handler
		reapplyMu.Lock()
		defer reapplyMu.Unlock()

		if len(controller.AppliedDisplays()) == 0 {
			log.Debug().Str("devpath", event.DevPath).Msg("No session settings to re-apply")
			return
		}

		// Wait for the color manager to register the reconnected display
		// before pushing a profile at it.
		time.Sleep(500 * time.Millisecond)

		restored := reapplyAll(context.Background(), controller, 3)
		log.Info().
			Str("devpath", event.DevPath).
			Int("restored", restored).
			Msg("Re-applied session settings after hot-plug event")
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow
// recovery. It re-applies all session settings since hot-plug events may
// have been dropped. The handler uses the shared reapplyMu to prevent race
// conditions with hotplug handlers.
func createRecoveryHandler(controller *vibrance.Controller) udev.RecoveryHandler {
	return func() {
		// Use shared mutex to serialize with hotplug handler
		reapplyMu.Lock()
		defer reapplyMu.Unlock()

		log.Info().Msg("Performing recovery re-apply after netlink buffer overflow")

		if len(controller.AppliedDisplays()) == 0 {
			log.Debug().Msg("No session settings to re-apply")
			return
		}

		// Wait a moment for any pending connector changes to settle
		time.Sleep(500 * time.Millisecond)

		restored := reapplyAll(context.Background(), controller, 3)
		log.Info().Int("restored", restored).Msg("Recovery re-apply completed")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
