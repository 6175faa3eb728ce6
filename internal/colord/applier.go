// SPDX-License-Identifier: GPL-3.0-only

package colord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrApplyFailed is returned when the profile could not be associated
// with the display.
var ErrApplyFailed = errors.New("failed to apply profile to display")

// Apply imports the profile file into colord and makes it the default
// profile of the display device. Any step failing surfaces as
// ErrApplyFailed.
func (c *Client) Apply(ctx context.Context, displayID, profilePath string) error {
	if err := c.runner.LookPath(c.bin); err != nil {
		return err
	}

	out, err := c.runner.Run(ctx, c.bin, "import-profile", profilePath)
	if err != nil {
		return fmt.Errorf("%w: import: %v", ErrApplyFailed, err)
	}

	profileID := parseObjectPath(out)
	if profileID == "" {
		return fmt.Errorf("%w: import-profile returned no object path", ErrApplyFailed)
	}

	if _, err := c.runner.Run(ctx, c.bin, "device-add-profile", displayID, profileID); err != nil {
		return fmt.Errorf("%w: add: %v", ErrApplyFailed, err)
	}

	if _, err := c.runner.Run(ctx, c.bin, "device-make-profile-default", displayID, profileID); err != nil {
		return fmt.Errorf("%w: make default: %v", ErrApplyFailed, err)
	}

	log.Info().
		Str("display", displayID).
		Str("profile", profileID).
		Msg("Profile applied to display")
	return nil
}

// parseObjectPath extracts the first object path from colormgr output.
// Import results start with a line like
// "Object Path:   /org/freedesktop/ColorManager/profiles/icc_...".
func parseObjectPath(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "Object Path" {
			continue
		}
		return strings.TrimSpace(value)
	}
	return ""
}
