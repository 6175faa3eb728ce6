// SPDX-License-Identifier: GPL-3.0-only

package profile

import (
	"errors"
	"os"
)

// ErrTemplateNotFound is returned when no base template exists at any of
// the candidate paths.
var ErrTemplateNotFound = errors.New("no base profile template found")

// DefaultTemplatePaths are the well-known locations of a generic sRGB
// colorspace profile, checked in order.
var DefaultTemplatePaths = []string{
	"/usr/share/color/icc/colord/sRGB.icc",
	"/usr/share/color/icc/sRGB.icc",
	"/usr/share/color/icc/OpenICC/sRGB.icc",
}

// LocateTemplate returns the first candidate path that exists as a
// regular file.
func LocateTemplate(candidates []string) (string, error) {
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return path, nil
	}
	return "", ErrTemplateNotFound
}
