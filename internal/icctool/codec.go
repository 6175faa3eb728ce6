// SPDX-License-Identifier: GPL-3.0-only

// Package icctool converts between the structured profile document and
// binary ICC files via the IccXML tools. The binary layout itself is
// never touched here; iccToXml and iccFromXml own it.
package icctool

//go:generate mockgen -source=codec.go -destination=mocks/codec_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/g15tools/vibranced/internal/profile"
	"github.com/g15tools/vibranced/internal/runner"
)

// ErrConversionFailed is returned when a profile could not be converted
// between its document and binary forms.
var ErrConversionFailed = errors.New("profile conversion failed")

const (
	// DefaultFromXMLBin converts an IccXML document to a binary profile.
	DefaultFromXMLBin = "iccFromXml"

	// DefaultToXMLBin converts a binary profile to an IccXML document.
	DefaultToXMLBin = "iccToXml"
)

// Codec loads a binary profile into a document and writes a finalized
// document out as a binary profile.
type Codec interface {
	// Load reads the profile at path into a structured document.
	Load(ctx context.Context, path string) (*profile.Document, error)

	// Write converts the document to binary profile bytes at outPath.
	Write(ctx context.Context, doc *profile.Document, outPath string) error
}

// XMLCodec implements Codec by shelling out to the IccXML tools, passing
// the document through its IccXML serialization.
type XMLCodec struct {
	fromXMLBin string
	toXMLBin   string
	runner     runner.Runner
}

var _ Codec = (*XMLCodec)(nil)

// XMLCodecOption configures an XMLCodec.
type XMLCodecOption func(*XMLCodec)

// WithBins overrides the IccXML binary names.
func WithBins(fromXML, toXML string) XMLCodecOption {
	return func(c *XMLCodec) {
		c.fromXMLBin = fromXML
		c.toXMLBin = toXML
	}
}

// WithRunner sets a custom tool runner for testing.
func WithRunner(r runner.Runner) XMLCodecOption {
	return func(c *XMLCodec) {
		c.runner = r
	}
}

// NewXMLCodec creates a codec backed by the IccXML tools.
func NewXMLCodec(opts ...XMLCodecOption) *XMLCodec {
	c := &XMLCodec{
		fromXMLBin: DefaultFromXMLBin,
		toXMLBin:   DefaultToXMLBin,
		runner:     runner.Exec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load converts the binary profile at path to IccXML and decodes it.
func (c *XMLCodec) Load(ctx context.Context, path string) (*profile.Document, error) {
	if err := c.runner.LookPath(c.toXMLBin); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "vibranced-load-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer os.RemoveAll(tmp)

	xmlPath := filepath.Join(tmp, "profile.xml")
	if _, err := c.runner.Run(ctx, c.toXMLBin, path, xmlPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	return doc, nil
}

// Write encodes the document as IccXML and converts it to a binary
// profile at outPath. Nothing is written to outPath on failure.
func (c *XMLCodec) Write(ctx context.Context, doc *profile.Document, outPath string) error {
	if err := c.runner.LookPath(c.fromXMLBin); err != nil {
		return err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	tmp, err := os.MkdirTemp("", "vibranced-write-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer os.RemoveAll(tmp)

	xmlPath := filepath.Join(tmp, "profile.xml")
	if err := os.WriteFile(xmlPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	if _, err := c.runner.Run(ctx, c.fromXMLBin, xmlPath, outPath); err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	return nil
}
