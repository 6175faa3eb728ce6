// SPDX-License-Identifier: GPL-3.0-only

package profile

import (
	"errors"
	"fmt"

	"github.com/g15tools/vibranced/internal/color"
)

// Stage tracks the edit pipeline position of a document. Transitions are
// one-directional; each step runs exactly once per document.
type Stage int

const (
	StageLoaded Stage = iota
	StagePrimariesUpdated
	StageCurveReplaced
	StageMetadataUpdated
	StageFinalized
)

// ErrStageOrder is returned when an editor step is called outside the
// Loaded -> PrimariesUpdated -> CurveReplaced -> MetadataUpdated ->
// Finalized sequence.
var ErrStageOrder = errors.New("editor steps must run in order, once each")

// Editor applies the vibrance edits to one loaded document. It never
// touches storage; the finalized document is handed to the codec by the
// caller.
type Editor struct {
	doc   *Document
	stage Stage
}

// NewEditor wraps a freshly loaded document.
func NewEditor(doc *Document) *Editor {
	return &Editor{doc: doc, stage: StageLoaded}
}

// Stage returns the editor's current pipeline position.
func (e *Editor) Stage() Stage {
	return e.stage
}

func (e *Editor) advance(from Stage) error {
	if e.stage != from {
		return fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}
	e.stage = from + 1
	return nil
}

// UpdatePrimaries rescales each of the three primaries against the
// document's white point. The document is left untouched when any
// required tag is missing.
func (e *Editor) UpdatePrimaries(saturation float64) error {
	if e.stage != StageLoaded {
		return fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}

	required := append([]Signature{SigWhitePoint}, PrimarySignatures...)
	if err := e.doc.requireTags(required...); err != nil {
		return err
	}

	white, _ := e.doc.XYZ(SigWhitePoint)
	for _, sig := range PrimarySignatures {
		primary, ok := e.doc.XYZ(sig)
		if !ok {
			return &MissingTagError{Sig: sig}
		}
		scaled := color.ScaleSaturation(primary, white, saturation)
		e.doc.Set(sig, XYZValue(scaled))
	}

	return e.advance(StageLoaded)
}

// ReplaceToneCurve removes every existing channel curve tag and installs
// one synthesized curve shared by all three channels.
func (e *Editor) ReplaceToneCurve(gamma float64) error {
	if e.stage != StagePrimariesUpdated {
		return fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}

	curve, err := color.BuildGammaLUT(gamma)
	if err != nil {
		return err
	}

	for _, sig := range TRCSignatures {
		e.doc.Remove(sig)
	}
	shared := CurveValue{Curve: &curve}
	for _, sig := range TRCSignatures {
		e.doc.Set(sig, shared)
	}

	return e.advance(StagePrimariesUpdated)
}

// SetDeviceClass overwrites the header class with the display class. The
// base template is a generic colorspace profile, which the color
// management stack refuses to assign to a display.
func (e *Editor) SetDeviceClass() error {
	if e.stage != StageCurveReplaced {
		return fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}

	e.doc.Class = ClassDisplay
	return nil
}

// SetDescription overwrites the description tag with the applied values
// and the filename token, so a profile found in the wild can be traced
// back to the settings that produced it.
func (e *Editor) SetDescription(saturation, gamma float64, token int64) error {
	if e.stage != StageCurveReplaced {
		return fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}

	desc := fmt.Sprintf("vibranced saturation %.2f gamma %.2f (%d)", saturation, gamma, token)
	e.doc.Set(SigDescription, TextValue(desc))
	return e.advance(StageCurveReplaced)
}

// Finalize marks the document ready for conversion and returns it.
func (e *Editor) Finalize() (*Document, error) {
	if e.stage != StageMetadataUpdated {
		return nil, fmt.Errorf("%w: at stage %d", ErrStageOrder, e.stage)
	}
	e.stage = StageFinalized
	return e.doc, nil
}
