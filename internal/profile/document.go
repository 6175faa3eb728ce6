// SPDX-License-Identifier: GPL-3.0-only

// Package profile models an ICC profile as a structured, editable document.
// The binary layout is never handled here; an external codec converts
// between this representation and profile bytes.
package profile

import (
	"fmt"

	"github.com/g15tools/vibranced/internal/color"
)

// Signature identifies a tag slot in the profile. The set is closed: the
// editor only ever touches these slots, anything else a template carries
// is preserved as raw text.
type Signature string

const (
	SigRedPrimary   Signature = "rXYZ"
	SigGreenPrimary Signature = "gXYZ"
	SigBluePrimary  Signature = "bXYZ"
	SigWhitePoint   Signature = "wtpt"
	SigRedTRC       Signature = "rTRC"
	SigGreenTRC     Signature = "gTRC"
	SigBlueTRC      Signature = "bTRC"
	SigDescription  Signature = "desc"
)

// PrimarySignatures lists the three primary tags a valid document must carry.
var PrimarySignatures = []Signature{SigRedPrimary, SigGreenPrimary, SigBluePrimary}

// TRCSignatures lists the three per-channel tone curve tags.
var TRCSignatures = []Signature{SigRedTRC, SigGreenTRC, SigBlueTRC}

// DeviceClass is the profile header class field.
type DeviceClass string

const (
	// ClassColorSpace is the generic colorspace class carried by base
	// templates such as sRGB.icc.
	ClassColorSpace DeviceClass = "spac"

	// ClassDisplay marks the profile as a display/monitor profile. The
	// color management stack ignores profiles of any other class when
	// assigning them to displays.
	ClassDisplay DeviceClass = "mntr"
)

// Value is a typed tag payload.
type Value interface {
	tagValue()
}

// XYZValue is a tristimulus tag payload (primaries, white point).
type XYZValue color.Tristimulus

// CurveValue is a tone curve tag payload. The three channel tags of an
// edited document share one curve object.
type CurveValue struct {
	Curve *color.ToneCurve
}

// TextValue is a textual tag payload (description, copyright).
type TextValue string

// RawValue preserves a template tag the editor does not interpret, as the
// codec's serialized fragment, so it round-trips through an edit.
type RawValue string

func (XYZValue) tagValue()   {}
func (CurveValue) tagValue() {}
func (TextValue) tagValue()  {}
func (RawValue) tagValue()   {}

// Tag is one signature/payload pair.
type Tag struct {
	Sig   Signature
	Value Value
}

// Document is an ordered collection of tags plus the header device class.
// At most one tag exists per signature.
type Document struct {
	Class DeviceClass
	tags  []Tag
}

// MissingTagError reports a required tag absent from a document,
// indicating a malformed base template.
type MissingTagError struct {
	Sig Signature
}

func (e *MissingTagError) Error() string {
	return fmt.Sprintf("profile document is missing required tag %q", e.Sig)
}

// Get returns the payload for a signature.
func (d *Document) Get(sig Signature) (Value, bool) {
	for _, t := range d.tags {
		if t.Sig == sig {
			return t.Value, true
		}
	}
	return nil, false
}

// XYZ returns a tristimulus payload for a signature, or false if the tag
// is absent or not a tristimulus tag.
func (d *Document) XYZ(sig Signature) (color.Tristimulus, bool) {
	v, ok := d.Get(sig)
	if !ok {
		return color.Tristimulus{}, false
	}
	xyz, ok := v.(XYZValue)
	return color.Tristimulus(xyz), ok
}

// Set stores a payload under a signature, replacing any existing tag in
// place so tag order is stable across edits. New signatures append.
func (d *Document) Set(sig Signature, v Value) {
	for i, t := range d.tags {
		if t.Sig == sig {
			d.tags[i].Value = v
			return
		}
	}
	d.tags = append(d.tags, Tag{Sig: sig, Value: v})
}

// Remove deletes the tag for a signature. Returns whether a tag was removed.
func (d *Document) Remove(sig Signature) bool {
	for i, t := range d.tags {
		if t.Sig == sig {
			d.tags = append(d.tags[:i], d.tags[i+1:]...)
			return true
		}
	}
	return false
}

// Tags returns a copy of the tag list in document order.
func (d *Document) Tags() []Tag {
	out := make([]Tag, len(d.tags))
	copy(out, d.tags)
	return out
}

// requireTags verifies every signature is present, returning the first
// missing one as a MissingTagError.
func (d *Document) requireTags(sigs ...Signature) error {
	for _, sig := range sigs {
		if _, ok := d.Get(sig); !ok {
			return &MissingTagError{Sig: sig}
		}
	}
	return nil
}
