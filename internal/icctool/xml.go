// SPDX-License-Identifier: GPL-3.0-only

package icctool

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/g15tools/vibranced/internal/color"
	"github.com/g15tools/vibranced/internal/profile"
)

// The IccXML subset this daemon reads and writes. Tags the editor does
// not interpret round-trip through RawValue as their inner XML.

type xmlProfile struct {
	XMLName xml.Name  `xml:"IccProfile"`
	Header  xmlHeader `xml:"Header"`
	Tags    []xmlTag  `xml:"Tags>Tag"`
}

type xmlHeader struct {
	ProfileDeviceClass string `xml:"ProfileDeviceClass"`
}

// xmlTag is the decode-side view of one tag: typed fields for known
// payloads plus the verbatim inner XML for everything else.
type xmlTag struct {
	Signature string  `xml:"signature,attr"`
	XYZ       *xmlXYZ `xml:"XYZ"`
	Curve     string  `xml:"Curve"`
	Text      string  `xml:"Text"`
	Inner     string  `xml:",innerxml"`
}

type xmlXYZ struct {
	X float64 `xml:"X,attr"`
	Y float64 `xml:"Y,attr"`
	Z float64 `xml:"Z,attr"`
}

// headerOut is the encode-side view of the profile header.
type headerOut struct {
	XMLName            xml.Name `xml:"Header"`
	ProfileDeviceClass string   `xml:"ProfileDeviceClass"`
}

// rawTag is the encode-side view for RawValue payloads.
type rawTag struct {
	XMLName   xml.Name `xml:"Tag"`
	Signature string   `xml:"signature,attr"`
	Inner     string   `xml:",innerxml"`
}

// typedTag is the encode-side view for interpreted payloads.
type typedTag struct {
	XMLName   xml.Name `xml:"Tag"`
	Signature string   `xml:"signature,attr"`
	XYZ       *xmlXYZ  `xml:"XYZ,omitempty"`
	Curve     string   `xml:"Curve,omitempty"`
	Text      string   `xml:"Text,omitempty"`
}

// decodeDocument parses IccXML into a document.
func decodeDocument(data []byte) (*profile.Document, error) {
	var parsed xmlProfile
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("malformed profile XML: %w", err)
	}

	doc := &profile.Document{Class: profile.DeviceClass(strings.TrimSpace(parsed.Header.ProfileDeviceClass))}
	for _, tag := range parsed.Tags {
		sig := profile.Signature(tag.Signature)
		value, err := decodeValue(sig, tag)
		if err != nil {
			return nil, err
		}
		doc.Set(sig, value)
	}
	return doc, nil
}

func decodeValue(sig profile.Signature, tag xmlTag) (profile.Value, error) {
	switch sig {
	case profile.SigRedPrimary, profile.SigGreenPrimary, profile.SigBluePrimary, profile.SigWhitePoint:
		if tag.XYZ == nil {
			return nil, fmt.Errorf("tag %q carries no XYZ value", sig)
		}
		return profile.XYZValue{X: tag.XYZ.X, Y: tag.XYZ.Y, Z: tag.XYZ.Z}, nil

	case profile.SigRedTRC, profile.SigGreenTRC, profile.SigBlueTRC:
		samples, err := parseCurveSamples(tag.Curve)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", sig, err)
		}
		return profile.CurveValue{Curve: &color.ToneCurve{Samples: samples}}, nil

	case profile.SigDescription:
		return profile.TextValue(tag.Text), nil

	default:
		return profile.RawValue(tag.Inner), nil
	}
}

// encodeDocument serializes a document to IccXML.
func encodeDocument(doc *profile.Document) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<IccProfile>\n")

	if err := encodeIndented(&b, "  ", headerOut{ProfileDeviceClass: string(doc.Class)}); err != nil {
		return nil, err
	}

	b.WriteString("  <Tags>\n")
	for _, tag := range doc.Tags() {
		encoded, err := encodeTag(tag)
		if err != nil {
			return nil, err
		}
		if err := encodeIndented(&b, "    ", encoded); err != nil {
			return nil, err
		}
	}
	b.WriteString("  </Tags>\n")
	b.WriteString("</IccProfile>\n")
	return []byte(b.String()), nil
}

func encodeTag(tag profile.Tag) (any, error) {
	switch v := tag.Value.(type) {
	case profile.XYZValue:
		return typedTag{
			Signature: string(tag.Sig),
			XYZ:       &xmlXYZ{X: v.X, Y: v.Y, Z: v.Z},
		}, nil
	case profile.CurveValue:
		return typedTag{
			Signature: string(tag.Sig),
			Curve:     formatCurveSamples(v.Curve.Samples),
		}, nil
	case profile.TextValue:
		return typedTag{
			Signature: string(tag.Sig),
			Text:      string(v),
		}, nil
	case profile.RawValue:
		return rawTag{
			Signature: string(tag.Sig),
			Inner:     string(v),
		}, nil
	default:
		return nil, fmt.Errorf("tag %q has unsupported payload %T", tag.Sig, tag.Value)
	}
}

func encodeIndented(b *strings.Builder, indent string, v any) error {
	enc := xml.NewEncoder(b)
	enc.Indent(indent, "  ")
	b.WriteString(indent)
	if err := enc.Encode(v); err != nil {
		return err
	}
	b.WriteString("\n")
	return nil
}

// parseCurveSamples reads the space-separated 16-bit samples of a Curve
// element.
func parseCurveSamples(text string) ([]uint16, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("curve carries no samples")
	}

	samples := make([]uint16, len(fields))
	for i, field := range fields {
		n, err := strconv.ParseUint(field, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid curve sample %q: %w", field, err)
		}
		samples[i] = uint16(n)
	}
	return samples, nil
}

func formatCurveSamples(samples []uint16) string {
	fields := make([]string, len(samples))
	for i, s := range samples {
		fields[i] = strconv.FormatUint(uint64(s), 10)
	}
	return strings.Join(fields, " ")
}
