// Package marker describes the fiducial markers stamped on each corner and the
// header of a printed copy, and their compact textual configuration form.
package marker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedConfig is returned when a copy marker configuration string
// cannot be parsed. Callers treat it as a fatal configuration error.
var ErrMalformedConfig = errors.New("malformed marker config")

// Type identifies a marker family.
type Type int

const (
	TypeNone Type = iota
	TypeQRCode
	TypeMicroQR
	TypeDataMatrix
	TypeAztec
	TypePDF417
	TypeRMQR
	TypeBarcode
	TypeCircle
	TypeSquare
	TypeTriangle
	TypeAruco
	TypeCross
	TypeCustom
)

const (
	suffixEncoded  = ":encoded"
	suffixOutlined = ":outlined"
)

// typeNames is read-only after init.
var typeNames = map[Type]string{
	TypeNone:       "none",
	TypeQRCode:     "qrcode",
	TypeMicroQR:    "microqr",
	TypeDataMatrix: "datamatrix",
	TypeAztec:      "aztec",
	TypePDF417:     "pdf417",
	TypeRMQR:       "rmqr",
	TypeBarcode:    "barcode",
	TypeCircle:     "circle",
	TypeSquare:     "square",
	TypeTriangle:   "triangle",
	TypeAruco:      "aruco",
	TypeCross:      "cross",
	TypeCustom:     "custom",
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "none"
}

// ParseType returns the Type named by s. Unknown names map to TypeNone.
func ParseType(s string) Type {
	if t, ok := typesByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return TypeNone
}

// IsPayload reports whether markers of this family carry a decodable payload.
func (t Type) IsPayload() bool {
	switch t {
	case TypeQRCode, TypeMicroQR, TypeDataMatrix, TypeAztec, TypePDF417, TypeRMQR, TypeBarcode:
		return true
	default:
		return false
	}
}

// IsShape reports whether markers of this family are plain outlines found by
// contour analysis.
func (t Type) IsShape() bool {
	switch t {
	case TypeSquare, TypeTriangle, TypeCross, TypeCustom:
		return true
	default:
		return false
	}
}

// Marker is one corner or header marker.
type Marker struct {
	Type     Type
	Encoded  bool // payload carries the copy identity
	Outlined bool // drawn as an outline instead of filled
}

// IsNone reports whether no marker is printed at this slot.
func (m Marker) IsNone() bool {
	return m.Type == TypeNone
}

// Parse reads a marker spec such as "qrcode:encoded:outlined". Empty or
// "none" yields an empty marker. An unrecognized family is not an error and
// yields TypeNone with the flags preserved.
func Parse(spec string) Marker {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "none" {
		return Marker{}
	}

	var m Marker
	for {
		switch {
		case strings.HasSuffix(spec, suffixEncoded):
			m.Encoded = true
			spec = strings.TrimSuffix(spec, suffixEncoded)
			continue
		case strings.HasSuffix(spec, suffixOutlined):
			m.Outlined = true
			spec = strings.TrimSuffix(spec, suffixOutlined)
			continue
		}
		break
	}
	m.Type = ParseType(spec)
	return m
}

// String serializes the marker as "<type>[:encoded][:outlined]" or "none".
func (m Marker) String() string {
	if m.Type == TypeNone && !m.Encoded && !m.Outlined {
		return "none"
	}
	var sb strings.Builder
	sb.WriteString(m.Type.String())
	if m.Encoded {
		sb.WriteString(suffixEncoded)
	}
	if m.Outlined {
		sb.WriteString(suffixOutlined)
	}
	return sb.String()
}

// Slot indexes the five markers of a copy.
type Slot int

const (
	TopLeft Slot = iota
	TopRight
	BottomLeft
	BottomRight
	Header
)

// NumCorners is the number of logical page corners.
const NumCorners = 4

func (s Slot) String() string {
	switch s {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	case Header:
		return "header"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// CopyMarkerConfig holds the markers of the four corners and the header, in
// Slot order.
type CopyMarkerConfig [5]Marker

// ParseConfig reads "(tl,tr,bl,br,header)". Anything but exactly five
// comma-separated fields inside parentheses is ErrMalformedConfig.
func ParseConfig(s string) (CopyMarkerConfig, error) {
	var cfg CopyMarkerConfig
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return cfg, fmt.Errorf("%w: %q is not parenthesized", ErrMalformedConfig, s)
	}
	fields := strings.Split(s[1:len(s)-1], ",")
	if len(fields) != len(cfg) {
		return cfg, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformedConfig, s, len(fields), len(cfg))
	}
	for i, f := range fields {
		cfg[i] = Parse(f)
	}
	return cfg, nil
}

// MustParseConfig is ParseConfig for literals known to be valid.
func MustParseConfig(s string) CopyMarkerConfig {
	cfg, err := ParseConfig(s)
	if err != nil {
		panic(err)
	}
	return cfg
}

// String returns the textual form accepted by ParseConfig.
func (c CopyMarkerConfig) String() string {
	parts := make([]string, len(c))
	for i, m := range c {
		parts[i] = m.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Corner returns the marker at a slot.
func (c CopyMarkerConfig) Corner(s Slot) Marker {
	return c[s]
}

// HasHeader reports whether a header marker is printed.
func (c CopyMarkerConfig) HasHeader() bool {
	return !c[Header].IsNone()
}
