package marker

// DetectionFlags is a bitset of symbol formats a payload reader should look
// for. Restricting the set only narrows the reader's search; it never changes
// which corners can be resolved.
type DetectionFlags uint32

const (
	FlagQRCode DetectionFlags = 1 << iota
	FlagMicroQR
	FlagDataMatrix
	FlagAztec
	FlagPDF417
	FlagRMQR
	FlagLinear
)

// FlagNone means no payload-bearing marker is configured.
const FlagNone DetectionFlags = 0

var flagsByType = map[Type]DetectionFlags{
	TypeQRCode:     FlagQRCode,
	TypeMicroQR:    FlagMicroQR,
	TypeDataMatrix: FlagDataMatrix,
	TypeAztec:      FlagAztec,
	TypePDF417:     FlagPDF417,
	TypeRMQR:       FlagRMQR,
	TypeBarcode:    FlagLinear,
}

// Has reports whether all bits of f are set.
func (d DetectionFlags) Has(f DetectionFlags) bool {
	return d&f == f
}

// DetectionFlags ORs the reader flags of every distinct payload-bearing
// marker family in the config.
func (c CopyMarkerConfig) DetectionFlags() DetectionFlags {
	var flags DetectionFlags
	for _, m := range c {
		flags |= flagsByType[m.Type]
	}
	return flags
}

// Parser strategy tags understood by the parser registry.
const (
	StrategyQRCode = "qrcode"
	StrategyCircle = "circle"
	StrategyShape  = "shape"
	StrategyAruco  = "aruco"
)

// SuggestParser picks the parser strategy matching the marker families of
// the top-left, top-right and bottom-left corners.
func (c CopyMarkerConfig) SuggestParser() string {
	counts := map[string]int{}
	for _, s := range []Slot{TopLeft, TopRight, BottomLeft} {
		t := c[s].Type
		switch {
		case t.IsPayload():
			counts[StrategyQRCode]++
		case t == TypeCircle:
			counts[StrategyCircle]++
		case t == TypeAruco:
			counts[StrategyAruco]++
		case t.IsShape():
			counts[StrategyShape]++
		}
	}
	best, bestN := StrategyQRCode, 0
	for _, tag := range []string{StrategyQRCode, StrategyCircle, StrategyShape, StrategyAruco} {
		if counts[tag] > bestN {
			best, bestN = tag, counts[tag]
		}
	}
	return best
}
