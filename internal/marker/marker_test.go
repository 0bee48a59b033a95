package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		in   string
		want Marker
	}{
		{"", Marker{}},
		{"none", Marker{}},
		{"qrcode", Marker{Type: TypeQRCode}},
		{"qrcode:encoded", Marker{Type: TypeQRCode, Encoded: true}},
		{"circle:outlined", Marker{Type: TypeCircle, Outlined: true}},
		{"square:encoded:outlined", Marker{Type: TypeSquare, Encoded: true, Outlined: true}},
		{"square:outlined:encoded", Marker{Type: TypeSquare, Encoded: true, Outlined: true}},
		{"hexagon", Marker{Type: TypeNone}},
		{" aruco ", Marker{Type: TypeAruco}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("four encoded qr corners without header", func(t *testing.T) {
		cfg, err := ParseConfig("(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)")
		require.NoError(t, err)
		for _, s := range []Slot{TopLeft, TopRight, BottomLeft, BottomRight} {
			assert.Equal(t, Marker{Type: TypeQRCode, Encoded: true}, cfg.Corner(s), s.String())
		}
		assert.False(t, cfg.HasHeader())
	})

	for _, bad := range []string{"bad", "", "()", "(a,b,c,d)", "(a,b,c,d,e,f)", "qrcode,qrcode,qrcode,qrcode,none"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseConfig(bad)
			require.ErrorIs(t, err, ErrMalformedConfig)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	var all []Marker
	for typ := TypeNone; typ <= TypeCustom; typ++ {
		for _, enc := range []bool{false, true} {
			for _, out := range []bool{false, true} {
				all = append(all, Marker{Type: typ, Encoded: enc, Outlined: out})
			}
		}
	}

	for i, m := range all {
		cfg := CopyMarkerConfig{m, all[(i+1)%len(all)], all[(i+7)%len(all)], all[(i+13)%len(all)], all[(i+29)%len(all)]}
		parsed, err := ParseConfig(cfg.String())
		require.NoError(t, err)
		assert.Equal(t, cfg, parsed, cfg.String())
	}
}

func TestDetectionFlags(t *testing.T) {
	cfg := MustParseConfig("(qrcode:encoded,circle,datamatrix,qrcode,barcode)")
	flags := cfg.DetectionFlags()

	assert.True(t, flags.Has(FlagQRCode))
	assert.True(t, flags.Has(FlagDataMatrix))
	assert.True(t, flags.Has(FlagLinear))
	assert.False(t, flags.Has(FlagAztec))

	assert.Equal(t, FlagNone, MustParseConfig("(circle,circle,circle,square,none)").DetectionFlags())
}

func TestSuggestParser(t *testing.T) {
	tests := map[string]string{
		"(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)": StrategyQRCode,
		"(circle,circle,circle,qrcode:encoded,qrcode:encoded)":               StrategyCircle,
		"(square,square,square,qrcode:encoded,qrcode:encoded)":               StrategyShape,
		"(aruco,aruco,aruco,aruco,qrcode:encoded)":                           StrategyAruco,
		"(none,none,none,none,none)":                                         StrategyQRCode,
	}
	for in, want := range tests {
		assert.Equal(t, want, MustParseConfig(in).SuggestParser(), in)
	}
}
