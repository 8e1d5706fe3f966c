package protocol

import (
	"encoding/json"
	"log/slog"
)

// ThemeTokens is the abstract design token bag carried on design specs.
// Empty string means unset; unknown keys land in Additional.
type ThemeTokens struct {
	PrimaryColorScheme string `json:"primary_color_scheme,omitempty"`
	BackgroundColor    string `json:"background_color,omitempty"`
	TextColor          string `json:"text_color,omitempty"`
	TextColorPrimary   string `json:"text_color_primary,omitempty"`
	BorderColor        string `json:"border_color,omitempty"`

	FontFamily string `json:"font_family,omitempty"`
	TextStyle  string `json:"text_style,omitempty"`

	Padding  string `json:"padding,omitempty"`
	PaddingX string `json:"padding_x,omitempty"`
	PaddingY string `json:"padding_y,omitempty"`
	Margin   string `json:"margin,omitempty"`
	MarginX  string `json:"margin_x,omitempty"`
	MarginY  string `json:"margin_y,omitempty"`

	Border       string `json:"border,omitempty"`
	BorderRadius string `json:"border_radius,omitempty"`
	BorderSubtle string `json:"border_subtle,omitempty"`

	Shadow       string `json:"shadow,omitempty"`
	ShadowSubtle string `json:"shadow_subtle,omitempty"`
	Elevation    string `json:"elevation,omitempty"`

	Animation     string `json:"animation,omitempty"`
	AnimationEase string `json:"animation_ease,omitempty"`
	Interaction   string `json:"interaction,omitempty"`

	BackgroundGradientDirection string `json:"background_gradient_direction,omitempty"`
	AcrylicBackground           bool   `json:"acrylic_background,omitempty"`
	RippleEffect                bool   `json:"ripple_effect,omitempty"`
	UtilityDriven               bool   `json:"utility_driven,omitempty"`

	ButtonStyle string `json:"button_style,omitempty"`
	FocusRing   string `json:"focus_ring,omitempty"`

	Additional map[string]any `json:"additional_properties,omitempty"`
}

// fields returns pointers to the string-valued token fields in declaration
// order. Merge precedence and class derivation both walk this order.
func (t *ThemeTokens) fields() []*string {
	return []*string{
		&t.PrimaryColorScheme,
		&t.BackgroundColor,
		&t.TextColor,
		&t.TextColorPrimary,
		&t.BorderColor,
		&t.FontFamily,
		&t.TextStyle,
		&t.Padding,
		&t.PaddingX,
		&t.PaddingY,
		&t.Margin,
		&t.MarginX,
		&t.MarginY,
		&t.Border,
		&t.BorderRadius,
		&t.BorderSubtle,
		&t.Shadow,
		&t.ShadowSubtle,
		&t.Elevation,
		&t.Animation,
		&t.AnimationEase,
		&t.Interaction,
		&t.BackgroundGradientDirection,
		&t.ButtonStyle,
		&t.FocusRing,
	}
}

// Merge copies set values from other over t. Additional properties merge
// per key rather than replacing the whole map.
func (t *ThemeTokens) Merge(other ThemeTokens) {
	dst := t.fields()
	src := other.fields()
	for i := range src {
		if *src[i] != "" {
			*dst[i] = *src[i]
		}
	}
	if other.AcrylicBackground {
		t.AcrylicBackground = true
	}
	if other.RippleEffect {
		t.RippleEffect = true
	}
	if other.UtilityDriven {
		t.UtilityDriven = true
	}
	if len(other.Additional) > 0 {
		if t.Additional == nil {
			t.Additional = make(map[string]any, len(other.Additional))
		}
		for k, v := range other.Additional {
			t.Additional[k] = v
		}
	}
}

// TokenValue pairs a token field name with its set value.
type TokenValue struct {
	Name  string
	Value string
}

var themeTokenNames = []string{
	"primary_color_scheme",
	"background_color",
	"text_color",
	"text_color_primary",
	"border_color",
	"font_family",
	"text_style",
	"padding",
	"padding_x",
	"padding_y",
	"margin",
	"margin_x",
	"margin_y",
	"border",
	"border_radius",
	"border_subtle",
	"shadow",
	"shadow_subtle",
	"elevation",
	"animation",
	"animation_ease",
	"interaction",
	"background_gradient_direction",
	"button_style",
	"focus_ring",
}

// Values returns the set string token values in declaration order.
func (t *ThemeTokens) Values() []TokenValue {
	ptrs := t.fields()
	out := make([]TokenValue, 0, len(ptrs))
	for i, p := range ptrs {
		if *p != "" {
			out = append(out, TokenValue{Name: themeTokenNames[i], Value: *p})
		}
	}
	return out
}

// TokensFromProps builds ThemeTokens from a raw property map, routing keys
// that are not modeled fields into Additional.
func TokensFromProps(props map[string]any) ThemeTokens {
	var t ThemeTokens
	known := make(map[string]any, len(props))
	for k, v := range props {
		if isThemeTokenField(k) {
			known[k] = v
		} else {
			if t.Additional == nil {
				t.Additional = make(map[string]any)
			}
			t.Additional[k] = v
		}
	}
	// Round-trip through JSON to fill the typed fields. A property with the
	// wrong type stays unset; the rest of the fields still decode.
	if data, err := json.Marshal(known); err == nil {
		if err := json.Unmarshal(data, &t); err != nil {
			slog.Warn("protocol: malformed theme token property dropped", "error", err)
		}
	}
	return t
}

func isThemeTokenField(name string) bool {
	for _, f := range themeTokenNames {
		if f == name {
			return true
		}
	}
	switch name {
	case "acrylic_background", "ripple_effect", "utility_driven":
		return true
	}
	return false
}
