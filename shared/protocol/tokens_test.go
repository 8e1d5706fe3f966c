package protocol

import (
	"testing"
)

func TestThemeTokensMerge(t *testing.T) {
	base := ThemeTokens{
		PrimaryColorScheme: "blue-purple-gradient",
		TextColor:          "white",
	}
	override := ThemeTokens{
		TextColor:    "gray-900",
		BorderRadius: "full",
	}

	base.Merge(override)

	if base.PrimaryColorScheme != "blue-purple-gradient" {
		t.Errorf("unset override clobbered scheme: %q", base.PrimaryColorScheme)
	}
	if base.TextColor != "gray-900" {
		t.Errorf("set override not applied: %q", base.TextColor)
	}
	if base.BorderRadius != "full" {
		t.Errorf("new field not merged: %q", base.BorderRadius)
	}
}

func TestThemeTokensMergeAdditional(t *testing.T) {
	base := ThemeTokens{Additional: map[string]any{"glow": "soft", "depth": "1"}}
	base.Merge(ThemeTokens{Additional: map[string]any{"depth": "2"}})

	if base.Additional["glow"] != "soft" {
		t.Errorf("existing extra property lost: %v", base.Additional)
	}
	if base.Additional["depth"] != "2" {
		t.Errorf("extra property not overridden: %v", base.Additional)
	}
}

func TestTokensFromProps(t *testing.T) {
	props := map[string]any{
		"border_radius": "full",
		"ripple_effect": true,
		"glow":          "soft",
	}
	tokens := TokensFromProps(props)

	if tokens.BorderRadius != "full" {
		t.Errorf("known field not filled: %q", tokens.BorderRadius)
	}
	if !tokens.RippleEffect {
		t.Error("bool field not filled")
	}
	if tokens.Additional["glow"] != "soft" {
		t.Errorf("unknown key not routed to Additional: %v", tokens.Additional)
	}
}

func TestTokensFromPropsMalformedProperty(t *testing.T) {
	props := map[string]any{
		"border_radius": 12,
		"shadow":        "md",
	}
	tokens := TokensFromProps(props)

	// The mistyped property stays unset; the well-formed one survives.
	if tokens.BorderRadius != "" {
		t.Errorf("mistyped field should stay unset, got %q", tokens.BorderRadius)
	}
	if tokens.Shadow != "md" {
		t.Errorf("well-formed field lost: %q", tokens.Shadow)
	}
	if len(tokens.Additional) != 0 {
		t.Errorf("mistyped known key must not leak into Additional: %v", tokens.Additional)
	}
}

func TestValuesOrder(t *testing.T) {
	tokens := ThemeTokens{
		BorderRadius:       "full",
		PrimaryColorScheme: "blue-purple-gradient",
		Interaction:        "hover:scale-105",
	}

	values := tokens.Values()
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	// Declaration order: scheme before radius before interaction.
	if values[0].Name != "primary_color_scheme" || values[1].Name != "border_radius" || values[2].Name != "interaction" {
		t.Errorf("unexpected order: %v", values)
	}
}
