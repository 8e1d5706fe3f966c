package mapper

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/mockpilot/mesh/shared/protocol"
)

// MapRequest names the styles and brands to resolve, optionally scoped to a
// component so component-qualified style entries apply.
type MapRequest struct {
	Styles    []string `json:"styles"`
	BrandRefs []string `json:"brand_refs"`
	Component string   `json:"component,omitempty"`
}

// Normalize lowercases and trims every reference in place.
func (r *MapRequest) Normalize() {
	for i, s := range r.Styles {
		r.Styles[i] = strings.ToLower(strings.TrimSpace(s))
	}
	for i, b := range r.BrandRefs {
		r.BrandRefs[i] = strings.ToLower(strings.TrimSpace(b))
	}
	r.Component = strings.ToLower(strings.TrimSpace(r.Component))
}

// MapResponse carries the merged tokens plus the references that actually
// resolved, in application order.
type MapResponse struct {
	ThemeTokens     protocol.ThemeTokens `json:"theme_tokens"`
	TailwindClasses []string             `json:"tailwind_classes"`
	SourceStyles    []string             `json:"source_styles"`
	SourceBrands    []string             `json:"source_brands"`
}

// Mapper merges brand and style properties into theme tokens. Brands apply
// first, then styles in request order, so later styles override brand
// defaults. Unknown references are skipped with a warning.
type Mapper struct {
	loader *Loader
}

func NewMapper(loader *Loader) *Mapper {
	return &Mapper{loader: loader}
}

func (m *Mapper) Map(req MapRequest) MapResponse {
	req.Normalize()

	tokens := protocol.ThemeTokens{}
	usedBrands := make([]string, 0, len(req.BrandRefs))
	usedStyles := make([]string, 0, len(req.Styles))

	for _, brand := range req.BrandRefs {
		props := m.loader.BrandProps(brand)
		if props == nil {
			slog.Warn("mapper: unknown brand reference", "brand", brand)
			continue
		}
		tokens.Merge(protocol.TokensFromProps(props))
		usedBrands = append(usedBrands, brand)
	}

	for _, style := range req.Styles {
		props := m.loader.StyleProps(style)
		if props == nil {
			slog.Warn("mapper: unknown style reference", "style", style)
		} else {
			tokens.Merge(protocol.TokensFromProps(props))
			usedStyles = append(usedStyles, style)
		}

		// Component-qualified entries ("button_pill") refine the base
		// style for one component and apply after it.
		if req.Component != "" {
			qualified := req.Component + "_" + style
			if qprops := m.loader.StyleProps(qualified); qprops != nil {
				tokens.Merge(protocol.TokensFromProps(qprops))
				usedStyles = append(usedStyles, qualified)
			}
		}
	}

	return MapResponse{
		ThemeTokens:     tokens,
		TailwindClasses: deriveClasses(tokens, m.loader.TokenMap()),
		SourceStyles:    usedStyles,
		SourceBrands:    usedBrands,
	}
}

// deriveClasses walks the tokens in declaration order and turns each value
// into Tailwind classes. A value present in the token map wins outright;
// otherwise a few fields have direct derivations. Duplicates keep their
// first position.
func deriveClasses(tokens protocol.ThemeTokens, tokenMap map[string]string) []string {
	var classes []string
	seen := make(map[string]bool)
	add := func(class string) {
		if class == "" || seen[class] {
			return
		}
		seen[class] = true
		classes = append(classes, class)
	}

	for _, tv := range tokens.Values() {
		if tv.Value == "" {
			continue
		}
		if mapped, ok := tokenMap[tv.Value]; ok {
			for _, class := range strings.Fields(mapped) {
				add(class)
			}
			continue
		}
		switch tv.Name {
		case "border_radius":
			add("rounded-" + tv.Value)
		case "padding", "padding_x", "padding_y":
			add(tv.Value)
		case "interaction":
			for _, class := range strings.Fields(tv.Value) {
				add(class)
			}
		}
	}

	// Extra properties go through the token map too. Sorted for stable
	// output since map order is not.
	keys := make([]string, 0, len(tokens.Additional))
	for k := range tokens.Additional {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok := tokens.Additional[k].(string)
		if !ok {
			continue
		}
		if mapped, ok := tokenMap[s]; ok {
			for _, class := range strings.Fields(mapped) {
				add(class)
			}
		}
	}

	return classes
}
