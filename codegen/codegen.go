// Package codegen produces mock React component code for design specs.
package codegen

import (
	"fmt"
	"time"

	"github.com/mockpilot/mesh/shared/protocol"
)

// Generate renders a stub component for the spec. Buttons get a styled
// mock; everything else gets a generic container.
func Generate(spec protocol.DesignSpec) protocol.ComponentMsg {
	msg := protocol.ComponentMsg{
		SchemaVersion: protocol.SchemaVersion,
		SpecID:        spec.SpecID,
		LintPassed:    true,
		GeneratedAt:   time.Now().UTC(),
	}

	switch spec.Component {
	case "button":
		msg.JSX = "<button class='px-4 py-2 bg-blue-500 text-white rounded'>Click</button>"
		msg.NamedExports = []string{"MockButton"}
	default:
		msg.JSX = fmt.Sprintf("<div>%s</div>", spec.Component)
		msg.NamedExports = []string{"MockComponent"}
	}
	return msg
}
