// Package protocol defines the message types exchanged over the bus and the
// client WebSocket, plus the bus channel names. All wire encoding is JSON.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

// Bus channel names. ChannelsAll is the fan-out subscription set of the
// orchestrator, in subscription order.
const (
	ChannelTranscripts   = "transcripts"
	ChannelIntents       = "intents"
	ChannelComponents    = "components"
	ChannelInsights      = "insights"
	ChannelDesignSpecs   = "design_specs"
	ChannelServiceStatus = "service_status"
)

func ChannelsAll() []string {
	return []string{
		ChannelTranscripts,
		ChannelIntents,
		ChannelComponents,
		ChannelInsights,
		ChannelDesignSpecs,
		ChannelServiceStatus,
	}
}

// TranscriptMsg is a finalized utterance published to the transcripts channel.
type TranscriptMsg struct {
	SchemaVersion string    `json:"schema_version"`
	MsgID         uuid.UUID `json:"msg_id"`
	UtteranceID   uuid.UUID `json:"utterance_id"`
	Text          string    `json:"text"`
	TsStart       float64   `json:"ts_start"`
	TsEnd         float64   `json:"ts_end"`
	Speaker       string    `json:"speaker,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
}

// IntentMsg is a detected design intent published to the intents channel.
type IntentMsg struct {
	SchemaVersion string    `json:"schema_version"`
	UtteranceID   uuid.UUID `json:"utterance_id"`
	Component     string    `json:"component"`
	Styles        []string  `json:"styles"`
	BrandRefs     []string  `json:"brand_refs"`
	Confidence    float64   `json:"confidence"`
	Speaker       string    `json:"speaker,omitempty"`
}

// DesignSpec joins an intent with resolved theme tokens; published to the
// design_specs channel.
type DesignSpec struct {
	SchemaVersion string      `json:"schema_version"`
	SpecID        uuid.UUID   `json:"spec_id"`
	Component     string      `json:"component"`
	ThemeTokens   ThemeTokens `json:"theme_tokens"`
	Interaction   string      `json:"interaction,omitempty"`
	SourceUtts    []uuid.UUID `json:"source_utts"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ComponentMsg carries generated component code on the components channel.
type ComponentMsg struct {
	SchemaVersion string    `json:"schema_version"`
	SpecID        uuid.UUID `json:"spec_id"`
	JSX           string    `json:"jsx"`
	Tailwind      []string  `json:"tailwind,omitempty"`
	NamedExports  []string  `json:"named_exports"`
	LintPassed    bool      `json:"lint_passed"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// InsightPost is a single mined audience reaction.
type InsightPost struct {
	Text      string   `json:"text"`
	Sentiment float64  `json:"sentiment"`
	Tags      []string `json:"tags"`
}

// InsightMsg carries audience insight for a spec on the insights channel.
type InsightMsg struct {
	SchemaVersion string        `json:"schema_version"`
	SpecID        uuid.UUID     `json:"spec_id"`
	Query         string        `json:"query"`
	Posts         []InsightPost `json:"posts"`
}

// Service status values for the service_status channel and WS status frames.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDegraded = "degraded"
)

type ServiceStatusMsg struct {
	ServiceName string `json:"service_name"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

func NewTranscript(utteranceID uuid.UUID, text string, tsStart, tsEnd float64, confidence *float64) TranscriptMsg {
	return TranscriptMsg{
		SchemaVersion: SchemaVersion,
		MsgID:         uuid.New(),
		UtteranceID:   utteranceID,
		Text:          text,
		TsStart:       tsStart,
		TsEnd:         tsEnd,
		Confidence:    confidence,
	}
}
