package protocol

import (
	"encoding/json"
	"fmt"
)

// WS frame kinds, discriminated by a top-level "kind" field with the payload
// fields inline. Client to server kinds mirror the browser client; server to
// client kinds mirror the bus channels plus control frames.
const (
	KindAudioChunk     = "audio_chunk"
	KindEditComponent  = "edit_component"
	KindControlSession = "control_session"
	KindPingCustom     = "ping_custom"

	KindTranscript    = "transcript"
	KindIntent        = "intent"
	KindDesignSpec    = "design_spec"
	KindComponent     = "component"
	KindInsight       = "insight"
	KindServiceStatus = "service_status"
	KindError         = "error"
)

// FrameKind extracts the discriminator from a raw frame.
func FrameKind(data []byte) (string, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	return head.Kind, nil
}

// DecodeFrame unmarshals a raw frame into the kind-specific type.
func DecodeFrame[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode frame to %T: %w", result, err)
	}
	return &result, nil
}

// WrapKind stamps a kind onto an already-encoded JSON object, producing the
// flat outbound frame format.
func WrapKind(kind string, payload []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	fields["kind"] = kind
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", kind, err)
	}
	return data, nil
}

// EncodeFrame marshals v and stamps kind onto it.
func EncodeFrame(kind string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", kind, err)
	}
	return WrapKind(kind, payload)
}

// AudioChunk is the client audio frame; DataB64 is base64-encoded PCM16LE.
type AudioChunk struct {
	SessionID       string  `json:"session_id"`
	DataB64         string  `json:"data_b64"`
	SequenceID      *int64  `json:"sequence_id,omitempty"`
	TimestampClient *string `json:"timestamp_client,omitempty"`
}

// EditComponent carries a manual component code edit from the client.
type EditComponent struct {
	SessionID string `json:"session_id"`
	SpecID    string `json:"spec_id"`
	PatchType string `json:"patch_type"` // full_code or diff
	Code      string `json:"code"`
}

// ControlSession carries client session controls such as start_listening,
// stop_listening and request_mockup_now.
type ControlSession struct {
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
}

// WSError is the error frame sent to clients before an abnormal close.
type WSError struct {
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
