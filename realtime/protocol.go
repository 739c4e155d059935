package realtime

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Mime types of outbound media chunks.
const (
	MimeTypeJPEG = "image/jpeg"
)

// Modalities accepted in the handshake.
const (
	ModalityAudio = "AUDIO"
	ModalityText  = "TEXT"
)

// ---- outbound ----

// ClientMessage is one outbound frame. Exactly one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtime_input,omitempty"`
	ClientContent *ClientContent `json:"client_content,omitempty"`
	ToolResponse  *ToolResponse  `json:"tool_response,omitempty"`
}

// Setup is the session handshake.
type Setup struct {
	Model             string             `json:"model"`
	GenerationConfig  GenerationConfig   `json:"generation_config"`
	SystemInstruction *Content           `json:"system_instruction,omitempty"`
	Tools             []Tool             `json:"tools,omitempty"`
	SessionResumption *SessionResumption `json:"session_resumption,omitempty"`
}

// GenerationConfig selects reply modalities and voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *SpeechConfig `json:"speech_config,omitempty"`
}

// SpeechConfig wraps the voice selection.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voice_config"`
}

// VoiceConfig wraps a prebuilt voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

// PrebuiltVoiceConfig names a voice.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

// Tool groups function declarations offered to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"function_declarations"`
}

// FunctionDeclaration describes one callable tool.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionResumption asks the server to resume a previous session.
type SessionResumption struct {
	Handle string `json:"handle,omitempty"`
}

// RealtimeInput carries streamed media.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// MediaChunk is a MIME-tagged base64 payload.
type MediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// ClientContent carries conversation turns. The empty value is the keep-alive.
type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turn_complete,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string     `json:"role,omitempty"`
	Parts []TextPart `json:"parts"`
}

// TextPart is an outbound text part.
type TextPart struct {
	Text string `json:"text"`
}

// ToolResponse returns tool results to the model.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"function_responses"`
}

// FunctionResponse is the result of one FunctionCall.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Response any    `json:"response"`
}

// ---- inbound ----

// ServerMessage is one inbound frame.
type ServerMessage struct {
	SetupComplete           *struct{}                `json:"setupComplete,omitempty"`
	ServerContent           *ServerContent           `json:"serverContent,omitempty"`
	ToolCall                *ToolCall                `json:"toolCall,omitempty"`
	ToolCallCancellation    *ToolCallCancellation    `json:"toolCallCancellation,omitempty"`
	SessionResumptionUpdate *SessionResumptionUpdate `json:"sessionResumptionUpdate,omitempty"`
	GoAway                  *GoAway                  `json:"goAway,omitempty"`
	UsageMetadata           *UsageMetadata           `json:"usageMetadata,omitempty"`
}

// ServerContent is model output for the current turn.
type ServerContent struct {
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// ModelTurn holds the parts of a model reply.
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is one inbound content part. Unknown kinds keep their raw form.
type Part struct {
	Text           string          `json:"text,omitempty"`
	InlineData     *InlineData     `json:"inlineData,omitempty"` // camelCase!
	ExecutableCode json.RawMessage `json:"executableCode,omitempty"`
}

// InlineData is inline media, base64 encoded.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Transcription is speech-to-text of either side.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// ToolCallCancellation withdraws earlier calls.
type ToolCallCancellation struct {
	IDs []string `json:"ids,omitempty"`
}

// SessionResumptionUpdate carries a new resumption handle.
type SessionResumptionUpdate struct {
	NewHandle string `json:"newHandle,omitempty"`
	Resumable bool   `json:"resumable,omitempty"`
}

// GoAway warns that the server will close the socket soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// UsageMetadata contains token usage information.
type UsageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount,omitempty"`
	ResponseTokenCount int `json:"responseTokenCount,omitempty"`
	TotalTokenCount    int `json:"totalTokenCount,omitempty"`
}

// ---- helpers ----

// ModelPath prefixes model with "models/" when needed.
func ModelPath(model string) string {
	if model == "" {
		return DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		return "models/" + model
	}
	return model
}

// ValidateModalities rejects empty, unknown and TEXT+AUDIO combinations.
// The Live API serves one reply modality per session.
func ValidateModalities(modalities []string) error {
	if len(modalities) == 0 {
		return fmt.Errorf("response modalities must not be empty")
	}
	for _, m := range modalities {
		if m != ModalityAudio && m != ModalityText {
			return fmt.Errorf("unknown response modality %q", m)
		}
	}
	if slices.Contains(modalities, ModalityText) && slices.Contains(modalities, ModalityAudio) {
		return fmt.Errorf(
			"invalid response modalities: TEXT and AUDIO cannot be combined; " +
				"use either [\"TEXT\"] or [\"AUDIO\"]")
	}
	return nil
}

func buildSetup(cfg *Config, resumeHandle string) *Setup {
	setup := &Setup{
		Model: ModelPath(cfg.Model),
		GenerationConfig: GenerationConfig{
			ResponseModalities: cfg.ResponseModalities,
		},
	}
	if slices.Contains(cfg.ResponseModalities, ModalityAudio) && cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{Parts: []TextPart{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Tools = []Tool{{FunctionDeclarations: cfg.Tools}}
	}
	if cfg.SessionResumption {
		setup.SessionResumption = &SessionResumption{Handle: resumeHandle}
	}
	return setup
}

// truncateInlineData recursively truncates large data fields for logging.
func truncateInlineData(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		if data, ok := val["data"].(string); ok && len(data) > 100 {
			val["data"] = fmt.Sprintf("[%d bytes base64]", len(data))
		}
		for _, child := range val {
			truncateInlineData(child)
		}
	case []interface{}:
		for _, item := range val {
			truncateInlineData(item)
		}
	}
}
