package realtime

// Wire types for the speech service's realtime protocol. Only the fields the
// engine reads or writes are modeled.

// SessionConfig is the payload of a session.update message.
type SessionConfig struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions"`
	Voice             string   `json:"voice"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
	// TurnDetection is serialized as null: the service's built-in voice
	// activity detector is disabled because barge-in and mute timing are
	// governed locally.
	TurnDetection           any               `json:"turn_detection"`
	InputAudioTranscription *TranscriptionCfg `json:"input_audio_transcription,omitempty"`
	Tools                   []Tool            `json:"tools,omitempty"`
}

// TranscriptionCfg enables server-side transcription of committed input.
type TranscriptionCfg struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type sessionUpdateMsg struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type audioAppendMsg struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type simpleMsg struct {
	Type string `json:"type"`
}

type responseCreateMsg struct {
	Type     string          `json:"type"`
	Response responseOptions `json:"response"`
}

type responseOptions struct {
	Instructions string `json:"instructions,omitempty"`
}

type itemCreateMsg struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// serverEvent is the superset of incoming message fields the engine cares
// about; Type selects which are meaningful.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	Arguments  string `json:"arguments"`
	Error      struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
