package transcription

// Utterance represents one recognized utterance from an audio segment
type Utterance struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// Config represents the configuration for the subprocess transcription adapter
type Config struct {
	PythonPath     string
	ScriptPath     string
	TimeoutSeconds int
}
