package websocket

import "time"

// TurnMessage carries one transcript turn to the viewer
type TurnMessage struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PlayMessage instructs the viewer to play an audio resource
type PlayMessage struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// UpdateMessage finalizes the text of the in-flight agent turn
type UpdateMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// ErrorMessage reports a server-side error to the viewer
type ErrorMessage struct {
	Error string `json:"error"`
}

// NewPlayMessage creates a play command for the given URL
func NewPlayMessage(url string) PlayMessage {
	return PlayMessage{Action: "play", URL: url}
}

// NewUpdateMessage creates a transcription finalization message
func NewUpdateMessage(text string) UpdateMessage {
	return UpdateMessage{Type: "transcription_update", Text: text, IsFinal: true}
}
