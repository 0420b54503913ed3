package sqlite

import "time"

// Speaker identifies who produced a transcript turn
type Speaker string

const (
	SpeakerAgent    Speaker = "Agent"
	SpeakerCustomer Speaker = "Customer"
	SpeakerSystem   Speaker = "System"
)

// TranscriptTurn represents one utterance in the call transcript
type TranscriptTurn struct {
	ID        int64     `json:"-"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsFinal   bool      `json:"isFinal"`
}
