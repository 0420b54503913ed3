package transcription

import "context"

// Adapter defines the interface for speech-to-text capabilities. Utterances
// arrive on the first channel as they are recognized; the second channel
// delivers at most one terminal error. Both channels are closed when the
// transcription finishes, succeeds or fails.
type Adapter interface {
	Transcribe(ctx context.Context, audioPath string) (<-chan Utterance, <-chan error)
}

// Ensure the subprocess adapter implements the interface
var _ Adapter = (*ScriptAdapter)(nil)
