package transcription

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/yegors/agent-desktop/pkg/logger"
)

// ScriptAdapter transcribes audio by shelling out to the faster-whisper
// Python script. The script writes one JSON object per stdout line:
// recognized utterances ({speaker, text, file, start, end}), a terminal
// {"event": "file_end", "duration": ...} marker, and {"error": ...} lines
// for per-file problems.
type ScriptAdapter struct {
	config Config
	logger *logger.Logger
}

// NewScriptAdapter creates a new subprocess transcription adapter
func NewScriptAdapter(config Config, logger *logger.Logger) *ScriptAdapter {
	return &ScriptAdapter{
		config: config,
		logger: logger.Named("transcription"),
	}
}

// scriptLine is the wire format of one stdout line from the script
type scriptLine struct {
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	File     string  `json:"file"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Event    string  `json:"event"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error"`
}

// parseScriptLine decodes one stdout line into an utterance. The second
// return value reports whether the line carried a usable utterance; blank
// text, file_end markers, and error lines all yield false.
func parseScriptLine(line []byte) (Utterance, bool, error) {
	var msg scriptLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return Utterance{}, false, fmt.Errorf("malformed transcription line: %w", err)
	}

	if msg.Error != "" {
		return Utterance{}, false, fmt.Errorf("transcription script error: %s", msg.Error)
	}
	if msg.Event != "" {
		return Utterance{}, false, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Utterance{}, false, nil
	}

	return Utterance{
		Speaker: msg.Speaker,
		Text:    text,
		Start:   msg.Start,
		End:     msg.End,
	}, true, nil
}

// Transcribe runs the script against one audio file and streams utterances
// as the script emits them. The subprocess is killed when ctx is cancelled.
func (a *ScriptAdapter) Transcribe(ctx context.Context, audioPath string) (<-chan Utterance, <-chan error) {
	utterances := make(chan Utterance, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(utterances)
		defer close(errs)

		runCtx := ctx
		if a.config.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(a.config.TimeoutSeconds)*time.Second)
			defer cancel()
		}

		cmd := exec.CommandContext(runCtx, a.config.PythonPath, a.config.ScriptPath, audioPath)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- fmt.Errorf("failed to open stdout pipe: %w", err)
			return
		}

		a.logger.Info("Starting transcription",
			logger.String("audio", audioPath),
			logger.String("script", a.config.ScriptPath))

		if err := cmd.Start(); err != nil {
			errs <- fmt.Errorf("failed to start transcription script: %w", err)
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}

			utt, ok, err := parseScriptLine(line)
			if err != nil {
				a.logger.Warn("Skipping unusable transcription line",
					logger.String("line", string(line)),
					logger.Error(err))
				continue
			}
			if !ok {
				continue
			}

			select {
			case utterances <- utt:
			case <-runCtx.Done():
				_ = cmd.Process.Kill()
				errs <- runCtx.Err()
				return
			}
		}

		if err := scanner.Err(); err != nil {
			a.logger.Warn("Error reading transcription output", logger.Error(err))
		}

		if err := cmd.Wait(); err != nil {
			errs <- fmt.Errorf("transcription script failed: %w", err)
			return
		}

		a.logger.Info("Transcription complete", logger.String("audio", audioPath))
	}()

	return utterances, errs
}
