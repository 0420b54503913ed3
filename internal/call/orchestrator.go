package call

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/agent-desktop/internal/audio"
	"github.com/yegors/agent-desktop/internal/storage/sqlite"
	"github.com/yegors/agent-desktop/internal/transcription"
	"github.com/yegors/agent-desktop/internal/websocket"
	"github.com/yegors/agent-desktop/pkg/logger"
)

// Store is the transcript storage the orchestrator writes through
type Store interface {
	Append(turn sqlite.TranscriptTurn) (bool, error)
	UpdateLastIfSpeaker(speaker sqlite.Speaker, newText string) error
	Load() ([]sqlite.TranscriptTurn, error)
	Clear() error
}

// ReplyGenerator produces the agent's next reply from the transcript
type ReplyGenerator interface {
	AgentReply(ctx context.Context, turns []sqlite.TranscriptTurn) (string, error)
}

// Orchestrator drives a simulated call end to end: it sequences audio
// playback, invokes transcription when a caller segment finishes, appends
// turns to the transcript store, requests agent replies, and pushes every
// update over the live channel. All session mutation is serialized through
// its mutex; the transcription subprocess is the only concurrent worker.
type Orchestrator struct {
	config    Config
	seq       *Sequencer
	store     Store
	adapter   transcription.Adapter
	assist    ReplyGenerator
	broadcast Broadcaster
	pacing    PacingPolicy
	logger    *logger.Logger
	baseCtx   context.Context

	mu               sync.Mutex
	session          *Session
	callerPlan       []string
	callerIdx        int
	replyCount       int
	lastCustomerText string
	lastReplyText    string
	handoff          bool
	cancelTranscribe context.CancelFunc
	reconnectTimer   *time.Timer
}

// NewOrchestrator creates a new call orchestrator. ctx bounds the lifetime
// of every background operation the orchestrator starts.
func NewOrchestrator(
	ctx context.Context,
	config Config,
	seq *Sequencer,
	store Store,
	adapter transcription.Adapter,
	assist ReplyGenerator,
	broadcast Broadcaster,
	pacing PacingPolicy,
	log *logger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		config:    config,
		seq:       seq,
		store:     store,
		adapter:   adapter,
		assist:    assist,
		broadcast: broadcast,
		pacing:    pacing,
		logger:    log.Named("orchestrator"),
		baseCtx:   ctx,
	}
	seq.SetOnComplete(o.handleSegmentCompleted)
	return o
}

// Start begins a new call session, superseding any active one, and returns
// the new session ID.
func (o *Orchestrator) Start() (string, error) {
	o.mu.Lock()
	if o.session != nil && o.session.State != StateEnded {
		o.logger.Info("Superseding active session", logger.String("session_id", o.session.ID))
		o.endLocked()
	}

	plan, err := o.buildCallerPlan()
	if err != nil {
		o.mu.Unlock()
		return "", err
	}

	o.session = &Session{
		ID:        uuid.NewString(),
		State:     StateRinging,
		StartedAt: time.Now().UTC(),
	}
	o.callerPlan = plan
	o.callerIdx = 0
	o.replyCount = 0
	o.lastCustomerText = ""
	o.lastReplyText = ""
	o.handoff = false
	sessionID := o.session.ID
	o.mu.Unlock()

	o.seq.Reset()

	if err := o.store.Clear(); err != nil {
		return "", fmt.Errorf("failed to clear transcript: %w", err)
	}

	o.logger.Info("Call started",
		logger.String("session_id", sessionID),
		logger.Int("caller_segments", len(plan)))

	o.appendAndBroadcast(sqlite.SpeakerSystem, "Incoming call from "+o.config.CallerNumber, true)

	// The intro text is scripted, so it lands in the transcript before the
	// audio even starts playing.
	o.appendAndBroadcast(sqlite.SpeakerAgent, o.config.AgentIntroText, true)

	o.mu.Lock()
	if o.session != nil && o.session.ID == sessionID {
		o.session.State = StateIntroducing
	}
	o.mu.Unlock()

	o.seq.Enqueue(&AudioSegment{SourceRef: o.config.IntroAudio, Role: RoleIntro})

	return sessionID, nil
}

// buildCallerPlan resolves the ordered caller audio list: the configured
// list when present, otherwise every caller_*.wav in the audio directory.
func (o *Orchestrator) buildCallerPlan() ([]string, error) {
	if len(o.config.CallerAudio) > 0 {
		return append([]string(nil), o.config.CallerAudio...), nil
	}

	entries, err := os.ReadDir(o.config.AudioDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio dir: %w", err)
	}

	var plan []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "caller_") && strings.HasSuffix(name, ".wav") {
			plan = append(plan, name)
		}
	}
	sort.Strings(plan)
	return plan, nil
}

// PlaybackPlan returns the audio files of the current playback plan, intro
// first, resolved against the audio directory.
func (o *Orchestrator) PlaybackPlan() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	plan := make([]string, 0, len(o.callerPlan)+1)
	plan = append(plan, filepath.Join(o.config.AudioDir, o.config.IntroAudio))
	for _, name := range o.callerPlan {
		plan = append(plan, filepath.Join(o.config.AudioDir, name))
	}
	return plan
}

// Stop ends the active session: playback halts, pending transcription
// output is detached, and no partial state is left playable.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.session == nil || o.session.State == StateEnded {
		o.mu.Unlock()
		return nil
	}
	sessionID := o.session.ID
	o.endLocked()
	o.mu.Unlock()

	o.seq.Stop()
	o.logger.Info("Call stopped", logger.String("session_id", sessionID))
	return nil
}

// endLocked transitions the session to Ended. Must hold o.mu; the caller is
// responsible for stopping the sequencer outside the lock.
func (o *Orchestrator) endLocked() {
	if o.session != nil {
		o.session.State = StateEnded
	}
	if o.cancelTranscribe != nil {
		o.cancelTranscribe()
		o.cancelTranscribe = nil
	}
	if o.reconnectTimer != nil {
		o.reconnectTimer.Stop()
		o.reconnectTimer = nil
	}
}

// NotifyPlayed forwards an external playback-ended notification to the
// sequencer. Duplicates are no-ops.
func (o *Orchestrator) NotifyPlayed(file string) {
	o.seq.NotifyPlayed(file)
}

// State returns the current session state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return StateIdle
	}
	return o.session.State
}

// SessionID returns the active session ID, or empty when idle
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// HandleViewerConnect is invoked when a live-channel viewer attaches. A
// viewer arriving mid-intro gets the intro turn resent; no further history
// replay happens.
func (o *Orchestrator) HandleViewerConnect() {
	o.mu.Lock()
	if o.reconnectTimer != nil {
		o.reconnectTimer.Stop()
		o.reconnectTimer = nil
	}
	midIntro := o.session != nil && o.session.State == StateIntroducing
	o.mu.Unlock()

	if midIntro {
		o.broadcast.Broadcast(websocket.TurnMessage{
			Speaker:   string(sqlite.SpeakerAgent),
			Text:      o.config.AgentIntroText,
			Timestamp: time.Now().UTC(),
		})
	}
}

// HandleViewerDisconnect starts the reconnection grace timer: a viewer that
// never comes back ends the call.
func (o *Orchestrator) HandleViewerDisconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.State == StateEnded {
		return
	}
	if o.reconnectTimer != nil {
		o.reconnectTimer.Stop()
	}
	grace := o.config.ReconnectGrace
	if grace <= 0 {
		return
	}
	o.reconnectTimer = time.AfterFunc(grace, func() {
		o.logger.Info("Viewer did not reconnect, ending call")
		o.Stop()
	})
}

// handleSegmentCompleted advances the state machine when a segment finishes
func (o *Orchestrator) handleSegmentCompleted(seg *AudioSegment) {
	o.mu.Lock()
	if o.session == nil || o.session.State == StateEnded {
		o.mu.Unlock()
		return
	}

	switch seg.Role {
	case RoleIntro:
		o.session.State = StateAwaitingCaller
		o.mu.Unlock()
		o.enqueueNextCaller()

	case RoleCaller:
		o.session.State = StateTranscribing
		ctx, cancel := context.WithCancel(o.baseCtx)
		o.cancelTranscribe = cancel
		o.mu.Unlock()
		go o.runTranscription(ctx, seg)

	case RoleAgentReply:
		replyText := o.lastReplyText
		handoff := o.handoff
		o.mu.Unlock()
		o.finalizeAgentTurn(replyText)

		o.mu.Lock()
		if o.session == nil || o.session.State == StateEnded {
			o.mu.Unlock()
			return
		}
		if handoff {
			o.session.State = StateHandoffPending
			o.mu.Unlock()
			o.logger.Info("Handoff to specialist pending, ending call")
			o.Stop()
			return
		}
		o.session.State = StateAwaitingCaller
		o.mu.Unlock()
		o.enqueueNextCaller()

	default:
		o.mu.Unlock()
	}
}

// finalizeAgentTurn marks the in-flight agent turn final once its audio has
// played, mirroring the one permitted in-place transcript mutation.
func (o *Orchestrator) finalizeAgentTurn(text string) {
	if text == "" {
		return
	}
	if err := o.store.UpdateLastIfSpeaker(sqlite.SpeakerAgent, text); err != nil {
		o.logger.Error("Failed to finalize agent turn", logger.Error(err))
		return
	}
	o.broadcast.Broadcast(websocket.NewUpdateMessage(text))
}

// enqueueNextCaller queues the next caller segment, or ends the call when
// the plan is exhausted.
func (o *Orchestrator) enqueueNextCaller() {
	o.mu.Lock()
	if o.session == nil || o.session.State == StateEnded {
		o.mu.Unlock()
		return
	}
	if o.callerIdx >= len(o.callerPlan) {
		o.mu.Unlock()
		o.logger.Info("Playback plan exhausted")
		o.Stop()
		return
	}
	source := o.callerPlan[o.callerIdx]
	o.callerIdx++
	o.mu.Unlock()

	o.seq.Enqueue(&AudioSegment{SourceRef: source, Role: RoleCaller})
}

// runTranscription consumes the transcription adapter's output for one
// caller segment, appending paced Customer turns, then hands off to reply
// generation. Adapter failure means "no transcript produced" and the call
// proceeds.
func (o *Orchestrator) runTranscription(ctx context.Context, seg *AudioSegment) {
	audioPath := filepath.Join(o.config.AudioDir, seg.SourceRef)
	utterances, errs := o.adapter.Transcribe(ctx, audioPath)

	turnIndex := 0
	for utt := range utterances {
		if delay := o.pacing(turnIndex); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		stored := o.appendAndBroadcast(sqlite.SpeakerCustomer, utt.Text, true)
		if stored {
			o.mu.Lock()
			o.lastCustomerText = utt.Text
			o.mu.Unlock()
			turnIndex++
		}
	}

	if err := <-errs; err != nil && ctx.Err() == nil {
		o.logger.Warn("Transcription failed, proceeding without transcript", logger.Error(err))
	}
	if ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	if o.session == nil || o.session.State != StateTranscribing {
		o.mu.Unlock()
		return
	}
	if o.lastCustomerText == "" {
		// Nothing recognized: skip the reply and keep the call moving
		o.session.State = StateAwaitingCaller
		o.mu.Unlock()
		o.enqueueNextCaller()
		return
	}
	o.session.State = StateAwaitingAgentReply
	o.mu.Unlock()

	o.generateAgentReply(ctx)
}

// generateAgentReply produces the agent's next turn: the handoff phrasing
// when the scenario phrase was heard, otherwise the generative gateway with
// scripted replies as fallback. This path never stalls the call.
func (o *Orchestrator) generateAgentReply(ctx context.Context) {
	o.mu.Lock()
	lastCustomer := o.lastCustomerText
	o.mu.Unlock()

	var reply string
	if o.config.HandoffPhrase != "" && strings.Contains(lastCustomer, o.config.HandoffPhrase) {
		reply = o.config.HandoffReply
		o.mu.Lock()
		o.handoff = true
		o.mu.Unlock()
		o.logger.Info("Handoff phrase detected", logger.String("phrase", o.config.HandoffPhrase))
	} else {
		turns, err := o.store.Load()
		if err != nil {
			o.logger.Error("Failed to load transcript for reply", logger.Error(err))
		} else {
			replyCtx, cancel := context.WithTimeout(ctx, o.config.ReplyTimeout)
			reply, err = o.assist.AgentReply(replyCtx, turns)
			cancel()
		}
		if err != nil || reply == "" {
			o.logger.Warn("Reply generation failed, using scripted reply", logger.Error(err))
			reply = o.scriptedReply(lastCustomer)
		}
	}

	o.mu.Lock()
	if o.session == nil || o.session.State != StateAwaitingAgentReply {
		o.mu.Unlock()
		return
	}
	o.lastReplyText = reply
	o.replyCount++
	replyNum := o.replyCount
	o.mu.Unlock()

	// Appended non-final; finalized when its audio segment completes
	o.appendAndBroadcast(sqlite.SpeakerAgent, reply, false)

	o.seq.Enqueue(&AudioSegment{
		SourceRef:         fmt.Sprintf(o.config.ReplyAudioPattern, replyNum),
		Role:              RoleAgentReply,
		EstimatedDuration: audio.EstimateSpokenDuration(reply),
	})
}

// scriptedReply picks the keyword-matched fallback reply for the given
// customer text.
func (o *Orchestrator) scriptedReply(customerText string) string {
	for _, rule := range o.config.ScriptedReplies {
		if strings.Contains(customerText, rule.Keyword) {
			return rule.Reply
		}
	}
	return o.config.DefaultReply
}

// appendAndBroadcast stores one turn and, when it was not suppressed as a
// duplicate, pushes it to the viewer. Reports whether the turn was stored.
func (o *Orchestrator) appendAndBroadcast(speaker sqlite.Speaker, text string, isFinal bool) bool {
	turn := sqlite.TranscriptTurn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
		IsFinal:   isFinal,
	}

	stored, err := o.store.Append(turn)
	if err != nil {
		o.logger.Error("Failed to append turn",
			logger.String("speaker", string(speaker)),
			logger.Error(err))
		return false
	}
	if !stored {
		return false
	}

	o.broadcast.Broadcast(websocket.TurnMessage{
		Speaker:   string(turn.Speaker),
		Text:      turn.Text,
		Timestamp: turn.Timestamp,
	})
	return true
}
