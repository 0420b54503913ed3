package call

import "time"

// SegmentRole identifies what part of the call an audio segment plays
type SegmentRole string

const (
	RoleIntro      SegmentRole = "intro"
	RoleCaller     SegmentRole = "caller"
	RoleAgentReply SegmentRole = "agent-reply"
)

// AudioSegment is one unit of audio queued for playback. A segment is
// marked played exactly once per session and never reused across calls.
type AudioSegment struct {
	SourceRef string
	Role      SegmentRole
	PlayedAt  *time.Time
	// EstimatedDuration is the playback timer for segments without a
	// probeable audio file (synthesized agent replies).
	EstimatedDuration time.Duration
}

// State is the call session state
type State string

const (
	StateIdle               State = "idle"
	StateRinging            State = "ringing"
	StateIntroducing        State = "introducing"
	StateAwaitingCaller     State = "awaiting_caller"
	StateTranscribing       State = "transcribing"
	StateAwaitingAgentReply State = "awaiting_agent_reply"
	StateHandoffPending     State = "handoff_pending"
	StateEnded              State = "ended"
)

// Session represents one simulated call
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

// ScriptedReply is a keyword-matched agent reply used when the generative
// gateway fails
type ScriptedReply struct {
	Keyword string
	Reply   string
}

// Config represents the configuration for the call orchestrator
type Config struct {
	AudioDir          string
	AudioBaseURL      string
	CallerNumber      string
	AgentIntroText    string
	IntroAudio        string
	CallerAudio       []string
	ReplyAudioPattern string
	HandoffPhrase     string
	HandoffReply      string
	DefaultReply      string
	ScriptedReplies   []ScriptedReply
	SegmentGrace      time.Duration
	ReplyTimeout      time.Duration
	ReconnectGrace    time.Duration
}
