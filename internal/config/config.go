package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Logging       LoggingConfig       `toml:"logging"`
	Storage       StorageConfig       `toml:"storage"`
	Assist        AssistConfig        `toml:"assist"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Call          CallConfig          `toml:"call"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	StaticFilesDir     string   `toml:"static_files_dir"`
	AudioDir           string   `toml:"audio_dir"`
	MaxConnections     int      `toml:"max_connections"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageConfig represents the SQLite storage configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// AssistConfig represents the generative-text gateway configuration.
// The API key is never read from the config file; it comes from the
// OPENAI_API_KEY environment variable.
type AssistConfig struct {
	APIKey         string  `toml:"-"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxRetries     int     `toml:"max_retries"`
}

// TranscriptionConfig represents the speech-to-text subprocess configuration
type TranscriptionConfig struct {
	PythonPath     string `toml:"python_path"`
	ScriptPath     string `toml:"script_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ScriptedReply is a keyword-matched fallback agent reply used when the
// generative gateway is unavailable
type ScriptedReply struct {
	Keyword string `toml:"keyword"`
	Reply   string `toml:"reply"`
}

// CallConfig represents the simulated-call configuration
type CallConfig struct {
	CallerNumber           string          `toml:"caller_number"`
	AgentIntroText         string          `toml:"agent_intro_text"`
	IntroAudio             string          `toml:"intro_audio"`
	CallerAudio            []string        `toml:"caller_audio"`
	ReplyAudioPattern      string          `toml:"reply_audio_pattern"`
	PacingSeconds          []int           `toml:"pacing_seconds"`
	KeepaliveSeconds       int             `toml:"keepalive_seconds"`
	ReconnectGraceSeconds  int             `toml:"reconnect_grace_seconds"`
	HandoffPhrase          string          `toml:"handoff_phrase"`
	HandoffReply           string          `toml:"handoff_reply"`
	DefaultReply           string          `toml:"default_reply"`
	ScriptedReplies        []ScriptedReply `toml:"scripted_replies"`
	SegmentGraceSeconds    int             `toml:"segment_grace_seconds"`
	ReplyTimeoutSeconds    int             `toml:"reply_timeout_seconds"`
	TranscribeEmptyIsFatal bool            `toml:"-"`
}

// Load reads the configuration from the given TOML file, applies defaults,
// and pulls secrets from the environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg.Assist.APIKey = os.Getenv("OPENAI_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a config populated with defaults mirroring the demo
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               5000,
			CORSAllowedOrigins: []string{"*"},
			StaticFilesDir:     "./client/build",
			AudioDir:           "./data/audio",
			MaxConnections:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			SQLitePath: "./data/agent-desktop.db",
		},
		Assist: AssistConfig{
			Model:          "gpt-4o-mini",
			Temperature:    0.4,
			TimeoutSeconds: 10,
			MaxRetries:     2,
		},
		Transcription: TranscriptionConfig{
			PythonPath:     "python3",
			ScriptPath:     "./scripts/transcribe_audio.py",
			TimeoutSeconds: 120,
		},
		Call: CallConfig{
			CallerNumber:          "(917) 555-0123",
			AgentIntroText:        "Thanks for calling, you've reached technical support. My name is Yiezel Delphinus, who am I speaking with today?",
			IntroAudio:            "agent_intro.wav",
			ReplyAudioPattern:     "agent_reply_%d.wav",
			PacingSeconds:         []int{15, 17, 22},
			KeepaliveSeconds:      30,
			ReconnectGraceSeconds: 60,
			HandoffPhrase:         "dropping out",
			HandoffReply:          "I'm seeing that this is related to a recent firmware update and persistent connection drops. Let me connect you with a specialist who can help resolve this immediately.",
			DefaultReply:          "Thanks for sharing that. Let me look into this for you.",
			ScriptedReplies: []ScriptedReply{
				{Keyword: "Adrian Miller", Reply: "Hey Mr. Miller. I can help you with that. To pull up your account, can I get your date of birth and billing zip code?"},
				{Keyword: "May 15th", Reply: "Great, thanks for verifying. So what seems to be the problem?"},
			},
			SegmentGraceSeconds: 2,
			ReplyTimeoutSeconds: 10,
		},
	}
}

// validate checks required settings. A missing API key is the one fatal
// startup condition: every other failure degrades to fallbacks at runtime.
func (c *Config) validate() error {
	if c.Assist.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Call.IntroAudio == "" {
		return fmt.Errorf("call.intro_audio must be set")
	}
	return nil
}
