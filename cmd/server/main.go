package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"
	_ "modernc.org/sqlite"

	"github.com/yegors/agent-desktop/internal/api"
	"github.com/yegors/agent-desktop/internal/assist"
	"github.com/yegors/agent-desktop/internal/audio"
	"github.com/yegors/agent-desktop/internal/call"
	"github.com/yegors/agent-desktop/internal/config"
	"github.com/yegors/agent-desktop/internal/storage/sqlite"
	"github.com/yegors/agent-desktop/internal/transcription"
	"github.com/yegors/agent-desktop/internal/websocket"
	"github.com/yegors/agent-desktop/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting agent desktop server",
		logger.String("config", *configPath),
		logger.Int("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("sqlite", cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	transcriptStorage, err := sqlite.NewTranscriptStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize transcript storage", logger.Error(err))
		os.Exit(1)
	}

	wsServer := websocket.NewServer(
		time.Duration(cfg.Call.KeepaliveSeconds)*time.Second,
		cfg.Server.CORSAllowedOrigins,
		log,
	)

	assistClient := assist.NewClient(assist.Config{
		APIKey:         cfg.Assist.APIKey,
		Model:          cfg.Assist.Model,
		Temperature:    cfg.Assist.Temperature,
		TimeoutSeconds: cfg.Assist.TimeoutSeconds,
		MaxRetries:     cfg.Assist.MaxRetries,
	}, log)

	adapter := transcription.NewScriptAdapter(transcription.Config{
		PythonPath:     cfg.Transcription.PythonPath,
		ScriptPath:     cfg.Transcription.ScriptPath,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}, log)

	callCfg := buildCallConfig(cfg)
	sequencer := call.NewSequencer(
		callCfg.AudioDir,
		callCfg.AudioBaseURL,
		callCfg.SegmentGrace,
		audio.Duration,
		wsServer,
		log,
	)

	pacing := call.NewStepPacing(pacingDelays(cfg.Call.PacingSeconds))
	orchestrator := call.NewOrchestrator(ctx, callCfg, sequencer, transcriptStorage, adapter, assistClient, wsServer, pacing, log)

	wsServer.SetHooks(orchestrator.HandleViewerConnect, orchestrator.HandleViewerDisconnect)

	router := api.NewRouter(orchestrator, transcriptStorage, assistClient, wsServer.HandleConnection, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("Failed to listen", logger.String("addr", addr), logger.Error(err))
		os.Exit(1)
	}
	if cfg.Server.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.Server.MaxConnections)
	}

	server := &http.Server{
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", addr))
		errCh <- server.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server failed", logger.Error(err))
	}

	orchestrator.Stop()
	wsServer.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", logger.Error(err))
	}

	log.Info("Server stopped")
}

// buildCallConfig maps file configuration onto the orchestrator's config
func buildCallConfig(cfg *config.Config) call.Config {
	replies := make([]call.ScriptedReply, 0, len(cfg.Call.ScriptedReplies))
	for _, r := range cfg.Call.ScriptedReplies {
		replies = append(replies, call.ScriptedReply{Keyword: r.Keyword, Reply: r.Reply})
	}

	return call.Config{
		AudioDir:          cfg.Server.AudioDir,
		AudioBaseURL:      "/audio/",
		CallerNumber:      cfg.Call.CallerNumber,
		AgentIntroText:    cfg.Call.AgentIntroText,
		IntroAudio:        cfg.Call.IntroAudio,
		CallerAudio:       cfg.Call.CallerAudio,
		ReplyAudioPattern: cfg.Call.ReplyAudioPattern,
		HandoffPhrase:     cfg.Call.HandoffPhrase,
		HandoffReply:      cfg.Call.HandoffReply,
		DefaultReply:      cfg.Call.DefaultReply,
		ScriptedReplies:   replies,
		SegmentGrace:      time.Duration(cfg.Call.SegmentGraceSeconds) * time.Second,
		ReplyTimeout:      time.Duration(cfg.Call.ReplyTimeoutSeconds) * time.Second,
		ReconnectGrace:    time.Duration(cfg.Call.ReconnectGraceSeconds) * time.Second,
	}
}

// pacingDelays converts configured second counts to durations
func pacingDelays(seconds []int) []time.Duration {
	delays := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		delays = append(delays, time.Duration(s)*time.Second)
	}
	return delays
}
