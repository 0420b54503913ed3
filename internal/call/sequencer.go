package call

import (
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/yegors/agent-desktop/internal/websocket"
	"github.com/yegors/agent-desktop/pkg/logger"
)

// Broadcaster pushes messages to the live update channel
type Broadcaster interface {
	Broadcast(message interface{})
}

// DurationProbe returns the playback duration of an audio file
type DurationProbe func(path string) (time.Duration, error)

// Sequencer owns the playback queue for one call. Segments play one at a
// time: a play command is broadcast to the viewer, and completion arrives
// either as an external playback-ended notification or from a timer derived
// from the segment's duration. Completion marks the segment played (at most
// once per sourceRef basename) and starts the next segment.
//
// A segment whose resource is missing or unplayable completes immediately so
// the queue is never stuck.
type Sequencer struct {
	audioDir     string
	audioBaseURL string
	grace        time.Duration
	probe        DurationProbe
	broadcast    Broadcaster
	logger       *logger.Logger

	mu         sync.Mutex
	queue      []*AudioSegment
	current    *AudioSegment
	played     map[string]bool
	timer      *time.Timer
	stopped    bool
	onComplete func(*AudioSegment)
}

// NewSequencer creates a new playback sequencer
func NewSequencer(audioDir, audioBaseURL string, grace time.Duration, probe DurationProbe, broadcast Broadcaster, log *logger.Logger) *Sequencer {
	return &Sequencer{
		audioDir:     audioDir,
		audioBaseURL: audioBaseURL,
		grace:        grace,
		probe:        probe,
		broadcast:    broadcast,
		logger:       log.Named("sequencer"),
		played:       make(map[string]bool),
	}
}

// SetOnComplete registers the segment completion handler
func (s *Sequencer) SetOnComplete(fn func(*AudioSegment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// Enqueue appends segments to the queue, skipping any whose sourceRef
// basename was already played this session, and starts playback when idle.
func (s *Sequencer) Enqueue(segments ...*AudioSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	for _, seg := range segments {
		base := path.Base(seg.SourceRef)
		if s.played[base] {
			s.logger.Debug("Skipping already-played segment", logger.String("source", base))
			continue
		}
		s.queue = append(s.queue, seg)
	}

	if s.current == nil {
		s.startNextLocked()
	}
}

// startNextLocked begins playing the head of the queue. Must hold s.mu.
func (s *Sequencer) startNextLocked() {
	if s.stopped || s.current != nil || len(s.queue) == 0 {
		return
	}

	seg := s.queue[0]
	s.queue = s.queue[1:]
	s.current = seg
	base := path.Base(seg.SourceRef)

	duration, err := s.probe(filepath.Join(s.audioDir, seg.SourceRef))
	if err != nil {
		if seg.EstimatedDuration > 0 {
			duration = seg.EstimatedDuration
			s.logger.Debug("Using estimated duration for segment",
				logger.String("source", base),
				logger.Duration("duration", duration))
		} else {
			// Skip-on-error: an unplayable segment completes immediately
			// so the call never stalls on a missing resource.
			s.logger.Warn("Segment unplayable, skipping",
				logger.String("source", base),
				logger.Error(err))
			go s.NotifyPlayed(base)
			return
		}
	}

	s.logger.Info("Playing segment",
		logger.String("source", base),
		logger.String("role", string(seg.Role)),
		logger.Duration("duration", duration))

	s.broadcast.Broadcast(websocket.NewPlayMessage(s.audioBaseURL + base))

	// Fallback completion timer in case no playback-ended notification
	// arrives from the viewer.
	s.timer = time.AfterFunc(duration+s.grace, func() {
		s.NotifyPlayed(base)
	})
}

// NotifyPlayed signals that playback of the given file has ended. It is
// idempotent per sourceRef basename: duplicate notifications and
// notifications for unknown files are no-ops.
func (s *Sequencer) NotifyPlayed(sourceRef string) {
	base := path.Base(sourceRef)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.played[base] {
		s.mu.Unlock()
		s.logger.Debug("Duplicate playback notification", logger.String("source", base))
		return
	}
	if s.current == nil || path.Base(s.current.SourceRef) != base {
		s.mu.Unlock()
		s.logger.Debug("Playback notification for inactive segment", logger.String("source", base))
		return
	}

	seg := s.current
	s.current = nil
	s.played[base] = true
	now := time.Now().UTC()
	seg.PlayedAt = &now
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	cb := s.onComplete
	s.mu.Unlock()

	s.logger.Debug("Segment completed", logger.String("source", base))
	if cb != nil {
		cb(seg)
	}

	s.mu.Lock()
	s.startNextLocked()
	s.mu.Unlock()
}

// Stop empties the queue and halts the current segment. No completion
// events fire after Stop returns.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.queue = nil
	s.current = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset prepares the sequencer for a new session, clearing the queue and
// the played markers.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	s.queue = nil
	s.current = nil
	s.played = make(map[string]bool)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// QueueLength returns the number of queued segments, excluding the one
// currently playing.
func (s *Sequencer) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
