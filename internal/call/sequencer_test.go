package call

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yegors/agent-desktop/internal/websocket"
	"github.com/yegors/agent-desktop/pkg/logger"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakeBroadcaster) Broadcast(message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeBroadcaster) playMessages() []websocket.PlayMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var plays []websocket.PlayMessage
	for _, m := range f.messages {
		if play, ok := m.(websocket.PlayMessage); ok {
			plays = append(plays, play)
		}
	}
	return plays
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func fixedProbe(d time.Duration) DurationProbe {
	return func(string) (time.Duration, error) { return d, nil }
}

func failingProbe(string) (time.Duration, error) {
	return 0, errors.New("unreadable")
}

func newTestSequencer(t *testing.T, probe DurationProbe, broadcast Broadcaster) *Sequencer {
	t.Helper()
	return NewSequencer("/audio-dir", "/audio/", 0, probe, broadcast, testLogger(t))
}

func TestSequencerPlaysOneSegmentAtATime(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	// A long probe duration keeps the fallback timer from firing mid-test
	seq := newTestSequencer(t, fixedProbe(time.Hour), broadcast)

	seq.Enqueue(
		&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller},
		&AudioSegment{SourceRef: "caller_02.wav", Role: RoleCaller},
	)

	plays := broadcast.playMessages()
	if len(plays) != 1 {
		t.Fatalf("Expected 1 play command, got %d", len(plays))
	}
	if plays[0].URL != "/audio/caller_01.wav" {
		t.Errorf("Unexpected play URL: %q", plays[0].URL)
	}
	if seq.QueueLength() != 1 {
		t.Errorf("Expected 1 queued segment, got %d", seq.QueueLength())
	}

	seq.NotifyPlayed("caller_01.wav")

	plays = broadcast.playMessages()
	if len(plays) != 2 {
		t.Fatalf("Expected 2 play commands after completion, got %d", len(plays))
	}
	if plays[1].URL != "/audio/caller_02.wav" {
		t.Errorf("Unexpected second play URL: %q", plays[1].URL)
	}
}

func TestNotifyPlayedIsIdempotent(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, fixedProbe(time.Hour), broadcast)

	var completions int
	var mu sync.Mutex
	seq.SetOnComplete(func(*AudioSegment) {
		mu.Lock()
		completions++
		mu.Unlock()
	})

	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})

	seq.NotifyPlayed("caller_01.wav")
	seq.NotifyPlayed("caller_01.wav")
	seq.NotifyPlayed("never_queued.wav")

	mu.Lock()
	defer mu.Unlock()
	if completions != 1 {
		t.Errorf("Expected exactly 1 completion, got %d", completions)
	}
}

func TestEnqueueSkipsPlayedSegments(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, fixedProbe(time.Hour), broadcast)

	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})
	seq.NotifyPlayed("caller_01.wav")

	// Re-enqueueing a played file must not replay it
	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})

	if plays := broadcast.playMessages(); len(plays) != 1 {
		t.Errorf("Expected 1 play command, got %d", len(plays))
	}
	if seq.QueueLength() != 0 {
		t.Errorf("Expected empty queue, got %d", seq.QueueLength())
	}
}

func TestUnplayableSegmentIsSkipped(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, failingProbe, broadcast)

	done := make(chan *AudioSegment, 2)
	seq.SetOnComplete(func(seg *AudioSegment) { done <- seg })

	seq.Enqueue(&AudioSegment{SourceRef: "missing.wav", Role: RoleCaller})

	select {
	case seg := <-done:
		if seg.SourceRef != "missing.wav" {
			t.Errorf("Unexpected completed segment: %q", seg.SourceRef)
		}
	case <-time.After(time.Second):
		t.Fatal("Unplayable segment never completed")
	}

	// No play command should have been broadcast for it
	if plays := broadcast.playMessages(); len(plays) != 0 {
		t.Errorf("Expected no play commands, got %d", len(plays))
	}
}

func TestUnplayableSegmentUsesEstimatedDuration(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, failingProbe, broadcast)

	done := make(chan *AudioSegment, 1)
	seq.SetOnComplete(func(seg *AudioSegment) { done <- seg })

	seq.Enqueue(&AudioSegment{
		SourceRef:         "agent_reply_1.wav",
		Role:              RoleAgentReply,
		EstimatedDuration: 5 * time.Millisecond,
	})

	// An estimate means the segment is announced and completes on the timer
	if plays := broadcast.playMessages(); len(plays) != 1 {
		t.Fatalf("Expected 1 play command, got %d", len(plays))
	}

	select {
	case seg := <-done:
		if seg.PlayedAt == nil {
			t.Error("Completed segment should record its played time")
		}
	case <-time.After(time.Second):
		t.Fatal("Estimated-duration segment never completed")
	}
}

func TestFallbackTimerCompletesSegment(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, fixedProbe(5*time.Millisecond), broadcast)

	done := make(chan *AudioSegment, 1)
	seq.SetOnComplete(func(seg *AudioSegment) { done <- seg })

	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Fallback timer never fired")
	}
}

func TestStopSilencesSequencer(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, fixedProbe(time.Hour), broadcast)

	var completions int
	var mu sync.Mutex
	seq.SetOnComplete(func(*AudioSegment) {
		mu.Lock()
		completions++
		mu.Unlock()
	})

	seq.Enqueue(
		&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller},
		&AudioSegment{SourceRef: "caller_02.wav", Role: RoleCaller},
	)
	seq.Stop()

	seq.NotifyPlayed("caller_01.wav")
	seq.Enqueue(&AudioSegment{SourceRef: "caller_03.wav", Role: RoleCaller})

	if seq.QueueLength() != 0 {
		t.Errorf("Expected empty queue after stop, got %d", seq.QueueLength())
	}
	mu.Lock()
	defer mu.Unlock()
	if completions != 0 {
		t.Errorf("Expected no completions after stop, got %d", completions)
	}
}

func TestResetAllowsReplay(t *testing.T) {
	broadcast := &fakeBroadcaster{}
	seq := newTestSequencer(t, fixedProbe(time.Hour), broadcast)

	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})
	seq.NotifyPlayed("caller_01.wav")
	seq.Stop()

	seq.Reset()
	seq.Enqueue(&AudioSegment{SourceRef: "caller_01.wav", Role: RoleCaller})

	if plays := broadcast.playMessages(); len(plays) != 2 {
		t.Errorf("Expected replay after reset, got %d play commands", len(plays))
	}
}
