package assist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yegors/agent-desktop/internal/storage/sqlite"
	"github.com/yegors/agent-desktop/pkg/logger"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeCompleter) complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestClient(t *testing.T, comp completer) *Client {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return &Client{
		comp:   comp,
		config: Config{TimeoutSeconds: 1, MaxRetries: 0},
		logger: log.Named("assist"),
	}
}

func sampleTurns() []sqlite.TranscriptTurn {
	return []sqlite.TranscriptTurn{
		{Speaker: sqlite.SpeakerAgent, Text: "Thanks for calling."},
		{Speaker: sqlite.SpeakerCustomer, Text: "My internet keeps dropping."},
	}
}

func TestSuggestionsParsesStrictJSON(t *testing.T) {
	comp := &fakeCompleter{response: `{"suggestions": ["Check the modem lights", "Reboot the router", "Run a speed test"]}`}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{Issue: "drops"})
	if err != nil {
		t.Fatalf("Suggestions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d", len(got))
	}
	if got[0] != "Check the modem lights" {
		t.Errorf("Unexpected first suggestion: %q", got[0])
	}
}

func TestSuggestionsStripsCodeFences(t *testing.T) {
	comp := &fakeCompleter{response: "```json\n{\"suggestions\": [\"a\", \"b\", \"c\"]}\n```"}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{})
	if err != nil {
		t.Fatalf("Suggestions failed: %v", err)
	}
	if got[2] != "c" {
		t.Errorf("Fenced payload not parsed: %v", got)
	}
}

func TestSuggestionsTruncatesExtras(t *testing.T) {
	comp := &fakeCompleter{response: `{"suggestions": ["a", "b", "c", "d", "e"]}`}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{})
	if err != nil {
		t.Fatalf("Suggestions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 suggestions after truncation, got %d", len(got))
	}
}

func TestSuggestionsFallbackOnShortArray(t *testing.T) {
	comp := &fakeCompleter{response: `{"suggestions": ["only one"]}`}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{})
	if err != nil {
		t.Fatalf("Parse failure must not surface an error: %v", err)
	}
	want := FallbackSuggestions()
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("Expected fallback suggestions, got %v", got)
	}
}

func TestSuggestionsFallbackOnUpstreamError(t *testing.T) {
	comp := &fakeCompleter{err: errors.New("upstream down")}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{})
	if err == nil {
		t.Fatal("Upstream failure must surface an error")
	}
	want := FallbackSuggestions()
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("Expected fallback suggestions alongside the error, got %v", got)
	}
}

func TestSuggestionsFallbackOnMalformedJSON(t *testing.T) {
	comp := &fakeCompleter{response: "Sure! Here are some ideas: 1. reboot"}
	client := newTestClient(t, comp)

	got, err := client.Suggestions(context.Background(), sampleTurns(), Ticket{})
	if err != nil {
		t.Fatalf("Parse failure must not surface an error: %v", err)
	}
	if got[0] != FallbackSuggestions()[0] {
		t.Errorf("Expected fallback suggestions, got %v", got)
	}
}

func TestSuggestionsPromptUsesRecentTurns(t *testing.T) {
	comp := &fakeCompleter{response: `{"suggestions": ["a", "b", "c"]}`}
	client := newTestClient(t, comp)

	turns := make([]sqlite.TranscriptTurn, 0, 10)
	for i := 0; i < 10; i++ {
		turns = append(turns, sqlite.TranscriptTurn{Speaker: sqlite.SpeakerCustomer, Text: "line"})
	}
	turns[0].Text = "very first line"

	if _, err := client.Suggestions(context.Background(), turns, Ticket{}); err != nil {
		t.Fatalf("Suggestions failed: %v", err)
	}
	if strings.Contains(comp.lastUser, "very first line") {
		t.Error("Prompt should only include the most recent turns")
	}
}

func TestWrapUpSummary(t *testing.T) {
	comp := &fakeCompleter{response: `{"summary": "Customer reported drops after firmware update.", "disposition": "Escalated", "notes": "Handoff to tier 2."}`}
	client := newTestClient(t, comp)

	got, err := client.WrapUpSummary(context.Background(), sampleTurns(), Ticket{Issue: "drops"}, Playbook{})
	if err != nil {
		t.Fatalf("WrapUpSummary failed: %v", err)
	}
	if got.Summary != "Customer reported drops after firmware update." {
		t.Errorf("Unexpected summary: %q", got.Summary)
	}
	if got.Disposition != "Escalated" {
		t.Errorf("Unexpected disposition: %q", got.Disposition)
	}
}

func TestWrapUpSummaryFallbackOnMissingSummary(t *testing.T) {
	comp := &fakeCompleter{response: `{"disposition": "Resolved"}`}
	client := newTestClient(t, comp)

	got, err := client.WrapUpSummary(context.Background(), sampleTurns(), Ticket{}, Playbook{})
	if err != nil {
		t.Fatalf("Parse failure must not surface an error: %v", err)
	}
	if got.Summary != FallbackWrapUp().Summary {
		t.Errorf("Expected fallback wrap-up, got %+v", got)
	}
}

func TestWrapUpSummaryFallbackOnUpstreamError(t *testing.T) {
	comp := &fakeCompleter{err: errors.New("timeout")}
	client := newTestClient(t, comp)

	got, err := client.WrapUpSummary(context.Background(), sampleTurns(), Ticket{}, Playbook{})
	if err == nil {
		t.Fatal("Upstream failure must surface an error")
	}
	if got.Summary != FallbackWrapUp().Summary {
		t.Errorf("Expected fallback wrap-up alongside the error, got %+v", got)
	}
}

func TestAgentReplyPropagatesFailure(t *testing.T) {
	comp := &fakeCompleter{err: errors.New("upstream down")}
	client := newTestClient(t, comp)

	if _, err := client.AgentReply(context.Background(), sampleTurns()); err == nil {
		t.Fatal("AgentReply must propagate upstream failure")
	}
}

func TestAgentReplyTrimsResponse(t *testing.T) {
	comp := &fakeCompleter{response: "  Let me pull up your account.  \n"}
	client := newTestClient(t, comp)

	got, err := client.AgentReply(context.Background(), sampleTurns())
	if err != nil {
		t.Fatalf("AgentReply failed: %v", err)
	}
	if got != "Let me pull up your account." {
		t.Errorf("Unexpected reply: %q", got)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{`{"a": 1}`, `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
