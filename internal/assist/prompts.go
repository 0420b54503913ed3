package assist

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/yegors/agent-desktop/internal/storage/sqlite"
)

const systemPrompt = "You are an AI assistant for a telecom support agent."

var suggestionsTemplate = template.Must(template.New("suggestions").Parse(`Based on the conversation and ticket, provide exactly 3 short, actionable suggestions.

### Recent Transcript:
{{.Transcript}}

### Ticket Info:
- Issue: {{.Ticket.Issue}}
- Priority: {{.Ticket.Priority}}
- Device: {{.Ticket.DeviceModel}}

### Rules:
- Respond ONLY with raw JSON.
- Do NOT use Markdown, code blocks, or explanations.
- Keep suggestions under 10 words each.

### Format:
{"suggestions": ["Suggestion 1", "Suggestion 2", "Suggestion 3"]}
`))

var summaryTemplate = template.Must(template.New("summary").Parse(`Generate a professional wrap-up for a resolved case.

### Context:
- Issue: {{.Ticket.Issue}}
- Device: {{.Ticket.DeviceModel}}

### Recent Conversation:
{{.Transcript}}

### Actions Taken:
- {{.CompletedSteps}}

### Rules:
- Respond with valid JSON only.
- No markdown or code blocks.
- Keep summary under 150 words.

### Format:
{"summary": "Brief summary of issue and fix.", "disposition": "Resolved – Firmware Rollback Applied", "notes": "Technical details and confirmation."}
`))

var replyTemplate = template.Must(template.New("reply").Parse(`You are the support agent on this live call. Write the agent's next reply.

### Conversation so far:
{{.Transcript}}

### Rules:
- Reply with one or two short sentences of plain text, nothing else.
- Stay in character as a calm, helpful telecom support agent.
- Never mention being an AI.
`))

type promptData struct {
	Transcript     string
	Ticket         Ticket
	CompletedSteps string
}

// formatTurns renders the last n transcript turns as "Speaker: text" lines
func formatTurns(turns []sqlite.TranscriptTurn, n int) string {
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Speaker, turn.Text))
	}
	return strings.Join(lines, "\n")
}

// completedSteps renders the playbook's completed actions as a comma list
func completedSteps(playbook Playbook) string {
	var actions []string
	for _, step := range playbook.Steps {
		if step.Status == "completed" {
			actions = append(actions, step.Action)
		}
	}
	if len(actions) == 0 {
		return "None recorded"
	}
	return strings.Join(actions, ", ")
}

func renderTemplate(tmpl *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
