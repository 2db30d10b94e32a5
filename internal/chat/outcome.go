package chat

import "strings"

// Diagnostics keys.
const (
	DiagGreetingDetected = "greeting_detected"
	DiagAIBypassed       = "ai_bypassed"
	DiagError            = "error"
	DiagErrorKind        = "error_kind"
	DiagTokenUsage       = "token_usage"
	DiagModel            = "model"
	DiagResourcesMatched = "resources_matched"
	DiagCitations        = "citations"
)

const (
	SourceKindResource = "resource"
	SourceKindCitation = "citation"
)

// Source is either a curated resource or a citation returned by the model.
type Source struct {
	Kind        string `json:"kind"`
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// Outcome is what the pipeline hands back to the chat handler. It is always
// populated: on failure MessageText is a softened user-facing message and
// Diagnostics carries the error classification.
type Outcome struct {
	MessageText string         `json:"message"`
	Sources     []Source       `json:"sources"`
	Diagnostics map[string]any `json:"diagnostics"`
}

// Failed reports whether the outcome came from the fallback generator.
func (o Outcome) Failed() bool {
	_, ok := o.Diagnostics[DiagError]
	return ok
}

// ErrorKind returns the structured error kind, or "" on success.
func (o Outcome) ErrorKind() string {
	kind, _ := o.Diagnostics[DiagErrorKind].(string)
	return kind
}

// GreetingBypass reports whether the reply was generated locally for a greeting.
func (o Outcome) GreetingBypass() bool {
	bypassed, _ := o.Diagnostics[DiagAIBypassed].(bool)
	return bypassed
}

// Usage returns the token usage reported by the completion service, if any.
func (o Outcome) Usage() (TokenUsage, bool) {
	usage, ok := o.Diagnostics[DiagTokenUsage].(TokenUsage)
	return usage, ok
}

// Model returns the model that produced the reply, if any.
func (o Outcome) Model() string {
	model, _ := o.Diagnostics[DiagModel].(string)
	return strings.TrimSpace(model)
}

func resourceSources(resources []Resource) []Source {
	sources := make([]Source, 0, len(resources))
	for _, r := range resources {
		sources = append(sources, Source{
			Kind:        SourceKindResource,
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			URL:         r.URL,
			Category:    r.Category,
		})
	}
	return sources
}

func citationSources(citations []Citation) []Source {
	sources := make([]Source, 0, len(citations))
	for _, c := range citations {
		sources = append(sources, Source{
			Kind:    SourceKindCitation,
			Title:   c.Title,
			URL:     c.URL,
			Excerpt: c.Excerpt,
			Domain:  c.Domain,
		})
	}
	return sources
}
