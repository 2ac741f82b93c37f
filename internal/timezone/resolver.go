// Package timezone resolves a free-form location description to an IANA
// timezone name using a one-shot language-model call. Reminder times are
// never interpreted without a resolved zone.
package timezone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shim2k/SenteAI/internal/llm"
)

const resolveTimeout = 15 * time.Second

const systemPrompt = `You are a helpful assistant that converts locations to timezones.`

const userPromptTemplate = `Given the following location: %q
Please provide the most likely IANA timezone for this location. Use the format "Continent/City" (e.g., "America/New_York", "Europe/London", "Asia/Tokyo").
If unsure or ambiguous, provide your best guess and explain your reasoning.
Response format: <timezone>|<explanation>`

// Completer is the language-model dependency. Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Resolver maps location text to a validated IANA timezone name.
type Resolver struct {
	llm Completer
}

// NewResolver creates a Resolver backed by the given completion service.
func NewResolver(c Completer) *Resolver {
	return &Resolver{llm: c}
}

// Resolve asks the model for the timezone of a location and validates the
// answer against the zone database. Unlike directive parsing, failures here
// surface as errors so the dialogue can re-ask the user.
func (r *Resolver) Resolve(ctx context.Context, location string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	reply, err := r.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptTemplate, location)},
	})
	if err != nil {
		return "", fmt.Errorf("resolving location %q: %w", location, err)
	}

	tz, _, found := strings.Cut(reply, "|")
	if !found {
		return "", fmt.Errorf("unexpected reply shape %q", reply)
	}
	tz = strings.TrimSpace(tz)

	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("model returned invalid timezone %q: %w", tz, err)
	}
	return tz, nil
}
