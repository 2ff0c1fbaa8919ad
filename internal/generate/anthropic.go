package generate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hpungsan/sightline/internal/fixcache"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// Anthropic generates suggestions with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a generator. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	if model == "" {
		model = DefaultModel
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 2048,
	}, nil
}

// Generate sends one prompt and returns the text of the reply.
func (a *Anthropic) Generate(ctx context.Context, req Request) (fixcache.Payload, error) {
	if err := req.Validate(); err != nil {
		return fixcache.Payload{}, err
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	})
	if err != nil {
		return fixcache.Payload{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	suggestion := strings.TrimSpace(text.String())
	if suggestion == "" {
		return fixcache.Payload{}, fmt.Errorf("model returned no text")
	}

	return fixcache.Payload{
		Suggestion:      suggestion,
		Model:           a.model,
		TemplateVersion: req.TemplateVersion,
		Metadata: map[string]string{
			"fix_type":    req.FixType,
			"stop_reason": string(resp.StopReason),
		},
	}, nil
}

// BuildPrompt renders the prompt for a request. The output depends only on
// the request, which is what makes cached payloads reusable.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are improving the %q field of a web entity (%s) so it is easier to find and cite.\n", req.FieldGroup, req.EntityRef)
	fmt.Fprintf(&b, "Problem to fix: %s\n\n", req.FixType)
	if strings.TrimSpace(req.LiveContent) == "" {
		b.WriteString("The field is currently empty.\n")
	} else {
		b.WriteString("Current value:\n<current>\n")
		b.WriteString(req.LiveContent)
		b.WriteString("\n</current>\n")
	}
	b.WriteString("\nReply with only the replacement value. No commentary, no markdown fences.\n")
	return b.String()
}
