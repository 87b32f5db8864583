// Package gemini provides the optional text generator used for
// constellation guides.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/forgeworks/forge/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

const systemPrompt = "You write concise flavor text for a points-buy perk game. " +
	"Answer with plain prose only: no headings, lists or markdown."

// Generator implements domain.TextGenerator.
type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New connects with apiKey. An empty key yields domain.ErrNoGenerator so
// callers can run without generation.
func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrNoGenerator
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create generative client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0.8)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &Generator{client: client, model: m}, nil
}

// Generate sends prompt and returns the concatenated text of the first
// candidate.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", errors.New("generate: empty response")
	}
	return text, nil
}

// Close releases the client.
func (g *Generator) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}
