// Package extract turns uploaded utility bills into usage data points using
// a document converter and a multimodal language model.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/pkg/core"
	"google.golang.org/genai"
)

// Document is one image or PDF handed to the model.
type Document struct {
	Data     []byte
	MIMEType string
}

// Generator produces the model's text answer for a prompt and documents.
type Generator interface {
	Generate(ctx context.Context, prompt string, docs []Document) (string, error)
}

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Prompt builds the extraction instruction for a bill of the given type.
func Prompt(usage core.UsageType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s bill image and extract the following information:\n", usage)
	fmt.Fprintf(&b, "1. Multiple data points of usage, each with a date and %s used\n", usage.Unit())
	b.WriteString("2. Any other relevant usage data\n\n")
	b.WriteString("Format the output as a JSON object with an array of data points and any additional data.\n")
	b.WriteString("You must output valid JSON in the following format, or an empty array if no data is found:\n")
	b.WriteString(`{
    "dataPoints": [
        {
            "date": "<ISO 8601 date string>",
            "usage": <number>
        }
    ]
}`)
	return b.String()
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini creates a Gemini generator. baseURL overrides the API endpoint
// and is empty in production.
func NewGemini(ctx context.Context, cfg config.ExtractConfig, baseURL string) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extract.apiKey is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			TopP:            genai.Ptr(cfg.TopP),
			MaxOutputTokens: cfg.MaxTokens,
		},
	}, nil
}

// Generate sends the prompt followed by every document as one user turn.
func (g *Gemini) Generate(ctx context.Context, prompt string, docs []Document) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, d := range docs {
		parts = append(parts, genai.NewPartFromBytes(d.Data, d.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
