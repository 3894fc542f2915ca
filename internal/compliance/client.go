// Package compliance builds the instruction payload for the Gemini image
// backend, invokes it, and parses the response into a structured Result.
// One Transform call is exactly one backend call: no retries, no caching.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/ymiah/passportpro/internal/auth"
)

// DefaultModel is the Gemini image model used for passport transformation.
const DefaultModel = "gemini-2.5-flash-image"

// Client wraps the Gemini SDK client for passport photo transformation.
type Client struct {
	genai      *genai.Client
	model      string
	aspectHint string
}

// NewClient creates a compliance client for the Gemini API. model and
// aspectHint may be empty to take the defaults (DefaultModel, "3:4").
func NewClient(ctx context.Context, apiKey, model, aspectHint string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	if aspectHint == "" {
		aspectHint = "3:4"
	}
	return &Client{genai: gc, model: model, aspectHint: aspectHint}, nil
}

// Validate probes the configured API key with a minimal request so a bad
// key fails at startup instead of on the first user submission.
func (c *Client) Validate(ctx context.Context) error {
	return auth.ValidateAPIKey(ctx, c.genai)
}

// Transform sends the canonical PNG image plus the compliance prompt (and
// optional user directive) to the backend, and parses the response into a
// Result.
//
// The response is scanned defensively: image and text parts may appear in
// any order and at any position. A text-only response is a *RefusalError
// carrying the backend's text; an empty response is ErrNoImage.
func (c *Client) Transform(ctx context.Context, imagePNG []byte, directive string) (*Result, error) {
	start := time.Now()
	log.Info().
		Str("model", c.model).
		Int("image_bytes", len(imagePNG)).
		Bool("has_directive", directive != "").
		Msg("Sending photo to backend for compliance transformation")

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/png", Data: imagePNG}},
		{Text: BuildPrompt(directive)},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: c.aspectHint},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		log.Error().Err(err).Msg("Backend transformation call failed")
		return nil, fmt.Errorf("backend call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoImage
	}

	// Scan all parts in order; first inline-data part wins, all text parts
	// concatenate into the result text.
	var (
		imageData []byte
		imageMIME string
		text      string
	)
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && imageData == nil {
				imageData = part.InlineData.Data
				imageMIME = part.InlineData.MIMEType
			}
			if part.Text != "" {
				text += part.Text
			}
		}
	}

	if imageData == nil {
		if text != "" {
			log.Warn().Str("text", truncate(text, 200)).Msg("Backend refused: text-only response")
			return nil, &RefusalError{Message: text}
		}
		return nil, ErrNoImage
	}

	score, metrics, report := parseResultText(text)

	log.Info().
		Int("output_bytes", len(imageData)).
		Str("output_mime", imageMIME).
		Int("score", score).
		Int("metrics", len(metrics)).
		Dur("duration", time.Since(start)).
		Msg("Compliance transformation complete")

	return &Result{
		Image:    imageData,
		MIMEType: imageMIME,
		Score:    score,
		Metrics:  metrics,
		Report:   report,
	}, nil
}

// truncate shortens a string to maxLen, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
