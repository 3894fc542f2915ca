package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// validationModel is a cheap text model used only to probe key validity.
const validationModel = "gemini-2.5-flash-lite"

// ValidateAPIKey verifies that the API key works by making a minimal
// GenerateContent call. It classifies the failure so the caller can print
// an actionable message instead of a raw SDK error.
func ValidateAPIKey(ctx context.Context, client *genai.Client) error {
	log.Debug().Msg("Validating API key with a minimal request")

	_, err := client.Models.GenerateContent(ctx, validationModel, genai.Text("hi"), nil)
	if err == nil {
		log.Debug().Msg("API key is valid")
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid") || strings.Contains(msg, "API_KEY_INVALID"):
		return fmt.Errorf("API key is invalid or revoked: %w", err)
	case strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("API quota exceeded: %w", err)
	default:
		return fmt.Errorf("API key validation failed: %w", err)
	}
}
