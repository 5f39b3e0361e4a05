package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/api/option"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/utils"
)

const (
	defaultSummaryModelName = "gemini-1.5-flash-latest"

	// Longer posts are cut before being sent to the model.
	maxSummaryInputChars = 8000

	summarySystemInstruction = "You write short summaries of blog posts. " +
		"Reply with a single plain-text paragraph of at most three sentences, in the language of the post. " +
		"Do not add a title, quotes, or markdown."
)

// Summarizer produces a short summary for a blog post.
type Summarizer interface {
	GenerateSummary(ctx context.Context, title, content string) (string, error)
}

type LLMService struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker[string]
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client:  client,
		breaker: newSummaryBreaker(),
	}, nil
}

func newSummaryBreaker() *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "gemini-summary",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing GenAI client")
		} else {
			logging.Info().Msg("GenAI client closed")
		}
	}
}

// GenerateSummary asks Gemini for a short summary. Calls fail fast while the
// breaker is open.
func (s *LLMService) GenerateSummary(ctx context.Context, title, content string) (string, error) {
	return s.breaker.Execute(func() (string, error) {
		return s.generateSummary(ctx, title, content)
	})
}

func (s *LLMService) generateSummary(ctx context.Context, title, content string) (string, error) {
	model := s.client.GenerativeModel(defaultSummaryModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(summarySystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(256)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Title: %s\n\n%s", title, utils.Truncate(content, maxSummaryInputChars))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini summary request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("LLM did not generate a summary (empty response)")
	}

	var summary strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			summary.WriteString(string(txt))
		}
	}

	text := strings.TrimSpace(summary.String())
	if text == "" {
		return "", errors.New("LLM generated an empty summary")
	}
	return text, nil
}
