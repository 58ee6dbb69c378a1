package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

const (
	defaultModel      = "gpt-4o-mini"
	maxPromptHistory  = 60
	systemInstruction = "You tune time-series forecasting models. Reply with a single JSON object with keys " +
		"optimizedParameters (object), confidence (0-100), reasoning (string), factors (array of strings) " +
		"and expectedAccuracy (0-100)."
)

// chatClient is the subset of the go-openai client used here.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the OpenAI-compatible advisor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

// OpenAIAdvisor implements Advisor over an OpenAI-compatible chat API.
type OpenAIAdvisor struct {
	client chatClient
	model  string
	logger *slog.Logger
}

// NewOpenAIAdvisor builds an advisor after statically validating the key.
func NewOpenAIAdvisor(cfg OpenAIConfig) (*OpenAIAdvisor, error) {
	if err := ValidateCredential(cfg.APIKey); err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAIAdvisor(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.Logger), nil
}

func newOpenAIAdvisor(client chatClient, model string, logger *slog.Logger) *OpenAIAdvisor {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIAdvisor{client: client, model: model, logger: logger}
}

// Recommend implements Advisor.
func (a *OpenAIAdvisor) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Recommendation{}, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		return Recommendation{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Recommendation{}, fmt.Errorf("advisory returned no choices: %w", models.ErrAdvisoryUnavailable)
	}

	rec, err := parseRecommendation(resp.Choices[0].Message.Content)
	if err != nil {
		return Recommendation{}, err
	}
	a.logger.Debug("advisory recommendation received",
		slog.String("model", req.ModelID),
		slog.Float64("confidence", rec.Confidence),
	)
	return rec, nil
}

func buildPrompt(req Request) (string, error) {
	history := req.HistoricalValues
	if len(history) > maxPromptHistory {
		history = history[len(history)-maxPromptHistory:]
	}
	names := make([]string, 0, len(req.CurrentParameters))
	for name := range req.CurrentParameters {
		names = append(names, name)
	}
	sort.Strings(names)

	payload, err := json.Marshal(struct {
		ModelID           string            `json:"modelId"`
		ParameterNames    []string          `json:"parameterNames"`
		CurrentParameters models.Parameters `json:"currentParameters"`
		SeasonalPeriod    int               `json:"seasonalPeriod"`
		HistoricalValues  []float64         `json:"historicalValues"`
		Profile           SeriesProfile     `json:"profile"`
		BusinessContext   string            `json:"businessContext,omitempty"`
	}{req.ModelID, names, req.CurrentParameters, req.SeasonalPeriod, history, Profile(req.HistoricalValues, 0), req.BusinessContext})
	if err != nil {
		return "", fmt.Errorf("encode advisory request: %w", err)
	}

	var b strings.Builder
	b.WriteString("Recommend parameters for the forecasting model described below. ")
	b.WriteString("Only return keys listed in parameterNames.\n")
	b.Write(payload)
	return b.String(), nil
}

func parseRecommendation(content string) (Recommendation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var rec Recommendation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &rec); err != nil {
		return Recommendation{}, fmt.Errorf("decode advisory reply: %w", err)
	}
	if len(rec.OptimizedParameters) == 0 {
		return Recommendation{}, errors.New("advisory reply has no parameters")
	}
	return rec, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &models.RateLimitError{}
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("advisory upstream %d: %w", apiErr.HTTPStatusCode, models.ErrAdvisoryUnavailable)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &models.RateLimitError{}
	}
	return fmt.Errorf("advisory request failed: %w", err)
}
