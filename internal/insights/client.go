// Package insights talks to the AI collaborator that generates medication
// summaries, interaction checks, image identification, and provider search.
// Provider failures are never fatal: every operation degrades to a fixed
// fallback string at this boundary.
package insights

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/errors"
	"github.com/gmsas95/dosetrack/internal/metrics"
)

// Fallback texts shown when the provider fails, mirroring the app's copy.
const (
	fallbackSummary      = "I'm sorry, I couldn't retrieve information for that medication at this time."
	fallbackInteractions = "Error checking interactions."
	fallbackImage        = "Could not analyze the image. Please try again or type the medication name."
	fallbackProviders    = "I encountered an error searching for providers. Please try again later."
)

// Client provides access to an OpenAI-compatible chat completion API.
type Client struct {
	cfg     config.InsightsConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an insights client. The circuit breaker opens after
// repeated consecutive failures so a dead provider costs callers nothing but
// the fallback text.
func NewClient(cfg config.InsightsConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "insights",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// complete sends one chat completion through the rate limiter and breaker.
func (c *Client) complete(ctx context.Context, op string, messages []chatMessage) (string, []string, error) {
	metrics.ProviderRequests.WithLabelValues(op).Inc()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, errors.Wrap(err, errors.ErrRateLimited.Code, "rate limiter interrupted")
	}

	var citations []string
	text, err := c.breaker.Execute(func() (string, error) {
		body, err := json.Marshal(chatRequest{
			Model:     c.cfg.Model,
			Messages:  messages,
			MaxTokens: c.cfg.MaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}

		var result chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(result.Choices) == 0 {
			return "", fmt.Errorf("no response from model")
		}
		citations = result.Citations
		return result.Choices[0].Message.Content, nil
	})
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(op).Inc()
		return "", nil, errors.Wrap(err, errors.ErrProviderUnavailable.Code, op+" failed")
	}
	return text, citations, nil
}

// MedicationSummary returns a patient-readable summary of a medication, or
// the fallback text when the provider fails.
func (c *Client) MedicationSummary(ctx context.Context, name string) string {
	prompt := fmt.Sprintf(`Provide a clear, concise summary of the medication: %s.
Include:
1. Primary use.
2. Common side effects.
3. Key warnings/interactions.
4. Best time to take it.

Keep it professional but easy for a patient to understand. Add a disclaimer that this is AI-generated and not professional medical advice.`, name)

	text, _, err := c.complete(ctx, "summary", []chatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("Medication summary failed", zap.String("name", name), zap.Error(err))
		return fallbackSummary
	}
	return text
}

// CheckInteractions evaluates potential interactions between the named
// medications.
func (c *Client) CheckInteractions(ctx context.Context, names []string) string {
	prompt := fmt.Sprintf(`Evaluate potential interactions between these medications: %s.
Highlight any serious risks and provide simple advice.`, strings.Join(names, ", "))

	text, _, err := c.complete(ctx, "interactions", []chatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("Interaction check failed", zap.Strings("names", names), zap.Error(err))
		return fallbackInteractions
	}
	return text
}

// AnalyzeImage identifies a medication from a photo of it or its packaging.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte) string {
	encoded := base64.StdEncoding.EncodeToString(image)
	msg := chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + encoded}},
			{Type: "text", Text: "Analyze this image of a medication or its packaging. Identify the medication name if visible, and explain what it's for. If it's a pill, describe its likely purpose based on physical characteristics if known."},
		},
	}

	text, _, err := c.complete(ctx, "image", []chatMessage{msg})
	if err != nil {
		c.logger.Warn("Image analysis failed", zap.Error(err))
		return fallbackImage
	}
	return text
}

// Geo is an optional location hint for provider search.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProviderResult is the answer to a healthcare-provider search.
type ProviderResult struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// FindProviders searches for healthcare providers or clinics matching the
// query, optionally near the given coordinates.
func (c *Client) FindProviders(ctx context.Context, query string, geo *Geo) ProviderResult {
	prompt := fmt.Sprintf("Find high-quality healthcare providers or clinics matching: %s. Focus on providing helpful details like specialty, rating, and what they are known for.", query)
	if geo != nil {
		prompt += fmt.Sprintf(" The patient is near latitude %.4f, longitude %.4f.", geo.Latitude, geo.Longitude)
	}

	text, citations, err := c.complete(ctx, "providers", []chatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("Provider search failed", zap.String("query", query), zap.Error(err))
		return ProviderResult{Text: fallbackProviders, Sources: []string{}}
	}
	return ProviderResult{Text: text, Sources: citations}
}
