// Package classifier labels inbound messages by calling an external
// chat-completion endpoint. Classification is best-effort: any failure
// yields an empty label set and delivery continues.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okapimail/okapi/config"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/pkg/metrics"
)

const systemPrompt = `You are an email classifier. Given the sender, subject and body of an email, respond with a comma-separated list of labels from this set: marketing, social, promotions, updates, finance, travel, personal. Respond with only the labels, or "none" if no label applies.`

// Maximum body bytes sent to the endpoint per request.
const maxBodyChars = 4000

// Classifier calls a chat-completion style API to derive labels for a
// message. A nil Classifier is valid and labels nothing.
type Classifier struct {
	url     string
	apiKey  string
	model   string
	client  *http.Client
	timeout time.Duration
}

// NewFromConfig returns a classifier, or nil when the feature is disabled.
func NewFromConfig(cfg *config.ClassifierConfig) (*Classifier, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid classifier timeout: %w", err)
	}
	return &Classifier{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify returns labels for the message, lowercased and deduplicated.
// Errors are logged and swallowed: the returned slice is empty and
// delivery proceeds without classifier labels.
func (c *Classifier) Classify(ctx context.Context, sender, subject, body string) []string {
	if c == nil {
		return nil
	}

	start := time.Now()
	labels, err := c.classify(ctx, sender, subject, body)
	metrics.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		logger.Warnf("classifier: %v", err)
		return nil
	}
	metrics.ClassifierRequestsTotal.WithLabelValues("success").Inc()
	return labels
}

func (c *Classifier) classify(ctx context.Context, sender, subject, body string) ([]string, error) {
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("From: %s\nSubject: %s\n\n%s", sender, subject, body)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}

	return ParseLabels(parsed.Choices[0].Message.Content), nil
}

// ParseLabels turns a comma-separated model response into a clean label
// slice. "none" and empty entries are dropped.
func ParseLabels(response string) []string {
	var labels []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(response, ",") {
		label := strings.ToLower(strings.TrimSpace(part))
		if label == "" || label == "none" || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}
