package relevance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const upstreamAnthropic = "anthropic"

// Classifier completes a single prompt. Implementations must not retry.
type Classifier interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// AnthropicClassifier calls the Messages API with temperature 0.
type AnthropicClassifier struct {
	client anthropic.Client
}

// NewAnthropicClassifier returns nil when apiKey is empty so callers can
// treat "no key" as "no classifier".
func NewAnthropicClassifier(apiKey, baseURL string, timeout time.Duration) *AnthropicClassifier {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &AnthropicClassifier{client: anthropic.NewClient(opts...)}
}

func (c *AnthropicClassifier) Complete(ctx context.Context, p Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.Model),
		MaxTokens:   p.MaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", fmt.Errorf("%w: %w", apperrors.ErrClassifierFailure,
			apperrors.Malformed(upstreamAnthropic, errors.New("no text content in reply")))
	}
	return text, nil
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrClassifierFailure,
			apperrors.FromStatus(upstreamAnthropic, apiErr.StatusCode, apiErr.Error()))
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrClassifierFailure, apperrors.FromTransport(upstreamAnthropic, err))
	}
	return fmt.Errorf("%w: %w", apperrors.ErrClassifierFailure, err)
}
