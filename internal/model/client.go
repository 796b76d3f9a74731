package model

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openailib "github.com/sashabaranov/go-openai"
)

// Client is a Provider backed by an OpenAI-compatible chat completions
// endpoint. Grounded on internal/llm/openai.Client: same retry-with-backoff
// loop and streaming accumulation, minus the Function-Calling path, which
// this package has no use for (§4.E: decisions are always parsed from plain
// chat content).
type Client struct {
	client *openailib.Client
	config *Config
}

// NewClient builds a Client from an explicit Config.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	timeout := time.Duration(config.HTTPTimeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewClientFromEnv builds a Client from environment configuration.
func NewClientFromEnv() (*Client, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

// Name identifies the backend for logging and diagnostics.
func (c *Client) Name() string {
	return fmt.Sprintf("openai-compatible (%s)", c.config.Model)
}

func toChatMessages(messages []Message) []openailib.ChatCompletionMessage {
	out := make([]openailib.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openailib.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *Client) buildRequest(messages []Message, stream bool) openailib.ChatCompletionRequest {
	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: toChatMessages(messages),
		Stream:   stream,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	return req
}

// Call performs a single non-streaming chat completion, retrying transient
// HTTP-level failures with linear backoff (§4.E).
func (c *Client) Call(ctx context.Context, messages []Message) (Message, error) {
	req := c.buildRequest(messages, false)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("model returned no choices")
			continue
		}
		return Message{Role: RoleAssistant, Content: resp.Choices[0].Message.Content}, nil
	}
	return Message{}, fmt.Errorf("chat completion failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// CallStream performs a streaming chat completion, invoking onChunk per
// content fragment. Falls back to Call when onChunk is nil or the stream
// cannot be created.
func (c *Client) CallStream(ctx context.Context, messages []Message, onChunk StreamCallback) (Message, error) {
	if onChunk == nil {
		return c.Call(ctx, messages)
	}

	req := c.buildRequest(messages, true)
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return c.Call(ctx, messages)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			if content.Len() == 0 {
				return c.Call(ctx, messages)
			}
			break
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta != "" {
			content.WriteString(delta)
			onChunk(delta)
		}
	}
	return Message{Role: RoleAssistant, Content: content.String()}, nil
}
