package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIClient implements Client against an OpenAI-compatible
// chat-completions endpoint (OpenAI, DeepSeek, Moonshot, VLLM, etc.).
type OpenAIClient struct {
	endpoint    string // full chat-completions URL
	apiKeyEnv   string
	model       string
	maxTokens   int
	stream      bool
	extraParams map[string]any
	client      *http.Client
}

// OpenAIConfig holds the construction parameters for OpenAIClient.
type OpenAIConfig struct {
	Endpoint    string
	APIKeyEnv   string
	Model       string
	MaxTokens   int
	Stream      bool
	Timeout     time.Duration
	ExtraParams map[string]any
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKeyEnv:   cfg.APIKeyEnv,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		stream:      cfg.Stream,
		extraParams: cfg.ExtraParams,
		client:      &http.Client{Timeout: timeout},
	}
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Chat sends the messages and returns the assistant text. Non-2xx
// statuses and transport failures come back as errors; the caller maps
// them to its fallback path.
func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, opts CallOptions) (string, error) {
	stream := c.stream && !opts.NoStream
	body, err := c.buildRequestBody(msgs, opts, stream)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(c.apiKeyEnv))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if stream {
		return readStream(resp.Body)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return extractContent(parsed), nil
}

func (c *OpenAIClient) buildRequestBody(msgs []Message, opts CallOptions, stream bool) ([]byte, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   stream,
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}
	if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	}
	for k, v := range c.extraParams {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return body, nil
}

// readStream concatenates SSE content deltas in arrival order until the
// [DONE] sentinel.
func readStream(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return sb.String(), nil
}

func extractContent(resp openAIResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	if resp.Choices[0].Message.Content != "" {
		return resp.Choices[0].Message.Content
	}
	return resp.Choices[0].Text
}

// TestConnection probes the endpoint's /models route and returns the
// number of models advertised. Used by the doctor command only; the
// relay never calls this at startup.
func (c *OpenAIClient) TestConnection(ctx context.Context) (int, error) {
	base := strings.TrimSuffix(c.endpoint, "/chat/completions")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(c.apiKeyEnv))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("models request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode models response: %w", err)
	}
	return len(parsed.Data), nil
}
