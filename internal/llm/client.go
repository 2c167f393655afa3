package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 10 * time.Second

// Client is an OpenAI-compatible chat completions client with retries,
// client-side rate limiting, and a circuit breaker. Responses are requested
// in JSON mode since every caller in this system parses structured output.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	models     []string
}

// NewClient creates a chat client from the LLM and network configuration.
func NewClient(llmCfg config.LLMConfig, netCfg config.NetworkConfig) *Client {
	transport := &http.Transport{
		Proxy: proxyFunc(netCfg),
	}
	if !netCfg.TLSVerify {
		log.Printf("llm: TLS certificate verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	timeout := time.Duration(llmCfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg: llmCfg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		// Most providers throttle around a few requests per second for
		// batch workloads; 5 rps with a small burst keeps us under that.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: NewCircuitBreaker("llm-chat"),
		models:  llmCfg.ModelChain(),
	}
}

// Models returns the configured model chain, primary first.
func (c *Client) Models() []string {
	return c.models
}

// chatRequest is the request body for POST /v1/chat/completions.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// chatResponse is the response body from POST /v1/chat/completions.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn prompt through the rate limiter, circuit
// breaker, and retry loop, and returns the response text.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.cfg.Model
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.completeWithRetry(ctx, model, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("%w: circuit breaker open", types.ErrLLMUnavailable)
		}
		return "", err
	}
	return result.(string), nil
}

// completeWithRetry retries transient failures with capped exponential
// backoff. Client errors other than 429 are not retried.
func (c *Client) completeWithRetry(ctx context.Context, model, prompt string) (string, error) {
	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			log.Printf("llm: retrying %s after %v (attempt %d/%d): %v", model, backoff, attempt+1, attempts, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retriable, err := c.complete(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retriable {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %d attempts exhausted: %v", types.ErrLLMUnavailable, attempts, lastErr)
}

// complete performs one HTTP round trip. The bool result reports whether
// the failure is retriable.
func (c *Client) complete(ctx context.Context, model, prompt string) (string, bool, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", false, fmt.Errorf("llm: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("llm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retriable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retriable, fmt.Errorf("llm: %s returned status %d: %s", model, resp.StatusCode, string(body))
	}

	var respData chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", true, fmt.Errorf("llm: failed to decode response: %w", err)
	}
	if len(respData.Choices) == 0 {
		return "", true, fmt.Errorf("llm: %s returned no choices", model)
	}
	return respData.Choices[0].Message.Content, false, nil
}

// proxyFunc builds the proxy selector from config, honoring no_proxy.
func proxyFunc(netCfg config.NetworkConfig) func(*http.Request) (*url.URL, error) {
	if netCfg.HTTPProxy == "" && netCfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}
	return func(req *http.Request) (*url.URL, error) {
		if noProxyMatch(req.URL.Hostname(), netCfg.NoProxy) {
			return nil, nil
		}
		proxy := netCfg.HTTPProxy
		if req.URL.Scheme == "https" && netCfg.HTTPSProxy != "" {
			proxy = netCfg.HTTPSProxy
		}
		if proxy == "" {
			return nil, nil
		}
		return url.Parse(proxy)
	}
}

// noProxyMatch reports whether host matches an entry in the comma-separated
// no_proxy list. Entries match exact hosts and domain suffixes.
func noProxyMatch(host, noProxy string) bool {
	if noProxy == "" {
		return false
	}
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" || host == entry {
			return true
		}
		if strings.HasPrefix(entry, ".") && strings.HasSuffix(host, entry) {
			return true
		}
		if strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// Compile-time assertion.
var _ TextGenerator = (*Client)(nil)
