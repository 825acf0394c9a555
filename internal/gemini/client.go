package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Content is one prior turn of prompt context.
type Content struct {
	Role string
	Text string
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
	}
	return &Client{cfg: cfg}
}

// Generate sends history as prior turns and text as the new user turn,
// returning the generated reply verbatim. Each call is attempted exactly
// once; any transport or decode failure surfaces as an error.
func (c *Client) Generate(ctx context.Context, history []Content, text string) (string, error) {
	body, endpointURL, err := c.buildPayload(history, text)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("backend status %d", resp.StatusCode)
	}

	return parseGenerateContent(respBody)
}

func (c *Client) buildPayload(history []Content, text string) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	contents := make([]map[string]any, 0, len(history)+1)
	for _, h := range history {
		contents = append(contents, map[string]any{
			"role":  h.Role,
			"parts": []map[string]string{{"text": h.Text}},
		})
	}
	contents = append(contents, map[string]any{
		"role":  RoleUser,
		"parts": []map[string]string{{"text": text}},
	})

	b, err := json.Marshal(map[string]any{"contents": contents})
	if err != nil {
		return nil, "", fmt.Errorf("marshal generate payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/v1beta/models"):
	case strings.HasSuffix(path, "/v1beta"):
		path += "/models"
	default:
		path += "/v1beta/models"
	}
	u.Path = path + "/" + c.cfg.Model + ":generateContent"
	return u.String(), nil
}

func parseGenerateContent(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty candidates in generate response")
	}
	parts := make([]string, 0, len(resp.Candidates[0].Content.Parts))
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("missing text in generate response")
	}
	return text, nil
}
