package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type analyzeResponse struct {
	MatchedParagraph string `json:"matchedParagraph,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HTTPClient calls a matcher service's /analyze-match endpoint.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClient{client: client}
}

func (c *HTTPClient) Analyze(ctx context.Context, req Request) (string, error) {
	var out analyzeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/analyze-match")
	if err != nil {
		return "", fmt.Errorf("call matcher: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return "", fmt.Errorf("matcher returned %d: %s", resp.StatusCode(), out.Error)
		}
		return "", fmt.Errorf("matcher returned %d", resp.StatusCode())
	}
	if strings.TrimSpace(out.MatchedParagraph) == "" {
		return "", ErrEmptyResponse
	}
	return out.MatchedParagraph, nil
}
