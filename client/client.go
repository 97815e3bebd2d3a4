// Package client posts report drafts to the remote analysis endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"medagentx/report"
)

// GenericServerMessage is used when a failed response carries no error field.
const GenericServerMessage = "Server error"

// maxErrorBody bounds how much of a failure response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for non-success responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis endpoint returned %d: %s", e.StatusCode, e.Message)
}

// UserMessage is the text shown to the user for this failure.
func (e *StatusError) UserMessage() string { return e.Message }

type analyzeReq struct {
	Report string `json:"report"`
}

type errorResp struct {
	Error string `json:"error"`
}

// Client calls a single fixed analysis endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// New validates the endpoint and builds a Client. A nil httpClient gets a client
// with the given timeout; timeout 0 means requests never time out on their own.
func New(endpoint string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("analysis endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse analysis endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("analysis endpoint %q must be http or https", endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, client: httpClient, logger: logger}, nil
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Analyze sends exactly one request carrying the report text. It never retries.
func (c *Client) Analyze(ctx context.Context, text string) (report.AnalysisResult, error) {
	body, err := json.Marshal(analyzeReq{Report: text})
	if err != nil {
		return report.AnalysisResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return report.AnalysisResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("analysis request failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return report.AnalysisResult{}, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("analysis response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return report.AnalysisResult{}, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(resp.Body),
		}
	}

	var result report.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return report.AnalysisResult{}, fmt.Errorf("decode analysis result: %w", err)
	}
	return result, nil
}

func serverMessage(body io.Reader) string {
	var data errorResp
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&data); err != nil {
		return GenericServerMessage
	}
	if data.Error == "" {
		return GenericServerMessage
	}
	return data.Error
}
