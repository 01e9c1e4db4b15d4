package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storyreel/studio/internal/model"
)

// ErrNotFound is returned when the generation API answers 404.
var ErrNotFound = errors.New("generation not found")

// APIError is a non-2xx response from the generation API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("generation API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("generation API error (status %d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match ErrNotFound on a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// GenerationClient talks to the generation endpoints over HTTP. It satisfies
// poller.Fetcher.
type GenerationClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewGenerationClient creates a client for baseURL. The token is sent as a
// Bearer credential when non-empty.
func NewGenerationClient(baseURL, token string, logger *slog.Logger) *GenerationClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
	}
}

// FetchStatus retrieves the current record of a job
func (c *GenerationClient) FetchStatus(ctx context.Context, jobID string) (*model.GenerationRecord, error) {
	var rec model.GenerationRecord
	if err := c.get(ctx, "/api/generations/"+url.PathEscape(jobID)+"/status", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Start queues a new generation
func (c *GenerationClient) Start(ctx context.Context, req *model.GenerationStartRequest) (*model.GenerationStartResponse, error) {
	var result model.GenerationStartResponse
	if err := c.post(ctx, "/api/generations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Retry restarts a failed generation
func (c *GenerationClient) Retry(ctx context.Context, jobID string, req *model.GenerationRetryRequest) (*model.GenerationRetryResponse, error) {
	if req == nil {
		req = &model.GenerationRetryRequest{}
	}
	var result model.GenerationRetryResponse
	if err := c.post(ctx, "/api/generations/"+url.PathEscape(jobID)+"/retry", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Artifacts retrieves the resolved artifact URLs of a job
func (c *GenerationClient) Artifacts(ctx context.Context, jobID string) (*model.ArtifactsResponse, error) {
	var result model.ArtifactsResponse
	if err := c.get(ctx, "/api/generations/"+url.PathEscape(jobID)+"/artifacts", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *GenerationClient) post(ctx context.Context, endpoint string, body, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *GenerationClient) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *GenerationClient) doRequest(req *http.Request, result any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("generation API response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
