// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alialegal/alia-cli/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps response bodies to keep a misbehaving backend
	// from exhausting memory.
	MaxResponseSize = 10 * 1024 * 1024
)

// sharedHTTPClient pools connections across all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// ErrRateLimited indicates the backend returned 429.
var ErrRateLimited = errors.New("rate limited")

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the ALIA REST backend. The zero value is not usable; use
// NewClient.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
		maxRetries: DefaultMaxRetries,
		// The backend fronts a per-user service; 10 req/s with a small
		// burst keeps pagination snappy without hammering it.
		limiter: rate.NewLimiter(10, 20),
		log:     log,
	}
}

// WithToken sets a bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// WithMaxRetries sets the maximum number of attempts for transient errors.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateDiscussionInput is the body of POST /discussions.
type CreateDiscussionInput struct {
	Title string `json:"title"`
}

// CreateDiscussion creates a named discussion and returns its id.
func (c *Client) CreateDiscussion(ctx context.Context, title string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/discussions", nil, CreateDiscussionInput{Title: title}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListDiscussions fetches the user's discussions, newest first.
func (c *Client) ListDiscussions(ctx context.Context) ([]model.Discussion, error) {
	var out []model.Discussion
	err := c.doJSON(ctx, http.MethodGet, "/discussions", nil, nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChatInput is the body of POST /chats/{discussionId}: a completed
// exchange, persisted only after the stream finished successfully.
type CreateChatInput struct {
	Question      string         `json:"question"`
	DocumentTypes []string       `json:"documentTypes,omitempty"`
	LegalSubjects []string       `json:"legalSubjects,omitempty"`
	DiscussionID  string         `json:"discussionId"`
	Answer        string         `json:"answer"`
	Documents     []model.Source `json:"documents"`
}

// CreateChat persists a completed exchange and returns the backend id.
func (c *Client) CreateChat(ctx context.Context, in CreateChatInput) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/chats/"+url.PathEscape(in.DiscussionID), nil, in, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListChats fetches one page of a discussion's exchanges.
func (c *Client) ListChats(ctx context.Context, discussionID string, page, limit int) (*model.ExchangePage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var out model.ExchangePage
	err := c.doJSON(ctx, http.MethodGet, "/discussions/"+url.PathEscape(discussionID)+"/chats", params, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSources fetches the cited sources of one exchange.
func (c *Client) GetSources(ctx context.Context, chatID string) (*model.SourcePage, error) {
	var out model.SourcePage
	err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/sources", nil, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadAudio uploads a recorded question as multipart form field "file" and
// returns the public URL of the stored object.
func (c *Client) UploadAudio(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read audio payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chats/upload", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuth(req)

	// Uploads are not retried: the body reader is consumed by the attempt.
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readResponse(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.errorFromResponse(resp.StatusCode, respBody)
	}

	var out struct {
		PublicURL string `json:"publicUrl"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	return out.PublicURL, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doJSON performs one JSON request with retry for transient failures.
// 5xx responses and 429 are retried with exponential backoff; other non-2xx
// responses surface immediately as *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, in, out any) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		c.setAuth(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return lastErr
			}
			continue
		}

		body, readErr := readResponse(resp)
		resp.Body.Close()
		c.log.Debug("backend request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)))
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, http.StatusText(resp.StatusCode))
			continue
		case resp.StatusCode >= 500:
			lastErr = c.errorFromResponse(resp.StatusCode, body)
			continue
		default:
			return c.errorFromResponse(resp.StatusCode, body)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorFromResponse converts an error body into an *APIError, preferring the
// backend's own message field when the body is JSON.
func (c *Client) errorFromResponse(status int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			msg = apiErr.Message
		} else if apiErr.Error != "" {
			msg = apiErr.Error
		}
	}
	return &APIError{Status: status, Message: msg}
}

// readResponse reads a response body with the size cap applied.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return body, nil
}

// backoff returns the delay before the given retry attempt.
func backoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
