package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	associator "bms-cloud/internal/associator/domain"
)

// ErrExtractorUnavailable reports that the vision service rejected or could
// not process the screenshot.
var ErrExtractorUnavailable = errors.New("extraction: vision service unavailable")

// Client is a minimal REST client for the vision extraction service. The
// service accepts a screenshot upload and answers with the extracted field
// union, in either the flat or the nested shape.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// NewClient constructs a vision client.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("extraction: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extract uploads one screenshot and returns the extracted record fields.
func (c *Client) Extract(ctx context.Context, image []byte, filename string) (associator.RecordInput, error) {
	if c == nil || c.client == nil {
		return associator.RecordInput{}, errors.New("extraction: nil client")
	}
	if len(image) == 0 {
		return associator.RecordInput{}, errors.New("extraction: empty image")
	}
	if filename == "" {
		filename = "screenshot.png"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("screenshot", filename)
	if err != nil {
		return associator.RecordInput{}, err
	}
	if _, err := part.Write(image); err != nil {
		return associator.RecordInput{}, err
	}
	if err := writer.Close(); err != nil {
		return associator.RecordInput{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/extract", &body)
	if err != nil {
		return associator.RecordInput{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return associator.RecordInput{}, fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return associator.RecordInput{}, fmt.Errorf("%w: http %d", ErrExtractorUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return associator.RecordInput{}, fmt.Errorf("extraction: http %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return associator.RecordInput{}, err
	}
	var input associator.RecordInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return associator.RecordInput{}, fmt.Errorf("extraction: decode response: %w", err)
	}
	return input, nil
}
