// Package service is the client for the remote analysis and generation
// service. The service extracts text from PDFs, proposes redactions and
// renders the final redacted document; this package only moves bytes and
// JSON.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
)

// Default messages used when the service returns an error without a body.
const (
	DefaultAnalyzeError  = "Failed to redact document"
	DefaultGenerateError = "Failed to generate PDF"
)

// Error is a non-2xx response from the service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
}

// Client talks to the analysis service.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client. baseURL includes the API prefix, for example
// http://localhost:5000/api.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: logging.Component("service"),
	}
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks that the service is up and returns its reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "", fmt.Errorf("health: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp, "service unhealthy")
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("health: decode: %w", err)
	}
	return body.Status, nil
}

// Analyze uploads a PDF and returns the extracted text and proposed
// redactions. Spans outside the text are dropped.
func (c *Client) Analyze(ctx context.Context, filename string, r io.Reader) (*model.Analysis, error) {
	body, contentType, err := buildForm(filename, r, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	start := time.Now()
	resp, err := c.post(ctx, "/analyze-contract", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp, DefaultAnalyzeError)
	}

	var a model.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("analyze: decode: %w", err)
	}
	if a.Filename == "" {
		a.Filename = filepath.Base(filename)
	}
	if dropped := a.Validate(); dropped > 0 {
		c.log.Warn().Str("file", a.Filename).Int("dropped", dropped).Msg("service returned spans outside the text")
	}

	c.log.Debug().
		Str("file", a.Filename).
		Int("redactions", len(a.Redactions)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")
	return &a, nil
}

// Generate uploads the original PDF with the final redactions and returns
// the redacted document.
func (c *Client) Generate(ctx context.Context, filename string, r io.Reader, redactions []model.Span) ([]byte, error) {
	if redactions == nil {
		redactions = []model.Span{}
	}
	payload, err := json.Marshal(redactions)
	if err != nil {
		return nil, fmt.Errorf("generate: encode redactions: %w", err)
	}

	body, contentType, err := buildForm(filename, r, map[string]string{"redactions": string(payload)})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	resp, err := c.post(ctx, "/generate-redacted-pdf", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp, DefaultGenerateError)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate: read body: %w", err)
	}
	c.log.Debug().Str("file", filename).Int("redactions", len(redactions)).Int("bytes", len(out)).Msg("document generated")
	return out, nil
}

// RedactedName is the file name used to save a generated document.
func RedactedName(filename string) string {
	return "redacted_" + filepath.Base(filename)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.http.Do(req)
}

func buildForm(filename string, r io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeError reads an {"error": "..."} body, falling back to def.
func decodeError(resp *http.Response, def string) error {
	msg := def
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && strings.TrimSpace(body.Error) != "" {
		msg = body.Error
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
