// Package api is the client for the PDF-to-image converter service.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds one conversion request.
const DefaultTimeout = 30 * time.Second

// ErrNoPages is returned when the converter produced no images.
var ErrNoPages = errors.New("converter returned no pages")

// Page is one rendered page of a PDF.
type Page struct {
	Data     []byte
	MIMEType string
}

// Client handles communication with the converter service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new converter client. A non-positive timeout uses DefaultTimeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthcheck checks if the converter is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Convert uploads a PDF and returns its rendered pages. The converter answers
// either with a single image body or a JSON array of base64 encoded pages.
func (c *Client) Convert(ctx context.Context, filename string, pdf io.Reader) ([]Page, error) {
	// Create multipart form
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write form fields and file in goroutine
	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		if c.apiKey != "" {
			_ = writer.WriteField("secret", c.apiKey)
		}

		part, err := writer.CreateFormFile("file", filepath.Base(filename))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, pdf); err != nil {
			errCh <- fmt.Errorf("failed to copy file: %w", err)
			pw.CloseWithError(err)
			return
		}
		errCh <- nil
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("convert request failed: %w", err)
	}
	defer resp.Body.Close()

	// Unblock the writer if the server answered before reading everything.
	pr.Close()
	writeErr := <-errCh

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("convert returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if writeErr != nil {
		return nil, writeErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read converter response: %w", err)
	}
	return decodePages(resp.Header.Get("Content-Type"), body)
}

func decodePages(contentType string, body []byte) ([]Page, error) {
	if strings.HasPrefix(contentType, "image/") {
		if len(body) == 0 {
			return nil, ErrNoPages
		}
		return []Page{{Data: body, MIMEType: contentType}}, nil
	}

	var encoded []string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, fmt.Errorf("unexpected converter response: %w", err)
	}
	if len(encoded) == 0 {
		return nil, ErrNoPages
	}

	pages := make([]Page, 0, len(encoded))
	for i, s := range encoded {
		data, mimeType, err := decodeImage(s)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Data: data, MIMEType: mimeType})
	}
	return pages, nil
}

// decodeImage accepts plain base64 or a data: URL.
func decodeImage(s string) ([]byte, string, error) {
	if strings.HasPrefix(s, "data:") {
		return DecodeDataURL(s)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// DecodeDataURL decodes a base64 data: URL into its bytes and MIME type.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("data URL must be base64 encoded")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(data []byte, mimeType string) string {
	var b bytes.Buffer
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
