// Package filestore talks to the file service that owns source and
// processed images.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/image-tasks/internal/domain"
)

// Config holds file service settings
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	UploadPath string
}

// Client is an HTTP client for the file service API.
type Client struct {
	baseURL    string
	uploadPath string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a file service client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		uploadPath: cfg.UploadPath,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Lookup returns the metadata of fileID, or ErrFileNotFound.
func (c *Client) Lookup(ctx context.Context, fileID int64) (*domain.FileInfo, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/files/%d", fileID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("lookup", resp)
	}

	var info domain.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode file info: %w", err)
	}
	if info.ID == 0 {
		info.ID = fileID
	}
	return &info, nil
}

// Download returns the content of fileID.
func (c *Client) Download(ctx context.Context, fileID int64) ([]byte, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/files/%d/download", fileID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("download", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %d: %w", fileID, err)
	}

	c.logger.DebugContext(ctx, "File downloaded",
		slog.Int64("file_id", fileID),
		slog.Int("size", len(data)),
	)
	return data, nil
}

// Upload stores content under name and returns the new file id.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) (int64, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if c.uploadPath != "" {
		if err := writer.WriteField("upload_path", c.uploadPath); err != nil {
			return 0, fmt.Errorf("failed to write upload_path: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return 0, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return 0, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, unexpectedStatus("upload", resp)
	}

	var uploaded struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return 0, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.ID <= 0 {
		return 0, fmt.Errorf("upload response carries no file id")
	}

	c.logger.InfoContext(ctx, "File uploaded",
		slog.String("name", name),
		slog.Int64("file_id", uploaded.ID),
	)
	return uploaded.ID, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("invalid file service url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file service request failed: %w", err)
	}
	return resp, nil
}

func unexpectedStatus(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("file service %s returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
