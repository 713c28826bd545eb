package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/large-farva/earshot/internal/telemetry"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Status string
	Code   int
	Path   string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %s from %s", e.Status, e.Path)
}

// Client issues the one-shot HTTP commands against an earshotd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. A zero timeout means 5 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RecordResponse mirrors the JSON returned by POST /api/record.
type RecordResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// SongRequest is the body of POST /api/songs/add.
type SongRequest struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album"`
}

// AddSongResponse mirrors the JSON returned by POST /api/songs/add.
type AddSongResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Song    *telemetry.Song `json:"song,omitempty"`
}

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Clients       int    `json:"clients"`
	Songs         int    `json:"songs"`
	RecordingID   string `json:"recording_id,omitempty"`
	Mode          string `json:"mode"`
}

// VersionResponse mirrors the JSON returned by GET /api/version.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	BuiltAt   string `json:"built_at"`
}

// StartRecording asks the server to begin listening. The request has no
// body; any non-2xx status is an error.
func (c *Client) StartRecording(ctx context.Context) (RecordResponse, error) {
	var resp RecordResponse
	err := c.postJSON(ctx, "/api/record", nil, &resp)
	return resp, err
}

// AddSong submits a catalog entry.
func (c *Client) AddSong(ctx context.Context, req SongRequest) (AddSongResponse, error) {
	var resp AddSongResponse
	err := c.postJSON(ctx, "/api/songs/add", req, &resp)
	return resp, err
}

// Songs lists the catalog.
func (c *Client) Songs(ctx context.Context) ([]telemetry.Song, error) {
	var songs []telemetry.Song
	err := c.getJSON(ctx, "/api/songs", &songs)
	return songs, err
}

// SearchSongs runs a title/artist substring search.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]telemetry.Song, error) {
	var songs []telemetry.Song
	err := c.getJSON(ctx, "/api/songs/search?q="+url.QueryEscape(query), &songs)
	return songs, err
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var s StatusResponse
	err := c.getJSON(ctx, "/api/status", &s)
	return s, err
}

// Version fetches the daemon build information.
func (c *Client) Version(ctx context.Context) (VersionResponse, error) {
	var v VersionResponse
	err := c.getJSON(ctx, "/api/version", &v)
	return v, err
}

// Health checks /healthz and returns its body.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := checkStatus(resp, "/healthz", body); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// getJSON sends a GET request and decodes the JSON response into dst.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, dst)
}

// postJSON sends a POST request with an optional JSON body and decodes the
// response.
func (c *Client) postJSON(ctx context.Context, path string, body, dst any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, dst)
}

func (c *Client) do(req *http.Request, path string, dst any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, path, dst)
}

// decodeJSON checks the status code and decodes the body into dst. An empty
// 2xx body is accepted.
func decodeJSON(resp *http.Response, path string, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return checkStatus(resp, path, b)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response, path string, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{
		Status: resp.Status,
		Code:   resp.StatusCode,
		Path:   path,
		Body:   strings.TrimSpace(string(body)),
	}
}
