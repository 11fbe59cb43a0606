package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultLoaderURL string = "http://localhost:8081"

// LoaderService implements [Fetcher] against a loader sidecar that wraps the platform's extractor.
type LoaderService struct {
	baseURL    string
	httpClient *http.Client
}

// NewLoaderService creates a loader client. An empty baseURL uses the local default.
func NewLoaderService(baseURL string, client *http.Client) *LoaderService {
	if baseURL == "" {
		baseURL = defaultLoaderURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &LoaderService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// Fetch asks the loader to download url.
//
// Calls POST /api/download; the loader answers with the artifact path as plain text.
func (l *LoaderService) Fetch(ctx context.Context, videoURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"url": videoURL})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/download", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := l.do(req)
	if err != nil {
		return "", err
	}

	path := strings.TrimSpace(string(body))
	if path == "" {
		return "", fmt.Errorf("loader returned an empty artifact path")
	}
	return path, nil
}

// List asks the loader for the current members of the playlist at url.
//
// Calls GET /api/get/playlist?url=...
func (l *LoaderService) List(ctx context.Context, playlistURL string) ([]string, error) {
	endpoint := l.baseURL + "/api/get/playlist?" + url.Values{"url": {playlistURL}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := l.do(req)
	if err != nil {
		return nil, err
	}

	var result struct {
		VideoIDs []string `json:"video_ids"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.VideoIDs, nil
}

func (l *LoaderService) do(req *http.Request) ([]byte, error) {
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	msg := strings.TrimSpace(string(body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &FetchError{Kind: FetchUnauthorized, Status: resp.StatusCode, Msg: msg}
	case http.StatusNotFound, http.StatusGone:
		return nil, &FetchError{Kind: FetchUnavailable, Status: resp.StatusCode, Msg: msg}
	case http.StatusRequestEntityTooLarge:
		return nil, &FetchError{Kind: FetchTooLarge, Status: resp.StatusCode, Msg: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &FetchError{Kind: FetchMalformed, Status: resp.StatusCode, Msg: msg}
	default:
		return nil, fmt.Errorf("loader error: status %d: %s", resp.StatusCode, msg)
	}
}
