package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPHistoryClient talks to the history service's REST API. Transient
// failures (429 and 5xx) are retried with exponential backoff; a 404 maps to
// ErrNotFound so callers can distinguish missing projects and versions.
type HTTPHistoryClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type HistoryClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func NewHTTPHistoryClient(opts HistoryClientOptions) *HTTPHistoryClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3054"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPHistoryClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

type historyVersionPayload struct {
	Version   int      `json:"version"`
	Timestamp string   `json:"timestamp"`
	V2Authors []string `json:"v2Authors"`
}

type historyLabelPayload struct {
	Version   int    `json:"version"`
	Comment   string `json:"comment"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

type historySnapshotPayload struct {
	Files map[string]struct {
		Content  string `json:"content"`
		Hash     string `json:"hash"`
		Editable bool   `json:"editable"`
	} `json:"files"`
}

func (c *HTTPHistoryClient) GetVersion(ctx context.Context, projectID string) (VersionMarker, error) {
	var payload historyVersionPayload
	err := c.getJSON(ctx, fmt.Sprintf("/project/%s/version", url.PathEscape(projectID)), &payload)
	if err != nil {
		return VersionMarker{}, err
	}
	marker := VersionMarker{
		Version:       payload.Version,
		AuthorUserIDs: payload.V2Authors,
	}
	if payload.Timestamp != "" {
		if ts, parseErr := time.Parse(time.RFC3339, payload.Timestamp); parseErr == nil {
			marker.Timestamp = ts
		}
	}
	return marker, nil
}

func (c *HTTPHistoryClient) GetLabels(ctx context.Context, projectID string) ([]Label, error) {
	var payload []historyLabelPayload
	err := c.getJSON(ctx, fmt.Sprintf("/project/%s/labels", url.PathEscape(projectID)), &payload)
	if err != nil {
		// Projects with no labels recorded are an empty list, not a failure.
		if err == ErrNotFound {
			return []Label{}, nil
		}
		return nil, err
	}
	labels := make([]Label, 0, len(payload))
	for _, raw := range payload {
		label := Label{
			Version: raw.Version,
			Comment: raw.Comment,
			UserID:  raw.UserID,
		}
		if raw.CreatedAt != "" {
			if ts, parseErr := time.Parse(time.RFC3339, raw.CreatedAt); parseErr == nil {
				label.CreatedAt = ts
			}
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func (c *HTTPHistoryClient) GetSnapshotAt(ctx context.Context, projectID string, version int) ([]SnapshotFile, error) {
	var payload historySnapshotPayload
	err := c.getJSON(ctx, fmt.Sprintf("/project/%s/snapshot/%d", url.PathEscape(projectID), version), &payload)
	if err != nil {
		return nil, err
	}
	files := make([]SnapshotFile, 0, len(payload.Files))
	for path, raw := range payload.Files {
		files = append(files, SnapshotFile{
			Path:     path,
			Editable: raw.Editable,
			Content:  raw.Content,
			Hash:     raw.Hash,
		})
	}
	return files, nil
}

func (c *HTTPHistoryClient) getJSON(ctx context.Context, requestPath string, out any) error {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(body) == 0 {
				return nil
			}
			return json.Unmarshal(body, out)
		}
		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := sleepWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return fmt.Errorf("history request failed: status=%d path=%s", resp.StatusCode, requestPath)
	}
}

func (c *HTTPHistoryClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
