package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PostbackNotifier delivers the terminal outcome of a push to the bridge's
// callback URL. Delivery is at-most-once: a transport failure is surfaced to
// the caller for logging but never retried, and never rolls back tree changes
// that were already applied.
type PostbackNotifier struct {
	httpClient *http.Client
}

func NewPostbackNotifier(httpClient *http.Client) *PostbackNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PostbackNotifier{httpClient: httpClient}
}

func (n *PostbackNotifier) Notify(ctx context.Context, postbackURL string, payload Postback) error {
	if strings.TrimSpace(postbackURL) == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("postback failed: status=%d url=%s", resp.StatusCode, postbackURL)
	}
	return nil
}
