package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DocStoreClient implements ProjectStore and UserDirectory against the
// document store's internal REST API.
type DocStoreClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type DocStoreClientOptions struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

func NewDocStoreClient(opts DocStoreClientOptions) (*DocStoreClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("doc store base URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DocStoreClient{
		baseURL:    baseURL,
		authToken:  strings.TrimSpace(opts.AuthToken),
		httpClient: httpClient,
	}, nil
}

type docStoreProjectPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type docStoreEntityPayload struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type docStoreEntitiesPayload struct {
	Entities []docStoreEntityPayload `json:"entities"`
}

type docStoreUserPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c *DocStoreClient) GetProject(ctx context.Context, projectID string) (Project, error) {
	var payload docStoreProjectPayload
	err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &payload)
	if err != nil {
		return Project{}, err
	}
	project := Project{ID: payload.ID, Name: payload.Name}
	if project.ID == "" {
		project.ID = projectID
	}
	return project, nil
}

func (c *DocStoreClient) GetAllEntities(ctx context.Context, projectID string) ([]Entity, error) {
	var payload docStoreEntitiesPayload
	err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/entities", nil, &payload)
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(payload.Entities))
	for _, raw := range payload.Entities {
		kind := EntityDoc
		if raw.Type == string(EntityFile) {
			kind = EntityFile
		}
		entities = append(entities, Entity{Path: raw.Path, Kind: kind})
	}
	return entities, nil
}

func (c *DocStoreClient) UpsertDoc(ctx context.Context, projectID, path string, lines []string, actorID string) error {
	body := map[string]any{
		"path":    path,
		"lines":   lines,
		"actorId": actorID,
	}
	return c.doJSON(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/docs", body, nil)
}

func (c *DocStoreClient) UpsertFile(ctx context.Context, projectID, path string, content io.Reader, actorID string) error {
	query := url.Values{}
	query.Set("path", path)
	query.Set("actorId", actorID)
	endpoint := c.baseURL + "/projects/" + url.PathEscape(projectID) + "/files?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, content)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return c.statusToError(resp.StatusCode, endpoint)
}

func (c *DocStoreClient) DeleteEntity(ctx context.Context, projectID, path, actorID string) error {
	query := url.Values{}
	query.Set("path", path)
	query.Set("actorId", actorID)
	return c.doJSON(ctx, http.MethodDelete, "/projects/"+url.PathEscape(projectID)+"/entities?"+query.Encode(), nil, nil)
}

func (c *DocStoreClient) GetUser(ctx context.Context, userID string) (User, error) {
	var payload docStoreUserPayload
	err := c.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &payload)
	if err != nil {
		return User{}, err
	}
	return User{Email: payload.Email, Name: payload.Name}, nil
}

func (c *DocStoreClient) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	endpoint := c.baseURL + requestPath
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if statusErr := c.statusToError(resp.StatusCode, endpoint); statusErr != nil {
		return statusErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *DocStoreClient) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *DocStoreClient) statusToError(status int, endpoint string) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrOutOfDate
	default:
		return fmt.Errorf("doc store request failed: status=%d url=%s", status, endpoint)
	}
}
