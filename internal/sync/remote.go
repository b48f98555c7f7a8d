// Package sync provides the remote data service client.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WorkoutBatch is the composite payload for the save-full-aggregate remote
// call. The service persists all rows atomically or none at all.
type WorkoutBatch struct {
	Parent        map[string]interface{}   `json:"parent"`
	Children      []map[string]interface{} `json:"children"`
	Grandchildren []map[string]interface{} `json:"grandchildren"`
}

// RemoteResult is the application-level outcome of a remote call.
type RemoteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RemoteService is the remote data service contract. A transport error is a
// non-nil error; an application rejection is Success=false with nil error.
type RemoteService interface {
	SaveWorkout(ctx context.Context, batch *WorkoutBatch) (*RemoteResult, error)
	Insert(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error)
	Update(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error)
	Delete(ctx context.Context, entityType, id string) (*RemoteResult, error)

	// GetLastModified returns the remote entity's last-modified time in ms,
	// or nil when the remote has no record of it.
	GetLastModified(ctx context.Context, entityType, id string) (*int64, error)
}

// ClientConfig holds remote client connection configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements RemoteService over JSON/HTTP.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// collections maps entity types to their API path segments.
var collections = map[string]string{
	EntityTypeSession:  "sessions",
	EntityTypeExercise: "session-exercises",
	EntityTypeSet:      "exercise-sets",
	EntityTypeTemplate: "templates",
}

// NewClient creates a Client for the remote data service.
func NewClient(config *ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// SaveWorkout performs the composite save call for one session aggregate.
func (c *Client) SaveWorkout(ctx context.Context, batch *WorkoutBatch) (*RemoteResult, error) {
	return c.call(ctx, http.MethodPost, "/v1/workouts/batch", batch)
}

// Insert creates one remote entity.
func (c *Client) Insert(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error) {
	path, err := collectionPath(entityType, "")
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodPost, path, payload)
}

// Update replaces one remote entity.
func (c *Client) Update(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error) {
	path, err := collectionPath(entityType, id)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodPut, path, payload)
}

// Delete removes one remote entity.
func (c *Client) Delete(ctx context.Context, entityType, id string) (*RemoteResult, error) {
	path, err := collectionPath(entityType, id)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodDelete, path, nil)
}

// GetLastModified looks up the remote entity's last-modified timestamp.
func (c *Client) GetLastModified(ctx context.Context, entityType, id string) (*int64, error) {
	path, err := collectionPath(entityType, id)
	if err != nil {
		return nil, err
	}

	req, err := c.createRequest(ctx, http.MethodGet, path+"/last-modified", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("last-modified request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("last-modified lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		LastModified int64 `json:"last_modified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode last-modified response: %w", err)
	}
	return &out.LastModified, nil
}

// call performs one JSON request and maps the response onto RemoteResult.
// HTTP errors with a decodable body become application rejections; anything
// below that is a transport error.
func (c *Client) call(ctx context.Context, method, path string, body interface{}) (*RemoteResult, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.createRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result := &RemoteResult{Success: true}
		if len(data) > 0 {
			if err := json.Unmarshal(data, result); err != nil {
				// Tolerate non-envelope success bodies.
				return &RemoteResult{Success: true}, nil
			}
		}
		return result, nil
	}

	// The service reached a verdict; report it as a rejection rather than
	// a transport failure so retry bookkeeping stays accurate.
	result := &RemoteResult{Success: false}
	if len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil || result.Error == "" {
			result.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, string(data))
		}
	} else {
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	result.Success = false
	return result, nil
}

// createRequest builds an authenticated JSON request.
func (c *Client) createRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint, err := url.JoinPath(c.config.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}

// collectionPath maps an entity type to its REST path.
func collectionPath(entityType, id string) (string, error) {
	collection, ok := collections[entityType]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	path := "/v1/" + collection
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	return path, nil
}
