// Package flychat is a client for flychat rooms: posting, snapshots and
// resumable message streams.
package flychat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Message is a room message. ID is zero for provisional messages.
type Message struct {
	ID            int64     `json:"id,omitempty"`
	ProvisionalID string    `json:"provisionalId,omitempty"`
	From          string    `json:"from,omitempty"`
	Text          string    `json:"text,omitempty"`
	Date          time.Time `json:"date,omitzero"`
	Retracted     bool      `json:"retracted,omitempty"`
}

// Snapshot is a room's retained messages and newest id.
type Snapshot struct {
	Messages    []Message `json:"messages"`
	LastEventID int64     `json:"lastEventId"`
}

// Client is a flychat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// StreamClient is used for long-lived streams and must not set a
	// timeout.
	StreamClient *http.Client
}

// NewClient creates a new flychat client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		StreamClient: &http.Client{},
	}
}

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("flychat error %d: %s", e.StatusCode, e.Body)
}

func (c *Client) messagesURL(room string) string {
	return c.BaseURL + "/rooms/" + url.PathEscape(room) + "/messages/"
}

// doRequest performs an HTTP request and returns the body of a 2xx response.
func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// Post sends a message and returns it as committed.
func (c *Client) Post(ctx context.Context, room, from, text string) (*Message, error) {
	form := url.Values{"from": {from}, "text": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(room), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Snapshot fetches the room's retained messages.
func (c *Client) Snapshot(ctx context.Context, room string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.messagesURL(room), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
