package fanout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fanout/flychat/internal/crypto"
)

// ErrInvalidGripURI is returned for GRIP URLs that cannot be parsed.
var ErrInvalidGripURI = errors.New("invalid GRIP URI")

// KeepAliveInterval is how often an idle stream receives a keep-alive event.
const KeepAliveInterval = 20 * time.Second

// GripConfig describes a GRIP proxy control endpoint.
type GripConfig struct {
	ControlURI string
	ControlIss string
	Key        []byte
}

// ParseGripURI parses a URL of the form
// http://host:5561/?iss=realm&key=base64:c2VjcmV0 into a GripConfig.
// iss and key are removed from the control URI.
func ParseGripURI(raw string) (GripConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return GripConfig{}, fmt.Errorf("%w: %v", ErrInvalidGripURI, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return GripConfig{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidGripURI, u.Scheme)
	}
	if u.Host == "" {
		return GripConfig{}, fmt.Errorf("%w: missing host", ErrInvalidGripURI)
	}

	var cfg GripConfig
	q := u.Query()
	cfg.ControlIss = q.Get("iss")
	if key := q.Get("key"); key != "" {
		if enc, ok := strings.CutPrefix(key, "base64:"); ok {
			decoded, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return GripConfig{}, fmt.Errorf("%w: key: %v", ErrInvalidGripURI, err)
			}
			cfg.Key = decoded
		} else {
			cfg.Key = []byte(key)
		}
	}
	q.Del("iss")
	q.Del("key")
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	cfg.ControlURI = u.String()
	return cfg, nil
}

// GripPublisher publishes items through a GRIP proxy's control API.
type GripPublisher struct {
	cfg    GripConfig
	client *http.Client
	now    func() time.Time
}

// NewGripPublisher creates a publisher for the given control endpoint. A nil
// client uses a client with a 10 second timeout.
func NewGripPublisher(cfg GripConfig, client *http.Client) *GripPublisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GripPublisher{cfg: cfg, client: client, now: time.Now}
}

type gripFormats struct {
	HTTPStream struct {
		Content string `json:"content"`
	} `json:"http-stream"`
}

type gripItem struct {
	Channel string      `json:"channel"`
	ID      string      `json:"id,omitempty"`
	PrevID  string      `json:"prev-id,omitempty"`
	Formats gripFormats `json:"formats"`
}

// Publish sends items to the proxy in one control request.
func (p *GripPublisher) Publish(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}

	body := struct {
		Items []gripItem `json:"items"`
	}{Items: make([]gripItem, 0, len(items))}
	for _, it := range items {
		gi := gripItem{Channel: it.Channel, ID: it.ID, PrevID: it.PrevID}
		gi.Formats.HTTPStream.Content = it.Content
		body.Items = append(body.Items, gi)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode publish: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ControlURI+"/publish/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.ControlIss != "" {
		token, err := crypto.SignControlToken(p.cfg.ControlIss, p.cfg.Key, crypto.ControlTokenTTL, p.now())
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publish: proxy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Close is a no-op; the publisher holds no connections of its own.
func (p *GripPublisher) Close() error {
	return nil
}

// GRIP instruction headers.
const (
	HeaderGripHold      = "Grip-Hold"
	HeaderGripChannel   = "Grip-Channel"
	HeaderGripKeepAlive = "Grip-Keep-Alive"
	HeaderGripLink      = "Grip-Link"
	HeaderGripLast      = "Grip-Last"
)

// GripChannelHeader subscribes a held stream to both room channels, with the
// confirmed channel anchored at lastID.
func GripChannelHeader(room string, lastID int64) string {
	return fmt.Sprintf("%s; prev-id=%d, %s", ConfirmedChannel(room), lastID, ProvisionalChannel(room))
}

// GripKeepAliveHeader asks the proxy to send a keep-alive event on idle streams.
func GripKeepAliveHeader() string {
	content := strings.ReplaceAll(SignalEvent(EventKeepAlive), "\n", `\n`)
	return fmt.Sprintf("%s; format=cstring; timeout=%d", content, int(KeepAliveInterval/time.Second))
}

// GripLinkHeader points the proxy at the URL to fetch when it detects a gap
// on the confirmed channel.
func GripLinkHeader(path string, lastID int64) string {
	return fmt.Sprintf("<%s?lastEventId=%d>; rel=next", path, lastID)
}

// ParseGripLast extracts the last-id the proxy recorded for channel from
// Grip-Last header values such as "messages-lobby; last-id=5".
func ParseGripLast(values []string, channel string) (string, bool) {
	for _, v := range values {
		for _, entry := range strings.Split(v, ",") {
			parts := strings.Split(entry, ";")
			if strings.TrimSpace(parts[0]) != channel {
				continue
			}
			for _, param := range parts[1:] {
				k, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if ok && k == "last-id" {
					return strings.TrimSpace(val), true
				}
			}
		}
	}
	return "", false
}

// ParseEventID parses a confirmed message id. Anything other than a
// non-negative integer is rejected.
func ParseEventID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
