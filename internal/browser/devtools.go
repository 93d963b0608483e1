package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TargetInfo is one entry of the DevTools /json/list endpoint.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// VersionInfo is the DevTools /json/version payload.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DevTools talks to the HTTP side of the Chrome DevTools Protocol.
type DevTools struct {
	host   string
	port   int
	client *http.Client
}

// NewDevTools returns a client for host:port. A nil client uses a 5s timeout client.
func NewDevTools(host string, port int, client *http.Client) *DevTools {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &DevTools{host: host, port: port, client: client}
}

// BaseURL returns http://host:port.
func (d *DevTools) BaseURL() string {
	return "http://" + net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// List returns all targets (GET /json/list).
func (d *DevTools) List(ctx context.Context) ([]TargetInfo, error) {
	var targets []TargetInfo
	if err := d.do(ctx, http.MethodGet, "/json/list", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// New opens a new target (PUT /json/new?<url>).
func (d *DevTools) New(ctx context.Context, target string) (*TargetInfo, error) {
	path := "/json/new"
	if target != "" {
		path += "?" + url.QueryEscape(target)
	}
	var info TargetInfo
	if err := d.do(ctx, http.MethodPut, path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Close closes a target (GET /json/close/<id>).
func (d *DevTools) Close(ctx context.Context, id string) error {
	return d.do(ctx, http.MethodGet, "/json/close/"+url.PathEscape(id), nil)
}

// Version returns browser metadata including the browser websocket URL.
func (d *DevTools) Version(ctx context.Context) (*VersionInfo, error) {
	var v VersionInfo
	if err := d.do(ctx, http.MethodGet, "/json/version", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *DevTools) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, d.BaseURL()+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools %s %s returned status %d: %s", method, path, resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
