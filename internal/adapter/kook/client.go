// ABOUTME: KOOK v3 REST client with bot token auth and token-bucket pacing
// ABOUTME: Non-zero envelope codes surface as adapter.APIError

package kook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/rolecache"
)

// DefaultBaseURL is the KOOK v3 API root.
const DefaultBaseURL = "https://www.kookapp.cn/api/v3"

// Default pacing stays under KOOK's per-bot request limits.
const (
	defaultRate  = rate.Limit(5)
	defaultBurst = 10
)

// rolePageSize is the page size used when listing guild roles.
const rolePageSize = 100

// Client calls the KOOK REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, for tests and proxies.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the request pacing.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// NewClient creates a client authenticating with a bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Get issues a GET and decodes data into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, path, out)
}

// Post issues a JSON POST and decodes data into out when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &adapter.APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body)), Endpoint: path}
		}
		return &adapter.APIError{Code: -1, Message: fmt.Sprintf("invalid response: %v", err), Endpoint: path}
	}
	if env.Code != nil && *env.Code != 0 {
		return &adapter.APIError{Code: *env.Code, Message: env.Message, Endpoint: path}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &adapter.APIError{Code: resp.StatusCode, Message: env.Message, Endpoint: path}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", path, err)
		}
	}
	return nil
}

// Me returns the bot's own user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, "/user/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GatewayURL resolves the websocket endpoint. Compression is disabled
// since frames are read as plain JSON.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var data struct {
		URL string `json:"url"`
	}
	if err := c.Get(ctx, "/gateway/index", url.Values{"compress": {"0"}}, &data); err != nil {
		return "", err
	}
	if data.URL == "" {
		return "", &adapter.APIError{Code: -1, Message: "empty gateway url", Endpoint: "/gateway/index"}
	}
	return data.URL, nil
}

// GuildRoles lists every role of a guild with its permission bits.
func (c *Client) GuildRoles(ctx context.Context, guildID string) (rolecache.Roles, error) {
	roles := make(rolecache.Roles)
	for page := 1; ; page++ {
		var data struct {
			Items []struct {
				RoleID      int `json:"role_id"`
				Permissions int `json:"permissions"`
			} `json:"items"`
			Meta struct {
				Page      int `json:"page"`
				PageTotal int `json:"page_total"`
			} `json:"meta"`
		}
		q := url.Values{
			"guild_id":  {guildID},
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(rolePageSize)},
		}
		if err := c.Get(ctx, "/guild-role/list", q, &data); err != nil {
			return nil, err
		}
		for _, item := range data.Items {
			roles[item.RoleID] = item.Permissions
		}
		if page >= data.Meta.PageTotal {
			return roles, nil
		}
	}
}

// ChannelView fetches a channel.
func (c *Client) ChannelView(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	if err := c.Get(ctx, "/channel/view", url.Values{"target_id": {channelID}}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// MessageView fetches a channel message.
func (c *Client) MessageView(ctx context.Context, msgID string) (*ViewedMessage, error) {
	var m ViewedMessage
	if err := c.Get(ctx, "/message/view", url.Values{"msg_id": {msgID}}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage sends a channel message, or a direct message when direct.
func (c *Client) CreateMessage(ctx context.Context, direct bool, req CreateMessageRequest) (*CreateMessageResult, error) {
	path := "/message/create"
	if direct {
		path = "/direct-message/create"
	}
	var res CreateMessageResult
	if err := c.Post(ctx, path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteMessage deletes a channel message.
func (c *Client) DeleteMessage(ctx context.Context, msgID string) error {
	return c.Post(ctx, "/message/delete", map[string]string{"msg_id": msgID}, nil)
}
