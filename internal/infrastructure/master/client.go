package master

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tunnelctl/internal/shared/logger"
)

// tokenTTL is how long a refreshed token is cached for.
const tokenTTL = 84600 * time.Second

const requestTimeout = 10 * time.Second

// TokenStore persists the tunnel master's bearer token across requests
// and process restarts. KVTokenStore implements it over the KV Index.
type TokenStore interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

// Client is the tunnel-master RPC client: login plus six RPCs over
// JSON-over-HTTPS with a bearer token that auto-refreshes on rejection,
// grounded on the teacher's plain net/http.Client pattern in
// internal/infrastructure/exchangerate/coingecko.go.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tokens     TokenStore
	log        logger.Interface
}

// New creates a tunnel-master Client.
func New(baseURL, username, password string, tokens TokenStore, log logger.Interface) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		tokens:     tokens,
		log:        log,
	}
}

// Login performs v1/auth/login directly and stores the resulting token.
func (c *Client) Login(ctx context.Context) (string, error) {
	var resp LoginResponse
	if err := c.rawPost(ctx, "v1/auth/login", "", LoginRequest{
		Username: c.username,
		Password: c.password,
	}, &resp); err != nil {
		return "", fmt.Errorf("master login: %w", err)
	}
	if err := c.tokens.Set(ctx, resp.Token, tokenTTL); err != nil {
		c.log.Warnw("failed to persist refreshed master token", "error", err)
	}
	return resp.Token, nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	if tok, ok, err := c.tokens.Get(ctx); err == nil && ok {
		return tok, nil
	}
	return c.Login(ctx)
}

// ListServers calls v1/server/list.
func (c *Client) ListServers(ctx context.Context, req ListRequest) (*ServerListResponse, error) {
	var resp ServerListResponse
	if err := c.post(ctx, "v1/server/list", req, &resp); err != nil {
		return nil, fmt.Errorf("master list servers: %w", err)
	}
	return &resp, nil
}

// ListClients calls v1/client/list. Unused by the core engine logic but
// kept on the interface for parity with the master's RPC surface.
func (c *Client) ListClients(ctx context.Context, req ListRequest) (*ClientListResponse, error) {
	var resp ClientListResponse
	if err := c.post(ctx, "v1/client/list", req, &resp); err != nil {
		return nil, fmt.Errorf("master list clients: %w", err)
	}
	return &resp, nil
}

// CreateProxyConfig calls v1/proxy/create_config.
func (c *Client) CreateProxyConfig(ctx context.Context, req CreateProxyConfigRequest) error {
	var resp struct{}
	if err := c.post(ctx, "v1/proxy/create_config", req, &resp); err != nil {
		return fmt.Errorf("master create proxy config: %w", err)
	}
	return nil
}

// ListProxyConfigs calls v1/proxy/list_configs.
func (c *Client) ListProxyConfigs(ctx context.Context, req ListRequest) (*ListProxyConfigsResponse, error) {
	var resp ListProxyConfigsResponse
	if err := c.post(ctx, "v1/proxy/list_configs", req, &resp); err != nil {
		return nil, fmt.Errorf("master list proxy configs: %w", err)
	}
	return &resp, nil
}

// GetProxyConfig calls v1/proxy/get_config.
func (c *Client) GetProxyConfig(ctx context.Context, req GetProxyConfigRequest) (*GetProxyConfigResponse, error) {
	var resp GetProxyConfigResponse
	if err := c.post(ctx, "v1/proxy/get_config", req, &resp); err != nil {
		return nil, fmt.Errorf("master get proxy config: %w", err)
	}
	return &resp, nil
}

// DeleteProxyConfig calls v1/proxy/delete_config. The master's error shape
// for this RPC is undocumented; callers in this engine treat this as
// best-effort and swallow the error themselves.
func (c *Client) DeleteProxyConfig(ctx context.Context, req DeleteProxyConfigRequest) error {
	var resp struct{}
	if err := c.post(ctx, "v1/proxy/delete_config", req, &resp); err != nil {
		return fmt.Errorf("master delete proxy config: %w", err)
	}
	return nil
}

// post issues an authenticated POST, refreshing the token and retrying
// exactly once if the master rejects it.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	token, err := c.currentToken(ctx)
	if err != nil {
		return err
	}

	needsRefresh, err := c.rawPostWithRefreshDetection(ctx, path, token, body, out)
	if err != nil {
		return err
	}
	if !needsRefresh {
		return nil
	}

	// The master rejected the cached token; log in fresh and retry once.
	token, err = c.Login(ctx)
	if err != nil {
		return err
	}
	_, err = c.rawPostWithRefreshDetection(ctx, path, token, body, out)
	return err
}

// rawPost issues a single POST without retry semantics, used for login
// itself (which has no token to refresh).
func (c *Client) rawPost(ctx context.Context, path, token string, body, out any) error {
	_, err := c.rawPostWithRefreshDetection(ctx, path, token, body, out)
	return err
}

// rawPostWithRefreshDetection issues one POST and decodes its envelope. It
// returns needsRefresh=true if the master signaled the token is invalid
// via the documented {code:500,msg:"token invalid"} body, so the caller
// can log in fresh and retry. A token offered via an X-Set-Authorization
// header or a frp-panel-cookie Set-Cookie is persisted opportunistically
// regardless of whether this particular call succeeded.
func (c *Client) rawPostWithRefreshDetection(ctx context.Context, path, token string, body, out any) (needsRefresh bool, err error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if offered := extractOfferedToken(httpResp); offered != "" {
		if err := c.tokens.Set(ctx, offered, tokenTTL); err != nil {
			c.log.Warnw("failed to persist master-offered token", "error", err)
		}
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return false, fmt.Errorf("decode response envelope: %w", err)
		}
	}

	if env.Code == tokenInvalidCode && env.Msg == tokenInvalidMsg {
		return true, nil
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("decode response data: %w", err)
		}
	}
	return false, nil
}

// extractOfferedToken looks for a master-offered refreshed token in either
// the X-Set-Authorization response header or a frp-panel-cookie
// Set-Cookie.
func extractOfferedToken(resp *http.Response) string {
	if tok := resp.Header.Get("X-Set-Authorization"); tok != "" {
		return strings.TrimPrefix(tok, "Bearer ")
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "frp-panel-cookie" {
			return cookie.Value
		}
	}
	return ""
}
