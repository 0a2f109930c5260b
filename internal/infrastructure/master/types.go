// Package master is the HTTP client for the tunnel master's authenticated
// API: six RPCs, plus the login/token-refresh plumbing every one of them rides
// on. Wire field names are lowerCamelCase; everything above this package
// speaks snake_case Go identifiers, and the conversion happens only here,
// at the boundary.
package master

import "encoding/json"

// envelope is the tunnel master's response wrapper. A refresh is triggered
// whenever Code == tokenInvalidCode and Msg == tokenInvalidMsg.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	tokenInvalidCode = 500
	tokenInvalidMsg  = "token invalid"
)

// LoginRequest is the v1/auth/login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the v1/auth/login response data.
type LoginResponse struct {
	Token string `json:"token"`
}

// ListRequest is the shared page/pageSize/keyword shape of the list RPCs.
type ListRequest struct {
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Keyword  string `json:"keyword,omitempty"`
}

// Server is one tunnel server as reported by v1/server/list.
type Server struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remoteAddr"`
}

// ServerListResponse is the v1/server/list response data.
type ServerListResponse struct {
	Total   int      `json:"total"`
	Servers []Server `json:"servers"`
}

// ClientSummary is one tunnel client as reported by v1/client/list. Unused
// by the core engine logic but kept on the interface for forward
// compatibility.
type ClientSummary struct {
	ID string `json:"id"`
}

// ClientListResponse is the v1/client/list response data.
type ClientListResponse struct {
	Total   int             `json:"total"`
	Clients []ClientSummary `json:"clients"`
}

// ProxyDetailWire is the wire (lowerCamelCase) shape of a ProxyDetail.
type ProxyDetailWire struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	LocalPort  int    `json:"localPort"`
	LocalIP    string `json:"localIp"`
	Subdomain  string `json:"subdomain,omitempty"`
	RemotePort int    `json:"remotePort,omitempty"`
}

// ProxyConfigPayload is the JSON document that gets base64-encoded into
// CreateProxyConfigRequest.Config. The envelope around it is JSON, but the
// field itself is base64(JSON(...)).
type ProxyConfigPayload struct {
	Proxies []ProxyDetailWire `json:"proxies"`
}

// CreateProxyConfigRequest is the v1/proxy/create_config request body.
type CreateProxyConfigRequest struct {
	ClientID  string `json:"clientId"`
	ServerID  string `json:"serverId"`
	Config    string `json:"config"`
	Overwrite bool   `json:"overwrite"`
}

// ProxyConfigSummary is one entry of v1/proxy/list_configs' response data.
type ProxyConfigSummary struct {
	ClientID string `json:"clientId"`
	ServerID string `json:"serverId"`
	Name     string `json:"name"`
}

// ListProxyConfigsResponse is the v1/proxy/list_configs response data.
type ListProxyConfigsResponse struct {
	Total        int                  `json:"total"`
	ProxyConfigs []ProxyConfigSummary `json:"proxyConfigs"`
}

// GetProxyConfigRequest is the v1/proxy/get_config request body.
type GetProxyConfigRequest struct {
	ClientID string `json:"clientId"`
	ServerID string `json:"serverId"`
	Name     string `json:"name"`
}

// WorkingStatus is the live status of one proxy as reported by
// v1/proxy/get_config.
type WorkingStatus struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Err        string `json:"err,omitempty"`
	RemoteAddr string `json:"remoteAddr"`
}

// GetProxyConfigResponse is the v1/proxy/get_config response data.
type GetProxyConfigResponse struct {
	ProxyConfig   ProxyDetailWire `json:"proxyConfig"`
	WorkingStatus WorkingStatus   `json:"workingStatus"`
}

// DeleteProxyConfigRequest is the v1/proxy/delete_config request body.
type DeleteProxyConfigRequest struct {
	ClientID string `json:"clientId"`
	ServerID string `json:"serverId"`
	Name     string `json:"name"`
}
