package traffic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"tunnelctl/internal/infrastructure/master"
)

// fakeProxy is the state a fakeMaster remembers about one created proxy,
// enough to answer list_configs/get_config/delete_config the way the real
// tunnel master would.
type fakeProxy struct {
	clientID   string
	serverID   string
	name       string
	proxyType  string
	remotePort int
}

func (p fakeProxy) remoteAddr() string {
	if p.proxyType == "http" {
		return "sub.example.com"
	}
	return fmt.Sprintf("0.0.0.0:%d", p.remotePort)
}

// fakeMaster is a MasterClient test double modeled on the engine's own
// best-effort/compensating-action RPCs: every method can be made to fail
// by setting its *Err field, and CreateProxyConfig decodes the same
// base64(JSON(...)) envelope master.EncodeProxyConfig produces so that a
// subsequent ListProxyConfigs/GetProxyConfig sees exactly what was
// "created".
type fakeMaster struct {
	mu sync.Mutex

	servers []master.Server
	proxies map[string]fakeProxy // keyed by name
	ready   bool
	deleted []string

	listServersErr       error
	createProxyErr       error
	listProxyConfigsErr  error
	getProxyConfigErr    error
	deleteProxyConfigErr error
}

func newFakeMaster() *fakeMaster {
	return &fakeMaster{proxies: make(map[string]fakeProxy)}
}

func (f *fakeMaster) setServers(servers ...master.Server) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers = servers
}

func (f *fakeMaster) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

func (f *fakeMaster) deletedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func (f *fakeMaster) proxyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.proxies)
}

func (f *fakeMaster) ListServers(_ context.Context, _ master.ListRequest) (*master.ServerListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listServersErr != nil {
		return nil, f.listServersErr
	}
	return &master.ServerListResponse{Total: len(f.servers), Servers: f.servers}, nil
}

func (f *fakeMaster) CreateProxyConfig(_ context.Context, req master.CreateProxyConfigRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createProxyErr != nil {
		return f.createProxyErr
	}

	raw, err := base64.StdEncoding.DecodeString(req.Config)
	if err != nil {
		return fmt.Errorf("fake master: decode config: %w", err)
	}
	var payload master.ProxyConfigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("fake master: unmarshal config: %w", err)
	}

	for _, p := range payload.Proxies {
		f.proxies[p.Name] = fakeProxy{
			clientID:   req.ClientID,
			serverID:   req.ServerID,
			name:       p.Name,
			proxyType:  p.Type,
			remotePort: p.RemotePort,
		}
	}
	return nil
}

func (f *fakeMaster) ListProxyConfigs(_ context.Context, req master.ListRequest) (*master.ListProxyConfigsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listProxyConfigsErr != nil {
		return nil, f.listProxyConfigsErr
	}

	var out []master.ProxyConfigSummary
	for name, p := range f.proxies {
		if req.Keyword != "" && len(name) < len(req.Keyword) {
			continue
		}
		if req.Keyword != "" && name[:len(req.Keyword)] != req.Keyword {
			continue
		}
		out = append(out, master.ProxyConfigSummary{ClientID: p.clientID, ServerID: p.serverID, Name: p.name})
	}
	return &master.ListProxyConfigsResponse{Total: len(out), ProxyConfigs: out}, nil
}

func (f *fakeMaster) GetProxyConfig(_ context.Context, req master.GetProxyConfigRequest) (*master.GetProxyConfigResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getProxyConfigErr != nil {
		return nil, f.getProxyConfigErr
	}

	p, ok := f.proxies[req.Name]
	if !ok {
		return nil, fmt.Errorf("fake master: unknown proxy %q", req.Name)
	}

	status := "pending"
	if f.ready {
		status = "running"
	}
	return &master.GetProxyConfigResponse{
		ProxyConfig: master.ProxyDetailWire{Name: p.name, Type: p.proxyType, RemotePort: p.remotePort},
		WorkingStatus: master.WorkingStatus{
			Name:       p.name,
			Type:       p.proxyType,
			Status:     status,
			RemoteAddr: p.remoteAddr(),
		},
	}, nil
}

func (f *fakeMaster) DeleteProxyConfig(_ context.Context, req master.DeleteProxyConfigRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteProxyConfigErr != nil {
		return f.deleteProxyConfigErr
	}
	delete(f.proxies, req.Name)
	f.deleted = append(f.deleted, req.Name)
	return nil
}
