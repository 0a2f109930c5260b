package traffic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	domain "tunnelctl/internal/domain/traffic"
	"tunnelctl/internal/infrastructure/kv"
	"tunnelctl/internal/infrastructure/master"
	"tunnelctl/internal/shared/config"
	appErrors "tunnelctl/internal/shared/errors"
	"tunnelctl/internal/shared/id"
	"tunnelctl/internal/shared/logger"
)

// MasterClient is the subset of the tunnel-master RPC client the Traffic
// Manager drives. Defined here, rather than depending on the concrete
// *master.Client, so tests can substitute a fake.
type MasterClient interface {
	ListServers(ctx context.Context, req master.ListRequest) (*master.ServerListResponse, error)
	CreateProxyConfig(ctx context.Context, req master.CreateProxyConfigRequest) error
	ListProxyConfigs(ctx context.Context, req master.ListRequest) (*master.ListProxyConfigsResponse, error)
	GetProxyConfig(ctx context.Context, req master.GetProxyConfigRequest) (*master.GetProxyConfigResponse, error)
	DeleteProxyConfig(ctx context.Context, req master.DeleteProxyConfigRequest) error
}

const (
	readinessAttempts = 5
	readinessInterval = 500 * time.Millisecond

	// listPageSize is large enough that the engine's own server/proxy
	// counts never need a second page; the master RPCs accept page and
	// pageSize, but this engine never drives multi-page iteration.
	listPageSize = 1000
)

// Manager is the Traffic Manager: the public surface of the engine. It
// owns mutex_cache_w and mutex_port and coordinates the tunnel-master
// RPCs, the Port Allocator, and the KV Index.
type Manager struct {
	idx        kv.Index
	allocator  *PortAllocator
	master     MasterClient
	masterUser string
	servers    map[string]config.ServerConfig // keyed by node_name
	log        logger.Interface

	cacheMu sync.Mutex // mutex_cache_w
	portMu  sync.Mutex // mutex_port

	now func() int64
}

// NewManager builds a Traffic Manager. servers is the locally configured
// tunnel-server list.
func NewManager(idx kv.Index, masterClient MasterClient, masterUser string, servers []config.ServerConfig, log logger.Interface) *Manager {
	byName := make(map[string]config.ServerConfig, len(servers))
	for _, s := range servers {
		byName[s.NodeName] = s
	}
	return &Manager{
		idx:        idx,
		allocator:  NewPortAllocator(idx),
		master:     masterClient,
		masterUser: masterUser,
		servers:    byName,
		log:        log,
		now:        func() int64 { return time.Now().Unix() },
	}
}

// UpdateTraffic creates or extends the traffic identified by svc. nodeName
// names the workload-side tunnel client (and prefixes http subdomains); the
// tunnel server is picked at random among the matching configured ones. It
// runs under mutex_cache_w.
func (m *Manager) UpdateTraffic(ctx context.Context, nodeName string, svc *domain.Service) (map[string]string, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	normalized := domain.Normalize(svc)
	now := m.now()

	_, confOK, err := m.idx.Get(ctx, confKey(normalized.Traffic))
	if err != nil {
		return nil, fmt.Errorf("read conf: %w", err)
	}
	addrVal, addrOK, err := m.idx.Get(ctx, addrKey(normalized.Traffic))
	if err != nil {
		return nil, fmt.Errorf("read addr: %w", err)
	}

	if confOK && addrOK {
		return m.extendTraffic(ctx, normalized, now, addrVal)
	}
	return m.createTraffic(ctx, nodeName, normalized, now)
}

// GetTraffic returns the currently stored remote_addr map for trafficID
// plus the number of proxies the last create/extend left running, a
// read-only inspection path that performs no writes and takes neither
// mutex.
func (m *Manager) GetTraffic(ctx context.Context, trafficID string) (map[string]string, int, bool, error) {
	addrVal, ok, err := m.idx.Get(ctx, addrKey(trafficID))
	if err != nil {
		return nil, 0, false, fmt.Errorf("read addr: %w", err)
	}
	if !ok {
		return nil, 0, false, nil
	}
	var addr addrRecord
	if err := unmarshalJSON(addrVal, &addr); err != nil {
		return nil, 0, false, appErrors.NewInternalError("corrupt addr record", err.Error())
	}

	working := 0
	if workingVal, workingOK, err := m.idx.Get(ctx, workingKey(trafficID)); err != nil {
		return nil, 0, false, fmt.Errorf("read working: %w", err)
	} else if workingOK {
		var entries []workingEntry
		if err := unmarshalJSON(workingVal, &entries); err != nil {
			return nil, 0, false, appErrors.NewInternalError("corrupt working record", err.Error())
		}
		working = len(entries)
	}

	return addr.RemoteAddr, working, true, nil
}

// extendTraffic is the extend path: both conf and addr already exist. No
// master RPC is issued; the pair's TTL is recomputed and re-applied.
func (m *Manager) extendTraffic(ctx context.Context, svc *domain.NormalizedService, now int64, addrVal string) (map[string]string, error) {
	var addr addrRecord
	if err := unmarshalJSON(addrVal, &addr); err != nil {
		return nil, appErrors.NewInternalError("corrupt addr record", err.Error())
	}

	delta := svc.TTLSeconds(now)
	ttl := time.Duration(delta) * time.Second

	if err := m.idx.Expire(ctx, confKey(svc.Traffic), ttl); err != nil {
		return nil, fmt.Errorf("extend conf: %w", err)
	}
	if err := m.idx.Expire(ctx, addrKey(svc.Traffic), ttl); err != nil {
		return nil, fmt.Errorf("extend addr: %w", err)
	}
	m.log.Infow("traffic extended", "traffic", svc.Traffic, "ttl_seconds", delta)
	return addr.RemoteAddr, nil
}

// createTraffic is the create path: at least one of conf/addr is absent.
func (m *Manager) createTraffic(ctx context.Context, nodeName string, svc *domain.NormalizedService, now int64) (map[string]string, error) {
	delta := svc.TTLSeconds(now)
	if delta <= 0 {
		// SVC_EXPIRE_AT <= now: late services do not get provisioned.
		return map[string]string{}, nil
	}
	ttl := time.Duration(delta) * time.Second

	serverID, serverCfg, err := m.pickServer(ctx)
	if err != nil {
		return nil, err
	}
	clientID := domain.ClientID(m.masterUser, nodeName)

	proxies, err := m.buildAndCreateProxies(ctx, serverID, clientID, nodeName, serverCfg, svc)
	if err != nil {
		return nil, err
	}

	listResp, err := m.master.ListProxyConfigs(ctx, master.ListRequest{
		Page:     1,
		PageSize: listPageSize,
		Keyword:  domain.ProxyNamePrefix(svc.Traffic),
	})
	if err != nil {
		return nil, fmt.Errorf("list proxy configs: %w", err)
	}
	if listResp == nil || len(listResp.ProxyConfigs) == 0 {
		return nil, appErrors.NewProvisioningEmptyError(
			fmt.Sprintf("no proxies found for traffic %s after create", svc.Traffic))
	}

	working := make([]workingEntry, 0, len(listResp.ProxyConfigs))
	for _, p := range listResp.ProxyConfigs {
		working = append(working, workingEntry{ClientID: p.ClientID, ServerID: p.ServerID, Name: p.Name})
	}
	workingJSON, err := marshalJSON(working)
	if err != nil {
		return nil, err
	}
	if err := m.idx.Set(ctx, workingKey(svc.Traffic), workingJSON, 0); err != nil {
		return nil, fmt.Errorf("write working: %w", err)
	}

	conf := confRecord{
		ClientID: clientID,
		ServerID: serverID,
		Config:   configRecord{Proxies: toProxyRecords(proxies)},
	}
	confJSON, err := marshalJSON(conf)
	if err != nil {
		return nil, err
	}
	if err := m.idx.Set(ctx, confKey(svc.Traffic), confJSON, ttl); err != nil {
		return nil, fmt.Errorf("write conf: %w", err)
	}

	ready, err := m.pollReadiness(ctx, working)
	if err != nil {
		if appErrors.IsNotReady(err) {
			m.deleteTrafficBestEffort(ctx, svc.Traffic)
		}
		return nil, err
	}

	remotePorts := make([]int, 0, len(proxies))
	for _, p := range proxies {
		if !p.IsHTTP() {
			remotePorts = append(remotePorts, p.RemotePort)
		}
	}

	remoteAddr := make(map[string]string, len(ready))
	for name, resp := range ready {
		portKey := domain.LastTwoColonSegments(name)
		if resp.ProxyConfig.Type == string(domain.ServiceTypeHTTP) {
			remoteAddr[portKey] = resp.WorkingStatus.RemoteAddr
		} else {
			remoteAddr[portKey] = fmt.Sprintf("%s:%s", serverCfg.RemoteAddr, lastColonSegment(resp.WorkingStatus.RemoteAddr))
		}
	}

	addr := addrRecord{RemotePorts: remotePorts, RemoteAddr: remoteAddr}
	addrJSON, err := marshalJSON(addr)
	if err != nil {
		return nil, err
	}
	if err := m.idx.Set(ctx, addrKey(svc.Traffic), addrJSON, ttl); err != nil {
		return nil, fmt.Errorf("write addr: %w", err)
	}

	m.log.Infow("traffic created", "traffic", svc.Traffic, "server", serverID, "proxies", len(proxies))
	return remoteAddr, nil
}

// pickServer lists tunnel servers from the master, intersects them with
// the locally configured node names under the master-user prefix, and
// picks one uniformly at random.
func (m *Manager) pickServer(ctx context.Context) (string, config.ServerConfig, error) {
	prefix := domain.ServerIDPrefix(m.masterUser)

	local := make(map[string]config.ServerConfig, len(m.servers))
	for _, cfg := range m.servers {
		local[domain.ServerID(m.masterUser, cfg.NodeName)] = cfg
	}

	resp, err := m.master.ListServers(ctx, master.ListRequest{Page: 1, PageSize: listPageSize})
	if err != nil {
		return "", config.ServerConfig{}, fmt.Errorf("list servers: %w", err)
	}

	var candidates []string
	for _, s := range resp.Servers {
		if !strings.HasPrefix(s.ID, prefix) {
			continue
		}
		if _, ok := local[s.ID]; ok {
			candidates = append(candidates, s.ID)
		}
	}
	if len(candidates) == 0 {
		return "", config.ServerConfig{}, appErrors.NewNoServerError(
			fmt.Sprintf("no tunnel server matches prefix %q in local configuration", prefix))
	}

	i, err := randIntInclusive(0, len(candidates)-1)
	if err != nil {
		return "", config.ServerConfig{}, fmt.Errorf("pick server: %w", err)
	}
	serverID := candidates[i]
	return serverID, local[serverID], nil
}

// buildAndCreateProxies runs the mutex_port critical section: it builds
// the ProxyDetail list, calls create_proxy_config on the master
// (best-effort), and reserves the allocated non-http ports.
func (m *Manager) buildAndCreateProxies(ctx context.Context, serverID, clientID, nodeName string, serverCfg config.ServerConfig, svc *domain.NormalizedService) ([]domain.ProxyDetail, error) {
	m.portMu.Lock()
	defer m.portMu.Unlock()

	nonHTTP := svc.NonHTTPCount()
	var allocated []int
	if nonHTTP > 0 {
		var err error
		allocated, err = m.allocator.Allocate(ctx, serverID, serverCfg.PortRange.Lo, serverCfg.PortRange.Hi, nonHTTP)
		if err != nil {
			return nil, err
		}
	}

	details := make([]domain.ProxyDetail, 0, len(svc.Ports))
	allocIdx := 0
	for _, p := range svc.Ports {
		name := domain.ProxyName(svc.Traffic, p)
		if p.ServiceType == domain.ServiceTypeHTTP {
			subdomain, err := id.NewSubdomain(nodeName)
			if err != nil {
				return nil, fmt.Errorf("generate subdomain: %w", err)
			}
			details = append(details, domain.ProxyDetail{
				Name:      name,
				Type:      domain.ServiceTypeHTTP,
				LocalPort: p.NodePort,
				LocalIP:   "127.0.0.1",
				Subdomain: subdomain,
			})
			continue
		}
		details = append(details, domain.ProxyDetail{
			Name:       name,
			Type:       p.ServiceType,
			LocalPort:  p.NodePort,
			LocalIP:    "127.0.0.1",
			RemotePort: allocated[allocIdx],
		})
		allocIdx++
	}

	configStr, err := master.EncodeProxyConfig(details)
	if err != nil {
		return nil, fmt.Errorf("encode proxy config: %w", err)
	}

	// Best-effort: a transport failure here is retried by the next
	// update or repaired by the Reaper.
	if err := m.master.CreateProxyConfig(ctx, master.CreateProxyConfigRequest{
		ClientID:  clientID,
		ServerID:  serverID,
		Config:    configStr,
		Overwrite: false,
	}); err != nil {
		m.log.Warnw("create_proxy_config failed, deferring to reaper/retry", "error", err, "traffic", svc.Traffic)
	}

	for _, p := range details {
		if p.IsHTTP() {
			continue
		}
		if err := m.idx.Set(ctx, portKey(serverID, p.RemotePort), svc.Traffic, 0); err != nil {
			return nil, fmt.Errorf("reserve port %d: %w", p.RemotePort, err)
		}
	}

	return details, nil
}

// pollReadiness polls every listed proxy up to readinessAttempts times,
// readinessInterval apart, requiring all of them to report status
// "running". Returns the last GetProxyConfig response observed for every
// proxy once all are ready.
func (m *Manager) pollReadiness(ctx context.Context, working []workingEntry) (map[string]*master.GetProxyConfigResponse, error) {
	backoff := retry.WithMaxRetries(readinessAttempts-1, retry.NewConstant(readinessInterval))

	var last map[string]*master.GetProxyConfigResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		responses := make(map[string]*master.GetProxyConfigResponse, len(working))
		for _, w := range working {
			resp, err := m.master.GetProxyConfig(ctx, master.GetProxyConfigRequest{
				ClientID: w.ClientID,
				ServerID: w.ServerID,
				Name:     w.Name,
			})
			if err != nil || resp == nil || resp.WorkingStatus.Status != "running" {
				continue
			}
			responses[w.Name] = resp
		}
		last = responses
		if len(responses) == len(working) {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("%d/%d proxies ready", len(responses), len(working)))
	})
	if err != nil {
		return nil, appErrors.NewNotReadyError(
			fmt.Sprintf("readiness poll exhausted after %d attempts", readinessAttempts),
			fmt.Sprintf("%d/%d proxies ready", len(last), len(working)))
	}
	return last, nil
}

// DeleteTraffic tears down every proxy, port reservation, and KV record
// belonging to trafficID. It runs under mutex_cache_w.
func (m *Manager) DeleteTraffic(ctx context.Context, trafficID string) (map[string]string, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.deleteTrafficLocked(ctx, trafficID)
}

// deleteTrafficBestEffort is delete_traffic invoked internally as
// compensation for a NotReady create path. cacheMu is already held by the
// caller's UpdateTraffic, so it reenters the locked implementation
// directly rather than through DeleteTraffic (which would deadlock).
func (m *Manager) deleteTrafficBestEffort(ctx context.Context, trafficID string) {
	if _, err := m.deleteTrafficLocked(ctx, trafficID); err != nil {
		m.log.Warnw("compensating delete_traffic failed", "error", err, "traffic", trafficID)
	}
}

func (m *Manager) deleteTrafficLocked(ctx context.Context, trafficID string) (map[string]string, error) {
	workingVal, workingOK, err := m.idx.Get(ctx, workingKey(trafficID))
	if err != nil {
		return nil, fmt.Errorf("read working: %w", err)
	}
	confVal, confOK, err := m.idx.Get(ctx, confKey(trafficID))
	if err != nil {
		return nil, fmt.Errorf("read conf: %w", err)
	}
	addrVal, addrOK, err := m.idx.Get(ctx, addrKey(trafficID))
	if err != nil {
		return nil, fmt.Errorf("read addr: %w", err)
	}

	var remoteAddr map[string]string
	var addr addrRecord
	if addrOK {
		if err := unmarshalJSON(addrVal, &addr); err == nil {
			remoteAddr = addr.RemoteAddr
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.idx.Del(ctx, confKey(trafficID)); err != nil {
			m.log.Warnw("delete conf failed", "error", err, "traffic", trafficID)
		}
		if err := m.idx.Del(ctx, addrKey(trafficID)); err != nil {
			m.log.Warnw("delete addr failed", "error", err, "traffic", trafficID)
		}
		if err := m.idx.Del(ctx, workingKey(trafficID)); err != nil {
			m.log.Warnw("delete working failed", "error", err, "traffic", trafficID)
		}
	}()

	if confOK {
		var conf confRecord
		if err := unmarshalJSON(confVal, &conf); err == nil {
			for _, p := range addr.RemotePorts {
				wg.Add(1)
				port := p
				go func() {
					defer wg.Done()
					if err := m.idx.Del(ctx, portKey(conf.ServerID, port)); err != nil {
						m.log.Warnw("delete port failed", "error", err, "traffic", trafficID, "port", port)
					}
				}()
			}
		}
	}

	if workingOK {
		var working []workingEntry
		if err := unmarshalJSON(workingVal, &working); err == nil {
			for _, w := range working {
				entry := w
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := m.master.DeleteProxyConfig(ctx, master.DeleteProxyConfigRequest{
						ClientID: entry.ClientID,
						ServerID: entry.ServerID,
						Name:     entry.Name,
					}); err != nil {
						m.log.Warnw("master delete_proxy_config failed", "error", err, "proxy", entry.Name)
					}
				}()
			}
		}
	}

	wg.Wait()

	m.log.Infow("traffic deleted", "traffic", trafficID)
	return remoteAddr, nil
}

func toProxyRecords(details []domain.ProxyDetail) []proxyDetailRecord {
	out := make([]proxyDetailRecord, 0, len(details))
	for _, d := range details {
		out = append(out, proxyDetailRecord{
			Name:       d.Name,
			Type:       string(d.Type),
			LocalPort:  d.LocalPort,
			LocalIP:    d.LocalIP,
			Subdomain:  d.Subdomain,
			RemotePort: d.RemotePort,
		})
	}
	return out
}

func lastColonSegment(s string) string {
	parts := strings.Split(s, ":")
	return parts[len(parts)-1]
}

