package traffic

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "tunnelctl/internal/domain/traffic"
	"tunnelctl/internal/infrastructure/kv"
	"tunnelctl/internal/infrastructure/master"
	"tunnelctl/internal/shared/config"
	appErrors "tunnelctl/internal/shared/errors"
	"tunnelctl/internal/shared/logger"
)

func testLogger() logger.Interface {
	return logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		NodeName:   "node1",
		PortRange:  config.PortRange{Lo: 20000, Hi: 20010},
		RemoteAddr: "1.2.3.4",
	}
}

func testService(trafficID string, createdAt, lifetime int64) *domain.Service {
	return &domain.Service{
		Traffic:   trafficID,
		CreatedAt: createdAt,
		Lifetime:  lifetime,
		Ports: []domain.Port{
			{
				Name:        "game",
				NodePort:    8080,
				ServiceType: domain.ServiceTypeTCP,
				Protocol:    domain.ProtocolTCP,
				AppProtocol: domain.AppProtocolRaw,
			},
		},
	}
}

// newTestManager wires a Manager over a fresh MemoryIndex and fakeMaster,
// with masterUser "acme" and serverCfg registered under node "node1" so
// pickServer finds exactly one candidate once the fakeMaster lists the
// matching server id.
func newTestManager(idx kv.Index, fm *fakeMaster, now int64) *Manager {
	m := NewManager(idx, fm, "acme", []config.ServerConfig{testServerConfig()}, testLogger())
	m.now = func() int64 { return now }
	fm.setServers(master.Server{ID: domain.ServerID("acme", "node1"), RemoteAddr: "1.2.3.4"})
	fm.setReady(true)
	return m
}

func TestUpdateTrafficCreatesTrafficAndReturnsRemoteAddr(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)

	svc := testService("t1", 1000, 60)
	addrs, err := m.UpdateTraffic(ctx, "node1", svc)
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	for _, addr := range addrs {
		assert.True(t, strings.HasPrefix(addr, "1.2.3.4:"), "tcp proxy address %q must route through the server's remote_addr", addr)
	}

	ok, err := idx.Exists(ctx, confKey("t1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Exists(ctx, addrKey("t1"))
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := idx.Keys(ctx, "port:acme.s.node1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 1, "the one non-http port must reserve exactly one port key")
}

func TestUpdateTrafficIdempotentExtendReturnsSameAddr(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)

	svc := testService("t2", 1000, 60)
	first, err := m.UpdateTraffic(ctx, "node1", svc)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	createdProxies := fm.proxyCount()
	require.Equal(t, 1, createdProxies)

	m.now = func() int64 { return 1010 }
	second, err := m.UpdateTraffic(ctx, "node1", testService("t2", 1010, 60))
	require.NoError(t, err)

	assert.Equal(t, first, second, "extend must not change the stored remote_addr map")
	assert.Equal(t, createdProxies, fm.proxyCount(), "extend must not call create_proxy_config again")
}

func TestUpdateTrafficLateServiceSkipsProvisioning(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 2000)

	svc := testService("t3", 1000, 60) // expire_at = 1060, now = 2000
	addrs, err := m.UpdateTraffic(ctx, "node1", svc)
	require.NoError(t, err)
	assert.Empty(t, addrs)

	ok, err := idx.Exists(ctx, confKey("t3"))
	require.NoError(t, err)
	assert.False(t, ok, "a late service must not write a conf record")
}

func TestUpdateTrafficNoMatchingServerReturnsNoServerError(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)
	fm.setServers() // no servers at all

	_, err := m.UpdateTraffic(ctx, "node1", testService("t4", 1000, 60))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrorTypeNoServer, appErrors.GetAppError(err).Type)
}

func TestUpdateTrafficNotReadyCompensatesWithDelete(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)
	fm.setReady(false)

	_, err := m.UpdateTraffic(ctx, "node1", testService("t5", 1000, 60))
	require.Error(t, err)
	assert.True(t, appErrors.IsNotReady(err))

	ok, err := idx.Exists(ctx, confKey("t5"))
	require.NoError(t, err)
	assert.False(t, ok, "a NotReady create must be compensated by a full delete")

	ok, err = idx.Exists(ctx, addrKey("t5"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NotEmpty(t, fm.deletedNames(), "compensating delete must call delete_proxy_config")
}

func TestGetTrafficReportsWorkingProxyCount(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)

	svc := &domain.Service{
		Traffic:   "t6",
		CreatedAt: 1000,
		Lifetime:  60,
		Ports: []domain.Port{
			{Name: "a", NodePort: 1, ServiceType: domain.ServiceTypeTCP, Protocol: domain.ProtocolTCP, AppProtocol: domain.AppProtocolRaw},
			{Name: "b", NodePort: 2, ServiceType: domain.ServiceTypeUDP, Protocol: domain.ProtocolUDP, AppProtocol: domain.AppProtocolRaw},
		},
	}
	_, err := m.UpdateTraffic(ctx, "node1", svc)
	require.NoError(t, err)

	remoteAddr, working, ok, err := m.GetTraffic(ctx, "t6")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, working)
	assert.Len(t, remoteAddr, 2)
}

func TestGetTrafficUnknownReturnsNotOK(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	m := newTestManager(idx, newFakeMaster(), 1000)

	_, _, ok, err := m.GetTraffic(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTrafficRemovesRecordsAndReleasesPorts(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)

	svc := testService("t7", 1000, 60)
	_, err := m.UpdateTraffic(ctx, "node1", svc)
	require.NoError(t, err)

	portKeys, err := idx.Keys(ctx, "port:acme.s.node1:*")
	require.NoError(t, err)
	require.Len(t, portKeys, 1)

	_, err = m.DeleteTraffic(ctx, "t7")
	require.NoError(t, err)

	for _, key := range []string{confKey("t7"), addrKey("t7"), workingKey("t7")} {
		ok, err := idx.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s must be deleted", key)
	}

	portKeys, err = idx.Keys(ctx, "port:acme.s.node1:*")
	require.NoError(t, err)
	assert.Empty(t, portKeys, "delete must release the reserved port")

	assert.Equal(t, []string{domain.ProxyName("t7", domain.NormalizedPort{Name: "game", NodePort: 8080, ServiceType: domain.ServiceTypeTCP})}, fm.deletedNames())
}

func TestDeleteTrafficUnknownIsNotAnError(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	m := newTestManager(idx, newFakeMaster(), 1000)

	remoteAddr, err := m.DeleteTraffic(ctx, "never-created")
	require.NoError(t, err)
	assert.Nil(t, remoteAddr)
}

func TestExtendTrafficTTLTracksTheFreshlyComputedExpireAt(t *testing.T) {
	ctx := context.Background()
	idx := &ttlSpyIndex{Index: kv.NewMemoryIndex()}
	fm := newFakeMaster()
	m := newTestManager(idx, fm, 1000)

	_, err := m.UpdateTraffic(ctx, "node1", testService("t8", 1000, 100)) // create, expire_at = 1100
	require.NoError(t, err)
	require.Empty(t, idx.expireCalls, "create must not call Expire")

	m.now = func() int64 { return 1050 }
	_, err = m.UpdateTraffic(ctx, "node1", testService("t8", 1050, 100)) // extend #1, expire_at = 1150
	require.NoError(t, err)

	m.now = func() int64 { return 1100 }
	_, err = m.UpdateTraffic(ctx, "node1", testService("t8", 1100, 200)) // extend #2, expire_at = 1300
	require.NoError(t, err)

	require.Len(t, idx.expireCalls, 4, "each extend re-applies TTL to both conf and addr")
	firstExtendTTL := idx.expireCalls[0].ttl
	secondExtendTTL := idx.expireCalls[2].ttl
	assert.Equal(t, 100*time.Second, firstExtendTTL)
	assert.Equal(t, 200*time.Second, secondExtendTTL)
	assert.Greater(t, secondExtendTTL, firstExtendTTL, "TTL tracks the freshly computed expire_at on every extend")
}

func TestNormalizeIsTotalOverEveryProtocolCombination(t *testing.T) {
	protocols := []domain.Protocol{domain.ProtocolTCP, domain.ProtocolUDP, domain.ProtocolSTCP}
	appProtocols := []domain.AppProtocol{domain.AppProtocolRaw, domain.AppProtocolHTTP}

	for _, proto := range protocols {
		for _, appProto := range appProtocols {
			svc := &domain.Service{
				Traffic:   "x",
				CreatedAt: 1,
				Lifetime:  1,
				Ports: []domain.Port{
					{Name: "p", NodePort: 1, Protocol: proto, AppProtocol: appProto},
				},
			}
			normalized := domain.Normalize(svc)
			require.Len(t, normalized.Ports, 1)
			got := normalized.Ports[0].ServiceType
			if appProto == domain.AppProtocolHTTP {
				assert.Equal(t, domain.ServiceTypeHTTP, got)
			} else if proto == domain.ProtocolUDP {
				assert.Equal(t, domain.ServiceTypeUDP, got)
			} else {
				assert.Equal(t, domain.ServiceTypeTCP, got)
			}
		}
	}
}

// ttlSpyIndex wraps a kv.Index and records every TTL passed to Set/Expire,
// so tests can assert on TTL monotonicity without a TTL-read method on the
// Index interface itself.
type ttlSpyIndex struct {
	kv.Index
	setCalls    []ttlCall
	expireCalls []ttlCall
}

type ttlCall struct {
	key string
	ttl time.Duration
}

func (s *ttlSpyIndex) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.setCalls = append(s.setCalls, ttlCall{key, ttl})
	return s.Index.Set(ctx, key, value, ttl)
}

func (s *ttlSpyIndex) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.expireCalls = append(s.expireCalls, ttlCall{key, ttl})
	return s.Index.Expire(ctx, key, ttl)
}
