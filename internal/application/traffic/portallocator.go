// Package traffic is the application layer of the traffic lifecycle
// engine: the Port Allocator, the Traffic Manager, and the Reaper. Together
// they implement everything built on top of the KV Index.
package traffic

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	appErrors "tunnelctl/internal/shared/errors"

	"tunnelctl/internal/infrastructure/kv"
)

// PortAllocator picks free remote ports for a tunnel server, using the KV
// Index as the sole source of occupancy truth. It does not reserve ports;
// Traffic Manager reserves them under mutex_port right after its
// best-effort create_proxy_config call for the proxy config built from
// them, whether or not that call succeeded.
type PortAllocator struct {
	idx kv.Index
}

// NewPortAllocator builds a PortAllocator over idx.
func NewPortAllocator(idx kv.Index) *PortAllocator {
	return &PortAllocator{idx: idx}
}

// Allocate returns count distinct ports in [lo,hi] that currently have no
// port:{serverID}:{p} key, or fails with PortsExhausted if fewer than
// count are free. The only randomness is the initial seed r; the scan
// outward from it is deterministic.
func (a *PortAllocator) Allocate(ctx context.Context, serverID string, lo, hi, count int) ([]int, error) {
	if count <= 0 {
		return nil, nil
	}
	if hi < lo {
		return nil, appErrors.NewPortsExhaustedError(fmt.Sprintf("invalid port range [%d,%d]", lo, hi))
	}

	occupied, err := a.occupiedPorts(ctx, serverID)
	if err != nil {
		return nil, err
	}

	r, err := randIntInclusive(lo, hi)
	if err != nil {
		return nil, fmt.Errorf("seed port allocation draw: %w", err)
	}

	result := make([]int, 0, count)

	for p := r; p <= hi && len(result) < count; p++ {
		if _, taken := occupied[p]; !taken {
			result = append(result, p)
		}
	}
	for p := r - 1; p >= lo && len(result) < count; p-- {
		if _, taken := occupied[p]; !taken {
			result = append(result, p)
		}
	}

	if len(result) < count {
		return nil, appErrors.NewPortsExhaustedError(
			fmt.Sprintf("need %d free ports in [%d,%d] on %s, found %d", count, lo, hi, serverID, len(result)))
	}
	return result, nil
}

// occupiedPorts enumerates port:{serverID}:* and extracts the numeric
// suffix of every key into the occupancy set O.
func (a *PortAllocator) occupiedPorts(ctx context.Context, serverID string) (map[int]struct{}, error) {
	pattern := kv.NewKey("port", serverID, "*").String()
	keys, err := a.idx.Keys(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("enumerate occupied ports for %s: %w", serverID, err)
	}

	occupied := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		p, ok := portSuffix(k)
		if !ok {
			continue
		}
		occupied[p] = struct{}{}
	}
	return occupied, nil
}

// portSuffix extracts the trailing numeric port segment of a
// port:{serverID}:{p} key.
func portSuffix(key string) (int, bool) {
	var p int
	idx := len(key)
	for idx > 0 && key[idx-1] >= '0' && key[idx-1] <= '9' {
		idx--
	}
	if idx == len(key) || idx == 0 || key[idx-1] != ':' {
		return 0, false
	}
	if _, err := fmt.Sscanf(key[idx:], "%d", &p); err != nil {
		return 0, false
	}
	return p, true
}

// randIntInclusive draws a cryptographically random int in [lo,hi].
func randIntInclusive(lo, hi int) (int, error) {
	span := int64(hi-lo) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}
	return lo + int(n.Int64()), nil
}
