package traffic

import (
	"context"
	"strings"
	"time"

	"tunnelctl/internal/infrastructure/kv"
	"tunnelctl/internal/infrastructure/master"
	"tunnelctl/internal/shared/goroutine"
	"tunnelctl/internal/shared/logger"
)

// interItemSleep is the pause between processing individual items within
// one sweep pass, so the Reaper never saturates the KV store.
const interItemSleep = 5 * time.Millisecond

// trafficSweepOffset and portSweepOffset stagger the two sweeps' first
// tick so they do not repeatedly contend on mutex_cache_w at the same
// instant.
const (
	trafficSweepOffset = 0
	portSweepOffset    = 2 * time.Second
)

// Reaper runs the two periodic consistency sweeps over manager's KV
// Index, converging index drift left by partial failures.
type Reaper struct {
	manager  *Manager
	idx      kv.Index
	interval time.Duration
	log      logger.Interface
}

// NewReaper builds a Reaper that sweeps every interval.
func NewReaper(manager *Manager, idx kv.Index, interval time.Duration, log logger.Interface) *Reaper {
	return &Reaper{manager: manager, idx: idx, interval: interval, log: log}
}

// Run starts both sweep goroutines and blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	goroutine.SafeGo(r.log, "sweep_dead_traffic", func() { r.runSweep(ctx, trafficSweepOffset, r.sweepDeadTraffic) })
	goroutine.SafeGo(r.log, "sweep_dead_ports", func() { r.runSweep(ctx, portSweepOffset, r.sweepDeadPorts) })
	<-ctx.Done()
}

// runSweep drives one sweep function on a self-adjusting ticker: each
// tick's delay is max(0, interval-elapsed), so passes start interval apart
// while they finish within it, and a pass that overruns the interval is
// followed by the next one immediately.
func (r *Reaper) runSweep(ctx context.Context, startOffset time.Duration, sweep func(context.Context)) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startOffset):
	}

	for {
		start := time.Now()
		sweep(ctx)
		elapsed := time.Since(start)
		next := r.interval - elapsed
		if next < 0 {
			next = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next):
		}
	}
}

// sweepDeadTraffic tears down every working:{traffic_id} whose conf has
// expired, both in the KV store and on the tunnel master, and logs a
// summary of the pass.
func (r *Reaper) sweepDeadTraffic(ctx context.Context) {
	start := time.Now()
	keys, err := r.idx.Keys(ctx, "working:*")
	if err != nil {
		r.log.Warnw("sweep_dead_traffic: enumerate working keys failed", "error", err)
		return
	}

	reaped := 0
	for _, key := range keys {
		select {
		case <-ctx.Done():
			r.log.Infow("sweep_dead_traffic cancelled", "items_scanned", len(keys), "items_reaped", reaped, "duration", time.Since(start))
			return
		default:
		}

		trafficID := strings.TrimPrefix(key, "working:")
		if r.sweepOneTraffic(ctx, trafficID) {
			reaped++
		}
		time.Sleep(interItemSleep)
	}

	r.log.Infow("sweep_dead_traffic complete", "items_scanned", len(keys), "items_reaped", reaped, "duration", time.Since(start))
}

// sweepOneTraffic reaps trafficID if its conf has expired while working
// still exists, reporting whether it reaped anything.
func (r *Reaper) sweepOneTraffic(ctx context.Context, trafficID string) bool {
	r.manager.cacheMu.Lock()
	defer r.manager.cacheMu.Unlock()

	workingVal, workingOK, err := r.idx.Get(ctx, workingKey(trafficID))
	if err != nil {
		r.log.Warnw("sweep_dead_traffic: read working failed", "error", err, "traffic", trafficID)
		return false
	}
	if !workingOK {
		return false
	}

	confExists, err := r.idx.Exists(ctx, confKey(trafficID))
	if err != nil {
		r.log.Warnw("sweep_dead_traffic: check conf failed", "error", err, "traffic", trafficID)
		return false
	}
	if confExists {
		return false
	}

	var working []workingEntry
	parsed := unmarshalJSON(workingVal, &working) == nil

	if parsed {
		for _, w := range working {
			if err := r.manager.master.DeleteProxyConfig(ctx, master.DeleteProxyConfigRequest{
				ClientID: w.ClientID,
				ServerID: w.ServerID,
				Name:     w.Name,
			}); err != nil {
				r.log.Warnw("sweep_dead_traffic: master delete_proxy_config failed", "error", err, "proxy", w.Name)
			}
		}
	}

	if err := r.idx.Del(ctx, workingKey(trafficID)); err != nil {
		r.log.Warnw("sweep_dead_traffic: delete working failed", "error", err, "traffic", trafficID)
	}
	if err := r.idx.Del(ctx, confKey(trafficID)); err != nil {
		r.log.Warnw("sweep_dead_traffic: delete conf failed", "error", err, "traffic", trafficID)
	}
	if err := r.idx.Del(ctx, addrKey(trafficID)); err != nil {
		r.log.Warnw("sweep_dead_traffic: delete addr failed", "error", err, "traffic", trafficID)
	}

	r.log.Infow("traffic reaped", "traffic", trafficID)
	return true
}

// sweepDeadPorts releases every port:{server_id}:{port} whose anchoring
// working entry is gone, and logs a summary of the pass.
func (r *Reaper) sweepDeadPorts(ctx context.Context) {
	start := time.Now()
	keys, err := r.idx.Keys(ctx, "port:*:*")
	if err != nil {
		r.log.Warnw("sweep_dead_ports: enumerate port keys failed", "error", err)
		return
	}

	reaped := 0
	for _, key := range keys {
		select {
		case <-ctx.Done():
			r.log.Infow("sweep_dead_ports cancelled", "items_scanned", len(keys), "items_reaped", reaped, "duration", time.Since(start))
			return
		default:
		}

		if r.sweepOnePort(ctx, key) {
			reaped++
		}
		time.Sleep(interItemSleep)
	}

	r.log.Infow("sweep_dead_ports complete", "items_scanned", len(keys), "items_reaped", reaped, "duration", time.Since(start))
}

// sweepOnePort releases key if it is garbage or its working entry is
// gone, reporting whether it released anything.
func (r *Reaper) sweepOnePort(ctx context.Context, key string) bool {
	r.manager.cacheMu.Lock()
	defer r.manager.cacheMu.Unlock()

	trafficID, ok, err := r.idx.Get(ctx, key)
	if err != nil {
		r.log.Warnw("sweep_dead_ports: read port failed", "error", err, "key", key)
		return false
	}
	if !ok || trafficID == "" {
		// Garbage: an empty or absent value anchors nothing.
		if err := r.idx.Del(ctx, key); err != nil {
			r.log.Warnw("sweep_dead_ports: delete garbage port failed", "error", err, "key", key)
			return false
		}
		return true
	}

	workingExists, err := r.idx.Exists(ctx, workingKey(trafficID))
	if err != nil {
		r.log.Warnw("sweep_dead_ports: check working failed", "error", err, "traffic", trafficID)
		return false
	}
	if workingExists {
		return false
	}

	if err := r.idx.Del(ctx, key); err != nil {
		r.log.Warnw("sweep_dead_ports: delete port failed", "error", err, "key", key)
		return false
	}
	return true
}
