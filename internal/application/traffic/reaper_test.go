package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunnelctl/internal/infrastructure/kv"
)

func newTestReaper(idx kv.Index, fm *fakeMaster) *Reaper {
	mgr := newTestManager(idx, fm, 1000)
	return NewReaper(mgr, idx, time.Minute, testLogger())
}

func TestSweepDeadTrafficReapsWhenConfIsGone(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	r := newTestReaper(idx, fm)

	working, err := marshalJSON([]workingEntry{{ClientID: "c", ServerID: "s", Name: "ret2shell:dead1:p:1/tcp"}})
	require.NoError(t, err)
	require.NoError(t, idx.Set(ctx, workingKey("dead1"), working, 0))
	require.NoError(t, idx.Set(ctx, addrKey("dead1"), `{"remote_addr":{}}`, 0))
	// conf is intentionally absent: this traffic's create path never finished.

	r.sweepDeadTraffic(ctx)

	for _, key := range []string{workingKey("dead1"), addrKey("dead1")} {
		ok, err := idx.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s must be reaped", key)
	}
	assert.Equal(t, []string{"ret2shell:dead1:p:1/tcp"}, fm.deletedNames())
}

func TestSweepDeadTrafficLeavesLiveTrafficAlone(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	r := newTestReaper(idx, fm)

	working, err := marshalJSON([]workingEntry{{ClientID: "c", ServerID: "s", Name: "ret2shell:live1:p:1/tcp"}})
	require.NoError(t, err)
	require.NoError(t, idx.Set(ctx, workingKey("live1"), working, 0))
	require.NoError(t, idx.Set(ctx, confKey("live1"), `{}`, 0))

	r.sweepDeadTraffic(ctx)

	ok, err := idx.Exists(ctx, workingKey("live1"))
	require.NoError(t, err)
	assert.True(t, ok, "a traffic with a live conf must not be reaped")
	assert.Empty(t, fm.deletedNames())
}

func TestSweepDeadPortsReleasesOrphanedPort(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	r := newTestReaper(idx, newFakeMaster())

	require.NoError(t, idx.Set(ctx, "port:s1:20000", "orphan-traffic", 0))
	// no working:orphan-traffic key exists.

	r.sweepDeadPorts(ctx)

	ok, err := idx.Exists(ctx, "port:s1:20000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepDeadPortsKeepsPortAnchoredByLiveWorking(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	r := newTestReaper(idx, newFakeMaster())

	require.NoError(t, idx.Set(ctx, "port:s1:20000", "anchored-traffic", 0))
	require.NoError(t, idx.Set(ctx, workingKey("anchored-traffic"), "[]", 0))

	r.sweepDeadPorts(ctx)

	ok, err := idx.Exists(ctx, "port:s1:20000")
	require.NoError(t, err)
	assert.True(t, ok, "a port anchored by a live working entry must survive")
}

func TestSweepDeadPortsDeletesGarbageValue(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	r := newTestReaper(idx, newFakeMaster())

	require.NoError(t, idx.Set(ctx, "port:s1:20000", "", 0))

	r.sweepDeadPorts(ctx)

	ok, err := idx.Exists(ctx, "port:s1:20000")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestReaperConvergesAFullyDeadTraffic exercises both sweeps together: a
// traffic whose conf expired out from under it leaves behind a working
// entry and a port reservation with nothing anchoring either; one pass of
// each sweep must converge the index back to empty.
func TestReaperConvergesAFullyDeadTraffic(t *testing.T) {
	ctx := context.Background()
	idx := kv.NewMemoryIndex()
	fm := newFakeMaster()
	r := newTestReaper(idx, fm)

	working, err := marshalJSON([]workingEntry{{ClientID: "c", ServerID: "s1", Name: "ret2shell:dead2:p:1/tcp"}})
	require.NoError(t, err)
	require.NoError(t, idx.Set(ctx, workingKey("dead2"), working, 0))
	require.NoError(t, idx.Set(ctx, addrKey("dead2"), `{"remote_addr":{}}`, 0))
	require.NoError(t, idx.Set(ctx, "port:s1:20000", "dead2", 0))

	r.sweepDeadTraffic(ctx)
	r.sweepDeadPorts(ctx)

	for _, key := range []string{workingKey("dead2"), addrKey("dead2"), confKey("dead2"), "port:s1:20000"} {
		ok, err := idx.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s must be gone after both sweeps converge", key)
	}
}
