package messaging

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/wire"
)

// pendingHeaderTTL and pendingSweepInterval are the literal 30s/5s
// cadence spec §4.4 names for the file-transfer handshake's correlation
// table.
const (
	pendingHeaderTTL     = 30 * time.Second
	pendingSweepInterval = 5 * time.Second
)

// pendingHeaders tracks accepted File headers awaiting their TCP data
// side. Backed by hashicorp/golang-lru/v2's expirable LRU for the TTL
// bookkeeping, with an explicit 5s sweep ticker layered on top: the
// library expires entries lazily on access, and spec invariant 7 requires
// every stale entry gone within one 5s cycle regardless of whether
// anything else touches the table in between.
type pendingHeaders struct {
	lru       *lru.LRU[uint8, wire.Header]
	evictions atomic.Int64
}

func newPendingHeaders() *pendingHeaders {
	p := &pendingHeaders{}
	p.lru = lru.NewLRU[uint8, wire.Header](256, func(uint8, wire.Header) {
		p.evictions.Add(1)
		metrics.PendingHeaderEvictions.Inc()
	}, pendingHeaderTTL)
	return p
}

func (p *pendingHeaders) Store(bid uint8, h wire.Header) {
	p.lru.Add(bid, h)
}

func (p *pendingHeaders) Load(bid uint8) (wire.Header, bool) {
	return p.lru.Get(bid)
}

func (p *pendingHeaders) Remove(bid uint8) {
	p.lru.Remove(bid)
}

// Evictions reports the number of pending-header entries the sweeper has
// expired, for internal/metrics to export.
func (p *pendingHeaders) Evictions() int64 {
	return p.evictions.Load()
}

// run sweeps every pendingSweepInterval until ctx is cancelled, touching
// every key so the library's lazy TTL expiry fires deterministically
// within one cycle (spec invariant 7).
func (p *pendingHeaders) run(ctx context.Context) error {
	ticker := time.NewTicker(pendingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, k := range p.lru.Keys() {
				p.lru.Get(k)
			}
		}
	}
}
