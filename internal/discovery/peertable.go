package discovery

import (
	"net"
	"time"

	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/store"
	"github.com/lanchat/lcpnode/internal/syncutil"
	"github.com/lanchat/lcpnode/internal/timeutil"
)

// OnlineThreshold is the liveness window from spec §3: a peer is online
// iff now - last_seen <= OnlineThreshold.
const OnlineThreshold = 20 * time.Second

// PeerView is the API-facing projection of a PeerTable entry, adding the
// derived Online flag the stored Peer record doesn't carry.
type PeerView struct {
	UserID   identity.UserID `json:"user_id"`
	IP       string          `json:"ip"`
	LastSeen time.Time       `json:"last_seen"`
	TCPOk    bool            `json:"tcp_ok"`
	Online   bool            `json:"online"`
}

// PeerTable is the in-memory UserId -> Peer mapping, guarded by a lock and
// enforcing spec §3's three invariants: the local id never appears,
// entries whose ip is a local interface address are filtered, and
// last_seen never regresses for an entry.
type PeerTable struct {
	mu    syncutil.RWMutex
	peers map[identity.UserID]store.Peer
	self  identity.UserID
	local map[string]bool
}

// NewPeerTable seeds an empty table scoped to self and the set of local
// IPs that must never be admitted as peers.
func NewPeerTable(self identity.UserID, localIPs []net.IP) *PeerTable {
	local := make(map[string]bool, len(localIPs))
	for _, ip := range localIPs {
		local[ip.String()] = true
	}
	return &PeerTable{
		mu:    syncutil.NewRWMutex(),
		peers: make(map[identity.UserID]store.Peer),
		self:  self,
		local: local,
	}
}

// LoadSnapshot seeds the table from a persisted snapshot, filtering out
// the local id and any local-IP duplicates per spec §3 invariants i/ii.
func (t *PeerTable) LoadSnapshot(snapshot map[identity.UserID]store.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range snapshot {
		if id == t.self || t.local[p.IP] {
			continue
		}
		t.peers[id] = p
	}
}

// Upsert records a sighting of id at ip, advancing last_seen. Self and
// local-IP sightings are silently dropped (invariant 10: broadcast echoes
// never cause the sender to insert itself into its own table).
func (t *PeerTable) Upsert(id identity.UserID, ip string) {
	if id == t.self || t.local[ip] {
		return
	}
	now := time.Unix(0, timeutil.StrictlyMonotonicNanos()).UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		t.peers[id] = store.Peer{UserID: id, IP: ip, LastSeen: now}
		return
	}
	p.IP = ip
	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	t.peers[id] = p
}

// SetTCPOk updates the TCP reachability heuristic for id, if present.
func (t *PeerTable) SetTCPOk(id identity.UserID, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, present := t.peers[id]; present {
		p.TCPOk = ok
		t.peers[id] = p
	}
}

// Lookup returns the last-known IP for id, used by Messaging to resolve a
// send target.
func (t *PeerTable) Lookup(id identity.UserID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p.IP, ok
}

// Snapshot returns every entry, tagged with the derived Online flag.
func (t *PeerTable) Snapshot() map[identity.UserID]PeerView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := time.Now().UTC()
	out := make(map[identity.UserID]PeerView, len(t.peers))
	for id, p := range t.peers {
		out[id] = PeerView{
			UserID:   p.UserID,
			IP:       p.IP,
			LastSeen: p.LastSeen,
			TCPOk:    p.TCPOk,
			Online:   now.Sub(p.LastSeen) <= OnlineThreshold,
		}
	}
	online := 0
	for _, v := range out {
		if v.Online {
			online++
		}
	}
	metrics.PeersOnline.Set(float64(online))
	return out
}

// PersistSnapshot returns the raw store.Peer map for PeerStore.Save,
// already scoped to non-self, non-local entries by construction.
func (t *PeerTable) PersistSnapshot() map[identity.UserID]store.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[identity.UserID]store.Peer, len(t.peers))
	for id, p := range t.peers {
		out[id] = p
	}
	return out
}
