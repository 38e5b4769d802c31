package discovery_test

import (
	"net"
	"testing"
	"time"

	"github.com/lanchat/lcpnode/internal/discovery"
	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/store"
)

type memPeerStore struct {
	snapshot map[identity.UserID]store.Peer
}

func (m *memPeerStore) Load() (map[identity.UserID]store.Peer, error) {
	if m.snapshot == nil {
		return map[identity.UserID]store.Peer{}, nil
	}
	return m.snapshot, nil
}

func (m *memPeerStore) Save(snapshot map[identity.UserID]store.Peer) error {
	m.snapshot = snapshot
	return nil
}

func mustListen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewFiltersSelfAndLocalFromSnapshot(t *testing.T) {
	self := identity.Normalize("alice")
	other := identity.Normalize("bob")
	st := &memPeerStore{snapshot: map[identity.UserID]store.Peer{
		self:  {UserID: self, IP: "10.0.0.1"},
		other: {UserID: other, IP: "10.0.0.2"},
	}}

	conn := mustListen(t)
	d, err := discovery.New(conn, self, net.IPv4(10, 0, 0, 1), st, lcpevents.NewLogger(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	peers := d.GetPeers()
	if _, ok := peers[self]; ok {
		t.Fatal("self should never appear in the peer table (invariant i)")
	}
	if _, ok := peers[other]; !ok {
		t.Fatal("bob should survive the filtered load")
	}
}

func TestUpsertIgnoresSelfAndLocalIP(t *testing.T) {
	self := identity.Normalize("alice")
	st := &memPeerStore{}
	conn := mustListen(t)
	d, err := discovery.New(conn, self, net.IPv4(10, 0, 0, 1), st, lcpevents.NewLogger(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	d.Table.Upsert(self, "10.0.0.9")
	if len(d.GetPeers()) != 0 {
		t.Fatal("upserting self must never insert into the table (invariant 10)")
	}

	carol := identity.Normalize("carol")
	d.Table.Upsert(carol, "10.0.0.1")
	if _, ok := d.GetPeers()[carol]; ok {
		t.Fatal("a sighting from a local IP must never insert into the table (invariant ii)")
	}

	bob := identity.Normalize("bob")
	d.Table.Upsert(bob, "10.0.0.9")
	if _, ok := d.GetPeers()[bob]; !ok {
		t.Fatal("bob should be present after a normal upsert")
	}
}

func TestLastSeenIsMonotonic(t *testing.T) {
	self := identity.Normalize("alice")
	bob := identity.Normalize("bob")
	conn := mustListen(t)
	d, err := discovery.New(conn, self, net.IPv4(10, 0, 0, 1), &memPeerStore{}, lcpevents.NewLogger(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	d.Table.Upsert(bob, "10.0.0.9")
	first := d.GetPeers()[bob].LastSeen
	d.Table.Upsert(bob, "10.0.0.9")
	second := d.GetPeers()[bob].LastSeen

	if second.Before(first) {
		t.Fatalf("last_seen regressed: %v -> %v", first, second)
	}
}
