// Package discovery implements LCP's liveness subsystem: the broadcast
// probe loop, reply handling, and the persisted PeerTable, grounded on the
// teacher's internal/discover.Discoverer (ticker + forced-broadcast-tick
// goroutine, lock-guarded registry) and internal/beacon's subnet-directed
// broadcast-address derivation, rewritten around LCP's Header/Response
// frames instead of XDR Announce/Query packets.
package discovery

import (
	"context"
	"net"
	"time"

	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/store"
	"github.com/lanchat/lcpnode/internal/wire"
)

// Port is the fixed LCP port (UDP control/broadcast and TCP bulk), per
// spec §6.
const Port = 9990

// DefaultBroadcastInterval is the worker-B cadence from spec §4.3.
const DefaultBroadcastInterval = time.Second

// PersistInterval is the worker-P cadence from spec §4.3 (fixed, not
// configurable — only broadcast_interval is exposed per spec §6).
const PersistInterval = 5 * time.Second

// Discovery owns the PeerTable and the broadcast/persist background
// workers. It shares its UDP socket with Messaging: Discovery only ever
// writes to it (broadcast probes, echo replies); Messaging's single
// receive loop reads it and hands Discovery unmatched responses and Echo
// headers, per the cyclic-dependency note in spec §9.
type Discovery struct {
	conn    *net.UDPConn
	self    identity.UserID
	localIP net.IP
	bcastIP net.IP

	Table *PeerTable

	peerStore store.PeerStore
	events    *lcpevents.Logger

	broadcastInterval time.Duration
	forceCh           chan struct{}
}

// New constructs Discovery and loads the initial PeerTable snapshot from
// peerStore, filtered against self and localIPs (spec §4.2: "called once
// at Engine construction").
func New(conn *net.UDPConn, self identity.UserID, localIP net.IP, peerStore store.PeerStore, events *lcpevents.Logger, broadcastInterval time.Duration) (*Discovery, error) {
	if broadcastInterval <= 0 {
		broadcastInterval = DefaultBroadcastInterval
	}
	bcastIP, err := SubnetBroadcast(localIP)
	if err != nil {
		bcastIP = net.IPv4(255, 255, 255, 255)
	}

	d := &Discovery{
		conn:              conn,
		self:              self,
		localIP:           localIP,
		bcastIP:           bcastIP,
		Table:             NewPeerTable(self, []net.IP{localIP, Loopback}),
		peerStore:         peerStore,
		events:            events,
		broadcastInterval: broadcastInterval,
		forceCh:           make(chan struct{}, 1),
	}

	snapshot, err := peerStore.Load()
	if err != nil {
		return nil, err
	}
	d.Table.LoadSnapshot(snapshot)

	return d, nil
}

// ForceDiscover synchronously re-triggers a broadcast probe, for the API's
// on-demand refresh.
func (d *Discovery) ForceDiscover() {
	d.sendEcho()
}

// GetPeers returns the current PeerTable view for the Engine API.
func (d *Discovery) GetPeers() map[identity.UserID]PeerView {
	return d.Table.Snapshot()
}

// ObserveResponse handles a 25-B response that Messaging did not claim as
// an ACK: if Status is OK, the responder is upserted into the PeerTable
// with the datagram's source IP as its last-known address.
func (d *Discovery) ObserveResponse(resp wire.Response, src *net.UDPAddr) {
	if resp.Status != wire.StatusOK || resp.Responder.IsBroadcast() {
		return
	}
	metrics.DiscoveryTicksReceived.WithLabelValues("response").Inc()
	d.Table.Upsert(resp.Responder, src.IP.String())
}

// HandleEcho processes an inbound Echo header (OpCode 0): it upserts the
// sender and replies OK with the local id, per spec §4.3's reply rule.
// Messaging's receive loop calls this for every header it dispatches with
// Op == OpEcho.
func (d *Discovery) HandleEcho(from identity.UserID, src *net.UDPAddr) {
	if from == d.self {
		return
	}
	metrics.DiscoveryTicksReceived.WithLabelValues("echo").Inc()
	d.Table.Upsert(from, src.IP.String())

	resp := wire.Response{Status: wire.StatusOK, Responder: d.self}
	_, _ = d.conn.WriteToUDP(resp.Marshal(), src)
}

// RunBroadcast is worker B (spec §4.3): it owns the broadcast-probe ticker
// and exits when ctx is cancelled, matching the suture.Service shape so
// Engine can supervise it alongside the rest of the worker set.
func (d *Discovery) RunBroadcast(ctx context.Context) error {
	ticker := time.NewTicker(d.broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.sendEcho()
		case <-d.forceCh:
			d.sendEcho()
		}
	}
}

func (d *Discovery) sendEcho() {
	metrics.DiscoveryTicksSent.Inc()
	h := wire.Header{
		From:    d.self,
		To:      identity.Broadcast,
		Op:      wire.OpEcho,
		BodyID:  0,
		BodyLen: 0,
	}
	buf := h.Marshal()

	dests := []*net.UDPAddr{
		{IP: d.bcastIP, Port: Port},
		{IP: net.IPv4(255, 255, 255, 255), Port: Port},
	}
	for _, dst := range dests {
		if _, err := d.conn.WriteToUDP(buf, dst); err != nil {
			// Logged and swallowed per spec §4.3; the next tick retries.
			if debug {
				l.Debugf("discovery: broadcast to %s: %v", dst, err)
			}
		}
	}
}

// RunPersist is worker P (spec §4.3): it flushes the PeerTable to disk on
// a fixed 5s cadence and exits when ctx is cancelled.
func (d *Discovery) RunPersist(ctx context.Context) error {
	ticker := time.NewTicker(PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snapshot := d.Table.PersistSnapshot()
			if err := d.peerStore.Save(snapshot); err != nil {
				// Logged and swallowed; the next 5s tick retries (spec §4.3).
				l.Warnf("discovery: persist peers: %v", err)
			}
		}
	}
}
