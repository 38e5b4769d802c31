// Package messaging implements LCP's reliable UDP control channel and TCP
// file-transfer channel: send/wait/retry with exponential backoff, the
// receive-loop dispatch shared with Discovery, and the work-queue/sweeper
// maintenance workers. Grounded on the teacher's internal/discover.go
// length-based dispatch idiom and lock-guarded registry pattern,
// generalized from one XDR frame shape to LCP's three (response, header,
// body).
package messaging

import (
	"context"
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lanchat/lcpnode/internal/discovery"
	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/store"
	"github.com/lanchat/lcpnode/internal/syncutil"
	"github.com/lanchat/lcpnode/internal/wire"
)

// SendTimeout is the default _send_and_wait timeout from spec §4.4.1.
const SendTimeout = 5 * time.Second

// FileHandshakeSettle is the pause between the UDP header ACK and the TCP
// dial in send_file, per spec §4.4.2 step 3.
const FileHandshakeSettle = 500 * time.Millisecond

// retryBackoffs[i] is slept after failed attempt i of _send_and_wait's 3
// attempts, including the last one before DeliveryFailed is returned.
var retryBackoffs = [3]time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

// workQueueCapacity bounds the inbound message queue per spec §5's
// backpressure note (drop oldest on overflow, emit a warning).
const workQueueCapacity = 1024

// ackWaiter is signaled at most once; duplicate deliveries are no-ops
// (spec invariant 5), enforced by the buffered, non-blocking send in
// deliver.
type ackWaiter struct {
	ch chan wire.Status
}

func newAckWaiter() *ackWaiter {
	return &ackWaiter{ch: make(chan wire.Status, 1)}
}

func (w *ackWaiter) deliver(status wire.Status) {
	select {
	case w.ch <- status:
	default:
	}
}

type inboundMessage struct {
	From identity.UserID
	Text string
}

// Messaging owns the shared UDP socket's receive side, the TCP file
// listener, and all the reliable-delivery bookkeeping.
type Messaging struct {
	conn      *net.UDPConn
	tcpLn     *net.TCPListener
	self      identity.UserID
	discovery *discovery.Discovery
	history   store.HistoryStore
	events    *lcpevents.Logger
	downloads string

	acks *xsync.MapOf[identity.UserID, *ackWaiter]

	pendingMu   syncutil.Mutex
	pendingBody map[uint8]chan wire.MessageBody

	pending *pendingHeaders

	workQueue chan inboundMessage

	bodyIDMu  syncutil.Mutex
	bodyIDCtr uint8

	cancel context.CancelFunc
	wg     syncutil.WaitGroup
}

// New constructs Messaging bound to the socket shared with Discovery,
// which must already exist (spec §9: Discovery constructed first).
func New(conn *net.UDPConn, tcpLn *net.TCPListener, self identity.UserID, disc *discovery.Discovery, history store.HistoryStore, events *lcpevents.Logger, downloadsDir string) *Messaging {
	return &Messaging{
		conn:        conn,
		tcpLn:       tcpLn,
		self:        self,
		discovery:   disc,
		history:     history,
		events:      events,
		downloads:   downloadsDir,
		acks:        xsync.NewMapOf[identity.UserID, *ackWaiter](),
		pendingBody: make(map[uint8]chan wire.MessageBody),
		pending:     newPendingHeaders(),
		workQueue:   make(chan inboundMessage, workQueueCapacity),
		pendingMu:   syncutil.NewMutex(),
		bodyIDMu:    syncutil.NewMutex(),
		wg:          syncutil.NewWaitGroup(),
	}
}

// Start launches the UDP receiver, TCP acceptor, work-queue consumer, and
// pending-header sweeper — the four remaining workers of spec §5's
// suggested set (disc_broadcast and disc_persist live in Discovery). It is
// a convenience for tests and standalone use; Engine instead supervises
// RunUDPReceive/RunTCPAccept/RunWorkQueue/RunPendingSweep individually via
// suture so a panicking worker restarts instead of taking the process down.
func (m *Messaging) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	runners := []func(context.Context) error{m.RunUDPReceive, m.RunTCPAccept, m.RunWorkQueue, m.RunPendingSweep}
	for _, run := range runners {
		m.wg.Add(1)
		go func(fn func(context.Context) error) {
			defer m.wg.Done()
			_ = fn(ctx)
		}(run)
	}
}

// Stop signals all workers to exit and waits for them to do so.
func (m *Messaging) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Messaging) nextBodyID() uint8 {
	m.bodyIDMu.Lock()
	defer m.bodyIDMu.Unlock()
	id := m.bodyIDCtr
	m.bodyIDCtr++
	return id
}

// Send implements spec §4.4.1: header handshake, then body handshake,
// then a history append on double success.
func (m *Messaging) Send(recipient identity.UserID, text string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = SendTimeout
	}
	ip, ok := m.discovery.Table.Lookup(recipient)
	if !ok {
		return &UnknownPeerError{Who: recipient.String()}
	}

	bid := m.nextBodyID()
	header := wire.Header{From: m.self, To: recipient, Op: wire.OpMessage, BodyID: bid, BodyLen: uint64(1 + len(text))}
	if err := m.sendAndWait(header.Marshal(), recipient, ip, timeout, "header"); err != nil {
		return err
	}

	body := wire.MessageBody{BodyID: bid, Payload: []byte(text)}
	if err := m.sendAndWait(body.Marshal(), recipient, ip, timeout, "body"); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := m.history.AppendMessage(m.self, recipient, text, now); err != nil {
		l.Warnf("messaging: append history: %v", err)
	}
	if m.events != nil {
		m.events.Log(lcpevents.MessageSent, map[string]string{"to": recipient.Display()})
	}
	metrics.MessagesSent.Inc()
	return nil
}

// sendAndWait implements _send_and_wait: register a waiter, send, await
// the ack up to 3 times with exponential backoff, and on exhaustion
// trigger a discovery refresh before raising DeliveryFailed.
func (m *Messaging) sendAndWait(buf []byte, peer identity.UserID, ip string, timeout time.Duration, stage string) error {
	waiter := newAckWaiter()
	m.acks.Store(peer, waiter)
	defer m.acks.Delete(peer)

	dst := &net.UDPAddr{IP: net.ParseIP(ip), Port: discovery.Port}

	for attempt := 0; attempt < 3; attempt++ {
		if _, err := m.conn.WriteToUDP(buf, dst); err != nil && debug {
			l.Debugf("messaging: send to %s: %v", ip, err)
		}

		select {
		case status := <-waiter.ch:
			if status == wire.StatusOK {
				return nil
			}
			metrics.MessagesFailed.WithLabelValues(stage).Inc()
			return &DeliveryFailedError{Who: peer.String(), Stage: stage, Causes: attempt + 1}
		case <-time.After(timeout):
		}

		if attempt < len(retryBackoffs) {
			if attempt < 2 {
				metrics.RetriesTotal.Inc()
			}
			time.Sleep(retryBackoffs[attempt])
		}
	}

	m.discovery.ForceDiscover()
	metrics.MessagesFailed.WithLabelValues(stage).Inc()
	return &DeliveryFailedError{Who: peer.String(), Stage: stage, Causes: 3}
}

// RunPendingSweep is the fourth supervised worker: it periodically forces
// TTL expiry on the file-transfer handshake table.
func (m *Messaging) RunPendingSweep(ctx context.Context) error {
	return m.pending.run(ctx)
}
