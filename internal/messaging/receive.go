package messaging

import (
	"context"
	"net"
	"time"

	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/wire"
)

// messageBodyWait bounds how long an accepted Message header waits for
// its correlated body frame before giving up silently.
const messageBodyWait = 5 * time.Second

// RunUDPReceive is the single shared-socket receiver: it classifies every
// inbound datagram by length and routes it, per spec §4.4.3 and the
// single-receiver design note in §9. A 5s read deadline keeps the loop
// cancellable via ctx without a second synchronization mechanism.
func (m *Messaging) RunUDPReceive(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = m.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if debug {
				l.Debugf("messaging: udp read: %v", err)
			}
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		m.dispatchUDP(frame, addr)
	}
}

func (m *Messaging) dispatchUDP(frame []byte, addr *net.UDPAddr) {
	switch wire.ClassifyLength(len(frame)) {
	case wire.FrameResponse:
		m.handleResponse(frame, addr)
	case wire.FrameHeader:
		m.handleHeaderFrame(frame, addr)
	default:
		// Not response- or header-sized: the only other frame this
		// protocol puts on the wire is a MessageBody correlated to an
		// outstanding OpMessage header. Anything that doesn't match a
		// registered bid is dropped silently, per spec §4.4.3.
		m.handlePossibleBody(frame)
	}
}

func (m *Messaging) handleResponse(frame []byte, addr *net.UDPAddr) {
	resp, err := wire.UnmarshalResponse(frame)
	if err != nil {
		return
	}
	if waiter, ok := m.acks.Load(resp.Responder); ok {
		waiter.deliver(resp.Status)
		return
	}
	if resp.Status == wire.StatusOK {
		m.discovery.ObserveResponse(resp, addr)
	}
}

func (m *Messaging) handlePossibleBody(frame []byte) {
	body, err := wire.UnmarshalMessageBody(frame)
	if err != nil {
		return
	}
	m.pendingMu.Lock()
	ch, ok := m.pendingBody[body.BodyID]
	m.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- body:
	default:
	}
}

func (m *Messaging) handleHeaderFrame(frame []byte, addr *net.UDPAddr) {
	h, err := wire.UnmarshalHeader(frame)
	if err != nil {
		return
	}
	if h.To != m.self && !h.To.IsBroadcast() {
		m.reply(addr, wire.StatusBadRequest)
		return
	}

	switch h.Op {
	case wire.OpEcho:
		m.discovery.HandleEcho(h.From, addr)
	case wire.OpMessage:
		go m.handleMessageHeader(h, addr)
	case wire.OpFile:
		m.handleFileHeader(h, addr)
	default:
		m.reply(addr, wire.StatusBadRequest)
	}
}

func (m *Messaging) reply(addr *net.UDPAddr, status wire.Status) {
	resp := wire.Response{Status: status, Responder: m.self}
	_, _ = m.conn.WriteToUDP(resp.Marshal(), addr)
}

// handleMessageHeader implements the receiver side of spec §4.4.1: ack
// the header, then wait for the correlated body before enqueueing it for
// history. Run in its own goroutine so a slow/missing body from one
// sender never stalls the shared receive loop.
func (m *Messaging) handleMessageHeader(h wire.Header, addr *net.UDPAddr) {
	m.reply(addr, wire.StatusOK)

	ch := make(chan wire.MessageBody, 1)
	m.pendingMu.Lock()
	m.pendingBody[h.BodyID] = ch
	m.pendingMu.Unlock()
	defer func() {
		m.pendingMu.Lock()
		delete(m.pendingBody, h.BodyID)
		m.pendingMu.Unlock()
	}()

	select {
	case body := <-ch:
		if uint64(len(body.Payload)+1) != h.BodyLen {
			m.reply(addr, wire.StatusBadRequest)
			return
		}
		m.reply(addr, wire.StatusOK)
		m.enqueue(inboundMessage{From: h.From, Text: string(body.Payload)})
	case <-time.After(messageBodyWait):
		// No body arrived in time; the sender will observe this as a
		// body-stage DeliveryFailed and may retry with a fresh bid.
	}
}

// handleFileHeader implements the receiver side of spec §4.4.2's UDP
// phase: broadcast file headers are rejected outright (files are unicast
// only); unicast ones are recorded in pendingHeaders and acked, awaiting
// the TCP data side.
func (m *Messaging) handleFileHeader(h wire.Header, addr *net.UDPAddr) {
	if h.To.IsBroadcast() {
		m.reply(addr, wire.StatusBadRequest)
		return
	}
	m.pending.Store(h.BodyID, h)
	m.reply(addr, wire.StatusOK)
}

func (m *Messaging) enqueue(msg inboundMessage) {
	select {
	case m.workQueue <- msg:
	default:
		// Queue full: drop the oldest and warn, per spec §5's
		// backpressure note, then insert the new message.
		select {
		case <-m.workQueue:
		default:
		}
		select {
		case m.workQueue <- msg:
		default:
		}
		l.Warnf("messaging: inbound work queue full, dropped oldest entry")
	}
}

// RunWorkQueue drains the bounded inbound-message queue into history.
func (m *Messaging) RunWorkQueue(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.workQueue:
			if err := m.history.AppendMessage(msg.From, m.self, msg.Text, time.Now().UTC()); err != nil {
				l.Warnf("messaging: append inbound history: %v", err)
				continue
			}
			if m.events != nil {
				m.events.Log(lcpevents.MessageReceived, map[string]string{"from": msg.From.Display()})
			}
			metrics.MessagesReceived.Inc()
		}
	}
}
