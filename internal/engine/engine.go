// Package engine wires Discovery and Messaging onto one shared UDP socket
// plus a TCP listener, and runs their background workers under a
// restart-on-panic supervisor tree, grounded on the teacher's
// cmd/syncthing/discosrv pattern of building a root suture.Supervisor and
// Add()-ing one service per subsystem before calling Serve(ctx).
package engine

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/lanchat/lcpnode/internal/crashreport"
	"github.com/lanchat/lcpnode/internal/discovery"
	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/messaging"
	"github.com/lanchat/lcpnode/internal/store"
)

// Config bundles Engine's construction-time parameters, per spec §6's
// Engine API surface.
type Config struct {
	Self identity.UserID

	PeersPath   string
	HistoryPath string
	Downloads   string

	BroadcastInterval time.Duration
	SentryDSN         string
}

// Engine is the top-level node: shared socket, Discovery, Messaging, and
// their supervised background workers.
type Engine struct {
	cfg Config

	conn  *net.UDPConn
	tcpLn *net.TCPListener

	localIP net.IP

	Discovery *discovery.Discovery
	Messaging *messaging.Messaging
	Events    *lcpevents.Logger
	history   *store.FileHistoryStore

	reporter *crashreport.Reporter

	sup *suture.Supervisor
}

// New constructs the Engine: it selects a local IP, binds the shared
// socket and TCP listener, opens the peer/history stores, and builds
// Discovery before Messaging to avoid the cyclic-dependency issue noted
// in spec §9 (Messaging needs a *Discovery reference; Discovery never
// needs Messaging).
func New(cfg Config) (*Engine, error) {
	localIP, err := discovery.SelectLocalIP()
	if err != nil {
		return nil, fmt.Errorf("engine: select local ip: %w", err)
	}

	conn, err := discovery.BindSharedSocket(localIP, discovery.Port)
	if err != nil {
		return nil, fmt.Errorf("engine: bind shared socket: %w", err)
	}

	tcpLn, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: localIP, Port: discovery.Port})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: listen tcp: %w", err)
	}

	if err := store.EnsureDir(cfg.PeersPath); err != nil {
		conn.Close()
		tcpLn.Close()
		return nil, fmt.Errorf("engine: prepare peer store: %w", err)
	}
	if err := store.EnsureDir(cfg.HistoryPath); err != nil {
		conn.Close()
		tcpLn.Close()
		return nil, fmt.Errorf("engine: prepare history store: %w", err)
	}

	peerStore := store.NewFilePeerStore(cfg.PeersPath)
	historyStore := store.NewFileHistoryStore(cfg.HistoryPath)
	events := lcpevents.NewLogger()

	disc, err := discovery.New(conn, cfg.Self, localIP, peerStore, events, cfg.BroadcastInterval)
	if err != nil {
		conn.Close()
		tcpLn.Close()
		return nil, fmt.Errorf("engine: construct discovery: %w", err)
	}

	msg := messaging.New(conn, tcpLn, cfg.Self, disc, historyStore, events, cfg.Downloads)

	reporter, err := crashreport.New(cfg.SentryDSN, cfg.Self)
	if err != nil {
		l.Warnf("engine: crash reporter disabled: %v", err)
		reporter, _ = crashreport.New("", cfg.Self)
	}

	sup := suture.New("lcpnode", suture.Spec{PassThroughPanics: false})
	sup.Add(namedService{"disc_broadcast", disc.RunBroadcast})
	sup.Add(namedService{"disc_persist", disc.RunPersist})
	sup.Add(namedService{"udp_recv", msg.RunUDPReceive})
	sup.Add(namedService{"tcp_accept", msg.RunTCPAccept})
	sup.Add(namedService{"msg_consumer", msg.RunWorkQueue})
	sup.Add(namedService{"pending_sweeper", msg.RunPendingSweep})

	return &Engine{
		cfg:       cfg,
		conn:      conn,
		tcpLn:     tcpLn,
		localIP:   localIP,
		Discovery: disc,
		Messaging: msg,
		Events:    events,
		history:   historyStore,
		reporter:  reporter,
		sup:       sup,
	}, nil
}

// Run starts the six background workers under the supervisor tree and
// blocks until ctx is cancelled, restarting any worker that panics or
// returns an error instead of taking the whole node down (spec §4.5).
func (e *Engine) Run(ctx context.Context) error {
	defer e.conn.Close()
	defer e.tcpLn.Close()
	defer e.reporter.Close()
	return e.sup.Serve(ctx)
}

// LocalIP returns the address Discovery and Messaging are bound to.
func (e *Engine) LocalIP() net.IP {
	return e.localIP
}

// GetPeers exposes the current PeerTable view, per spec §6.
func (e *Engine) GetPeers() map[identity.UserID]discovery.PeerView {
	return e.Discovery.GetPeers()
}

// ForceDiscover triggers an immediate broadcast probe, per spec §6.
func (e *Engine) ForceDiscover() {
	e.Discovery.ForceDiscover()
}

// Send delivers a text message, per spec §6.
func (e *Engine) Send(to identity.UserID, text string, timeout time.Duration) error {
	if err := e.Messaging.Send(to, text, timeout); err != nil {
		e.reporter.CaptureError(err)
		return err
	}
	return nil
}

// SendFile delivers a file, per spec §6.
func (e *Engine) SendFile(to identity.UserID, data []byte, filename string, timeout time.Duration) error {
	if err := e.Messaging.SendFile(to, data, filename, timeout); err != nil {
		e.reporter.CaptureError(err)
		return err
	}
	return nil
}

// GetConversation returns the history between two peers, per spec §6.
func (e *Engine) GetConversation(a, b identity.UserID) ([]store.HistoryEntry, error) {
	return e.history.GetConversation(a, b)
}

// namedService adapts a Run*(ctx) error worker method into a named
// suture.Service, mirroring the teacher's serviceFunc idiom but carrying
// a String() label so supervisor logs name the failing worker.
type namedService struct {
	name string
	run  func(context.Context) error
}

func (s namedService) Serve(ctx context.Context) error { return s.run(ctx) }
func (s namedService) String() string                  { return s.name }
