package messaging

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lanchat/lcpnode/internal/discovery"
	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
	"github.com/lanchat/lcpnode/internal/metrics"
	"github.com/lanchat/lcpnode/internal/wire"
)

// fileChunkSize is the TCP streaming chunk size from spec §4.4.2 step 4.
const fileChunkSize = 32 * 1024

// fileResponseTimeout bounds the final 25-B response read in send_file.
const fileResponseTimeout = 5 * time.Second

// SendFile implements spec §4.4.2: UDP header handshake, a settle pause,
// then a plain TCP stream of the file bytes, half-closed to signal EOF,
// concluded by a 25-B response.
func (m *Messaging) SendFile(recipient identity.UserID, data []byte, filename string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = SendTimeout
	}
	ip, ok := m.discovery.Table.Lookup(recipient)
	if !ok {
		return &UnknownPeerError{Who: recipient.String()}
	}

	bid := m.nextBodyID()
	header := wire.Header{From: m.self, To: recipient, Op: wire.OpFile, BodyID: bid, BodyLen: uint64(len(data))}
	if err := m.sendAndWait(header.Marshal(), recipient, ip, timeout, "header"); err != nil {
		return err
	}

	time.Sleep(FileHandshakeSettle)

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprint(discovery.Port)), timeout)
	if err != nil {
		return &TransferFailedError{Who: recipient.String(), Err: err}
	}
	defer conn.Close()

	var bidBuf [8]byte
	binary.BigEndian.PutUint64(bidBuf[:], uint64(bid))
	if _, err := conn.Write(bidBuf[:]); err != nil {
		return &TransferFailedError{Who: recipient.String(), Err: err}
	}

	w := bufio.NewWriterSize(conn, fileChunkSize)
	for off := 0; off < len(data); off += fileChunkSize {
		end := off + fileChunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[off:end]); err != nil {
			return &TransferFailedError{Who: recipient.String(), Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &TransferFailedError{Who: recipient.String(), Err: err}
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return &TransferFailedError{Who: recipient.String(), Err: err}
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(fileResponseTimeout))
	respBuf := make([]byte, wire.ResponseSize)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		return &TransferFailedError{Who: recipient.String(), Err: err}
	}
	resp, err := wire.UnmarshalResponse(respBuf)
	if err != nil || resp.Status != wire.StatusOK {
		return &TransferFailedError{Who: recipient.String(), Err: fmt.Errorf("receiver status %v", resp.Status)}
	}

	now := time.Now().UTC()
	if err := m.history.AppendFile(m.self, recipient, filename, int64(len(data)), "", now); err != nil {
		l.Warnf("messaging: append file history: %v", err)
	}
	if m.events != nil {
		m.events.Log(lcpevents.FileSent, map[string]string{"to": recipient.Display(), "filename": filename})
	}
	metrics.BytesTransferred.WithLabelValues("sent").Add(float64(len(data)))
	return nil
}

// RunTCPAccept is the bulk-transfer acceptor, cancellable via ctx using the
// same deadline-polling idiom as RunUDPReceive.
func (m *Messaging) RunTCPAccept(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_ = m.tcpLn.SetDeadline(time.Now().Add(5 * time.Second))
		conn, err := m.tcpLn.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if debug {
				l.Debugf("messaging: tcp accept: %v", err)
			}
			continue
		}
		go m.handleFileConn(conn)
	}
}

// handleFileConn implements the receiver side of spec §4.4.2/§4.4.3: read
// the 8-byte bid, correlate it against pendingHeaders, then stream
// exactly BodyLen bytes to the downloads directory.
func (m *Messaging) handleFileConn(conn net.Conn) {
	defer conn.Close()

	var bidBuf [8]byte
	if _, err := io.ReadFull(conn, bidBuf[:]); err != nil {
		m.tcpReply(conn, wire.StatusInternalError)
		return
	}
	bid := uint8(binary.BigEndian.Uint64(bidBuf[:]))

	header, ok := m.pending.Load(bid)
	if !ok {
		m.tcpReply(conn, wire.StatusInternalError)
		return
	}
	m.pending.Remove(bid)

	sniff := make([]byte, 0, 512)
	data := make([]byte, 0, header.BodyLen)
	buf := make([]byte, 64*1024)
	var logged int64
	for uint64(len(data)) < header.BodyLen {
		want := header.BodyLen - uint64(len(data))
		if uint64(len(buf)) < want {
			want = uint64(len(buf))
		}
		n, err := conn.Read(buf[:want])
		if n > 0 {
			data = append(data, buf[:n]...)
			if len(sniff) < 512 {
				sniff = append(sniff, buf[:n]...)
				if len(sniff) > 512 {
					sniff = sniff[:512]
				}
			}
			if int64(len(data))/(1<<20) > logged {
				logged = int64(len(data)) / (1 << 20)
				if debug {
					l.Debugf("messaging: file from bid %d: %d MiB received", bid, logged)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			m.tcpReply(conn, wire.StatusInternalError)
			return
		}
	}

	if uint64(len(data)) != header.BodyLen {
		m.tcpReply(conn, wire.StatusInternalError)
		return
	}

	name := sanitizeFilename(syntheticFilename(header.From, bid, sniff))
	path := filepath.Join(m.downloads, name)
	if err := os.MkdirAll(m.downloads, 0755); err != nil {
		m.tcpReply(conn, wire.StatusInternalError)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		m.tcpReply(conn, wire.StatusInternalError)
		return
	}

	if err := m.history.AppendFile(header.From, header.To, name, int64(len(data)), path, time.Now().UTC()); err != nil {
		l.Warnf("messaging: append received file history: %v", err)
	}
	if m.events != nil {
		m.events.Log(lcpevents.FileReceived, map[string]string{"from": header.From.Display(), "filename": name})
	}
	metrics.BytesTransferred.WithLabelValues("received").Add(float64(len(data)))
	m.tcpReply(conn, wire.StatusOK)
}

func (m *Messaging) tcpReply(conn net.Conn, status wire.Status) {
	resp := wire.Response{Status: status, Responder: m.self}
	_, _ = conn.Write(resp.Marshal())
}

// syntheticFilename names a received file: the wire format carries no
// filename field (Header/MessageBody have no room for one alongside the
// exact BodyLen byte count), so the receiver derives a name from the
// sender's id and this transfer's bid, with an extension guessed from the
// sniffed content — the closest equivalent of spec §4.4.3's "sniff file
// type... preserve extension" step when there is no original name to
// preserve one of.
func syntheticFilename(from identity.UserID, bid uint8, sniff []byte) string {
	ext := ""
	if len(sniff) > 0 {
		ct := http.DetectContentType(sniff)
		if i := strings.Index(ct, "/"); i >= 0 {
			switch ct[:i] {
			case "image":
				ext = "." + strings.TrimPrefix(ct[i+1:], "x-")
			case "text":
				ext = ".txt"
			}
		}
	}
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s-%03d%s", from.Display(), bid, ext)
}

// sanitizeFilename strips path separators and ".." components and clamps
// length, per spec §4.4.3 — defensive even though syntheticFilename never
// produces anything unsafe on its own.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "_")
	const maxLen = 200
	if len(name) > maxLen {
		ext := filepath.Ext(name)
		name = name[:maxLen-len(ext)] + ext
	}
	return name
}
