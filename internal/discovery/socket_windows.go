//go:build windows

package discovery

import (
	"context"
	"net"
	"strconv"
)

// Windows' socket option constants don't line up with unix.SO_REUSEADDR's
// semantics (SO_REUSEADDR on Windows permits silently stealing a bound
// port), so this platform skips the Control hook entirely; SO_BROADCAST
// is implied for UDP sockets on Windows.
func bindUDP(ip net.IP, port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
