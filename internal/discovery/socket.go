package discovery

import "net"

// BindSharedSocket binds the UDP socket shared by Discovery and Messaging
// on localIP:port with SO_REUSEADDR and SO_BROADCAST set, per spec §4.3.
// On bind failure it falls back to 0.0.0.0, matching the spec's explicit
// fallback rule.
func BindSharedSocket(localIP net.IP, port int) (*net.UDPConn, error) {
	conn, err := bindUDP(localIP, port)
	if err != nil {
		return bindUDP(net.IPv4zero, port)
	}
	return conn, nil
}
