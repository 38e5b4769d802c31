package discovery

import (
	"errors"
	"net"
	"strings"

	"github.com/jackpal/gateway"
)

// Loopback is always recorded alongside the chosen interface address, per
// spec §4.3's "also record loopback 127.0.0.1".
var Loopback = net.IPv4(127, 0, 0, 1)

var errNoInterfaceAddress = errors.New("discovery: no usable interface address found")

// SelectLocalIP enumerates host interfaces and picks the address this node
// advertises to the LAN: the first address on the 192.168.1.0/24 LAN
// heuristic prefix wins outright; otherwise, among the non-loopback
// candidates, the one whose interface owns the default route is preferred
// (a tie-breaker the distilled spec is silent on — see DESIGN.md); failing
// that, the first non-loopback address, and failing that, the first IPv4
// address net.InterfaceAddrs returns (typically loopback).
func SelectLocalIP() (net.IP, error) {
	addrs, err := candidateAddrs()
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		all, err := net.InterfaceAddrs()
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4(), nil
			}
		}
		return nil, errNoInterfaceAddress
	}

	for _, ip := range addrs {
		if strings.HasPrefix(ip.String(), "192.168.1.") {
			return ip, nil
		}
	}

	if gw, err := gateway.DiscoverGateway(); err == nil {
		if best := addrSharingRoute(addrs, gw); best != nil {
			return best, nil
		}
	}

	return addrs[0], nil
}

func candidateAddrs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		out = append(out, ip)
	}
	return out, nil
}

// addrSharingRoute returns the candidate whose /24 contains gw, approximating
// "owns the default route" without needing a second netlink round trip per
// interface.
func addrSharingRoute(addrs []net.IP, gw net.IP) net.IP {
	gw4 := gw.To4()
	if gw4 == nil {
		return nil
	}
	for _, ip := range addrs {
		if ip[0] == gw4[0] && ip[1] == gw4[1] && ip[2] == gw4[2] {
			return ip
		}
	}
	return nil
}

// SubnetBroadcast derives the subnet-directed broadcast address for ip, by
// finding the interface that owns it and OR-ing the host bits, the same way
// the teacher's beacon package derives its broadcast destinations.
func SubnetBroadcast(ip net.IP) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || !ipnet.IP.Equal(ip) {
				continue
			}
			return bcast(ipnet), nil
		}
	}
	return net.IPv4(255, 255, 255, 255), nil
}

func bcast(ipnet *net.IPNet) net.IP {
	bc := make(net.IP, len(ipnet.IP))
	copy(bc, ipnet.IP)
	mask := ipnet.Mask
	offset := len(bc) - len(mask)
	for i := range bc {
		if i-offset >= 0 {
			bc[i] = ipnet.IP[i] | ^mask[i-offset]
		}
	}
	return bc
}
