package route

import (
	"net"
	"net/netip"
)

// Match picks the route for a connection whose locally bound address is
// local. Routes are tried in group order: a wildcard route always matches, a
// literal route matches only when its address equals the local IP exactly.
//
// The local address is what the OS reports for the accepted socket. Behind
// NAT, or without transparent sockets, it is not the address the client
// originally dialled.
func (g PortGroup) Match(local net.Addr) (Route, bool) {
	ip, haveIP := localIP(local)
	for _, r := range g.Routes {
		if r.IsWildcard() {
			return r, true
		}
		if !haveIP {
			continue
		}
		want, err := netip.ParseAddr(r.SourceIP)
		if err != nil {
			continue
		}
		if want.Unmap() == ip {
			return r, true
		}
	}
	return Route{}, false
}

func localIP(a net.Addr) (netip.Addr, bool) {
	switch v := a.(type) {
	case *net.TCPAddr:
		if v == nil {
			return netip.Addr{}, false
		}
		ip, ok := netip.AddrFromSlice(v.IP)
		return ip.Unmap(), ok
	case nil:
		return netip.Addr{}, false
	default:
		ap, err := netip.ParseAddrPort(a.String())
		if err != nil {
			return netip.Addr{}, false
		}
		return ap.Addr().Unmap(), true
	}
}
