package route

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Wildcard markers accepted as a route's SourceIP.
const (
	WildcardAny  = "0.0.0.0"
	WildcardStar = "*"
)

var ErrInvalidRoute = errors.New("invalid route")

// Route maps a local listening address to a remote destination.
type Route struct {
	SourceIP   string
	SourcePort uint16
	DestDomain string
	DestPort   uint16
}

// IsWildcard reports whether r matches any locally bound address.
func (r Route) IsWildcard() bool {
	return r.SourceIP == WildcardAny || r.SourceIP == WildcardStar
}

// Source returns the listening side as host:port.
func (r Route) Source() string {
	return net.JoinHostPort(r.SourceIP, strconv.Itoa(int(r.SourcePort)))
}

// Destination returns the remote side as host:port.
func (r Route) Destination() string {
	return net.JoinHostPort(r.DestDomain, strconv.Itoa(int(r.DestPort)))
}

func (r Route) String() string {
	return r.Source() + " -> " + r.Destination()
}

// Validate checks that r can be served.
func (r Route) Validate() error {
	if r.SourceIP == "" {
		return fmt.Errorf("%w: empty source address", ErrInvalidRoute)
	}
	if !r.IsWildcard() {
		addr, err := netip.ParseAddr(r.SourceIP)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("%w: source address %q is not an IPv4 literal", ErrInvalidRoute, r.SourceIP)
		}
	}
	if r.SourcePort == 0 {
		return fmt.Errorf("%w: source port must be in [1,65535]", ErrInvalidRoute)
	}
	if r.DestDomain == "" {
		return fmt.Errorf("%w: empty destination", ErrInvalidRoute)
	}
	if r.DestPort == 0 {
		return fmt.Errorf("%w: destination port must be in [1,65535]", ErrInvalidRoute)
	}
	return nil
}

// ParsePort parses a decimal port in [1,65535].
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q: %w", ErrInvalidRoute, s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: port must be in [1,65535]", ErrInvalidRoute)
	}
	return uint16(n), nil
}
