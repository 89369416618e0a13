package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var ErrNoAddress = errors.New("no IPv4 address")

// Lookuper is satisfied by *net.Resolver.
type Lookuper interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolver connects to a route destination by name. Every call resolves
// afresh and only the first IPv4 address returned is tried.
type Resolver struct {
	lookup Lookuper
	dialer Dialer
}

// NewResolver returns a Resolver using lookup for names and d for connects.
// A nil lookup means net.DefaultResolver.
func NewResolver(lookup Lookuper, d Dialer) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	return &Resolver{lookup: lookup, dialer: d}
}

// Resolve returns the first IPv4 address for domain.
func (r *Resolver) Resolve(ctx context.Context, domain string) (net.IP, error) {
	ips, err := r.lookup.LookupIP(ctx, "ip4", domain)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", domain, err)
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("resolve %s: %w", domain, ErrNoAddress)
}

// Connect resolves domain and dials it on port.
func (r *Resolver) Connect(ctx context.Context, domain string, port uint16) (net.Conn, error) {
	ip, err := r.Resolve(ctx, domain)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
	c, err := r.dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s (%s): %w", domain, addr, err)
	}
	return c, nil
}
