package testutil

import (
	"context"
	"net"
)

// StaticLookup resolves names from a fixed table. Unknown names fail the
// way a real resolver reports NXDOMAIN.
type StaticLookup map[string][]net.IP

func (s StaticLookup) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	ips, ok := s[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return ips, nil
}
