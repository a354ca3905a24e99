package resolver

import (
	"context"
	"net"
	"net/netip"

	"github.com/netshape/tsproxy/internal/model"
)

// System is the [model.Resolver] using the system resolver.
type System struct{}

var _ model.Resolver = &System{}

// LookupHost implements model.Resolver.
func (*System) LookupHost(ctx context.Context, domain string) ([]netip.Addr, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", domain)
	if err != nil {
		return nil, err
	}
	return unmapAll(addrs), nil
}

// Address implements model.Resolver.
func (*System) Address() string {
	return ""
}

// unmapAll converts IPv4-mapped IPv6 addresses to IPv4 and removes duplicates.
func unmapAll(addrs []netip.Addr) []netip.Addr {
	out := make([]netip.Addr, 0, len(addrs))
	seen := make(map[netip.Addr]bool)
	for _, addr := range addrs {
		addr = addr.Unmap()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
