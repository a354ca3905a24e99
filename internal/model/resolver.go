package model

//
// Resolver
//

import (
	"context"
	"net/netip"
)

// Resolver resolves hostnames to IP addresses.
type Resolver interface {
	// LookupHost returns the IPv4 and IPv6 addresses of domain.
	LookupHost(ctx context.Context, domain string) ([]netip.Addr, error)

	// Address returns the resolver address or an empty
	// string when using the system resolver.
	Address() string
}
