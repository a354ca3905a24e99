package mocks

import (
	"context"
	"net/netip"

	"github.com/netshape/tsproxy/internal/model"
)

// Resolver is a mockable Resolver.
type Resolver struct {
	MockLookupHost func(ctx context.Context, domain string) ([]netip.Addr, error)
	MockAddress    func() string
}

var _ model.Resolver = &Resolver{}

// LookupHost calls MockLookupHost.
func (r *Resolver) LookupHost(ctx context.Context, domain string) ([]netip.Addr, error) {
	return r.MockLookupHost(ctx, domain)
}

// Address calls MockAddress.
func (r *Resolver) Address() string {
	return r.MockAddress()
}
