package resolver

//
// Resolver using a specific DNS server
//

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/miekg/dns"
	"github.com/netshape/tsproxy/internal/model"
)

var (
	// ErrNoData indicates that the server did not return any address.
	ErrNoData = errors.New("resolver: no data")

	// ErrNXDOMAIN indicates that the domain does not exist.
	ErrNXDOMAIN = errors.New("resolver: no such host")

	// ErrServerFailure indicates any other failure response.
	ErrServerFailure = errors.New("resolver: server failure")
)

// DNSServer is the [model.Resolver] sending A and AAAA queries over UDP to a
// specific server using github.com/miekg/dns. The zero value is invalid;
// use [NewDNSServer] to construct.
type DNSServer struct {
	address string
	client  *dns.Client
}

var _ model.Resolver = &DNSServer{}

// NewDNSServer creates a [DNSServer] querying the server at address,
// which must be an endpoint such as "8.8.8.8:53".
func NewDNSServer(address string) *DNSServer {
	return &DNSServer{
		address: address,
		client:  &dns.Client{Net: "udp"},
	}
}

// Address implements model.Resolver.
func (r *DNSServer) Address() string {
	return r.address
}

// LookupHost implements model.Resolver.
func (r *DNSServer) LookupHost(ctx context.Context, domain string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(domain); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	type result struct {
		addrs []netip.Addr
		err   error
	}
	var (
		results [2]result
		wg      sync.WaitGroup
	)
	for idx, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		wg.Add(1)
		go func(idx int, qtype uint16) {
			defer wg.Done()
			addrs, err := r.query(ctx, domain, qtype)
			results[idx] = result{addrs, err}
		}(idx, qtype)
	}
	wg.Wait()

	if results[0].err != nil && results[1].err != nil {
		return nil, results[0].err
	}
	addrs := unmapAll(append(results[0].addrs, results[1].addrs...))
	if len(addrs) <= 0 {
		return nil, ErrNoData
	}
	return addrs, nil
}

func (r *DNSServer) query(ctx context.Context, domain string, qtype uint16) ([]netip.Addr, error) {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(domain), qtype)
	query.RecursionDesired = true
	resp, _, err := r.client.ExchangeContext(ctx, query, r.address)
	if err != nil {
		return nil, fmt.Errorf("resolver: %s query for %s: %w", dns.TypeToString[qtype], domain, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, ErrNXDOMAIN
	default:
		return nil, fmt.Errorf("%w: %s", ErrServerFailure, dns.RcodeToString[resp.Rcode])
	}
	var addrs []netip.Addr
	for _, answer := range resp.Answer {
		switch rr := answer.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rr.A); ok {
				addrs = append(addrs, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rr.AAAA); ok {
				addrs = append(addrs, addr)
			}
		}
	}
	return addrs, nil
}
