package tsproxy

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHandshake(t *testing.T) {
	type testcase struct {
		name string
		data []byte
		err  error
	}
	for _, tc := range []testcase{
		{name: "with no-auth only", data: []byte{5, 1, 0}},
		{name: "with no-auth among others", data: []byte{5, 3, 2, 1, 0}},
		{name: "with version 4", data: []byte{4, 1, 0}, err: ErrBadVersion},
		{name: "with too few bytes", data: []byte{5}, err: ErrBadVersion},
		{name: "with count larger than methods", data: []byte{5, 2, 0}, err: ErrNoAcceptableAuth},
		{name: "with trailing bytes", data: []byte{5, 1, 0, 0}, err: ErrNoAcceptableAuth},
		{name: "without no-auth", data: []byte{5, 1, 2}, err: ErrNoAcceptableAuth},
		{name: "with zero methods", data: []byte{5, 0}, err: ErrNoAcceptableAuth},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := parseHandshake(tc.data); !errors.Is(err, tc.err) {
				t.Fatal("unexpected error", err)
			}
		})
	}
}

func TestParseConnectRequest(t *testing.T) {
	type testcase struct {
		name   string
		data   []byte
		expect *connectRequest
		err    error
	}

	addrComparer := cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

	for _, tc := range []testcase{{
		name: "with IPv4 address",
		data: []byte{5, 1, 0, 1, 1, 2, 3, 4, 0, 80},
		expect: &connectRequest{
			Addr: netip.MustParseAddr("1.2.3.4"),
			Port: 80,
			Echo: []byte{1, 1, 2, 3, 4, 0, 80},
		},
	}, {
		name: "with domain name",
		data: append(append([]byte{5, 1, 0, 3, 11}, "example.com"...), 1, 187),
		expect: &connectRequest{
			Hostname: "example.com",
			Port:     443,
			Echo:     append(append([]byte{3, 11}, "example.com"...), 1, 187),
		},
	}, {
		name: "with IPv6 address",
		data: []byte{5, 1, 0, 4, 0x20, 1, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0x1f, 0x90},
		expect: &connectRequest{
			Addr: netip.MustParseAddr("2001:db8::1"),
			Port: 8080,
			Echo: []byte{4, 0x20, 1, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0x1f, 0x90},
		},
	}, {
		name: "with trailing bytes",
		data: []byte{5, 1, 0, 1, 1, 2, 3, 4, 0, 80, 7, 7},
		expect: &connectRequest{
			Addr: netip.MustParseAddr("1.2.3.4"),
			Port: 80,
			Echo: []byte{1, 1, 2, 3, 4, 0, 80},
		},
	}, {
		name: "with short request",
		data: []byte{5, 1, 0, 1, 1, 2, 3, 4, 0},
		err:  ErrMalformedAddress,
	}, {
		name: "with bad version",
		data: []byte{4, 1, 0, 1, 1, 2, 3, 4, 0, 80},
		err:  ErrBadVersion,
	}, {
		name: "with BIND command",
		data: []byte{5, 2, 0, 1, 1, 2, 3, 4, 0, 80},
		err:  ErrUnsupportedCommand,
	}, {
		name: "with UDP ASSOCIATE command",
		data: []byte{5, 3, 0, 1, 1, 2, 3, 4, 0, 80},
		err:  ErrUnsupportedCommand,
	}, {
		name: "with nonzero reserved byte",
		data: []byte{5, 1, 1, 1, 1, 2, 3, 4, 0, 80},
		err:  ErrMalformedAddress,
	}, {
		name: "with unknown address type",
		data: []byte{5, 1, 0, 2, 1, 2, 3, 4, 0, 80},
		err:  ErrMalformedAddress,
	}, {
		name: "with truncated domain",
		data: append([]byte{5, 1, 0, 3, 20}, "example.com"...),
		err:  ErrMalformedAddress,
	}, {
		name: "with empty domain",
		data: []byte{5, 1, 0, 3, 0, 0, 80, 0, 0, 0},
		err:  ErrMalformedAddress,
	}, {
		name: "with truncated IPv6 address",
		data: []byte{5, 1, 0, 4, 0x20, 1, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0},
		err:  ErrMalformedAddress,
	}, {
		name: "with zero port",
		data: []byte{5, 1, 0, 1, 1, 2, 3, 4, 0, 0},
		err:  ErrMalformedAddress,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := parseConnectRequest(tc.data)
			if !errors.Is(err, tc.err) {
				t.Fatal("unexpected error", err)
			}
			if diff := cmp.Diff(tc.expect, req, addrComparer); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestNewReply(t *testing.T) {
	echo := []byte{1, 1, 2, 3, 4, 0, 80}
	if diff := cmp.Diff([]byte{5, 0, 0, 1, 1, 2, 3, 4, 0, 80}, newReply(successReply, echo)); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff([]byte{5, 4, 0, 1, 1, 2, 3, 4, 0, 80}, newReply(hostUnreachableReply, echo)); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff([]byte{5, 0}, handshakeReply()); diff != "" {
		t.Fatal(diff)
	}
}
