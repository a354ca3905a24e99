package resolver

import (
	"context"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSystem(t *testing.T) {
	t.Run("with IP address literal", func(t *testing.T) {
		reso := &System{}
		addrs, err := reso.LookupHost(context.Background(), "127.0.0.1")
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 1 || addrs[0] != netip.MustParseAddr("127.0.0.1") {
			t.Fatal("unexpected addresses", addrs)
		}
	})

	t.Run("with canceled context", func(t *testing.T) {
		reso := &System{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		addrs, err := reso.LookupHost(ctx, "www.example.com")
		if err == nil {
			t.Fatal("expected an error")
		}
		if len(addrs) != 0 {
			t.Fatal("expected no addresses")
		}
	})

	t.Run("Address", func(t *testing.T) {
		if (&System{}).Address() != "" {
			t.Fatal("expected empty address")
		}
	})
}

func TestUnmapAll(t *testing.T) {
	input := []netip.Addr{
		netip.MustParseAddr("::ffff:10.0.0.1"),
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("::1"),
	}
	expect := []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("::1"),
	}
	if diff := cmp.Diff(expect, unmapAll(input), cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Fatal(diff)
	}
}
