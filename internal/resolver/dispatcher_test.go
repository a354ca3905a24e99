package resolver

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/netshape/tsproxy/internal/mocks"
	"github.com/netshape/tsproxy/internal/model"
	"github.com/netshape/tsproxy/internal/shaping"
)

type sinkRecorder struct {
	mu   sync.Mutex
	msgs []shaping.Message
}

func (sr *sinkRecorder) Enqueue(msg shaping.Message) {
	sr.mu.Lock()
	sr.msgs = append(sr.msgs, msg)
	sr.mu.Unlock()
}

type lookupCounter struct {
	mu     sync.Mutex
	failed int
	ok     int
}

func (lc *lookupCounter) OnLookup(err error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if err != nil {
		lc.failed++
		return
	}
	lc.ok++
}

func TestDispatcher(t *testing.T) {
	sink := &sinkRecorder{}
	counter := &lookupCounter{}
	d := NewDispatcher(&DispatcherConfig{
		Observer: counter,
		Resolver: &mocks.Resolver{
			MockLookupHost: func(ctx context.Context, domain string) ([]netip.Addr, error) {
				if domain == "example.com" {
					return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
				}
				return nil, errors.New("mocked error")
			},
		},
		Sink: sink,
	})

	d.Dispatch(context.Background(), model.DiscardLogger, &shaping.Resolve{ID: 1, Hostname: "example.com", Port: 80})
	d.Dispatch(context.Background(), nil, &shaping.Resolve{ID: 2, Hostname: "nonexistent.example", Port: 80})
	d.Wait()

	if len(sink.msgs) != 2 {
		t.Fatal("expected two messages", len(sink.msgs))
	}
	byID := make(map[int64]*shaping.Resolved)
	for _, msg := range sink.msgs {
		resolved, ok := msg.(*shaping.Resolved)
		if !ok {
			t.Fatalf("unexpected message type %T", msg)
		}
		byID[resolved.ID] = resolved
	}
	if len(byID[1].Addresses) != 1 || byID[1].Addresses[0] != netip.MustParseAddr("93.184.216.34") {
		t.Fatal("unexpected addresses", byID[1].Addresses)
	}
	if len(byID[2].Addresses) != 0 {
		t.Fatal("a failed lookup must produce no addresses")
	}
	if counter.ok != 1 || counter.failed != 1 {
		t.Fatal("unexpected observer counters", counter.ok, counter.failed)
	}
}
