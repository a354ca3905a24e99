package tsproxy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/netshape/tsproxy/internal/shaping"
)

func TestRegistryAllocatesIncreasingIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[int64]bool)
	var last int64
	for i := 0; i < 100; i++ {
		conn := r.Add()
		if conn.ID <= last || seen[conn.ID] {
			t.Fatal("ID reused or not increasing", conn.ID)
		}
		seen[conn.ID] = true
		last = conn.ID

		// removing the connection must not make its ID available again
		if r.Detach(conn.ID, shaping.SideClient) {
			t.Fatal("expected the connection to be removed")
		}
	}
	if r.Len() != 0 {
		t.Fatal("expected an empty registry")
	}
}

func TestRegistryDetach(t *testing.T) {
	r := NewRegistry()
	conn := r.Add()
	conn.Client = &clientHandler{}
	conn.Destination = &destinationHandler{}

	if !r.Detach(conn.ID, shaping.SideDestination) {
		t.Fatal("the client is still attached")
	}
	if r.Get(conn.ID) == nil || conn.Destination != nil {
		t.Fatal("expected only the destination to be detached")
	}
	if r.Detach(conn.ID, shaping.SideClient) {
		t.Fatal("nothing is attached anymore")
	}
	if r.Get(conn.ID) != nil {
		t.Fatal("expected the connection to be removed")
	}

	// detaching from a removed connection is harmless
	if r.Detach(conn.ID, shaping.SideClient) {
		t.Fatal("expected false for a missing connection")
	}
}

func TestRegistryIDs(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Add()
	}
	r.Detach(3, shaping.SideClient)
	if diff := cmp.Diff([]int64{1, 2, 4, 5}, r.IDs()); diff != "" {
		t.Fatal(diff)
	}
}
