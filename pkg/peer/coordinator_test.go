package peer

import (
	"context"
	"testing"
	"time"

	"github.com/mvcruz/lockstep/pkg/clock"
	"github.com/mvcruz/lockstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newNode wires a coordinator to a live server on a loopback port
func newNode(t *testing.T, id string) (*Coordinator, *Server) {
	t.Helper()

	coord := NewCoordinator(id, clock.NewLamport(), NewSender(nil), nil)
	srv := NewServer("127.0.0.1:0", coord, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return coord, srv
}

// TestHasPriority tests the (timestamp, ID) request ordering
func TestHasPriority(t *testing.T) {
	// older timestamp wins
	assert.True(t, hasPriority(1, "b", 2, "a"))
	assert.False(t, hasPriority(3, "a", 2, "b"))

	// equal timestamps : lower ID wins
	assert.True(t, hasPriority(2, "a", 2, "b"))
	assert.False(t, hasPriority(2, "b", 2, "a"))
}

// TestSoloAccess tests that a coordinator with no peers grants itself
// access immediately
func TestSoloAccess(t *testing.T) {
	coord := NewCoordinator("solo", clock.NewLamport(), NewSender(nil), nil)

	require.NoError(t, coord.RequestAccess(context.Background()))
	coord.ReleaseAccess()

	// and again
	require.NoError(t, coord.RequestAccess(context.Background()))
	coord.ReleaseAccess()
}

// TestPairGrant tests that an idle peer grants access right away
func TestPairGrant(t *testing.T) {
	coordA, srvA := newNode(t, "node-a")
	coordB, srvB := newNode(t, "node-b")

	coordA.AddPeer("node-b", srvB.Addr())
	coordB.AddPeer("node-a", srvA.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, coordA.RequestAccess(ctx))
	coordA.ReleaseAccess()
}

// TestDeferredGrant tests that a request arriving while the peer is in
// its critical section is granted only after release
func TestDeferredGrant(t *testing.T) {
	coordA, srvA := newNode(t, "node-a")
	coordB, srvB := newNode(t, "node-b")

	coordA.AddPeer("node-b", srvB.Addr())
	coordB.AddPeer("node-a", srvA.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a enters the critical section
	require.NoError(t, coordA.RequestAccess(ctx))

	// b asks while a is inside : must block
	bDone := make(chan error, 1)
	go func() {
		bDone <- coordB.RequestAccess(ctx)
	}()

	select {
	case err := <-bDone:
		t.Fatalf("b entered while a held access: %v", err)
	case <-time.After(400 * time.Millisecond):
		// still waiting, as it should be
	}

	// a leaves : the deferred grant unblocks b
	coordA.ReleaseAccess()

	select {
	case err := <-bDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("b never received the deferred grant")
	}
	coordB.ReleaseAccess()
}

// TestPermissionTimeout tests that a blocked requester gives up cleanly
func TestPermissionTimeout(t *testing.T) {
	coordA, srvA := newNode(t, "node-a")
	coordB, srvB := newNode(t, "node-b")

	coordA.AddPeer("node-b", srvB.Addr())
	coordB.AddPeer("node-a", srvA.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, coordA.RequestAccess(ctx))
	defer coordA.ReleaseAccess()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer shortCancel()

	err := coordB.RequestAccess(shortCtx)
	assert.ErrorIs(t, err, types.ErrPermissionTimeout)
	assert.True(t, types.IsTimeout(err))
}

// TestGrantAfterAbandonedRequest tests that a late grant for a timed-out
// request does not poison the next one
func TestGrantAfterAbandonedRequest(t *testing.T) {
	coordA, srvA := newNode(t, "node-a")
	coordB, srvB := newNode(t, "node-b")

	coordA.AddPeer("node-b", srvB.Addr())
	coordB.AddPeer("node-a", srvA.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a holds access, b times out waiting
	require.NoError(t, coordA.RequestAccess(ctx))

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	err := coordB.RequestAccess(shortCtx)
	shortCancel()
	require.ErrorIs(t, err, types.ErrPermissionTimeout)

	// a releases, firing the now-stale deferred grant at b
	coordA.ReleaseAccess()
	time.Sleep(200 * time.Millisecond)

	// a fresh request from b must still work end to end
	require.NoError(t, coordB.RequestAccess(ctx))
	coordB.ReleaseAccess()
}

// TestContendedRequests tests two simultaneous requesters : the older
// (or lower-ID) request goes first and both eventually proceed
func TestContendedRequests(t *testing.T) {
	coordA, srvA := newNode(t, "node-a")
	coordB, srvB := newNode(t, "node-b")

	coordA.AddPeer("node-b", srvB.Addr())
	coordB.AddPeer("node-a", srvA.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aDone := make(chan error, 1)
	bDone := make(chan error, 1)
	go func() {
		err := coordA.RequestAccess(ctx)
		if err == nil {
			time.Sleep(100 * time.Millisecond)
			coordA.ReleaseAccess()
		}
		aDone <- err
	}()
	go func() {
		err := coordB.RequestAccess(ctx)
		if err == nil {
			time.Sleep(100 * time.Millisecond)
			coordB.ReleaseAccess()
		}
		bDone <- err
	}()

	require.NoError(t, <-aDone)
	require.NoError(t, <-bDone)
}
