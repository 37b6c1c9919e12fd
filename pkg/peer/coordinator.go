// Package peer implements the permission exchange workers run before
// touching the file lock. Each worker asks every peer for permission,
// enters only after all grants arrive, and answers incoming requests
// according to its own state: grant immediately when idle, defer while
// inside the critical section or while its own pending request has
// priority. Priority is the (lamport timestamp, node ID) order, so all
// peers agree on a total order of requests.
package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/clock"
	"github.com/mvcruz/lockstep/pkg/metrics"
	"github.com/mvcruz/lockstep/pkg/types"
)

// Coordinator manages permission state for one worker.
// critical :
// - every REQUEST must eventually be answered with a grant, otherwise
//   the requester deadlocks; deferred grants are flushed on release
// - peers must agree on request order, hence the lamport clock
type Coordinator struct {
	id      string
	lamport *clock.Lamport
	sender  *Sender
	log     hclog.Logger

	mu         sync.Mutex
	peers      map[string]string // peer ID -> address
	requesting bool
	requestTS  uint64
	inCritical bool
	granted    map[string]struct{}
	grantCh    chan struct{}
	deferred   []string // peer IDs owed a grant
}

func NewCoordinator(id string, lamport *clock.Lamport, sender *Sender, log hclog.Logger) *Coordinator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Coordinator{
		id:      id,
		lamport: lamport,
		sender:  sender,
		log:     log.Named("coordinator"),
		peers:   make(map[string]string),
	}
}

// AddPeer registers a peer before any request is made.
func (c *Coordinator) AddPeer(id, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[id] = addr
}

func (c *Coordinator) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

// RequestAccess asks every peer for permission and blocks until all
// grants arrive or ctx ends. With no peers configured permission is
// immediate and the file lock alone serializes access. On timeout the
// pending request is abandoned and no permission is held.
func (c *Coordinator) RequestAccess(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	if len(c.peers) == 0 {
		c.inCritical = true
		c.mu.Unlock()
		return nil
	}
	c.requesting = true
	c.requestTS = c.lamport.Tick()
	c.granted = make(map[string]struct{})
	c.grantCh = make(chan struct{})

	ts := c.requestTS
	grantCh := c.grantCh
	targets := c.peerSnapshot()
	c.mu.Unlock()

	c.log.Info("requesting access", "timestamp", ts, "peers", len(targets))

	msg := types.Message{Kind: types.KindRequest, SenderID: c.id, Timestamp: ts}
	for id, addr := range targets {
		go func(peerID, peerAddr string) {
			if err := c.sender.Send(ctx, peerAddr, msg); err != nil {
				c.log.Error("request not delivered", "peer", peerID, "error", err)
			}
		}(id, addr)
	}

	select {
	case <-grantCh:
		c.mu.Lock()
		c.requesting = false
		c.inCritical = true
		c.mu.Unlock()

		metrics.PermissionWaitDuration.Observe(time.Since(start).Seconds())
		c.log.Info("access granted by all peers", "waited", time.Since(start))
		return nil

	case <-ctx.Done():
		c.mu.Lock()
		c.requesting = false
		c.granted = nil
		c.mu.Unlock()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.ErrPermissionTimeout
		}
		return ctx.Err()
	}
}

// ReleaseAccess leaves the critical section and flushes every deferred
// grant so queued peers can proceed. Safe to call when no permission is
// held; a deferred call on the worker's exit path relies on that.
func (c *Coordinator) ReleaseAccess() {
	c.mu.Lock()
	c.inCritical = false
	owed := c.deferred
	c.deferred = nil
	targets := c.peerSnapshot()
	c.mu.Unlock()

	for _, peerID := range owed {
		addr, ok := targets[peerID]
		if !ok {
			c.log.Warn("deferred grant for unknown peer", "peer", peerID)
			continue
		}
		c.grant(addr, peerID)
	}
}

// HandleMessage dispatches one received coordination message.
func (c *Coordinator) HandleMessage(msg types.Message) {
	metrics.PeerMessagesTotal.WithLabelValues(string(msg.Kind), "received").Inc()

	switch msg.Kind {
	case types.KindRequest:
		c.handleRequest(msg.SenderID, msg.Timestamp)
	case types.KindGrant:
		c.handleGrant(msg.SenderID)
	default:
		c.log.Warn("dropping message of unknown kind", "kind", msg.Kind)
	}
}

func (c *Coordinator) handleRequest(senderID string, ts uint64) {
	c.lamport.Observe(ts)

	c.mu.Lock()
	var addr string
	switch {
	case c.inCritical:
		// using the resource : answer after release
		c.deferred = append(c.deferred, senderID)
		metrics.GrantsDeferredTotal.Inc()
		c.log.Debug("deferring grant, resource in use", "peer", senderID)

	case c.requesting && hasPriority(c.requestTS, c.id, ts, senderID):
		// we also want access and our request is older : answer after release
		c.deferred = append(c.deferred, senderID)
		metrics.GrantsDeferredTotal.Inc()
		c.log.Debug("deferring grant, own request has priority",
			"peer", senderID, "own_ts", c.requestTS, "peer_ts", ts)

	default:
		addr = c.peers[senderID]
		if addr == "" {
			c.log.Warn("request from unknown peer, cannot grant", "peer", senderID)
		}
	}
	c.mu.Unlock()

	if addr != "" {
		c.grant(addr, senderID)
	}
}

func (c *Coordinator) handleGrant(senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.requesting {
		// late grant from an abandoned request
		return
	}
	if _, seen := c.granted[senderID]; seen {
		return
	}
	c.granted[senderID] = struct{}{}
	c.log.Debug("received grant", "peer", senderID,
		"have", len(c.granted), "need", len(c.peers))

	if len(c.granted) == len(c.peers) {
		close(c.grantCh)
	}
}

// callers must hold c.mu
func (c *Coordinator) peerSnapshot() map[string]string {
	targets := make(map[string]string, len(c.peers))
	for id, addr := range c.peers {
		targets[id] = addr
	}
	return targets
}

func (c *Coordinator) grant(addr, peerID string) {
	msg := types.Message{Kind: types.KindGrant, SenderID: c.id}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.sender.Send(ctx, addr, msg); err != nil {
		c.log.Error("grant not delivered", "peer", peerID, "error", err)
	}
}

// request (ourTS, ourID) wins over (theirTS, theirID) when it is older,
// with node IDs breaking timestamp ties
func hasPriority(ourTS uint64, ourID string, theirTS uint64, theirID string) bool {
	if ourTS != theirTS {
		return ourTS < theirTS
	}
	return ourID < theirID
}
