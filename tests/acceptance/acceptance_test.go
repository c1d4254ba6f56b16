// Package acceptance exercises the auction/order-server/lift/watchdog
// actors wired together the way internal/cluster.New wires one node, but
// over direct in-process calls instead of the RPC/UDP transport so the
// scenarios run deterministically without real sockets. Grounded on
// internal/cluster.go's own wiring shape (selfBidder, liftForward,
// reinjectForward) and on the fan-out/collect pattern the auction and
// watchdog packages are themselves tested with.
package acceptance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slavakukuyev/elevator-fleet/internal/auction"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/lift"
	"github.com/slavakukuyev/elevator-fleet/internal/orderserver"
	"github.com/slavakukuyev/elevator-fleet/internal/watchdog"
)

const (
	testDoorHold    = 20 * time.Millisecond
	testMotionStuck = 5 * time.Second
	testBidDeadline = 200 * time.Millisecond
)

// testNode is one in-process peer: the same four actors cluster.Node wires,
// minus discovery and rpc.
type testNode struct {
	name       string
	driver     *lift.SimDriver
	liftM      *lift.Lift
	orderSrv   *orderserver.Server
	auctioneer *auction.Auctioneer
	watchdog   *watchdog.Watchdog
}

// assignment is one recorded auction.Assigner call, for assertions that
// don't want to wait on the full actor pipeline to settle.
type assignment struct {
	kind string // "order" or "watchdog"
	peer string
	id   domain.OrderID
}

// harness wires N testNodes together with in-process Bidder/Assigner/
// Broadcaster/Reinjector adapters, standing in for cluster.Node's RPC-backed
// versions of the same interfaces.
type harness struct {
	mu    sync.Mutex
	nodes map[string]*testNode
	up    map[string]bool
	log   []assignment
}

func newHarness() *harness {
	return &harness{nodes: make(map[string]*testNode), up: make(map[string]bool)}
}

// liftShim and reinjectShim break the same construction cycles
// internal/cluster.go resolves with liftForward/reinjectForward.
type liftShim struct{ target *lift.Lift }

func (s *liftShim) NewOrder(order domain.Order) error { return s.target.NewOrder(order) }
func (s *liftShim) Status() domain.LiftStatus         { return s.target.Status() }

type reinjectShim struct{ target *auction.Auctioneer }

func (s *reinjectShim) NewOrder(ctx context.Context, order domain.Order) {
	s.target.NewOrder(ctx, order)
}

// addNode builds and registers a fully wired testNode at startFloor, marking
// it up. floorCount and the node's own name must match what IsLegalButton
// and the auction's distance math expect.
func (h *harness) addNode(t *testing.T, name string, startFloor, floorCount int) *testNode {
	t.Helper()

	driver := lift.NewSimDriver(domain.NewFloor(startFloor))
	lShim := &liftShim{}
	orderSrv := orderserver.New(name, floorCount, lShim, &harnessBroadcaster{name: name, h: h}, nil)
	liftM := lift.New(name, floorCount, driver, orderSrv, nil, testDoorHold, testMotionStuck, func() {})
	lShim.target = liftM

	rShim := &reinjectShim{}
	wd := watchdog.New(name, "", rShim, watchdog.RealClock, testBidDeadline, time.Minute, time.Minute, nil)

	auctioneer := auction.New(name, func() []auction.Bidder { return h.bidders() }, &harnessAssigner{h: h}, testBidDeadline, nil)
	rShim.target = auctioneer

	n := &testNode{name: name, driver: driver, liftM: liftM, orderSrv: orderSrv, auctioneer: auctioneer, watchdog: wd}

	h.mu.Lock()
	h.nodes[name] = n
	h.up[name] = true
	h.mu.Unlock()

	// Deliver the initial floor so the lift leaves LiftStateInit and the
	// order server becomes auction-eligible, mirroring the real boot
	// sequence's first AtFloor notification.
	liftM.AtFloor(domain.NewFloor(startFloor))
	return n
}

// bidders returns a Bidder per currently-up node, self included, the same
// membership internal/cluster.Node.bidders assembles from discovery.Peers.
func (h *harness) bidders() []auction.Bidder {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []auction.Bidder
	for name, up := range h.up {
		if up {
			out = append(out, nodeBidder{name: name, h: h})
		}
	}
	return out
}

func (h *harness) record(a assignment) {
	h.mu.Lock()
	h.log = append(h.log, a)
	h.mu.Unlock()
}

func (h *harness) assignments() []assignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]assignment, len(h.log))
	copy(out, h.log)
	return out
}

type nodeBidder struct {
	name string
	h    *harness
}

func (b nodeBidder) Node() string { return b.name }
func (b nodeBidder) EvaluateCost(ctx context.Context, order domain.Order) (int, bool, error) {
	cost, completed := b.h.nodes[b.name].orderSrv.EvaluateCost(order)
	return cost, completed, nil
}

type harnessAssigner struct{ h *harness }

func (a *harnessAssigner) AssignOrder(ctx context.Context, peer string, order domain.Order) {
	a.h.record(assignment{kind: "order", peer: peer, id: order.ID})
	a.h.nodes[peer].orderSrv.NewOrder(order)
}

func (a *harnessAssigner) AssignWatchdog(ctx context.Context, peer string, order domain.Order) {
	a.h.record(assignment{kind: "watchdog", peer: peer, id: order.ID})
	a.h.nodes[peer].watchdog.NewOrder(order)
}

// harnessBroadcaster fans a completion out to every other node, the way
// internal/cluster.Node.BroadcastCompletion does over rpc.
type harnessBroadcaster struct {
	name string
	h    *harness
}

func (b *harnessBroadcaster) BroadcastCompletion(order domain.Order) {
	b.h.mu.Lock()
	peers := make([]*testNode, 0, len(b.h.nodes))
	for name, n := range b.h.nodes {
		if name != b.name {
			peers = append(peers, n)
		}
	}
	b.h.mu.Unlock()

	b.h.nodes[b.name].watchdog.OrderComplete(order)
	for _, n := range peers {
		n.orderSrv.MarkRemoteComplete(order.ID)
		n.watchdog.OrderComplete(order)
	}
}

func (b *harnessBroadcaster) ExtinguishHallLamp(buttonType domain.ButtonType, floor domain.Floor) {}

func TestAuctionAssignsClosestNode(t *testing.T) {
	h := newHarness()
	a := h.addNode(t, "node-a", 0, 6)
	h.addNode(t, "node-b", 5, 6)

	ctx := context.Background()
	a.auctioneer.NewButtonOrder(ctx, domain.NewFloor(1), domain.ButtonHallUp)

	require.Eventually(t, func() bool {
		for _, asg := range h.assignments() {
			if asg.kind == "order" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assigns := h.assignments()
	require.Len(t, assigns, 2) // one order assignment, one watchdog assignment
	assert.Equal(t, "node-a", assigns[0].peer, "node-a (distance 1) must beat node-b (distance 4)")

	var watchdogAssign *assignment
	for i := range assigns {
		if assigns[i].kind == "watchdog" {
			watchdogAssign = &assigns[i]
		}
	}
	require.NotNil(t, watchdogAssign)
	assert.Equal(t, "node-b", watchdogAssign.peer, "the only non-winner peer must watch the order")
}

func TestAuctionLexicographicTiebreak(t *testing.T) {
	h := newHarness()
	a := h.addNode(t, "node-a", 2, 6)
	h.addNode(t, "node-b", 2, 6)

	ctx := context.Background()
	a.auctioneer.NewButtonOrder(ctx, domain.NewFloor(2), domain.ButtonHallUp)

	require.Eventually(t, func() bool { return len(h.assignments()) > 0 }, time.Second, 5*time.Millisecond)
	assigns := h.assignments()
	require.NotEmpty(t, assigns)
	assert.Equal(t, "node-a", assigns[0].peer, "equal-cost bids break ties by lexicographically smallest node id")
}

func TestCompletedSentinelAbortsAuction(t *testing.T) {
	h := newHarness()
	a := h.addNode(t, "node-a", 0, 6)
	b := h.addNode(t, "node-b", 5, 6)

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(1), domain.ButtonHallUp, "node-a", time.Now())
	b.orderSrv.MarkRemoteComplete(order.ID) // simulate: node-b already served this order

	a.auctioneer.NewOrder(context.Background(), order)

	// Give the fan-out time to run; no assignment should ever appear since
	// every bidder that matters replies (completed, 0) or loses to it.
	time.Sleep(testBidDeadline + 50*time.Millisecond)
	for _, asg := range h.assignments() {
		assert.NotEqual(t, order.ID, asg.id, "an order already marked complete by a bidder must never be (re)assigned")
	}
}

func TestCabOrderOnlyBidByOwningNode(t *testing.T) {
	h := newHarness()
	a := h.addNode(t, "node-a", 0, 6)
	h.addNode(t, "node-b", 0, 6)

	a.auctioneer.NewCabOrder(context.Background(), domain.NewFloor(4))

	require.Eventually(t, func() bool {
		for _, asg := range h.assignments() {
			if asg.kind == "order" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assigns := h.assignments()
	require.NotEmpty(t, assigns)
	assert.Equal(t, "node-a", assigns[0].peer, "a cab order's node never changes, so its creator always wins its own auction")
}

// TestCabOrderCrashStandbyReplay reproduces spec §8 scenario 3: a cab
// order's watcher sees its owning node go down (moving the order to
// standby, never reinjecting a cab order to a substitute) and, once that
// node rejoins, replays it straight back through the auction, which the
// cab constraint guarantees only the original node can win.
func TestCabOrderCrashStandbyReplay(t *testing.T) {
	h := newHarness()
	h.addNode(t, "node-a", 0, 6)
	b := h.addNode(t, "node-b", 5, 6)

	order := domain.NewCabOrder(domain.NewOrderID("node-a"), domain.NewFloor(2), "node-a", time.Now())
	b.watchdog.NewOrder(order) // node-b is watching node-a's cab order

	h.mu.Lock()
	h.up["node-a"] = false
	h.mu.Unlock()
	b.watchdog.PeerDown("node-a")

	require.Eventually(t, func() bool {
		for _, r := range b.watchdog.Snapshot().Records {
			if r.Order.ID == order.ID && r.Deadline < 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "a down node's cab order moves to standby, not reinjection")

	h.mu.Lock()
	h.up["node-a"] = true
	h.mu.Unlock()
	b.watchdog.PeerUp("node-a")

	require.Eventually(t, func() bool {
		for _, asg := range h.assignments() {
			if asg.kind == "order" && asg.id == order.ID {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "rejoin must replay the standby order through the auction")

	assigns := h.assignments()
	for _, asg := range assigns {
		if asg.kind == "order" && asg.id == order.ID {
			assert.Equal(t, "node-a", asg.peer, "a cab order's node never changes, even across a crash/rejoin")
		}
	}
}

func TestEndToEndHallCallDispatchesAndCompletes(t *testing.T) {
	h := newHarness()
	a := h.addNode(t, "node-a", 0, 4)
	h.addNode(t, "node-b", 3, 4)

	a.auctioneer.NewButtonOrder(context.Background(), domain.NewFloor(0), domain.ButtonHallUp)

	// node-a is already at floor 0: NewOrder opens the door immediately
	// without needing SimDriver.Advance, and the door timer completes the
	// order on its own.
	require.Eventually(t, func() bool {
		return a.orderSrv.QueueDepth() == 0
	}, time.Second, 5*time.Millisecond, "order must dispatch and complete without manual floor advances")

	require.Eventually(t, func() bool {
		snap := h.nodes["node-b"].watchdog.Snapshot()
		return len(snap.Records) == 0
	}, time.Second, 5*time.Millisecond, "the watcher's deadline must disarm once completion is broadcast")
}

func TestWatchdogReinjectsOnDeadline(t *testing.T) {
	reinjected := make(chan domain.Order, 1)
	spy := reinjectorFunc(func(ctx context.Context, order domain.Order) { reinjected <- order })

	w := watchdog.New("node-b", "", spy, watchdog.RealClock, 30*time.Millisecond, time.Minute, time.Minute, nil)
	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(2), domain.ButtonHallDown, "node-a", time.Now())
	w.NewOrder(order)

	select {
	case got := <-reinjected:
		assert.Equal(t, order.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected deadline reinjection within the deadline plus slack")
	}
}

func TestWatchdogPeerDownPartitionsHallAndCabOrders(t *testing.T) {
	reinjected := make(chan domain.Order, 4)
	spy := reinjectorFunc(func(ctx context.Context, order domain.Order) { reinjected <- order })

	w := watchdog.New("watcher", "", spy, watchdog.RealClock, time.Minute, time.Hour, time.Hour, nil)
	hallOrder := domain.NewHallOrder(domain.NewOrderID("node-b"), domain.NewFloor(1), domain.ButtonHallUp, "node-b", time.Now())
	cabOrder := domain.NewCabOrder(domain.NewOrderID("node-b"), domain.NewFloor(3), "node-b", time.Now())
	w.NewOrder(hallOrder)
	w.NewOrder(cabOrder)

	w.PeerDown("node-b")

	select {
	case got := <-reinjected:
		assert.Equal(t, hallOrder.ID, got.ID, "a hall order owned by a crashed node reinjects immediately")
	case <-time.After(time.Second):
		t.Fatal("expected immediate hall order reinjection on peer_down")
	}

	require.Eventually(t, func() bool {
		snap := w.Snapshot()
		for _, r := range snap.Records {
			if r.Order.ID == cabOrder.ID && r.Deadline < 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "a cab order owned by a crashed node moves to standby, not reinjection")

	select {
	case got := <-reinjected:
		t.Fatalf("cab order %s must not reinject on peer_down", got.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchdogPeerUpReplaysStandbyOrders(t *testing.T) {
	reinjected := make(chan domain.Order, 4)
	spy := reinjectorFunc(func(ctx context.Context, order domain.Order) { reinjected <- order })

	w := watchdog.New("watcher", "", spy, watchdog.RealClock, time.Minute, time.Hour, time.Hour, nil)
	cabOrder := domain.NewCabOrder(domain.NewOrderID("node-b"), domain.NewFloor(3), "node-b", time.Now())
	w.NewOrder(cabOrder)
	w.PeerDown("node-b") // moves the cab order to standby; no reinjection expected yet

	w.PeerUp("node-b")

	select {
	case got := <-reinjected:
		assert.Equal(t, cabOrder.ID, got.ID, "a standby order replays once its owning node rejoins")
	case <-time.After(time.Second):
		t.Fatal("expected standby order to replay on peer_up")
	}

	snap := w.Snapshot()
	assert.Empty(t, snap.Records, "a replayed order leaves standby")
}

type reinjectorFunc func(ctx context.Context, order domain.Order)

func (f reinjectorFunc) NewOrder(ctx context.Context, order domain.Order) { f(ctx, order) }
