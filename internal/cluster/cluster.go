// Package cluster wires the four core actors (Lift, Order Server,
// Auctioneer, Watchdog) plus discovery and the RPC transport into one
// running node. It is the service registry spec §9's design notes call
// for in place of the teacher's global package-level singletons.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/auction"
	"github.com/slavakukuyev/elevator-fleet/internal/backup"
	"github.com/slavakukuyev/elevator-fleet/internal/config"
	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/discovery"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/lift"
	"github.com/slavakukuyev/elevator-fleet/internal/orderserver"
	"github.com/slavakukuyev/elevator-fleet/internal/rpc"
	"github.com/slavakukuyev/elevator-fleet/internal/watchdog"
)

// Node is one fully wired peer.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	Lift       *lift.Lift
	OrderSrv   *orderserver.Server
	Auctioneer *auction.Auctioneer
	Watchdog   *watchdog.Watchdog
	Discovery  *discovery.Discovery
	RPCServer  *rpc.Server

	mu      sync.Mutex
	clients map[string]*rpc.Client // node -> rpc client

	stopSensors chan struct{}
}

// selfBidder lets the auctioneer call EvaluateCost on this node without a
// network round trip.
type selfBidder struct {
	node   string
	server *orderserver.Server
}

func (s selfBidder) Node() string { return s.node }
func (s selfBidder) EvaluateCost(ctx context.Context, order domain.Order) (int, bool, error) {
	cost, completed := s.server.EvaluateCost(order)
	return cost, completed, nil
}

// remoteBidder calls a peer over RPC.
type remoteBidder struct {
	node   string
	client *rpc.Client
}

func (r remoteBidder) Node() string { return r.node }
func (r remoteBidder) EvaluateCost(ctx context.Context, order domain.Order) (int, bool, error) {
	return r.client.EvaluateCost(ctx, order)
}

// New builds and starts a Node from cfg, driven by driver (the cab's
// hardware collaborator).
func New(cfg *config.Config, driver lift.Driver, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", constants.ComponentCluster))

	n := &Node{cfg: cfg, logger: logger, clients: make(map[string]*rpc.Client)}

	// Order Server is constructed before the Lift so the Lift's
	// OrderServer interface has a concrete receiver; the Lift reference it
	// needs is patched in via a forwarding shim since the two are mutually
	// dependent.
	liftShim := &liftForward{}
	n.OrderSrv = orderserver.New(cfg.NodeName, cfg.FloorCount, liftShim, n, logger)

	onJam := func() {
		logger.Error("cab declared jammed, exiting for supervisor restart")
		os.Exit(0)
	}
	n.Lift = lift.New(cfg.NodeName, cfg.FloorCount, driver, n.OrderSrv, logger, cfg.DoorHoldDuration, cfg.MotionStuckTimeout, onJam)
	liftShim.target = n.Lift

	reinjectShim := &reinjectForward{}
	n.Watchdog = watchdog.New(cfg.NodeName, cfg.BackupPath, reinjectShim, watchdog.RealClock, cfg.WatchdogOrderDeadline, cfg.ActiveBackupHorizon, cfg.StandbyBackupHorizon, logger)

	n.Auctioneer = auction.New(cfg.NodeName, n.bidders, n, cfg.AuctionBidDeadline, logger)
	reinjectShim.target = n.Auctioneer

	server, err := rpc.Serve(fmt.Sprintf(":%d", cfg.RPCPort), cfg.ClusterCookie, n, logger)
	if err != nil {
		return nil, fmt.Errorf("starting rpc server: %w", err)
	}
	n.RPCServer = server

	n.Discovery = discovery.New(cfg.NodeName, cfg.ClusterCookie, server.Addr(), cfg.DiscoveryPort, cfg.BeaconInterval, constants.PeerStaleAfter, n, logger)
	if err := n.Discovery.Start(); err != nil {
		return nil, fmt.Errorf("starting discovery: %w", err)
	}

	n.stopSensors = make(chan struct{})
	if sensor, ok := driver.(lift.FloorSensor); ok {
		go n.pumpFloorEvents(sensor)
	}
	if sensor, ok := driver.(lift.ButtonSensor); ok {
		go n.pumpButtonEvents(sensor)
	}

	return n, nil
}

// pumpFloorEvents forwards the hardware floor sensor's notifications to the
// Lift for as long as the node is alive.
func (n *Node) pumpFloorEvents(sensor lift.FloorSensor) {
	for {
		select {
		case <-n.stopSensors:
			return
		case f, ok := <-sensor.Events():
			if !ok {
				return
			}
			n.Lift.AtFloor(f)
		}
	}
}

// pumpButtonEvents turns hardware button_pressed(type, floor) notifications
// into auction rounds: illegal presses (hall_up at the top floor, etc.) are
// rejected at this boundary per spec §7 category 5, never entering the
// auction. Cab presses are always local to this node.
func (n *Node) pumpButtonEvents(sensor lift.ButtonSensor) {
	for {
		select {
		case <-n.stopSensors:
			return
		case press, ok := <-sensor.ButtonEvents():
			if !ok {
				return
			}
			if err := domain.IsLegalButton(press.ButtonType, press.Floor, n.cfg.FloorCount); err != nil {
				n.logger.Warn("rejected illegal button press",
					slog.String("button", press.ButtonType.String()),
					slog.Int("floor", press.Floor.Value()),
					slog.String("error", err.Error()))
				continue
			}
			if press.ButtonType == domain.ButtonCab {
				n.NewCabOrder(press.Floor)
			} else {
				n.NewButtonOrder(press.Floor, press.ButtonType)
			}
		}
	}
}

// liftForward defers to a *lift.Lift set after construction, breaking the
// Lift/OrderServer construction cycle without a global variable.
type liftForward struct {
	target *lift.Lift
}

func (f *liftForward) NewOrder(order domain.Order) error { return f.target.NewOrder(order) }
func (f *liftForward) Status() domain.LiftStatus         { return f.target.Status() }

// reinjectForward defers to the *auction.Auctioneer set after
// construction, breaking the Watchdog/Auctioneer construction cycle.
type reinjectForward struct {
	target *auction.Auctioneer
}

func (f *reinjectForward) NewOrder(ctx context.Context, order domain.Order) {
	f.target.NewOrder(ctx, order)
}

// bidders returns self plus every known peer as auction.Bidder values.
func (n *Node) bidders() []auction.Bidder {
	out := []auction.Bidder{selfBidder{node: n.cfg.NodeName, server: n.OrderSrv}}
	for node, addr := range n.Discovery.Peers() {
		out = append(out, remoteBidder{node: node, client: n.client(node, addr)})
	}
	return out
}

func (n *Node) client(node, addr string) *rpc.Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.clients[node]; ok {
		return c
	}
	c := rpc.NewClient(node, addr, n.cfg.ClusterCookie, n.cfg.RPCDeadline, n.logger)
	n.clients[node] = c
	return c
}

// --- auction.Assigner ---

func (n *Node) AssignOrder(ctx context.Context, peer string, order domain.Order) {
	if peer == n.cfg.NodeName {
		n.OrderSrv.NewOrder(order)
		return
	}
	addr, ok := n.Discovery.Peers()[peer]
	if !ok {
		n.logger.Warn("cannot assign order", slog.String("peer", peer), slog.String("error", domain.ErrUnknownPeer.Error()))
		return
	}
	if err := n.client(peer, addr).NewOrder(ctx, order); err != nil {
		n.logger.Warn("failed to assign order to peer", slog.String("peer", peer), slog.String("error", err.Error()))
	}
}

func (n *Node) AssignWatchdog(ctx context.Context, peer string, order domain.Order) {
	if peer == n.cfg.NodeName {
		n.Watchdog.NewOrder(order)
		return
	}
	addr, ok := n.Discovery.Peers()[peer]
	if !ok {
		n.logger.Warn("cannot assign watchdog", slog.String("peer", peer), slog.String("error", domain.ErrUnknownPeer.Error()))
		return
	}
	if err := n.client(peer, addr).WatchdogNewOrder(ctx, order); err != nil {
		n.logger.Warn("failed to assign watchdog to peer", slog.String("peer", peer), slog.String("error", err.Error()))
	}
}

// --- orderserver.Broadcaster ---

func (n *Node) BroadcastCompletion(order domain.Order) {
	n.Watchdog.OrderComplete(order)
	for node, addr := range n.Discovery.Peers() {
		client := n.client(node, addr)
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.RPCDeadline)
		if err := client.OrderComplete(ctx, order); err != nil {
			n.logger.Warn("failed to broadcast completion", slog.String("peer", node), slog.String("error", err.Error()))
		}
		if err := client.WatchdogComplete(ctx, order); err != nil {
			n.logger.Warn("failed to broadcast watchdog completion", slog.String("peer", node), slog.String("error", err.Error()))
		}
		cancel()
	}
}

func (n *Node) ExtinguishHallLamp(buttonType domain.ButtonType, floor domain.Floor) {
	n.logger.Debug("extinguishing hall lamp", slog.String("button", buttonType.String()), slog.Int("floor", floor.Value()))
}

// --- rpc.Handlers ---

func (n *Node) EvaluateCost(order domain.Order) (int, bool) { return n.OrderSrv.EvaluateCost(order) }
func (n *Node) NewOrder(order domain.Order)                 { n.OrderSrv.NewOrder(order) }
func (n *Node) WatchdogNewOrder(order domain.Order)          { n.Watchdog.NewOrder(order) }
func (n *Node) OrderCompleteNotice(order domain.Order) {
	n.OrderSrv.MarkRemoteComplete(order.ID)
}
func (n *Node) WatchdogComplete(order domain.Order) { n.Watchdog.OrderComplete(order) }

// --- discovery.Membership ---

func (n *Node) PeerUp(node string)   { n.Watchdog.PeerUp(node) }
func (n *Node) PeerDown(node string) { n.Watchdog.PeerDown(node) }

// NewButtonOrder is the entry point an external hall button poller calls.
func (n *Node) NewButtonOrder(floor domain.Floor, buttonType domain.ButtonType) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.AuctionBidDeadline+time.Second)
	defer cancel()
	n.Auctioneer.NewButtonOrder(ctx, floor, buttonType)
}

// NewCabOrder is the entry point an external cab button poller calls.
func (n *Node) NewCabOrder(floor domain.Floor) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.AuctionBidDeadline+time.Second)
	defer cancel()
	n.Auctioneer.NewCabOrder(ctx, floor)
}

// Backup exposes the on-disk watchdog state for dashboards.
func (n *Node) Backup() backup.Snapshot { return n.Watchdog.Snapshot() }

// Status returns the node's lift status, for dashboards and HTTP status.
func (n *Node) Status() domain.LiftStatus {
	s := n.Lift.Status()
	s.QueueDepth = n.OrderSrv.QueueDepth()
	return s
}

// QueueDepth returns the node's local order-server queue depth.
func (n *Node) QueueDepth() int { return n.OrderSrv.QueueDepth() }

// Peers returns the node's currently known peers (node -> rpc address).
func (n *Node) Peers() map[string]string { return n.Discovery.Peers() }

// Shutdown tears down every actor.
func (n *Node) Shutdown() {
	close(n.stopSensors)
	n.Discovery.Stop()
	n.RPCServer.Close()
	n.Watchdog.Stop()
	n.Lift.Stop()
	n.mu.Lock()
	for _, c := range n.clients {
		c.Close()
	}
	n.mu.Unlock()
}
