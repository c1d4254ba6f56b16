// Package auction implements the Order Distribution auctioneer: the single
// entry point per node that turns a raw (floor, button) press or a
// reinjected order into a bound assignment by fanning EvaluateCost out to
// every peer with a bounded deadline. Grounded on the bid fan-out and
// quorum-collection pattern in the reference Distributed-Auction-System
// node, adapted from its 2PC vote collection (timer + buffered channel,
// collect whatever arrives before the deadline, decide on what's in hand).
package auction

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/metrics"
)

var tracer = otel.Tracer("elevator-fleet/auction")

// roundsStarted is an OTel counter mirroring metrics.AuctionsRun through
// whatever MeterProvider the process is configured with; with none
// configured (this system ships no SDK/exporter) it is a safe no-op.
var roundsStarted, _ = otel.Meter("elevator-fleet/auction").Int64Counter(
	"auction.rounds_started",
	metric.WithDescription("auction rounds started, by button type"),
)

// Bidder is a peer's EvaluateCost endpoint, reached over the network for
// remote peers and in-process for self.
type Bidder interface {
	// Node returns the bidder's node identity, used for the lexicographic
	// tiebreak and to exclude the winner from watcher selection.
	Node() string
	EvaluateCost(ctx context.Context, order domain.Order) (cost int, completed bool, err error)
}

// OrderServer is the local Order Server's inbound assignment API.
type OrderServer interface {
	NewOrder(order domain.Order)
}

// Watchdog is the local Watchdog's inbound assignment API.
type Watchdog interface {
	NewOrder(order domain.Order)
}

// Assigner delivers NewOrder(order) to a peer's Order Server, and to a
// chosen watcher's Watchdog. Self delivery goes straight to the local
// components; remote delivery goes over rpc.
type Assigner interface {
	AssignOrder(ctx context.Context, peer string, order domain.Order)
	AssignWatchdog(ctx context.Context, peer string, order domain.Order)
}

// Auctioneer runs auctions for one node.
type Auctioneer struct {
	self     string
	bidders  func() []Bidder // live bidder set, including self; re-queried per auction
	assigner Assigner
	deadline time.Duration
	logger   *slog.Logger
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// New creates an Auctioneer for node self. bidders returns the current
// live participant set (self plus known peers) at auction time, since
// cluster membership changes between rounds.
func New(self string, bidders func() []Bidder, assigner Assigner, deadline time.Duration, logger *slog.Logger) *Auctioneer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auctioneer{
		self:     self,
		bidders:  bidders,
		assigner: assigner,
		deadline: deadline,
		logger:   logger.With(slog.String("component", constants.ComponentAuction)),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewButtonOrder synthesizes a fresh order for a raw (floor, button) press
// at this node and runs the auction for it.
func (a *Auctioneer) NewButtonOrder(ctx context.Context, floor domain.Floor, buttonType domain.ButtonType) {
	order := domain.NewHallOrder(domain.NewOrderID(a.self), floor, buttonType, a.self, time.Now())
	metrics.OrdersCreated.WithLabelValues(buttonType.String()).Inc()
	a.NewOrder(ctx, order)
}

// NewCabOrder synthesizes a cab order and runs its (single-bidder) auction.
func (a *Auctioneer) NewCabOrder(ctx context.Context, floor domain.Floor) {
	order := domain.NewCabOrder(domain.NewOrderID(a.self), floor, a.self, time.Now())
	metrics.OrdersCreated.WithLabelValues(domain.ButtonCab.String()).Inc()
	a.NewOrder(ctx, order)
}

// NewOrder runs the seven-step auction algorithm for order (spec §4.3).
func (a *Auctioneer) NewOrder(ctx context.Context, order domain.Order) {
	ctx, span := tracer.Start(ctx, "auction.NewOrder", trace.WithAttributes(
		attribute.String("order_id", string(order.ID)),
		attribute.String("button_type", order.ButtonType.String()),
		attribute.Int("floor", order.Floor.Value()),
	))
	defer span.End()

	roundsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("button_type", order.ButtonType.String())))

	var participants []Bidder
	if order.ButtonType == domain.ButtonCab {
		// Step 1: cab orders have exactly one legal bidder, their owning node.
		for _, b := range a.bidders() {
			if b.Node() == order.Node {
				participants = []Bidder{b}
				break
			}
		}
		if len(participants) == 0 {
			a.logger.Warn("cab order's owning node is not a known bidder", slog.String("node", order.Node))
			return
		}
	} else {
		participants = a.bidders()
	}

	bidCtx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	results := make(chan bid, len(participants))
	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(p Bidder) {
			defer wg.Done()
			cost, completed, err := p.EvaluateCost(bidCtx, order)
			if err != nil {
				return
			}
			select {
			case results <- bid{node: p.Node(), cost: cost, completed: completed}:
			case <-bidCtx.Done():
			}
		}(p)
	}

	// Collect whatever arrives before the deadline; late bidders are
	// silently dropped once the wait group or the deadline completes.
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-bidCtx.Done():
	}

	collected := a.drain(results)

	// Step 4: any (completed, 0) reply means the order is already served.
	for _, b := range collected {
		if b.completed {
			a.logger.Debug("auction aborted, order already complete", slog.String("order_id", string(order.ID)))
			metrics.AuctionsRun.WithLabelValues("aborted_completed").Inc()
			return
		}
	}

	// Step 5: pick minimum cost, lexicographic tiebreak; default to self if
	// nothing arrived in time.
	winner := a.self
	if len(collected) > 0 {
		sort.Slice(collected, func(i, j int) bool {
			if collected[i].cost != collected[j].cost {
				return collected[i].cost < collected[j].cost
			}
			return collected[i].node < collected[j].node
		})
		winner = collected[0].node
	}

	order.Node = winner
	span.SetAttributes(attribute.String("winner", winner))

	// Step 6: assign a watcher uniformly at random from peers excluding the
	// winner; the winner watches itself if no peer exists.
	watcher := a.pickWatcher(winner)
	order.WatchDog = watcher

	a.logger.Info("auction resolved",
		slog.String("order_id", string(order.ID)),
		slog.String("winner", winner),
		slog.String("watchdog", watcher))

	// Step 7: deliver the assignment to the winner's Order Server and spawn
	// the watcher's deadline. Other peers' Order Servers are not told.
	a.assigner.AssignOrder(ctx, winner, order)
	a.assigner.AssignWatchdog(ctx, watcher, order)

	if winner == a.self {
		metrics.AuctionsRun.WithLabelValues("won").Inc()
	} else {
		metrics.AuctionsRun.WithLabelValues("lost").Inc()
	}
}

type bid struct {
	node      string
	cost      int
	completed bool
}

// drain collects whatever replies are already buffered without closing the
// channel: a bidder goroutine may still be mid-flight past the deadline and
// would panic sending on a closed channel.
func (a *Auctioneer) drain(results chan bid) []bid {
	var out []bid
	for {
		select {
		case b := <-results:
			out = append(out, b)
		default:
			return out
		}
	}
}

func (a *Auctioneer) pickWatcher(winner string) string {
	var candidates []string
	for _, b := range a.bidders() {
		if b.Node() != winner {
			candidates = append(candidates, b.Node())
		}
	}
	if len(candidates) == 0 {
		return winner
	}
	a.rngMu.Lock()
	idx := a.rng.Intn(len(candidates))
	a.rngMu.Unlock()
	return candidates[idx]
}
