// Package orderserver implements the per-node Order Server: the actor
// holding the local queue, computing bids for the auctioneer, dispatching
// work to the local Lift, and broadcasting completions. Adapted from the
// teacher's internal/manager actor style (a single serialized goroutine
// behind a channel, slog component logging) applied to the queue model in
// directions.Manager reworked into a floor×button_type×node keyspace.
package orderserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/metrics"
)

// Lift is the subset of the local Lift State Machine the Order Server
// drives.
type Lift interface {
	NewOrder(order domain.Order) error
	Status() domain.LiftStatus
}

// Broadcaster fans a completion out to every peer's Order Server and the
// watcher's Watchdog (spec §4.2). Implemented by the rpc/cluster layer.
type Broadcaster interface {
	BroadcastCompletion(order domain.Order)
	ExtinguishHallLamp(buttonType domain.ButtonType, floor domain.Floor)
}

const recentHistoryTTL = 2 * time.Minute

// Server is the Order Server actor for one node.
type Server struct {
	node       string
	floorCount int
	lift       Lift
	broadcast  Broadcaster
	logger     *slog.Logger

	mu      sync.Mutex
	queue   map[domain.QueueKey]domain.Order
	done    map[domain.OrderID]time.Time // recently completed, for EvaluateCost dedup
	ready   bool
	liftPos domain.Floor
	liftDir domain.Direction
}

// New creates an Order Server for node, driving lift and broadcasting
// completions via broadcast.
func New(node string, floorCount int, lift Lift, broadcast Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:       node,
		floorCount: floorCount,
		lift:       lift,
		broadcast:  broadcast,
		logger:     logger.With(slog.String("component", constants.ComponentOrderServer)),
		queue:      make(map[domain.QueueKey]domain.Order),
		done:       make(map[domain.OrderID]time.Time),
	}
}

// EvaluateCost is called by any peer's auctioneer. It returns (0, true) if
// the order is already known-complete locally (the `(completed, 0)`
// sentinel from spec §4.2), otherwise a non-negative bid.
func (s *Server) EvaluateCost(order domain.Order) (cost int, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneHistoryLocked()
	if _, ok := s.done[order.ID]; ok {
		return 0, true
	}
	if !s.ready {
		// Not yet auction-eligible; bid maximally high so any ready peer wins.
		return int(^uint(0) >> 1), false
	}

	dist := s.liftPos.Distance(order.Floor)
	penalty := s.directionPenalty(order)
	cost = dist + penalty + constants.CostPerPendingOrder*len(s.queue)
	return cost, false
}

// directionPenalty scores how well order aligns with the lift's current
// direction: 0 if it lies on the current travel direction, a small idle
// penalty, and a larger reversal penalty otherwise (spec §4.2).
func (s *Server) directionPenalty(order domain.Order) int {
	if s.liftDir == domain.DirectionIdle {
		return constants.DirectionPenaltyIdle
	}
	towardOrder := domain.DirectionUp
	if order.Floor.Value() < s.liftPos.Value() {
		towardOrder = domain.DirectionDown
	}
	if towardOrder == s.liftDir.Opposite() {
		return constants.DirectionPenaltyOpp
	}
	return constants.DirectionPenaltySame
}

// NewOrder inserts order into the queue once this node has won the
// auction, dispatching it immediately if the lift is idle.
func (s *Server) NewOrder(order domain.Order) {
	s.mu.Lock()
	key := domain.KeyFor(order)
	if _, exists := s.done[order.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.queue[key] = order
	status := s.lift.Status()
	depth := len(s.queue)
	s.mu.Unlock()

	metrics.LiftQueueDepth.Set(float64(depth))
	s.logger.Info("order accepted", slog.String("order_id", string(order.ID)), slog.Int("floor", order.Floor.Value()))

	if status.IsIdle() {
		s.dispatchMostUrgent()
	}
}

// dispatchMostUrgent hands the closest queued order to an idle lift. Ties
// are broken by queue iteration order, which is acceptable since any
// pending order is equally due for service once the lift is free.
func (s *Server) dispatchMostUrgent() {
	s.mu.Lock()
	var best *domain.Order
	bestDist := -1
	for _, o := range s.queue {
		d := s.liftPos.Distance(o.Floor)
		if best == nil || d < bestDist {
			ov := o
			best = &ov
			bestDist = d
		}
	}
	s.mu.Unlock()

	if best == nil {
		return
	}
	if err := s.lift.NewOrder(*best); err != nil {
		s.logger.Warn("failed to dispatch order to lift", slog.String("error", err.Error()))
	}
}

// OrderComplete is called by the local Lift on door close. It removes the
// order from the queue, broadcasts completion so every peer's watchdog
// disarms, and extinguishes the hall lamp fleet-wide.
func (s *Server) OrderComplete(order domain.Order) {
	s.mu.Lock()
	delete(s.queue, domain.KeyFor(order))
	s.done[order.ID] = time.Now()
	depth := len(s.queue)
	s.mu.Unlock()

	metrics.LiftQueueDepth.Set(float64(depth))
	metrics.OrdersCompleted.WithLabelValues(order.ButtonType.String()).Inc()
	s.logger.Info("order complete", slog.String("order_id", string(order.ID)))
	s.broadcast.BroadcastCompletion(order)
	if order.ButtonType.IsHall() {
		s.broadcast.ExtinguishHallLamp(order.ButtonType, order.Floor)
	}

	// The Lift calls OrderComplete from its own actor goroutine, which must
	// return before it can accept the next order.
	go s.dispatchMostUrgent()
}

// UpdateLiftPosition caches the lift's position for bidding.
func (s *Server) UpdateLiftPosition(floor domain.Floor, dir domain.Direction) {
	s.mu.Lock()
	s.liftPos = floor
	s.liftDir = dir
	s.mu.Unlock()
}

// LiftReady marks the node as a valid auction participant.
func (s *Server) LiftReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.logger.Info("order server ready")
}

// MarkRemoteComplete records a completion broadcast from a peer so a later
// local EvaluateCost dedups against it (a hall order may be served by
// another node; this node still needs to answer (completed, 0) if re-bid).
func (s *Server) MarkRemoteComplete(id domain.OrderID) {
	s.mu.Lock()
	s.done[id] = time.Now()
	s.mu.Unlock()
}

func (s *Server) pruneHistoryLocked() {
	cutoff := time.Now().Add(-recentHistoryTTL)
	for id, at := range s.done {
		if at.Before(cutoff) {
			delete(s.done, id)
		}
	}
}

// QueueDepth reports the number of pending orders, used by dashboards.
func (s *Server) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
