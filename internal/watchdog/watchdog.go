// Package watchdog implements the per-order deadline timer, peer-liveness
// reactor, and crash-safe backup described in spec §4.4. Grounded on the
// teacher's actor style (a serialized goroutine behind a command channel)
// and on the retrieved Distributed-Auction-System node's coordinator-only
// timer bookkeeping (node-queue.go's periodic snapshot/broadcast shape),
// reworked from a 2PC transaction table into the active/standby/timers
// triple spec §3 describes.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slavakukuyev/elevator-fleet/internal/backup"
	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/metrics"
)

var tracer = otel.Tracer("elevator-fleet/watchdog")

// Reinjector is the local Order Distribution's inbound entry point for a
// reinjected order.
type Reinjector interface {
	NewOrder(ctx context.Context, order domain.Order)
}

// Clock abstracts time.Now/time.AfterFunc so tests can control deadlines
// without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the minimal handle Clock.AfterFunc returns.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the production Clock.
var RealClock Clock = realClock{}

type entry struct {
	order    domain.Order
	deadline time.Time
	timer    Timer
}

type cmdKind int

const (
	cmdNewOrder cmdKind = iota
	cmdOrderComplete
	cmdTimerFired
	cmdPeerDown
	cmdPeerUp
	cmdSnapshot
)

type cmd struct {
	kind   cmdKind
	order  domain.Order
	id     domain.OrderID
	peer   string
	replyS chan backup.Snapshot
}

// Watchdog is the actor for one node.
type Watchdog struct {
	self       string
	reinjector Reinjector
	backupPath string
	clock      Clock
	logger     *slog.Logger

	orderDeadline  time.Duration
	activeHorizon  time.Duration
	standbyHorizon time.Duration

	cmds   chan cmd
	ctx    context.Context
	cancel context.CancelFunc

	active  map[domain.OrderID]*entry
	standby map[domain.OrderID]*entry
}

// New creates a Watchdog for node self and immediately attempts to restore
// its backup file (spec §4.4 Boot).
func New(self, backupPath string, reinjector Reinjector, clock Clock, orderDeadline, activeHorizon, standbyHorizon time.Duration, logger *slog.Logger) *Watchdog {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchdog{
		self:           self,
		reinjector:     reinjector,
		backupPath:     backupPath,
		clock:          clock,
		logger:         logger.With(slog.String("component", constants.ComponentWatchdog)),
		orderDeadline:  orderDeadline,
		activeHorizon:  activeHorizon,
		standbyHorizon: standbyHorizon,
		cmds:           make(chan cmd),
		active:         make(map[domain.OrderID]*entry),
		standby:        make(map[domain.OrderID]*entry),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.boot()
	go w.run()
	return w
}

// Stop tears the actor down without persisting (the last mutation already
// wrote a consistent snapshot).
func (w *Watchdog) Stop() { w.cancel() }

// NewOrder arms a deadline for order, per the remote call from the
// auctioneer that chose this node as watcher.
func (w *Watchdog) NewOrder(order domain.Order) {
	select {
	case w.cmds <- cmd{kind: cmdNewOrder, order: order}:
	case <-w.ctx.Done():
	}
}

// OrderComplete disarms order's deadline, on the broadcast from the
// completing node's Order Server.
func (w *Watchdog) OrderComplete(order domain.Order) {
	select {
	case w.cmds <- cmd{kind: cmdOrderComplete, order: order}:
	case <-w.ctx.Done():
	}
}

// PeerDown reacts to a cluster node_down notification.
func (w *Watchdog) PeerDown(peer string) {
	select {
	case w.cmds <- cmd{kind: cmdPeerDown, peer: peer}:
	case <-w.ctx.Done():
	}
}

// PeerUp reacts to a cluster node_up notification.
func (w *Watchdog) PeerUp(peer string) {
	select {
	case w.cmds <- cmd{kind: cmdPeerUp, peer: peer}:
	case <-w.ctx.Done():
	}
}

// Snapshot returns the current persisted view, used by dashboards.
func (w *Watchdog) Snapshot() backup.Snapshot {
	reply := make(chan backup.Snapshot, 1)
	select {
	case w.cmds <- cmd{kind: cmdSnapshot, replyS: reply}:
	case <-w.ctx.Done():
		return backup.Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-w.ctx.Done():
		return backup.Snapshot{}
	}
}

func (w *Watchdog) run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case c := <-w.cmds:
			switch c.kind {
			case cmdNewOrder:
				w.handleNewOrder(c.order)
			case cmdOrderComplete:
				w.handleComplete(c.order)
			case cmdTimerFired:
				w.handleTimerFired(c.id)
			case cmdPeerDown:
				w.handlePeerDown(c.peer)
			case cmdPeerUp:
				w.handlePeerUp(c.peer)
			case cmdSnapshot:
				c.replyS <- w.snapshotLocked()
			}
		}
	}
}

func (w *Watchdog) handleNewOrder(order domain.Order) {
	if old, ok := w.active[order.ID]; ok {
		old.timer.Stop()
	}
	deadline := w.clock.Now().Add(w.orderDeadline)
	e := &entry{order: order, deadline: deadline}
	e.timer = w.clock.AfterFunc(w.orderDeadline, func() { w.fireTimer(order.ID) })
	w.active[order.ID] = e
	delete(w.standby, order.ID)
	w.persist()
	w.logger.Debug("order armed", slog.String("order_id", string(order.ID)))
}

func (w *Watchdog) fireTimer(id domain.OrderID) {
	select {
	case w.cmds <- cmd{kind: cmdTimerFired, id: id}:
	case <-w.ctx.Done():
	}
}

func (w *Watchdog) handleTimerFired(id domain.OrderID) {
	e, ok := w.active[id]
	if !ok {
		return
	}
	delete(w.active, id)
	w.persist()
	w.logger.Warn("order deadline elapsed, reinjecting", slog.String("order_id", string(id)))
	metrics.WatchdogReinjections.WithLabelValues("deadline").Inc()

	ctx, span := tracer.Start(w.ctx, "watchdog.reinject", trace.WithAttributes(
		attribute.String("order_id", string(id)),
		attribute.String("cause", "deadline"),
	))
	w.reinjector.NewOrder(ctx, e.order)
	span.End()
}

func (w *Watchdog) handleComplete(order domain.Order) {
	if e, ok := w.active[order.ID]; ok {
		e.timer.Stop()
		delete(w.active, order.ID)
		w.persist()
	}
}

// handlePeerDown partitions peer's active orders: hall orders reinject
// immediately, cab orders move to standby (spec §4.4).
func (w *Watchdog) handlePeerDown(peer string) {
	changed := false
	for id, e := range w.active {
		if e.order.Node != peer {
			continue
		}
		e.timer.Stop()
		delete(w.active, id)
		changed = true
		if e.order.ButtonType == domain.ButtonCab {
			w.standby[id] = e
		} else {
			w.logger.Info("peer down, reinjecting hall order", slog.String("peer", peer), slog.String("order_id", string(id)))
			metrics.WatchdogReinjections.WithLabelValues("peer_down").Inc()
			w.reinjector.NewOrder(w.ctx, e.order)
		}
	}
	if changed {
		w.persist()
	}
}

// handlePeerUp replays every standby order owned by peer (spec §4.4).
func (w *Watchdog) handlePeerUp(peer string) {
	changed := false
	for id, e := range w.standby {
		if e.order.Node != peer {
			continue
		}
		delete(w.standby, id)
		changed = true
		w.logger.Info("peer up, replaying standby order", slog.String("peer", peer), slog.String("order_id", string(id)))
		metrics.WatchdogReinjections.WithLabelValues("peer_up").Inc()
		w.reinjector.NewOrder(w.ctx, e.order)
	}
	if changed {
		w.persist()
	}
}

func (w *Watchdog) snapshotLocked() backup.Snapshot {
	var s backup.Snapshot
	for _, e := range w.active {
		s.Records = append(s.Records, backup.Record{Order: e.order, Deadline: e.deadline.UnixNano()})
	}
	for _, e := range w.standby {
		s.Records = append(s.Records, backup.Record{Order: e.order, Deadline: -1})
	}
	return s
}

func (w *Watchdog) persist() {
	metrics.WatchdogActiveOrders.Set(float64(len(w.active)))
	metrics.WatchdogStandbyOrders.Set(float64(len(w.standby)))
	if w.backupPath == "" {
		return
	}
	if err := backup.Write(w.backupPath, w.snapshotLocked()); err != nil {
		w.logger.Error("failed to persist watchdog backup", slog.String("error", err.Error()))
	}
}

// boot reads the backup file and filters entries by age, per spec §4.4:
// active younger than activeHorizon, standby younger than standbyHorizon.
// Stale entries are discarded. Deadlines already past are armed with zero
// delay so they reinject at the next opportunity.
func (w *Watchdog) boot() {
	if w.backupPath == "" {
		return
	}
	snapshot, err := backup.Read(w.backupPath)
	if err != nil {
		w.logger.Warn("discarding unreadable watchdog backup", slog.String("error", err.Error()))
		return
	}
	now := w.clock.Now()
	for _, r := range snapshot.Records {
		age := now.Sub(r.Order.Time)
		if r.Deadline < 0 {
			if age > w.standbyHorizon {
				continue
			}
			e := &entry{order: r.Order}
			w.standby[r.Order.ID] = e
			continue
		}
		if age > w.activeHorizon {
			continue
		}
		delay := time.Unix(0, r.Deadline).Sub(now)
		if delay < 0 {
			delay = 0
		}
		id := r.Order.ID
		e := &entry{order: r.Order, deadline: now.Add(delay)}
		e.timer = w.clock.AfterFunc(delay, func() { w.fireTimer(id) })
		w.active[id] = e
	}
	w.logger.Info("watchdog booted from backup",
		slog.Int("active", len(w.active)),
		slog.Int("standby", len(w.standby)))
}
