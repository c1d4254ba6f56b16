// Package lift implements the Lift State Machine: the per-node actor that
// owns one physical cab's floor and direction and serves one active order
// at a time. Adapted from the teacher's internal/elevator actor (context
// cancellation, a serialized command channel, slog component logging) but
// with the SCAN/LOOK multi-request queue replaced by the single-order state
// machine this system's Order Server already queues ahead of the lift.
package lift

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
)

// OrderServer is the subset of the Order Server's API the Lift calls into.
// Defined here, implemented there, to keep the dependency one-directional.
type OrderServer interface {
	OrderComplete(order domain.Order)
	UpdateLiftPosition(floor domain.Floor, dir domain.Direction)
	LiftReady()
}

// OnJam is invoked when the motion-stuck timer fires and the cab is
// declared jammed. The default exits the process so a supervisor restarts
// it with a clean queue (spec §4.1); tests substitute a no-op.
type OnJam func()

type commandKind int

const (
	cmdAtFloor commandKind = iota
	cmdNewOrder
	cmdGetPosition
	cmdStatus
)

type command struct {
	kind        commandKind
	floor       domain.Floor
	order       domain.Order
	replyOK     chan error
	replyPos    chan positionReply
	replyStatus chan domain.LiftStatus
}

type positionReply struct {
	floor domain.Floor
	dir   domain.Direction
	err   error
}

// Lift is the actor driving one cab.
type Lift struct {
	node   string
	driver Driver
	orders OrderServer
	logger *slog.Logger
	onJam  OnJam

	doorHold     time.Duration
	motionStuck  time.Duration

	cmds   chan command
	ctx    context.Context
	cancel context.CancelFunc

	state      domain.LiftMachineState
	floor      domain.Floor
	dir        domain.Direction
	order      *domain.Order
	floorCount int
}

// New creates a Lift in the init state; it does not know its floor until
// the first AtFloor notification arrives.
func New(node string, floorCount int, driver Driver, orders OrderServer, logger *slog.Logger, doorHold, motionStuck time.Duration, onJam OnJam) *Lift {
	ctx, cancel := context.WithCancel(context.Background())
	if onJam == nil {
		onJam = func() { os.Exit(0) }
	}
	l := &Lift{
		node:        node,
		driver:      driver,
		orders:      orders,
		logger:      componentLogger(logger),
		onJam:       onJam,
		doorHold:    doorHold,
		motionStuck: motionStuck,
		cmds:        make(chan command),
		ctx:         ctx,
		cancel:      cancel,
		state:       domain.LiftStateInit,
		floorCount:  floorCount,
	}
	go l.run()
	return l
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", constants.ComponentLift))
}

// Stop tears the actor down; used on process shutdown.
func (l *Lift) Stop() { l.cancel() }

// AtFloor delivers a floor-sensor notification.
func (l *Lift) AtFloor(f domain.Floor) {
	select {
	case l.cmds <- command{kind: cmdAtFloor, floor: f}:
	case <-l.ctx.Done():
	}
}

// NewOrder hands the lift a new active order. Rejected with domain.ErrNotReady
// while the lift hasn't reported its floor yet.
func (l *Lift) NewOrder(order domain.Order) error {
	reply := make(chan error, 1)
	select {
	case l.cmds <- command{kind: cmdNewOrder, order: order, replyOK: reply}:
	case <-l.ctx.Done():
		return l.ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-l.ctx.Done():
		return l.ctx.Err()
	}
}

// GetPosition reports (floor, direction), or domain.ErrNotReady in init.
func (l *Lift) GetPosition() (domain.Floor, domain.Direction, error) {
	reply := make(chan positionReply, 1)
	select {
	case l.cmds <- command{kind: cmdGetPosition, replyPos: reply}:
	case <-l.ctx.Done():
		return domain.Floor(0), domain.DirectionIdle, l.ctx.Err()
	}
	select {
	case r := <-reply:
		return r.floor, r.dir, r.err
	case <-l.ctx.Done():
		return domain.Floor(0), domain.DirectionIdle, l.ctx.Err()
	}
}

// run is the actor's single goroutine: every field above is touched only
// from here, so no locking is needed for the lift's own invariants.
func (l *Lift) run() {
	var motionTimer *time.Timer
	var doorTimer *time.Timer
	stopMotion := func() {
		if motionTimer != nil {
			motionTimer.Stop()
			motionTimer = nil
		}
	}
	stopDoor := func() {
		if doorTimer != nil {
			doorTimer.Stop()
			doorTimer = nil
		}
	}
	armMotion := func() {
		stopMotion()
		motionTimer = time.NewTimer(l.motionStuck)
	}
	armDoor := func() {
		stopDoor()
		doorTimer = time.NewTimer(l.doorHold)
	}

	motionC := func() <-chan time.Time {
		if motionTimer == nil {
			return nil
		}
		return motionTimer.C
	}
	doorC := func() <-chan time.Time {
		if doorTimer == nil {
			return nil
		}
		return doorTimer.C
	}

	for {
		select {
		case <-l.ctx.Done():
			stopMotion()
			stopDoor()
			return

		case <-motionC():
			motionTimer = nil
			l.logger.Warn("motion-stuck timer elapsed, cab assumed jammed", slog.String("dir", l.dir.String()))
			l.driver.SetMotorDirection(l.dir)
			armMotion()
			l.onJam()

		case <-doorC():
			doorTimer = nil
			if l.order != nil {
				completed := *l.order
				l.order = nil
				l.state = domain.LiftStateIdle
				l.orders.OrderComplete(completed)
				l.logger.Info("order complete, door closed", slog.String("order_id", string(completed.ID)))
			}

		case cmd := <-l.cmds:
			switch cmd.kind {
			case cmdAtFloor:
				l.handleAtFloor(cmd.floor, stopMotion, armMotion, armDoor)
			case cmdNewOrder:
				cmd.replyOK <- l.handleNewOrder(cmd.order, armDoor, armMotion)
			case cmdGetPosition:
				if l.state == domain.LiftStateInit {
					cmd.replyPos <- positionReply{err: domain.ErrNotReady}
				} else {
					cmd.replyPos <- positionReply{floor: l.floor, dir: l.dir}
				}
			case cmdStatus:
				cmd.replyStatus <- domain.LiftStatus{
					Node:         l.node,
					State:        l.state,
					CurrentFloor: l.floor,
					Direction:    l.dir,
					HasOrder:     l.order != nil,
					FloorCount:   l.floorCount,
				}
			}
		}
	}
}

func (l *Lift) handleAtFloor(f domain.Floor, stopMotion func(), armMotion func(), armDoor func()) {
	if l.state == domain.LiftStateInit {
		l.driver.SetMotorDirection(domain.DirectionIdle)
		l.floor = f
		l.dir = domain.DirectionIdle
		l.state = domain.LiftStateIdle
		l.orders.UpdateLiftPosition(l.floor, l.dir)
		l.orders.LiftReady()
		l.logger.Info("lift ready", slog.Int("floor", f.Value()))
		return
	}

	stopMotion()
	l.floor = f
	if l.order != nil && l.order.Floor.Value() == f.Value() {
		l.driver.SetMotorDirection(domain.DirectionIdle)
		l.driver.SetDoorLight(true)
		l.state = domain.LiftStateDoorOpen
		armDoor()
		return
	}

	l.driver.SetMotorDirection(l.dir)
	l.orders.UpdateLiftPosition(l.floor, l.dir)
	armMotion()
}

func (l *Lift) handleNewOrder(order domain.Order, armDoor func(), armMotion func()) error {
	if l.state == domain.LiftStateInit {
		return domain.ErrNotReady
	}

	o := order
	l.order = &o

	if order.Floor.Value() == l.floor.Value() {
		l.driver.SetMotorDirection(domain.DirectionIdle)
		l.driver.SetDoorLight(true)
		l.state = domain.LiftStateDoorOpen
		armDoor()
		return nil
	}

	if order.Floor.Value() > l.floor.Value() {
		l.dir = domain.DirectionUp
	} else {
		l.dir = domain.DirectionDown
	}
	l.driver.SetDoorLight(false)
	l.state = domain.LiftStateMoving
	l.orders.UpdateLiftPosition(l.floor, l.dir)
	l.driver.SetMotorDirection(l.dir)
	armMotion()
	return nil
}

// Status returns a snapshot suitable for bidding and dashboards.
func (l *Lift) Status() domain.LiftStatus {
	reply := make(chan domain.LiftStatus, 1)
	select {
	case l.cmds <- command{kind: cmdStatus, replyStatus: reply}:
	case <-l.ctx.Done():
		return domain.LiftStatus{Node: l.node, State: domain.LiftStateInit, FloorCount: l.floorCount}
	}
	select {
	case s := <-reply:
		return s
	case <-l.ctx.Done():
		return domain.LiftStatus{Node: l.node, State: domain.LiftStateInit, FloorCount: l.floorCount}
	}
}
