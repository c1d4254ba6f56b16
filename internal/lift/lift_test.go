package lift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slavakukuyev/elevator-fleet/internal/domain"
)

type fakeOrderServer struct {
	completed chan domain.Order
	ready     chan struct{}
	updated   chan domain.Floor
}

func newFakeOrderServer() *fakeOrderServer {
	return &fakeOrderServer{
		completed: make(chan domain.Order, 8),
		ready:     make(chan struct{}, 8),
		updated:   make(chan domain.Floor, 8),
	}
}

func (f *fakeOrderServer) OrderComplete(order domain.Order)                     { f.completed <- order }
func (f *fakeOrderServer) UpdateLiftPosition(floor domain.Floor, _ domain.Direction) { f.updated <- floor }
func (f *fakeOrderServer) LiftReady()                                          { f.ready <- struct{}{} }

func newTestLift(t *testing.T) (*Lift, *SimDriver, *fakeOrderServer) {
	t.Helper()
	driver := NewSimDriver(domain.NewFloor(0))
	orders := newFakeOrderServer()
	l := New("node-a", 4, driver, orders, nil, 20*time.Millisecond, 50*time.Millisecond, func() {})
	t.Cleanup(l.Stop)
	return l, driver, orders
}

func TestLift_InitThenReady(t *testing.T) {
	l, _, orders := newTestLift(t)

	_, _, err := l.GetPosition()
	assert.ErrorIs(t, err, domain.ErrNotReady)

	l.AtFloor(domain.NewFloor(0))

	select {
	case <-orders.ready:
	case <-time.After(time.Second):
		t.Fatal("expected LiftReady")
	}

	floor, dir, err := l.GetPosition()
	require.NoError(t, err)
	assert.Equal(t, 0, floor.Value())
	assert.Equal(t, domain.DirectionIdle, dir)
}

func TestLift_NewOrderAtCurrentFloorOpensDoorImmediately(t *testing.T) {
	l, _, orders := newTestLift(t)
	l.AtFloor(domain.NewFloor(2))
	<-orders.ready

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(2), domain.ButtonHallUp, "node-a", time.Now())
	require.NoError(t, l.NewOrder(order))

	select {
	case completed := <-orders.completed:
		assert.Equal(t, order.ID, completed.ID)
	case <-time.After(time.Second):
		t.Fatal("expected order to complete after door-hold")
	}
}

func TestLift_NewOrderElsewhereDrivesMotion(t *testing.T) {
	l, driver, orders := newTestLift(t)
	l.AtFloor(domain.NewFloor(0))
	<-orders.ready
	<-orders.updated // position reported on leaving init

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(2), domain.ButtonHallUp, "node-a", time.Now())
	require.NoError(t, l.NewOrder(order))

	<-orders.updated // position update on dispatch

	driver.Advance() // reaches floor 1
	l.AtFloor(domain.NewFloor(1))
	<-orders.updated

	driver.Advance() // reaches floor 2, the target
	l.AtFloor(domain.NewFloor(2))

	select {
	case completed := <-orders.completed:
		assert.Equal(t, order.ID, completed.ID)
	case <-time.After(time.Second):
		t.Fatal("expected order to complete on arrival")
	}
}

func TestLift_NewOrderRejectedBeforeReady(t *testing.T) {
	l, _, _ := newTestLift(t)
	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(1), domain.ButtonHallUp, "node-a", time.Now())
	err := l.NewOrder(order)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestLift_MotionStuckTriggersOnJam(t *testing.T) {
	driver := NewSimDriver(domain.NewFloor(0))
	orders := newFakeOrderServer()
	jammed := make(chan struct{}, 1)
	l := New("node-a", 4, driver, orders, nil, 20*time.Millisecond, 30*time.Millisecond, func() {
		select {
		case jammed <- struct{}{}:
		default:
		}
	})
	t.Cleanup(l.Stop)

	l.AtFloor(domain.NewFloor(0))
	<-orders.ready

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(3), domain.ButtonHallUp, "node-a", time.Now())
	require.NoError(t, l.NewOrder(order))

	select {
	case <-jammed:
	case <-time.After(time.Second):
		t.Fatal("expected jam recovery to fire")
	}
}
