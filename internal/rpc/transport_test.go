package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slavakukuyev/elevator-fleet/internal/domain"
)

type fakeHandlers struct {
	evaluateCostFn func(domain.Order) (int, bool)
	newOrders      []domain.Order
	watchdogOrders []domain.Order
	completions    []domain.Order
	watchdogComps  []domain.Order
}

func (f *fakeHandlers) EvaluateCost(order domain.Order) (int, bool) {
	if f.evaluateCostFn != nil {
		return f.evaluateCostFn(order)
	}
	return 3, false
}
func (f *fakeHandlers) NewOrder(order domain.Order)         { f.newOrders = append(f.newOrders, order) }
func (f *fakeHandlers) WatchdogNewOrder(order domain.Order) { f.watchdogOrders = append(f.watchdogOrders, order) }
func (f *fakeHandlers) OrderCompleteNotice(order domain.Order) {
	f.completions = append(f.completions, order)
}
func (f *fakeHandlers) WatchdogComplete(order domain.Order) {
	f.watchdogComps = append(f.watchdogComps, order)
}

func TestRPC_RoundTrip(t *testing.T) {
	handlers := &fakeHandlers{}
	server, err := Serve("127.0.0.1:0", "secret", handlers, nil)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	client := NewClient("node-b", server.Addr(), "secret", time.Second, nil)
	t.Cleanup(func() { client.Close() })

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(1), domain.ButtonHallUp, "node-a", time.Now())

	cost, completed, err := client.EvaluateCost(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, 3, cost)

	require.NoError(t, client.NewOrder(context.Background(), order))
	require.Len(t, handlers.newOrders, 1)

	require.NoError(t, client.WatchdogNewOrder(context.Background(), order))
	require.Len(t, handlers.watchdogOrders, 1)

	require.NoError(t, client.OrderComplete(context.Background(), order))
	require.Len(t, handlers.completions, 1)

	require.NoError(t, client.WatchdogComplete(context.Background(), order))
	require.Len(t, handlers.watchdogComps, 1)
}

func TestRPC_WrongCookieRejected(t *testing.T) {
	handlers := &fakeHandlers{}
	server, err := Serve("127.0.0.1:0", "secret", handlers, nil)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	client := NewClient("node-b", server.Addr(), "wrong-cookie", time.Second, nil)
	t.Cleanup(func() { client.Close() })

	order := domain.NewHallOrder(domain.NewOrderID("node-a"), domain.NewFloor(1), domain.ButtonHallUp, "node-a", time.Now())
	_, _, err = client.EvaluateCost(context.Background(), order)
	assert.Error(t, err)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("node-b", 2, 50*time.Millisecond, 1, nil)
	failing := func() error { return assert.AnError }

	require.Error(t, cb.Execute(context.Background(), failing))
	require.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.Error(t, err) // still open, rejected without executing

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}
