// Package rpc implements the inter-node transport: three (plus two
// supplemental) named endpoints reached over net/rpc with gob encoding,
// each bounded by a 1-second deadline and protected by a per-peer circuit
// breaker. Grounded on the reference Distributed-Auction-System node's
// `Client.Call(peer, "NodeRPC.Method", args, &reply)` shape
// (node-bid.go/node-queue.go in the retrieval pack's other_examples), and
// on the teacher's circuit-breaker-wrapped operation pattern.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/metrics"
)

// EvaluateCostArgs/Reply, OrderArgs, OkReply are the gob-encoded payloads
// exchanged over net/rpc.
type EvaluateCostArgs struct {
	Order domain.Order
}

type EvaluateCostReply struct {
	Cost      int
	Completed bool
}

type OrderArgs struct {
	Order domain.Order
}

type OkReply struct {
	OK bool
}

// Handlers is implemented by the node-local components the server
// dispatches incoming calls to.
type Handlers interface {
	EvaluateCost(order domain.Order) (cost int, completed bool)
	NewOrder(order domain.Order)
	WatchdogNewOrder(order domain.Order)
	OrderCompleteNotice(order domain.Order)
	WatchdogComplete(order domain.Order)
}

// NodeRPC is the net/rpc service registered on every peer.
type NodeRPC struct {
	handlers Handlers
	cookie   string
}

// Cookie is sent as a courtesy header-less check: net/rpc has no request
// metadata, so each args struct below embeds it and the server rejects a
// mismatch, refusing foreign clusters per spec §6.
type Cookie string

func (n *NodeRPC) checkCookie(got string) error {
	if got != n.cookie {
		return fmt.Errorf("rejected: cluster cookie mismatch")
	}
	return nil
}

// EvaluateCostRPCArgs wraps EvaluateCostArgs with the cluster cookie.
type EvaluateCostRPCArgs struct {
	EvaluateCostArgs
	Cookie string
}

type OrderRPCArgs struct {
	OrderArgs
	Cookie string
}

func (n *NodeRPC) EvaluateCost(args *EvaluateCostRPCArgs, reply *EvaluateCostReply) error {
	if err := n.checkCookie(args.Cookie); err != nil {
		return err
	}
	cost, completed := n.handlers.EvaluateCost(args.Order)
	reply.Cost = cost
	reply.Completed = completed
	return nil
}

func (n *NodeRPC) NewOrder(args *OrderRPCArgs, reply *OkReply) error {
	if err := n.checkCookie(args.Cookie); err != nil {
		return err
	}
	n.handlers.NewOrder(args.Order)
	reply.OK = true
	return nil
}

func (n *NodeRPC) WatchdogNewOrder(args *OrderRPCArgs, reply *OkReply) error {
	if err := n.checkCookie(args.Cookie); err != nil {
		return err
	}
	n.handlers.WatchdogNewOrder(args.Order)
	reply.OK = true
	return nil
}

func (n *NodeRPC) OrderComplete(args *OrderRPCArgs, reply *OkReply) error {
	if err := n.checkCookie(args.Cookie); err != nil {
		return err
	}
	n.handlers.OrderCompleteNotice(args.Order)
	reply.OK = true
	return nil
}

func (n *NodeRPC) WatchdogComplete(args *OrderRPCArgs, reply *OkReply) error {
	if err := n.checkCookie(args.Cookie); err != nil {
		return err
	}
	n.handlers.WatchdogComplete(args.Order)
	reply.OK = true
	return nil
}

// Server listens for inter-node RPCs on one TCP address.
type Server struct {
	listener net.Listener
	logger   *slog.Logger
}

// Serve registers handlers under the NodeRPC service name and starts
// accepting connections on addr.
func Serve(addr, cookie string, handlers Handlers, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", constants.ComponentRPC))

	svc := &NodeRPC{handlers: handlers, cookie: cookie}
	server := rpc.NewServer()
	if err := server.RegisterName("NodeRPC", svc); err != nil {
		return nil, fmt.Errorf("registering NodeRPC service: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	s := &Server{listener: ln, logger: logger}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()
	logger.Info("rpc server listening", slog.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Client dials one peer and calls its NodeRPC endpoints, each bounded by a
// deadline and protected by a per-peer circuit breaker.
type Client struct {
	peer     string
	addr     string
	cookie   string
	deadline time.Duration
	breaker  *CircuitBreaker

	mu   sync.Mutex
	conn *rpc.Client
}

// NewClient creates a Client for peer at addr.
func NewClient(peer, addr, cookie string, deadline time.Duration, logger *slog.Logger) *Client {
	return &Client{
		peer:     peer,
		addr:     addr,
		cookie:   cookie,
		deadline: deadline,
		breaker:  NewCircuitBreaker(peer, 3, 5*time.Second, 1, logger),
	}
}

func (c *Client) dial() (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.deadline)
	if err != nil {
		return nil, err
	}
	c.conn = rpc.NewClient(conn)
	return c.conn, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// call performs one bounded RPC, tearing down and re-dialing the
// connection on any failure so the next attempt starts clean.
func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	start := time.Now()
	err := c.breaker.Execute(ctx, func() error {
		conn, err := c.dial()
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.deadline)
		defer cancel()

		done := conn.Go(method, args, reply, nil)
		select {
		case <-callCtx.Done():
			c.invalidate()
			return callCtx.Err()
		case call := <-done.Done:
			if call.Error != nil {
				c.invalidate()
				return call.Error
			}
			return nil
		}
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RPCCallDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	return err
}

// EvaluateCost calls the peer's evaluate_cost endpoint.
func (c *Client) EvaluateCost(ctx context.Context, order domain.Order) (int, bool, error) {
	var reply EvaluateCostReply
	args := &EvaluateCostRPCArgs{EvaluateCostArgs: EvaluateCostArgs{Order: order}, Cookie: c.cookie}
	if err := c.call(ctx, "NodeRPC.EvaluateCost", args, &reply); err != nil {
		return 0, false, err
	}
	return reply.Cost, reply.Completed, nil
}

// NewOrder calls the peer's new_order endpoint.
func (c *Client) NewOrder(ctx context.Context, order domain.Order) error {
	var reply OkReply
	args := &OrderRPCArgs{OrderArgs: OrderArgs{Order: order}, Cookie: c.cookie}
	return c.call(ctx, "NodeRPC.NewOrder", args, &reply)
}

// WatchdogNewOrder calls the peer's watchdog_new_order endpoint.
func (c *Client) WatchdogNewOrder(ctx context.Context, order domain.Order) error {
	var reply OkReply
	args := &OrderRPCArgs{OrderArgs: OrderArgs{Order: order}, Cookie: c.cookie}
	return c.call(ctx, "NodeRPC.WatchdogNewOrder", args, &reply)
}

// OrderComplete calls the peer's completion-notice endpoint.
func (c *Client) OrderComplete(ctx context.Context, order domain.Order) error {
	var reply OkReply
	args := &OrderRPCArgs{OrderArgs: OrderArgs{Order: order}, Cookie: c.cookie}
	return c.call(ctx, "NodeRPC.OrderComplete", args, &reply)
}

// WatchdogComplete calls the peer's watchdog-complete endpoint.
func (c *Client) WatchdogComplete(ctx context.Context, order domain.Order) error {
	var reply OkReply
	args := &OrderRPCArgs{OrderArgs: OrderArgs{Order: order}, Cookie: c.cookie}
	return c.call(ctx, "NodeRPC.WatchdogComplete", args, &reply)
}

// Close tears down the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
